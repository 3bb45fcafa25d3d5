package schema

// Severity classifies a note or validation issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Note codes used by the assembler and optimizer.
const (
	NoteUnknownOperation   = "UNKNOWN_OPERATION"
	NoteOpaqueRecipe       = "OPAQUE_RECIPE"
	NoteEmptySettings      = "EMPTY_SETTINGS"
	NoteMergedPrepare      = "MERGED_PREPARE"
	NoteRemovedOrphan      = "REMOVED_ORPHAN"
	NoteMergeReverted      = "MERGE_REVERTED"
	NoteRecommendation     = "RECOMMENDATION"
	NoteIgnoredStatement   = "IGNORED_STATEMENT"
	NoteControlFlow        = "CONTROL_FLOW"
	NoteProviderFallback   = "PROVIDER_FALLBACK"
	NoteSemanticWarning    = "SEMANTIC_WARNING"
	NoteInvalidFormula     = "INVALID_FORMULA"
	NoteExplainUnavailable = "EXPLAIN_UNAVAILABLE"
	NoteDanglingReference  = ErrCodeDanglingReference
)

// Note is a (severity, message) pair accumulated during analysis,
// assembly, or optimization. Ref names the dataset or recipe concerned.
type Note struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code,omitempty" yaml:"code,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Ref      string   `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Info builds an info note.
func Info(code, ref, message string) Note {
	return Note{Severity: SeverityInfo, Code: code, Ref: ref, Message: message}
}

// Warning builds a warning note.
func Warning(code, ref, message string) Note {
	return Note{Severity: SeverityWarning, Code: code, Ref: ref, Message: message}
}

// HasNote reports whether notes already contain an identical entry.
func HasNote(notes []Note, n Note) bool {
	for _, existing := range notes {
		if existing == n {
			return true
		}
	}
	return false
}

// FilterNotes returns the notes at or above the given severity.
func FilterNotes(notes []Note, min Severity) []Note {
	rank := map[Severity]int{SeverityInfo: 0, SeverityWarning: 1, SeverityError: 2}
	var out []Note
	for _, n := range notes {
		if rank[n.Severity] >= rank[min] {
			out = append(out, n)
		}
	}
	return out
}

// EmptySettingsNote is the warning recorded for a recipe whose settings
// carry nothing for its type.
func EmptySettingsNote(r *Recipe) Note {
	return Warning(NoteEmptySettings, r.Name, string(r.Type)+" recipe "+r.Name+" has no settings")
}
