package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/pyflow/pkg/schema"
)

// Translation statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event types of the translation log.
const (
	EventStarted   = "translation.started"
	EventPhaseDone = "phase.completed"
	EventFallback  = "translation.fallback"
	EventCompleted = "translation.completed"
	EventFailed    = "translation.failed"
)

// Translation is one persisted translation run.
type Translation struct {
	ID           string          `json:"id"`
	ScriptName   string          `json:"script_name"`
	Mode         string          `json:"mode"`
	SourceHash   string          `json:"source_hash"`
	Source       string          `json:"source,omitempty"`
	Status       string          `json:"status"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Flow         json.RawMessage `json:"flow,omitempty"`
	DatasetCount int             `json:"dataset_count"`
	RecipeCount  int             `json:"recipe_count"`
	NoteCount    int             `json:"note_count"`
	DurationMs   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SetFlow records flow and its counts on t.
func (t *Translation) SetFlow(flow *schema.Flow) error {
	if flow == nil {
		t.Flow = nil
		return nil
	}
	b, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	t.Flow = b
	t.DatasetCount = len(flow.Datasets)
	t.RecipeCount = len(flow.Recipes)
	t.NoteCount = len(flow.Notes)
	return nil
}

// DecodeFlow rebuilds the stored flow, or returns nil for failed runs.
func (t *Translation) DecodeFlow() (*schema.Flow, error) {
	if len(t.Flow) == 0 {
		return nil, nil
	}
	var f schema.Flow
	if err := json.Unmarshal(t.Flow, &f); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "decode stored flow").WithCause(err)
	}
	return &f, nil
}

// TranslationFilter narrows ListTranslations.
type TranslationFilter struct {
	ScriptName string
	Status     string
	Mode       string
	Since      *time.Time
	Limit      int
	Offset     int
}

// Event is an immutable entry of a translation's phase log.
type Event struct {
	ID            int64           `json:"id"`
	TranslationID string          `json:"translation_id"`
	Type          string          `json:"event_type"`
	Phase         string          `json:"phase,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Sequence      int64           `json:"sequence"`
}

// PhaseRecord is the replayed state of one phase.
type PhaseRecord struct {
	Phase       string          `json:"phase"`
	CompletedAt time.Time       `json:"completed_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Timeline is a translation reconstructed from its event log.
type Timeline struct {
	TranslationID string          `json:"translation_id"`
	Status        string          `json:"status"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Phases        []*PhaseRecord  `json:"phases"`
	FellBack      bool            `json:"fell_back"`
	Error         json.RawMessage `json:"error,omitempty"`
}
