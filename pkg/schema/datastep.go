package schema

import (
	"encoding/json"
	"slices"
	"strings"
)

// OperationType is the closed vocabulary of semantic-path operations.
type OperationType string

const (
	OpReadData        OperationType = "read_data"
	OpWriteData       OperationType = "write_data"
	OpFilter          OperationType = "filter"
	OpSelectColumns   OperationType = "select_columns"
	OpDropColumns     OperationType = "drop_columns"
	OpRenameColumns   OperationType = "rename_columns"
	OpFillMissing     OperationType = "fill_missing"
	OpDropMissing     OperationType = "drop_missing"
	OpCastType        OperationType = "cast_type"
	OpStringTransform OperationType = "string_transform"
	OpParseDate       OperationType = "parse_date"
	OpExtractDate     OperationType = "extract_date"
	OpComputeColumn   OperationType = "compute_column"
	OpFindReplace     OperationType = "find_replace"
	OpRound           OperationType = "round"
	OpClip            OperationType = "clip"
	OpBin             OperationType = "bin"
	OpEncode          OperationType = "encode"
	OpNormalize       OperationType = "normalize"
	OpFold            OperationType = "fold"
	OpGroupAggregate  OperationType = "group_aggregate"
	OpJoin            OperationType = "join"
	OpUnion           OperationType = "union"
	OpSplit           OperationType = "split"
	OpSort            OperationType = "sort"
	OpDistinct        OperationType = "distinct"
	OpTopN            OperationType = "top_n"
	OpSample          OperationType = "sample"
	OpPivot           OperationType = "pivot"
	OpWindow          OperationType = "window"
	OpCustomCode      OperationType = "custom_code"
	OpUnknown         OperationType = "unknown"
)

var operationKinds = map[OperationType]TransformationKind{
	OpReadData:        KindReadData,
	OpWriteData:       KindWriteData,
	OpFilter:          KindFilter,
	OpSelectColumns:   KindSelectColumns,
	OpDropColumns:     KindDropColumns,
	OpRenameColumns:   KindRenameColumns,
	OpFillMissing:     KindFillMissing,
	OpDropMissing:     KindDropMissing,
	OpCastType:        KindTypeCast,
	OpStringTransform: KindStringTransform,
	OpParseDate:       KindDateParse,
	OpExtractDate:     KindDateExtract,
	OpComputeColumn:   KindColumnCreate,
	OpFindReplace:     KindFindReplace,
	OpRound:           KindRound,
	OpClip:            KindClip,
	OpBin:             KindBinning,
	OpEncode:          KindEncode,
	OpNormalize:       KindNormalize,
	OpFold:            KindFold,
	OpGroupAggregate:  KindGroupAggregate,
	OpJoin:            KindJoin,
	OpUnion:           KindUnion,
	OpSplit:           KindSplit,
	OpSort:            KindSort,
	OpDistinct:        KindDistinct,
	OpTopN:            KindTopN,
	OpSample:          KindSample,
	OpPivot:           KindPivot,
	OpWindow:          KindWindow,
	OpCustomCode:      KindOpaque,
}

// operationAliases maps spellings models commonly produce onto the
// canonical vocabulary.
var operationAliases = map[string]OperationType{
	"read":             OpReadData,
	"load":             OpReadData,
	"load_data":        OpReadData,
	"write":            OpWriteData,
	"save":             OpWriteData,
	"save_data":        OpWriteData,
	"export":           OpWriteData,
	"select":           OpSelectColumns,
	"drop":             OpDropColumns,
	"rename":           OpRenameColumns,
	"fillna":           OpFillMissing,
	"impute":           OpFillMissing,
	"dropna":           OpDropMissing,
	"type_cast":        OpCastType,
	"cast":             OpCastType,
	"convert_type":     OpCastType,
	"date_parse":       OpParseDate,
	"date_extract":     OpExtractDate,
	"column_create":    OpComputeColumn,
	"create_column":    OpComputeColumn,
	"formula":          OpComputeColumn,
	"replace":          OpFindReplace,
	"binning":          OpBin,
	"one_hot":          OpEncode,
	"one_hot_encode":   OpEncode,
	"scale":            OpNormalize,
	"melt":             OpFold,
	"unpivot":          OpFold,
	"groupby":          OpGroupAggregate,
	"group_by":         OpGroupAggregate,
	"aggregate":        OpGroupAggregate,
	"merge":            OpJoin,
	"concat":           OpUnion,
	"stack":            OpUnion,
	"train_test_split": OpSplit,
	"sort_values":      OpSort,
	"deduplicate":      OpDistinct,
	"drop_duplicates":  OpDistinct,
	"topn":             OpTopN,
	"head":             OpSample,
	"sampling":         OpSample,
	"pivot_table":      OpPivot,
	"rolling":          OpWindow,
	"custom":           OpCustomCode,
	"code":             OpCustomCode,
	"python":           OpCustomCode,
}

// Operation is a tagged union over OperationType with an explicit unknown
// variant that keeps the raw string a model produced.
type Operation struct {
	Type OperationType
	Raw  string
}

// ParseOperation maps a raw operation string onto the vocabulary. Values
// outside it become the unknown variant instead of failing.
func ParseOperation(raw string) Operation {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if _, ok := operationKinds[OperationType(norm)]; ok {
		return Operation{Type: OperationType(norm)}
	}
	if op, ok := operationAliases[norm]; ok {
		return Operation{Type: op}
	}
	return Operation{Type: OpUnknown, Raw: raw}
}

// Operations lists the canonical vocabulary in a stable order.
func Operations() []OperationType {
	out := make([]OperationType, 0, len(operationKinds))
	for op := range operationKinds {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// Known reports whether the operation is in the vocabulary.
func (o Operation) Known() bool {
	return o.Type != OpUnknown && o.Type != ""
}

// Kind returns the transformation kind the operation corresponds to.
// Unknown operations map to KindOpaque.
func (o Operation) Kind() TransformationKind {
	if k, ok := operationKinds[o.Type]; ok {
		return k
	}
	return KindOpaque
}

func (o Operation) String() string {
	if o.Type == OpUnknown {
		return o.Raw
	}
	return string(o.Type)
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = ParseOperation(raw)
	return nil
}

// DataStep is the record produced by the semantic analyzer.
type DataStep struct {
	StepNumber           int               `json:"step_number"`
	Operation            Operation         `json:"operation"`
	Description          string            `json:"description,omitempty"`
	InputDatasets        []string          `json:"input_datasets,omitempty"`
	OutputDataset        string            `json:"output_dataset,omitempty"`
	Columns              []string          `json:"columns,omitempty"`
	FilterConditions     []FilterCondition `json:"filter_conditions,omitempty"`
	GroupByColumns       []string          `json:"group_by_columns,omitempty"`
	Aggregations         []Aggregation     `json:"aggregations,omitempty"`
	JoinType             string            `json:"join_type,omitempty"`
	JoinConditions       []JoinCondition   `json:"join_conditions,omitempty"`
	ColumnMapping        map[string]string `json:"column_mapping,omitempty"`
	SortColumns          []SortColumn      `json:"sort_columns,omitempty"`
	FillValue            any               `json:"fill_value,omitempty"`
	Parameters           map[string]any    `json:"parameters,omitempty"`
	Code                 string            `json:"code,omitempty"`
	Reasoning            string            `json:"reasoning,omitempty"`
	RequiresOpaqueRecipe bool              `json:"requires_opaque_recipe,omitempty"`
	SuggestedRecipe      string            `json:"suggested_recipe,omitempty"`
	SuggestedProcessor   string            `json:"suggested_processor,omitempty"`
	SourceLines          []int             `json:"source_lines,omitempty"`
}

// AnalysisResult wraps the ordered steps of a semantic analysis.
type AnalysisResult struct {
	Steps    []DataStep `json:"steps"`
	Summary  string     `json:"summary,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Empty reports whether the analysis found no data operations.
func (r *AnalysisResult) Empty() bool {
	return r == nil || len(r.Steps) == 0
}
