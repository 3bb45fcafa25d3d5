package schema

// RecipeSettings is the settings payload of a recipe. The set of variants is
// closed: one per RecipeType.
type RecipeSettings interface {
	RecipeType() RecipeType
	// Empty reports whether the settings carry no content for their type.
	Empty() bool
	toMap() map[string]any
	clone() RecipeSettings
}

// ProcessorStep is one column-level step of a Prepare recipe.
// Params holds plain values only (see PlainValue).
type ProcessorStep struct {
	Type       ProcessorType  `json:"type"`
	Params     map[string]any `json:"params,omitempty"`
	SourceLine int            `json:"source_line,omitempty"`
}

// PrepareSettings is an ordered list of processor steps.
type PrepareSettings struct {
	Steps []ProcessorStep
}

func (s *PrepareSettings) RecipeType() RecipeType { return RecipePrepare }
func (s *PrepareSettings) Empty() bool            { return len(s.Steps) == 0 }

func (s *PrepareSettings) clone() RecipeSettings {
	out := &PrepareSettings{Steps: make([]ProcessorStep, len(s.Steps))}
	for i, st := range s.Steps {
		out.Steps[i] = ProcessorStep{Type: st.Type, Params: copyMap(st.Params), SourceLine: st.SourceLine}
	}
	return out
}

// GroupingSettings groups by key columns and aggregates.
type GroupingSettings struct {
	Keys         []string
	Aggregations []Aggregation
}

func (s *GroupingSettings) RecipeType() RecipeType { return RecipeGrouping }
func (s *GroupingSettings) Empty() bool {
	return len(s.Keys) == 0 && len(s.Aggregations) == 0
}

func (s *GroupingSettings) clone() RecipeSettings {
	return &GroupingSettings{
		Keys:         append([]string(nil), s.Keys...),
		Aggregations: append([]Aggregation(nil), s.Aggregations...),
	}
}

// JoinSettings joins the first input with the others.
type JoinSettings struct {
	JoinType   string
	Conditions []JoinCondition
}

func (s *JoinSettings) RecipeType() RecipeType { return RecipeJoin }
func (s *JoinSettings) Empty() bool            { return len(s.Conditions) == 0 }

func (s *JoinSettings) clone() RecipeSettings {
	return &JoinSettings{JoinType: s.JoinType, Conditions: append([]JoinCondition(nil), s.Conditions...)}
}

// StackSettings stacks inputs vertically.
type StackSettings struct {
	Mode        string
	IgnoreIndex bool
}

func (s *StackSettings) RecipeType() RecipeType { return RecipeStack }
func (s *StackSettings) Empty() bool            { return s.Mode == "" }
func (s *StackSettings) clone() RecipeSettings  { cp := *s; return &cp }

// SplitSettings routes rows to several outputs.
type SplitSettings struct {
	Mode      string
	Ratio     float64
	Condition string
	Seed      *int
}

func (s *SplitSettings) RecipeType() RecipeType { return RecipeSplit }
func (s *SplitSettings) Empty() bool            { return s.Ratio == 0 && s.Condition == "" }

func (s *SplitSettings) clone() RecipeSettings {
	cp := *s
	if s.Seed != nil {
		seed := *s.Seed
		cp.Seed = &seed
	}
	return &cp
}

// SortSettings orders rows.
type SortSettings struct {
	Columns []SortColumn
}

func (s *SortSettings) RecipeType() RecipeType { return RecipeSort }
func (s *SortSettings) Empty() bool            { return len(s.Columns) == 0 }

func (s *SortSettings) clone() RecipeSettings {
	return &SortSettings{Columns: append([]SortColumn(nil), s.Columns...)}
}

// DistinctSettings removes duplicate rows. No columns means all columns.
type DistinctSettings struct {
	Columns []string
	Keep    string
}

func (s *DistinctSettings) RecipeType() RecipeType { return RecipeDistinct }
func (s *DistinctSettings) Empty() bool            { return false }

func (s *DistinctSettings) clone() RecipeSettings {
	return &DistinctSettings{Columns: append([]string(nil), s.Columns...), Keep: s.Keep}
}

// TopNSettings keeps the first N rows by an order.
type TopNSettings struct {
	N       int
	OrderBy []SortColumn
}

func (s *TopNSettings) RecipeType() RecipeType { return RecipeTopN }
func (s *TopNSettings) Empty() bool            { return s.N == 0 }

func (s *TopNSettings) clone() RecipeSettings {
	return &TopNSettings{N: s.N, OrderBy: append([]SortColumn(nil), s.OrderBy...)}
}

// SampleSettings takes a subset of rows.
type SampleSettings struct {
	Method   string
	N        int
	Fraction float64
	Seed     *int
}

func (s *SampleSettings) RecipeType() RecipeType { return RecipeSample }
func (s *SampleSettings) Empty() bool            { return s.N == 0 && s.Fraction == 0 }

func (s *SampleSettings) clone() RecipeSettings {
	cp := *s
	if s.Seed != nil {
		seed := *s.Seed
		cp.Seed = &seed
	}
	return &cp
}

// PivotSettings reshapes rows into columns.
type PivotSettings struct {
	Index   []string
	Columns []string
	Values  []string
	AggFunc string
}

func (s *PivotSettings) RecipeType() RecipeType { return RecipePivot }
func (s *PivotSettings) Empty() bool            { return len(s.Columns) == 0 }

func (s *PivotSettings) clone() RecipeSettings {
	return &PivotSettings{
		Index:   append([]string(nil), s.Index...),
		Columns: append([]string(nil), s.Columns...),
		Values:  append([]string(nil), s.Values...),
		AggFunc: s.AggFunc,
	}
}

// WindowSettings computes aggregations over partitions and frames.
type WindowSettings struct {
	PartitionBy  []string
	OrderBy      []SortColumn
	Frame        int
	Aggregations []Aggregation
}

func (s *WindowSettings) RecipeType() RecipeType { return RecipeWindow }
func (s *WindowSettings) Empty() bool            { return len(s.Aggregations) == 0 }

func (s *WindowSettings) clone() RecipeSettings {
	return &WindowSettings{
		PartitionBy:  append([]string(nil), s.PartitionBy...),
		OrderBy:      append([]SortColumn(nil), s.OrderBy...),
		Frame:        s.Frame,
		Aggregations: append([]Aggregation(nil), s.Aggregations...),
	}
}

// SyncSettings copies a dataset unchanged.
type SyncSettings struct{}

func (s *SyncSettings) RecipeType() RecipeType { return RecipeSync }
func (s *SyncSettings) Empty() bool            { return false }
func (s *SyncSettings) clone() RecipeSettings  { return &SyncSettings{} }

// CodeSettings holds untranslated source.
type CodeSettings struct {
	Language string
	Code     string
}

func (s *CodeSettings) RecipeType() RecipeType { return RecipePython }
func (s *CodeSettings) Empty() bool            { return s.Code == "" }
func (s *CodeSettings) clone() RecipeSettings  { cp := *s; return &cp }

// DefaultSettings returns an empty settings value for a recipe type.
func DefaultSettings(t RecipeType) RecipeSettings {
	switch t {
	case RecipePrepare:
		return &PrepareSettings{}
	case RecipeGrouping:
		return &GroupingSettings{}
	case RecipeJoin:
		return &JoinSettings{JoinType: "inner"}
	case RecipeStack:
		return &StackSettings{Mode: "union"}
	case RecipeSplit:
		return &SplitSettings{}
	case RecipeSort:
		return &SortSettings{}
	case RecipeDistinct:
		return &DistinctSettings{}
	case RecipeTopN:
		return &TopNSettings{}
	case RecipeSample:
		return &SampleSettings{}
	case RecipePivot:
		return &PivotSettings{}
	case RecipeWindow:
		return &WindowSettings{}
	case RecipeSync:
		return &SyncSettings{}
	case RecipePython:
		return &CodeSettings{Language: "python"}
	}
	return nil
}
