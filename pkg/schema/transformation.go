package schema

import "strings"

// TransformationKind tags the category of a recognized operation.
type TransformationKind string

const (
	KindReadData        TransformationKind = "read_data"
	KindWriteData       TransformationKind = "write_data"
	KindFillMissing     TransformationKind = "fill_missing"
	KindDropMissing     TransformationKind = "drop_missing"
	KindRenameColumns   TransformationKind = "rename_columns"
	KindDropColumns     TransformationKind = "drop_columns"
	KindSelectColumns   TransformationKind = "select_columns"
	KindFilter          TransformationKind = "filter"
	KindStringTransform TransformationKind = "string_transform"
	KindTypeCast        TransformationKind = "type_cast"
	KindDateParse       TransformationKind = "date_parse"
	KindDateExtract     TransformationKind = "date_extract"
	KindColumnCreate    TransformationKind = "column_create"
	KindFindReplace     TransformationKind = "find_replace"
	KindRound           TransformationKind = "round"
	KindClip            TransformationKind = "clip"
	KindBinning         TransformationKind = "binning"
	KindEncode          TransformationKind = "encode"
	KindNormalize       TransformationKind = "normalize"
	KindFold            TransformationKind = "fold"
	KindGroupAggregate  TransformationKind = "group_aggregate"
	KindJoin            TransformationKind = "join"
	KindUnion           TransformationKind = "union"
	KindSplit           TransformationKind = "split"
	KindSort            TransformationKind = "sort"
	KindDistinct        TransformationKind = "distinct"
	KindTopN            TransformationKind = "top_n"
	KindSample          TransformationKind = "sample"
	KindPivot           TransformationKind = "pivot"
	KindWindow          TransformationKind = "window"
	KindOpaque          TransformationKind = "opaque"

	// KindAlias binds a second variable to the dataset another variable
	// holds at that point. It produces no recipe.
	KindAlias TransformationKind = "alias"
)

var prepareKinds = map[TransformationKind]ProcessorType{
	KindFillMissing:     ProcFillEmpty,
	KindDropMissing:     ProcRemoveRowsOnEmpty,
	KindRenameColumns:   ProcColumnRenamer,
	KindDropColumns:     ProcColumnsSelector,
	KindSelectColumns:   ProcColumnsSelector,
	KindFilter:          ProcFilterOnValue,
	KindStringTransform: ProcStringTransformer,
	KindTypeCast:        ProcTypeSetter,
	KindDateParse:       ProcDateParser,
	KindDateExtract:     ProcDateComponents,
	KindColumnCreate:    ProcFormula,
	KindFindReplace:     ProcFindReplace,
	KindRound:           ProcRound,
	KindClip:            ProcClip,
	KindBinning:         ProcBinner,
	KindEncode:          ProcCategoricalEncoder,
	KindNormalize:       ProcNormalizer,
	KindFold:            ProcFold,
}

var recipeForKind = map[TransformationKind]RecipeType{
	KindGroupAggregate: RecipeGrouping,
	KindJoin:           RecipeJoin,
	KindUnion:          RecipeStack,
	KindSplit:          RecipeSplit,
	KindSort:           RecipeSort,
	KindDistinct:       RecipeDistinct,
	KindTopN:           RecipeTopN,
	KindSample:         RecipeSample,
	KindPivot:          RecipePivot,
	KindWindow:         RecipeWindow,
	KindOpaque:         RecipePython,
}

// IsPrepare reports whether the kind becomes a processor step inside a
// Prepare recipe.
func (k TransformationKind) IsPrepare() bool {
	_, ok := prepareKinds[k]
	return ok
}

// DefaultProcessor returns the processor used for a prepare kind.
func (k TransformationKind) DefaultProcessor() ProcessorType {
	return prepareKinds[k]
}

// DefaultRecipe returns the recipe type a kind produces. Prepare kinds map
// to RecipePrepare; read and write kinds produce no recipe.
func (k TransformationKind) DefaultRecipe() RecipeType {
	if k.IsPrepare() {
		return RecipePrepare
	}
	return recipeForKind[k]
}

// Known reports whether k is one of the defined kinds.
func (k TransformationKind) Known() bool {
	if k == KindReadData || k == KindWriteData || k == KindAlias {
		return true
	}
	return k.IsPrepare() || recipeForKind[k] != ""
}

// Parameter keys shared by both analyzers and the assembler.
const (
	ParamColumns       = "columns"
	ParamColumn        = "column"
	ParamOutputColumn  = "output_column"
	ParamMapping       = "mapping"
	ParamValue         = "value"
	ParamMethod        = "method"
	ParamOperation     = "operation"
	ParamExpression    = "expression"
	ParamConditions    = "conditions"
	ParamCombinator    = "combinator"
	ParamGroupBy       = "group_by"
	ParamAggregations  = "aggregations"
	ParamJoinType      = "how"
	ParamJoinOn        = "join_conditions"
	ParamSortColumns   = "sort_columns"
	ParamN             = "n"
	ParamFraction      = "frac"
	ParamSeed          = "random_state"
	ParamPath          = "path"
	ParamFormat        = "format"
	ParamDType         = "dtype"
	ParamDateFormat    = "date_format"
	ParamComponent     = "component"
	ParamPattern       = "pattern"
	ParamReplacement   = "replacement"
	ParamDecimals      = "decimals"
	ParamLower         = "lower"
	ParamUpper         = "upper"
	ParamBins          = "bins"
	ParamLabels        = "labels"
	ParamKeep          = "keep"
	ParamSubset        = "subset"
	ParamIndex         = "index"
	ParamValues        = "values"
	ParamAggFunc       = "aggfunc"
	ParamWindow        = "window"
	ParamTestSize      = "test_size"
	ParamIDVars        = "id_vars"
	ParamValueVars     = "value_vars"
	ParamAxis          = "axis"
	ParamRawSnippet    = "raw_source_snippet"
	ParamUnknownOp     = "unknown_operation"
	ParamDescription   = "description"
	ParamPrefix        = "prefix"
	ParamAccessor      = "accessor"
	ParamStrategy      = "strategy"
	ParamHow           = "how_rows"
	ParamThreshold     = "thresh"
	ParamIgnoreIndex   = "ignore_index"
	ParamIncludeLabels = "include_labels"
)

// FilterCondition is one comparison of a row filter.
type FilterCondition struct {
	Column   string `json:"column" yaml:"column"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Aggregation is a (column, function, output) triple of a group or window.
type Aggregation struct {
	Column       string `json:"column" yaml:"column"`
	Function     string `json:"function" yaml:"function"`
	OutputColumn string `json:"output_column,omitempty" yaml:"output_column,omitempty"`
}

// JoinCondition pairs the key columns of a join.
type JoinCondition struct {
	LeftColumn  string `json:"left_column" yaml:"left_column"`
	RightColumn string `json:"right_column" yaml:"right_column"`
}

// SortColumn is one key of a sort order.
type SortColumn struct {
	Column    string `json:"column" yaml:"column"`
	Ascending bool   `json:"ascending" yaml:"ascending"`
}

// Transformation is the atomic record emitted by static analysis.
// It is immutable once emitted.
type Transformation struct {
	Kind                   TransformationKind `json:"kind"`
	SourceDataframe        string             `json:"source_dataframe,omitempty"`
	TargetDataframe        string             `json:"target_dataframe,omitempty"`
	AdditionalSources      []string           `json:"additional_sources,omitempty"`
	AdditionalTargets      []string           `json:"additional_targets,omitempty"`
	Parameters             map[string]any     `json:"parameters,omitempty"`
	SuggestedRecipeType    RecipeType         `json:"suggested_recipe_type,omitempty"`
	SuggestedProcessorType ProcessorType      `json:"suggested_processor_type,omitempty"`
	SourceLine             int                `json:"source_line,omitempty"`
	EndLine                int                `json:"end_line,omitempty"`
}

// Lines returns the source lines covered by the transformation.
func (t Transformation) Lines() []int {
	if t.SourceLine == 0 {
		return nil
	}
	if t.EndLine <= t.SourceLine {
		return []int{t.SourceLine}
	}
	lines := make([]int, 0, t.EndLine-t.SourceLine+1)
	for l := t.SourceLine; l <= t.EndLine; l++ {
		lines = append(lines, l)
	}
	return lines
}

// ChainPrefix marks synthetic names for the intermediate results of a
// method chain.
const ChainPrefix = "__chain"

// IsChainName reports whether name is a synthetic chain intermediate.
func IsChainName(name string) bool {
	return strings.HasPrefix(name, ChainPrefix)
}
