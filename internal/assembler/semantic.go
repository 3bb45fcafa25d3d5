package assembler

import (
	"maps"
	"slices"

	"github.com/rendis/pyflow/pkg/schema"
)

// SemanticAssembler builds flows from the data steps of a semantic
// analysis.
type SemanticAssembler struct {
	opts options
}

// NewSemantic creates a SemanticAssembler.
func NewSemantic(opts ...Option) *SemanticAssembler {
	return &SemanticAssembler{opts: buildOptions(opts)}
}

// Assemble builds a flow from steps ordered by step number. A step that
// names no input reads the output of the step before it.
func (a *SemanticAssembler) Assemble(steps []schema.DataStep) (*schema.Flow, error) {
	ordered := slices.Clone(steps)
	slices.SortStableFunc(ordered, func(x, y schema.DataStep) int {
		return x.StepNumber - y.StepNumber
	})

	ops := make([]operation, 0, len(ordered))
	previous := ""
	for _, s := range ordered {
		op := fromDataStep(s)
		if len(op.sources) == 0 && op.kind != schema.KindReadData && previous != "" {
			op.sources = []string{previous}
		}
		if t := op.target(); t != "" {
			previous = t
		}
		ops = append(ops, op)
	}
	return newBase(a.opts).run(ops)
}

// fromDataStep folds the typed fields of a step into the shared parameter
// keys used by static analysis.
func fromDataStep(s schema.DataStep) operation {
	params := map[string]any{}
	maps.Copy(params, schema.PlainParams(s.Parameters))

	set := func(key string, v any, present bool) {
		if present {
			params[key] = schema.PlainValue(v)
		}
	}
	set(schema.ParamColumns, s.Columns, len(s.Columns) > 0)
	set(schema.ParamGroupBy, s.GroupByColumns, len(s.GroupByColumns) > 0)
	set(schema.ParamAggregations, s.Aggregations, len(s.Aggregations) > 0)
	set(schema.ParamJoinType, s.JoinType, s.JoinType != "")
	set(schema.ParamJoinOn, s.JoinConditions, len(s.JoinConditions) > 0)
	set(schema.ParamMapping, s.ColumnMapping, len(s.ColumnMapping) > 0)
	set(schema.ParamSortColumns, s.SortColumns, len(s.SortColumns) > 0)
	set(schema.ParamValue, s.FillValue, s.FillValue != nil)
	set(schema.ParamRawSnippet, s.Code, s.Code != "")
	set(schema.ParamDescription, s.Description, s.Description != "")
	if len(s.FilterConditions) > 0 {
		params[schema.ParamConditions] = schema.PlainValue(s.FilterConditions)
		if _, ok := params[schema.ParamCombinator]; !ok {
			params[schema.ParamCombinator] = "and"
		}
	}
	if path, ok := params["file_path"]; ok {
		if _, has := params[schema.ParamPath]; !has {
			params[schema.ParamPath] = path
		}
	}

	op := operation{
		kind:      s.Operation.Kind(),
		sources:   slices.Clone(s.InputDatasets),
		params:    params,
		processor: schema.ProcessorType(s.SuggestedProcessor),
		lines:     slices.Clone(s.SourceLines),
	}
	if rt := schema.RecipeType(s.SuggestedRecipe); rt.Valid() {
		op.recipe = rt
	}
	if s.OutputDataset != "" {
		op.targets = []string{s.OutputDataset}
	}
	// Splits may name further outputs in parameters.
	for _, extra := range stringList(params["output_datasets"]) {
		if extra != s.OutputDataset {
			op.targets = append(op.targets, extra)
		}
	}
	if !s.Operation.Known() {
		op.unknown = s.Operation.Raw
		if op.unknown == "" {
			op.unknown = string(schema.OpUnknown)
		}
	}
	if s.RequiresOpaqueRecipe {
		op.kind = schema.KindOpaque
	}
	if op.kind == schema.KindFilter && op.processor == "" {
		op.processor = schema.ProcFilterOnValue
		if _, ok := params[schema.ParamConditions]; !ok {
			op.processor = schema.ProcFilterOnFormula
		}
	}
	return op
}
