package assembler

import (
	"github.com/rendis/pyflow/pkg/schema"
)

// StaticAssembler builds flows from static analysis output.
type StaticAssembler struct {
	opts options
}

// NewStatic creates a StaticAssembler.
func NewStatic(opts ...Option) *StaticAssembler {
	return &StaticAssembler{opts: buildOptions(opts)}
}

// Assemble builds a flow from transformations in source order. Each call
// starts from an empty flow.
func (a *StaticAssembler) Assemble(ts []schema.Transformation) (*schema.Flow, error) {
	ops := make([]operation, 0, len(ts))
	for _, t := range ts {
		ops = append(ops, fromTransformation(t))
	}
	return newBase(a.opts).run(ops)
}

func fromTransformation(t schema.Transformation) operation {
	op := operation{
		kind:      t.Kind,
		params:    schema.PlainParams(t.Parameters),
		recipe:    t.SuggestedRecipeType,
		processor: t.SuggestedProcessorType,
		lines:     t.Lines(),
	}
	if t.SourceDataframe != "" || t.Kind != schema.KindReadData {
		op.sources = append(op.sources, t.SourceDataframe)
	}
	op.sources = append(op.sources, t.AdditionalSources...)
	if t.TargetDataframe != "" {
		op.targets = append(op.targets, t.TargetDataframe)
	}
	op.targets = append(op.targets, t.AdditionalTargets...)
	if !t.Kind.Known() {
		op.unknown = string(t.Kind)
	}
	if op.params == nil {
		op.params = map[string]any{}
	}
	return op
}
