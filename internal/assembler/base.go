// Package assembler builds a schema.Flow from the ordered output of an
// analyzer. StaticAssembler consumes transformations, SemanticAssembler
// consumes data steps; both normalize their input into operations and hand
// them to one shared base that owns naming, recipe construction, and
// finalization.
package assembler

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/graph"
	"github.com/rendis/pyflow/pkg/schema"
)

// operation is the analyzer-independent form of one step.
type operation struct {
	kind      schema.TransformationKind
	sources   []string
	targets   []string
	params    map[string]any
	recipe    schema.RecipeType
	processor schema.ProcessorType
	lines     []int
	// unknown holds the raw name of an operation outside the vocabulary.
	unknown string
}

func (op operation) source() string {
	if len(op.sources) == 0 {
		return ""
	}
	return op.sources[0]
}

func (op operation) target() string {
	if len(op.targets) == 0 {
		return ""
	}
	return op.targets[0]
}

func (op operation) line() int {
	if len(op.lines) == 0 {
		return 0
	}
	return op.lines[0]
}

// Option configures an assembler.
type Option func(*options)

type options struct {
	strict bool
	prefix string
	suffix string
	name   string
	logger *slog.Logger
}

// WithStrict makes unresolved dataset references fail with
// DANGLING_REFERENCE instead of producing placeholder inputs.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

// WithNaming wraps every dataset name in a prefix and suffix.
func WithNaming(prefix, suffix string) Option {
	return func(o *options) { o.prefix, o.suffix = prefix, suffix }
}

// WithFlowName sets the name of the assembled flow.
func WithFlowName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var disallowed = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeName is the single dataset name cleaning function: every
// character outside [A-Za-z0-9_] becomes an underscore.
func SanitizeName(name string) string {
	name = disallowed.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		return "dataset"
	}
	return name
}

// openPrepare is the Prepare recipe later prepare steps may extend.
type openPrepare struct {
	recipe *schema.Recipe
	output string
	// synthetic is set while the output is named after a chain
	// intermediate rather than a script variable.
	synthetic bool
}

// base holds the state of one assembly run.
type base struct {
	opts options
	flow *schema.Flow

	vars    map[string]string // script variable → current dataset
	origin  map[string]string // dataset → variable it was named after
	ordinal int
	open    *openPrepare
}

func newBase(opts options) *base {
	return &base{
		opts:   opts,
		flow:   schema.NewFlow(opts.name),
		vars:   map[string]string{},
		origin: map[string]string{},
	}
}

// run consumes ops in order and finalizes the flow.
func (b *base) run(ops []operation) (*schema.Flow, error) {
	for _, op := range ops {
		if err := b.apply(op); err != nil {
			return nil, err
		}
	}
	if err := b.finalize(); err != nil {
		return nil, err
	}
	b.opts.logger.Debug("flow assembled",
		slog.String("flow", b.flow.Name),
		slog.Int("datasets", len(b.flow.Datasets)),
		slog.Int("recipes", len(b.flow.Recipes)),
	)
	return b.flow, nil
}

func (b *base) apply(op operation) error {
	switch {
	case op.kind == schema.KindReadData:
		b.read(op)
		return nil
	case op.kind == schema.KindWriteData:
		return b.write(op)
	case op.kind == schema.KindAlias:
		b.alias(op)
		return nil
	case op.kind.IsPrepare() && (op.recipe == "" || op.recipe == schema.RecipePrepare):
		return b.prepare(op)
	}
	return b.standalone(op)
}

// read registers an external input, named after its file when known.
func (b *base) read(op operation) {
	path, _ := op.params[schema.ParamPath].(string)
	format, _ := op.params[schema.ParamFormat].(string)
	hint := catalog.DatasetNameFromPath(path)
	if hint == "" {
		hint = op.target()
	}
	name := b.allocate(hint)
	b.flow.Datasets = append(b.flow.Datasets, &schema.Dataset{
		Name:     name,
		Role:     schema.RoleInput,
		Path:     path,
		Format:   format,
		Declared: true,
	})
	b.origin[name] = op.target()
	for _, t := range op.targets {
		if t != "" {
			b.vars[t] = name
		}
	}
}

// alias points the target variable at the dataset the source variable
// holds now. A Prepare whose output gained a second name is closed, so
// later steps on either variable start a new recipe.
func (b *base) alias(op operation) {
	name, ok := b.vars[op.source()]
	if !ok || op.target() == "" {
		return
	}
	b.vars[op.target()] = name
	if b.open != nil && b.open.output == name {
		b.open = nil
	}
}

// write declares a dataset as a flow output. Writing an unmodified input,
// or writing the same dataset to a second location, copies it with a sync
// recipe.
func (b *base) write(op operation) error {
	b.open = nil
	src, err := b.input(op.source(), op.line())
	if err != nil {
		return err
	}
	path, _ := op.params[schema.ParamPath].(string)
	format, _ := op.params[schema.ParamFormat].(string)

	ds := b.flow.Dataset(src)
	if b.flow.Producer(src) != nil && (ds.Path == "" || ds.Path == path) {
		ds.Declared = true
		ds.Path, ds.Format = path, format
		return nil
	}

	hint := catalog.DatasetNameFromPath(path)
	if hint == "" {
		hint = b.origin[src]
	}
	out := b.allocate(hint)
	b.origin[out] = b.origin[src]
	b.flow.Datasets = append(b.flow.Datasets, &schema.Dataset{
		Name:     out,
		Role:     schema.RoleOutput,
		Path:     path,
		Format:   format,
		Declared: true,
	})
	r := b.newRecipe(schema.RecipeSync, []string{src}, op)
	r.Outputs = []string{out}
	r.Settings = &schema.SyncSettings{}
	return nil
}

// prepare appends a processor step to the open Prepare recipe when the
// step continues it, and opens a new Prepare otherwise.
func (b *base) prepare(op operation) error {
	step := schema.ProcessorStep{
		Type:       op.processor,
		Params:     schema.PlainParams(op.params),
		SourceLine: op.line(),
	}
	if step.Type == "" {
		step.Type = op.kind.DefaultProcessor()
	}
	if op.kind == schema.KindDropColumns || op.kind == schema.KindSelectColumns {
		if step.Params == nil {
			step.Params = map[string]any{}
		}
		step.Params[schema.ParamKeep] = op.kind == schema.KindSelectColumns
	}

	if b.extends(op) {
		r := b.open.recipe
		settings := r.Settings.(*schema.PrepareSettings)
		settings.Steps = append(settings.Steps, step)
		r.SourceLines = mergeLines(r.SourceLines, op.lines)
		b.continueOutput(op)
		return nil
	}

	inputs, err := b.inputs(op)
	if err != nil {
		return err
	}
	r := b.newRecipe(schema.RecipePrepare, inputs, op)
	r.Settings = &schema.PrepareSettings{Steps: []schema.ProcessorStep{step}}
	out := b.output(op.target(), inputs[0])
	r.Outputs = []string{out}
	b.open = &openPrepare{recipe: r, output: out, synthetic: schema.IsChainName(op.target())}
	return nil
}

// extends reports whether op continues the open Prepare recipe: it reads
// the recipe's output and either writes back to the same variable or
// reads a chain intermediate.
func (b *base) extends(op operation) bool {
	if b.open == nil || len(op.sources) != 1 || len(op.targets) > 1 {
		return false
	}
	src := op.source()
	if b.vars[src] != b.open.output {
		return false
	}
	return op.target() == src || schema.IsChainName(src)
}

// continueOutput keeps the open recipe's output reachable under the
// step's target. A chain ending in an assignment gives the output the
// assigned name.
func (b *base) continueOutput(op operation) {
	target := op.target()
	switch {
	case target == "" || target == op.source():
	case schema.IsChainName(target):
		b.vars[target] = b.open.output
	case b.open.synthetic:
		renamed := b.allocate(target)
		b.rename(b.open.output, renamed)
		b.origin[renamed] = target
		b.open.output = renamed
		b.open.synthetic = false
		b.vars[target] = renamed
	default:
		b.vars[target] = b.open.output
	}
}

// standalone builds a recipe that is never merged with its neighbours.
func (b *base) standalone(op operation) error {
	b.open = nil
	inputs, err := b.inputs(op)
	if err != nil {
		return err
	}
	rt := recipeType(op)
	r := b.newRecipe(rt, inputs, op)
	targets := op.targets
	if len(targets) == 0 {
		targets = []string{""}
	}
	for _, t := range targets {
		r.Outputs = append(r.Outputs, b.output(t, inputs[0]))
	}
	r.Settings = settingsFor(rt, op)

	switch {
	case op.unknown != "":
		b.flow.AddNote(schema.Warning(schema.NoteUnknownOperation, r.Name,
			fmt.Sprintf("operation %q is not in the vocabulary; kept as a code recipe", op.unknown)))
	case rt == schema.RecipePython:
		b.flow.AddNote(schema.Info(schema.NoteOpaqueRecipe, r.Name,
			fmt.Sprintf("%s keeps untranslated code%s", r.Name, describeUnknown(op))))
	}
	return nil
}

func describeUnknown(op operation) string {
	if name, _ := op.params[schema.ParamUnknownOp].(string); name != "" {
		return fmt.Sprintf(" for %q", name)
	}
	return ""
}

func recipeType(op operation) schema.RecipeType {
	if op.unknown != "" || op.kind == schema.KindOpaque {
		return schema.RecipePython
	}
	// A prepare kind only gets here when a different recipe was suggested.
	if op.kind.IsPrepare() && op.recipe.Valid() {
		return op.recipe
	}
	if rt := op.kind.DefaultRecipe(); rt != "" {
		return rt
	}
	if op.recipe.Valid() {
		return op.recipe
	}
	return schema.RecipePython
}

// inputs resolves every source of op. Recipes always have at least one.
func (b *base) inputs(op operation) ([]string, error) {
	sources := op.sources
	if len(sources) == 0 {
		sources = []string{""}
	}
	var out []string
	for _, s := range sources {
		name, err := b.input(s, op.line())
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// input returns the dataset a variable currently refers to. An unresolved
// reference becomes a placeholder input and a warning, or an error in
// strict mode.
func (b *base) input(variable string, line int) (string, error) {
	if name, ok := b.vars[variable]; ok {
		return name, nil
	}
	if b.opts.strict {
		return "", schema.NewErrorf(schema.ErrCodeDanglingReference,
			"dataset %q is read before any step produces it", variable).WithRef(variable).WithLine(line)
	}
	name := b.allocate(variable)
	b.flow.Datasets = append(b.flow.Datasets, &schema.Dataset{
		Name:        name,
		Role:        schema.RoleInput,
		Placeholder: true,
	})
	b.origin[name] = variable
	b.vars[variable] = name
	b.flow.AddNote(schema.Warning(schema.NoteDanglingReference, name,
		fmt.Sprintf("dataset %q is read before any step produces it; added as a placeholder input", variable)))
	return name, nil
}

// output allocates the dataset a step writes. Chain intermediates are
// named after the variable the chain started from.
func (b *base) output(target, from string) string {
	hint := target
	if hint == "" || schema.IsChainName(hint) {
		hint = b.origin[from]
		if hint == "" {
			hint = from
		}
	}
	name := b.allocate(hint)
	b.origin[name] = hint
	if target != "" {
		b.vars[target] = name
	}
	b.flow.Datasets = append(b.flow.Datasets, &schema.Dataset{Name: name, Role: schema.RoleIntermediate})
	return name
}

// allocate returns an unused dataset name derived from hint.
func (b *base) allocate(hint string) string {
	stem := b.opts.prefix + SanitizeName(hint) + b.opts.suffix
	name := stem
	for i := 1; b.flow.Dataset(name) != nil; i++ {
		name = fmt.Sprintf("%s_%d", stem, i)
	}
	return name
}

func (b *base) rename(from, to string) {
	if ds := b.flow.Dataset(from); ds != nil {
		ds.Name = to
	}
	for _, r := range b.flow.Recipes {
		for i := range r.Inputs {
			if r.Inputs[i] == from {
				r.Inputs[i] = to
			}
		}
		for i := range r.Outputs {
			if r.Outputs[i] == from {
				r.Outputs[i] = to
			}
		}
	}
	for v, name := range b.vars {
		if name == from {
			b.vars[v] = to
		}
	}
}

// newRecipe appends a recipe named <type>_<ordinal>.
func (b *base) newRecipe(rt schema.RecipeType, inputs []string, op operation) *schema.Recipe {
	b.ordinal++
	r := &schema.Recipe{
		Name:        fmt.Sprintf("%s_%d", rt, b.ordinal),
		Type:        rt,
		Inputs:      inputs,
		SourceLines: mergeLines(nil, op.lines),
	}
	b.flow.Recipes = append(b.flow.Recipes, r)
	return r
}

func mergeLines(have, add []int) []int {
	for _, l := range add {
		if l > 0 && !slices.Contains(have, l) {
			have = append(have, l)
		}
	}
	slices.Sort(have)
	return have
}

// finalize resolves roles, annotates schemas, rejects cycles, and flags
// recipes whose settings carry nothing.
func (b *base) finalize() error {
	for _, ds := range b.flow.Datasets {
		produced := b.flow.Producer(ds.Name) != nil
		consumed := len(b.flow.Consumers(ds.Name)) > 0
		switch {
		case !produced:
			ds.Role = schema.RoleInput
		case !consumed:
			ds.Role = schema.RoleOutput
		default:
			ds.Role = schema.RoleIntermediate
		}
	}

	annotateSchemas(b.flow)

	if cycles := graph.DetectCycles(b.flow); len(cycles) > 0 {
		return schema.NewErrorf(schema.ErrCodeCycleDetected, "flow contains %d cycle(s)", len(cycles)).
			WithDetails(map[string]any{"cycles": cycles})
	}

	for _, r := range b.flow.Recipes {
		if r.Settings == nil || r.Settings.Empty() {
			b.flow.AddNote(schema.EmptySettingsNote(r))
		}
	}
	return nil
}
