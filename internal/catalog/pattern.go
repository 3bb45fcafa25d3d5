package catalog

import (
	"github.com/rendis/pyflow/pkg/schema"
)

// Receiver classifies what a call is made on.
type Receiver string

const (
	ReceiverFrame     Receiver = "frame"     // DataFrame or a column of one
	ReceiverGrouped   Receiver = "grouped"   // result of groupby
	ReceiverRolling   Receiver = "rolling"   // result of rolling / expanding / ewm
	ReceiverStr       Receiver = "str"       // .str accessor
	ReceiverDt        Receiver = "dt"        // .dt accessor
	ReceiverEstimator Receiver = "estimator" // fitted or unfitted sklearn object
	ReceiverModule    Receiver = "module"    // module-level function, e.g. pd.read_csv
)

// Canonical module names.
const (
	ModulePandas   = "pandas"
	ModuleNumpy    = "numpy"
	ModuleSklearn  = "sklearn"
	ModuleBuiltins = "builtins"
)

// Arg is one argument of a call as seen by extraction rules.
type Arg struct {
	// Value is the evaluated literal; Literal reports whether it is valid.
	Value   any
	Literal bool
	// Source is the argument text as written.
	Source string
	// Name is set when the argument is a bare identifier.
	Name string
	// Names is set when the argument is a list of bare identifiers.
	Names []string
	// Column is set when the argument selects a single column, e.g. df['x'].
	Column string
	// Columns is set when the argument selects several columns.
	Columns []string
	// Frame is the traced dataframe the argument names or selects from.
	Frame string
	// Expr is the argument rendered in expr syntax, when renderable.
	Expr string
}

// Call is the catalog view of one call site.
type Call struct {
	Callee     string
	Method     string
	Args       []Arg
	Kwargs     map[string]Arg
	KwargOrder []string
	Line       int
	EndLine    int
}

// Param returns the argument at position pos or the first present keyword
// in names. Keywords take precedence. A negative pos skips positional lookup.
func (c *Call) Param(pos int, names ...string) (Arg, bool) {
	for _, n := range names {
		if a, ok := c.Kwargs[n]; ok {
			return a, true
		}
	}
	if pos >= 0 && pos < len(c.Args) {
		return c.Args[pos], true
	}
	return Arg{}, false
}

// Has reports whether a keyword argument is present.
func (c *Call) Has(name string) bool {
	_, ok := c.Kwargs[name]
	return ok
}

// Literal returns the literal value of a parameter, or nil.
func (c *Call) Literal(pos int, names ...string) any {
	a, ok := c.Param(pos, names...)
	if !ok || !a.Literal {
		return nil
	}
	return a.Value
}

// String returns a string parameter. Non-literal arguments yield their
// source text.
func (c *Call) String(pos int, names ...string) string {
	a, ok := c.Param(pos, names...)
	if !ok {
		return ""
	}
	if s, ok := a.Value.(string); ok && a.Literal {
		return s
	}
	return a.Source
}

// Strings returns a parameter that may be a single name or a list of names.
func (c *Call) Strings(pos int, names ...string) []string {
	a, ok := c.Param(pos, names...)
	if !ok {
		return nil
	}
	return argStrings(a)
}

// Int returns an integer parameter.
func (c *Call) Int(pos int, names ...string) (int, bool) {
	switch v := c.Literal(pos, names...).(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// Float returns a numeric parameter.
func (c *Call) Float(pos int, names ...string) (float64, bool) {
	switch v := c.Literal(pos, names...).(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Bool returns a boolean parameter, or def when absent or not literal.
func (c *Call) Bool(def bool, pos int, names ...string) bool {
	if b, ok := c.Literal(pos, names...).(bool); ok {
		return b
	}
	return def
}

func argStrings(a Arg) []string {
	if a.Column != "" {
		return []string{a.Column}
	}
	if len(a.Columns) > 0 {
		return append([]string(nil), a.Columns...)
	}
	if !a.Literal {
		if len(a.Names) > 0 {
			return append([]string(nil), a.Names...)
		}
		return nil
	}
	switch v := a.Value.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Shape describes the receiver a call is made on.
type Shape struct {
	Receiver Receiver
	// Module is the canonical module of a module-level function.
	Module string
	// Column is set when the receiver is a single column selection.
	Column string
	// Columns is set when the receiver is a multi-column selection.
	Columns []string
	// Traced reports whether the receiver is a tracked dataframe.
	Traced bool
	// Estimator is the class of an estimator receiver and EstimatorParams
	// the keyword arguments it was constructed with.
	Estimator       string
	EstimatorParams map[string]any
	// Statement reports whether the call is a bare expression statement.
	Statement bool
}

// ExtractFunc computes the canonical parameters of a matched call.
type ExtractFunc func(c *Call, s Shape) map[string]any

// MatchFunc is an additional predicate a built-in pattern may require.
type MatchFunc func(c *Call, s Shape) bool

// Pattern maps a callee signature to a transformation kind plus an
// extraction rule.
type Pattern struct {
	Name   string
	On     Receiver
	Module string
	Method string
	Kind   schema.TransformationKind
	// Recipe and Processor override the defaults of Kind when set.
	Recipe    schema.RecipeType
	Processor schema.ProcessorType

	// Yields marks calls that produce an intermediate receiver instead of
	// data, e.g. groupby.
	Yields Receiver
	// Alias marks calls that return the same data, e.g. copy.
	Alias bool
	// Inspect marks calls that only look at data.
	Inspect bool
	// InspectAsStatement marks calls that only inspect when used as a bare
	// statement, e.g. head.
	InspectAsStatement bool

	// FrameArg marks module functions whose first argument is the source
	// dataframe, e.g. pd.merge(left, right).
	FrameArg bool
	// SourceArgs are argument indexes naming additional input dataframes.
	SourceArgs []int

	// Guard is a CEL expression evaluated against the call and shape.
	Guard   string
	Match   MatchFunc
	Extract ExtractFunc

	// Rule is the name of the user rule pack that defined the pattern.
	Rule string
}

// Key returns the dispatch key of the pattern.
func (p *Pattern) Key() string {
	return dispatchKey(p.On, p.Module, p.Method)
}

// RecipeType returns the recipe the pattern produces.
func (p *Pattern) RecipeType() schema.RecipeType {
	if p.Recipe != "" {
		return p.Recipe
	}
	return p.Kind.DefaultRecipe()
}

// ProcessorType returns the processor a prepare pattern uses.
func (p *Pattern) ProcessorType() schema.ProcessorType {
	if p.Processor != "" {
		return p.Processor
	}
	return p.Kind.DefaultProcessor()
}

// Params runs the extraction rule and fills the column from the shape when
// the rule left it out.
func (p *Pattern) Params(c *Call, s Shape) map[string]any {
	var params map[string]any
	if p.Extract != nil {
		params = p.Extract(c, s)
	}
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params[schema.ParamColumns]; !ok {
		switch {
		case s.Column != "":
			params[schema.ParamColumns] = []string{s.Column}
		case len(s.Columns) > 0:
			params[schema.ParamColumns] = append([]string(nil), s.Columns...)
		}
	}
	return schema.PlainParams(params)
}

func dispatchKey(on Receiver, module, method string) string {
	if on == ReceiverModule {
		return module + "." + method
	}
	return string(on) + "." + method
}

func (c *Call) toMap() map[string]any {
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		args[i] = argValue(a)
	}
	kwargs := make(map[string]any, len(c.Kwargs))
	for k, a := range c.Kwargs {
		kwargs[k] = argValue(a)
	}
	return map[string]any{
		"callee": c.Callee,
		"method": c.Method,
		"args":   args,
		"kwargs": kwargs,
		"line":   c.Line,
	}
}

func argValue(a Arg) any {
	if a.Literal {
		return schema.PlainValue(a.Value)
	}
	if a.Column != "" {
		return a.Column
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Source
}

func (s Shape) toMap() map[string]any {
	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c
	}
	return map[string]any{
		"receiver":  string(s.Receiver),
		"module":    s.Module,
		"column":    s.Column,
		"columns":   cols,
		"traced":    s.Traced,
		"estimator": s.Estimator,
		"params":    schema.PlainValue(s.EstimatorParams),
		"statement": s.Statement,
	}
}
