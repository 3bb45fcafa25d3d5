package static

import (
	"strings"

	"github.com/rendis/pyflow/internal/catalog"
)

type valueKind int

const (
	valNone      valueKind = iota // unknown or untraced
	valFrame                      // a traced dataframe
	valSelection                  // one or more columns of a traced dataframe
	valGrouped                    // result of groupby
	valRolling                    // result of rolling / expanding / ewm
	valStr                        // .str accessor on a selection
	valDt                         // .dt accessor on a selection
	valIndexer                    // .loc / .iloc / .at / .iat
	valEstimator                  // scikit-learn object
	valModule                     // imported module or package
	valExpr                       // column expression, e.g. a boolean mask
	valLiteral                    // constant value
	valPlain                      // known value that carries no data lineage
)

// value is what an expression evaluates to during analysis.
type value struct {
	kind valueKind
	// frame is the symbolic dataset the value reads from.
	frame   string
	column  string
	columns []string

	module string

	groupBy []string
	window  any

	estimator string
	params    map[string]any
	// fitted names the dataset standing for a fitted model.
	fitted string

	indexer string
	expr    string
	lit     any
}

func (v value) frameLike() bool {
	switch v.kind {
	case valFrame, valSelection, valGrouped, valRolling, valStr, valDt:
		return true
	}
	return false
}

func (v value) selected() []string {
	if v.column != "" {
		return []string{v.column}
	}
	return v.columns
}

func (v value) receiver() catalog.Receiver {
	switch v.kind {
	case valGrouped:
		return catalog.ReceiverGrouped
	case valRolling:
		return catalog.ReceiverRolling
	case valStr:
		return catalog.ReceiverStr
	case valDt:
		return catalog.ReceiverDt
	case valEstimator:
		return catalog.ReceiverEstimator
	case valModule:
		return catalog.ReceiverModule
	}
	return catalog.ReceiverFrame
}

func (v value) shape(statement bool) catalog.Shape {
	s := catalog.Shape{
		Receiver:  v.receiver(),
		Module:    v.module,
		Column:    v.column,
		Columns:   v.columns,
		Traced:    v.frameLike(),
		Statement: statement,
	}
	if v.kind == valEstimator {
		s.Estimator = v.estimator
		s.EstimatorParams = v.params
	}
	return s
}

func frameValue(name string) value {
	return value{kind: valFrame, frame: name}
}

func plain() value {
	return value{kind: valPlain}
}

func kindOf(r catalog.Receiver) valueKind {
	switch r {
	case catalog.ReceiverGrouped:
		return valGrouped
	case catalog.ReceiverRolling:
		return valRolling
	case catalog.ReceiverStr:
		return valStr
	case catalog.ReceiverDt:
		return valDt
	case catalog.ReceiverEstimator:
		return valEstimator
	case catalog.ReceiverModule:
		return valModule
	}
	return valFrame
}

// importRef is a name brought in by "from m import name".
type importRef struct {
	module string
	name   string
}

// symbols is the per-run symbol table.
type symbols struct {
	vars     map[string]value
	imported map[string]importRef
}

func newSymbols() *symbols {
	return &symbols{vars: map[string]value{}, imported: map[string]importRef{}}
}

func (s *symbols) lookup(name string) (value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s *symbols) bind(name string, v value) {
	s.vars[name] = v
}

// frame returns the symbolic dataset a traced name currently refers to.
func (s *symbols) frame(name string) (string, bool) {
	v, ok := s.vars[name]
	if !ok || v.kind != valFrame {
		return "", false
	}
	return v.frame, true
}

// canonicalModule maps an imported package path to the module name the
// catalog dispatches on.
func canonicalModule(path string) string {
	root, _, _ := strings.Cut(path, ".")
	switch root {
	case "pandas", "modin":
		return catalog.ModulePandas
	case "numpy":
		return catalog.ModuleNumpy
	case "sklearn", "xgboost", "lightgbm", "catboost":
		return catalog.ModuleSklearn
	}
	return root
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{x}
	}
	return nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
