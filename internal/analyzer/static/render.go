package static

import (
	"strings"

	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/internal/pysrc"
)

// Python operators and their expr equivalents.
var binaryOperators = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "%", "**": "**",
	"&": "and", "|": "or",
}

var comparisonOperators = map[string]string{
	"==": "==", "!=": "!=", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"in": "in", "is": "==", "is not": "!=",
}

// Functions that keep their name in expr syntax.
var exprFunctions = map[string]string{
	"abs": "abs", "round": "round", "floor": "floor", "ceil": "ceil",
	"len": "len", "int": "int", "float": "float", "str": "string",
	"log": "log", "log10": "log10", "log2": "log2", "sqrt": "sqrt",
	"exp": "exp", "max": "max", "min": "min", "maximum": "max", "minimum": "min",
}

var castFunctions = map[string]string{
	"int": "int", "int64": "int", "int32": "int", "Int64": "int",
	"float": "float", "float64": "float", "float32": "float",
	"str": "string", "string": "string", "object": "string",
}

// expression is a column expression rendered in expr syntax.
type expression struct {
	text  string
	frame string
	// atom reports whether text needs no parentheses when nested.
	atom bool
}

// render translates a Python column expression to expr syntax. Column
// references are resolved against traced dataframes; the result names the
// first dataframe referenced. Anything outside the supported subset fails.
func (a *Analyzer) render(n *pysrc.Node) (expression, bool) {
	n = n.Unwrap()
	if n == nil {
		return expression{}, false
	}
	if v, ok := pysrc.Literal(n); ok {
		if _, isDict := v.(map[string]any); isDict {
			return expression{}, false
		}
		return expression{text: expressions.RenderValue(v), atom: true}, true
	}

	switch n.Kind {
	case pysrc.KindIdentifier:
		v, ok := a.syms.lookup(n.Text)
		if !ok {
			return expression{}, false
		}
		switch v.kind {
		case valExpr:
			return expression{text: v.expr, frame: v.frame}, true
		case valLiteral:
			return expression{text: expressions.RenderValue(v.lit), atom: true}, true
		case valSelection:
			if v.column != "" {
				return expression{text: expressions.RenderColumn(v.column), frame: v.frame, atom: true}, true
			}
		}
		return expression{}, false

	case pysrc.KindSubscript, pysrc.KindAttribute:
		if col, frame, ok := a.columnRef(n); ok {
			return expression{text: expressions.RenderColumn(col), frame: frame, atom: true}, true
		}
		return expression{}, false

	case pysrc.KindBinary:
		op, ok := binaryOperators[n.Operator()]
		floorDiv := n.Operator() == "//"
		if !ok && !floorDiv {
			return expression{}, false
		}
		left, ok1 := a.render(n.Field("left"))
		right, ok2 := a.render(n.Field("right"))
		if !ok1 || !ok2 {
			return expression{}, false
		}
		if floorDiv {
			return expression{text: "floor(" + left.text + " / " + right.text + ")", frame: firstFrame(left, right), atom: true}, true
		}
		return expression{text: left.nested() + " " + op + " " + right.nested(), frame: firstFrame(left, right)}, true

	case pysrc.KindBoolean:
		left, ok1 := a.render(n.Field("left"))
		right, ok2 := a.render(n.Field("right"))
		if !ok1 || !ok2 {
			return expression{}, false
		}
		return expression{text: left.nested() + " " + n.Operator() + " " + right.nested(), frame: firstFrame(left, right)}, true

	case pysrc.KindNot:
		return a.negate(n.Field("argument"))

	case pysrc.KindUnary:
		switch n.Operator() {
		case "~":
			return a.negate(n.Field("argument"))
		case "-":
			inner, ok := a.render(n.Field("argument"))
			if !ok {
				return expression{}, false
			}
			return expression{text: "-" + inner.nested(), frame: inner.frame, atom: true}, true
		}
		return expression{}, false

	case pysrc.KindComparison:
		return a.renderComparison(n)

	case pysrc.KindConditional:
		// body if condition else alternative
		if len(n.Children) != 3 {
			return expression{}, false
		}
		body, ok1 := a.render(n.Children[0])
		cond, ok2 := a.render(n.Children[1])
		alt, ok3 := a.render(n.Children[2])
		if !ok1 || !ok2 || !ok3 {
			return expression{}, false
		}
		return expression{
			text:  cond.nested() + " ? " + body.nested() + " : " + alt.nested(),
			frame: firstFrame(cond, body, alt),
		}, true

	case pysrc.KindCall:
		return a.renderCall(n)
	}
	return expression{}, false
}

func (e expression) nested() string {
	if e.atom {
		return e.text
	}
	return "(" + e.text + ")"
}

// firstFrame returns the first dataframe any of exprs references.
func firstFrame(exprs ...expression) string {
	for _, e := range exprs {
		if e.frame != "" {
			return e.frame
		}
	}
	return ""
}

func (a *Analyzer) negate(n *pysrc.Node) (expression, bool) {
	inner := n.Unwrap()
	if inner.Is(pysrc.KindCall) {
		if fn := inner.Field("function"); fn.Is(pysrc.KindAttribute) {
			switch fn.Field("attribute").Text {
			case "isnull", "isna":
				if col, frame, ok := a.columnRef(fn.Field("object")); ok {
					return expression{text: expressions.RenderColumn(col) + " != nil", frame: frame}, true
				}
			case "notnull", "notna":
				if col, frame, ok := a.columnRef(fn.Field("object")); ok {
					return expression{text: expressions.RenderColumn(col) + " == nil", frame: frame}, true
				}
			case "isin":
				if col, frame, ok := a.columnRef(fn.Field("object")); ok {
					if list, ok := a.render(firstArg(inner)); ok {
						return expression{text: expressions.RenderColumn(col) + " not in " + list.text, frame: frame}, true
					}
				}
			}
		}
	}
	e, ok := a.render(n)
	if !ok {
		return expression{}, false
	}
	return expression{text: "not " + e.nested(), frame: e.frame}, true
}

func (a *Analyzer) renderComparison(n *pysrc.Node) (expression, bool) {
	operands := n.Children
	ops := n.Fields("operators")
	if len(operands) < 2 || len(ops) == 0 {
		return expression{}, false
	}
	// "not in" and "is not" arrive as two operator tokens.
	var joined []string
	for i := 0; i < len(ops); i++ {
		op := ops[i].Text
		if i+1 < len(ops) && ((op == "not" && ops[i+1].Text == "in") || (op == "is" && ops[i+1].Text == "not")) {
			op += " " + ops[i+1].Text
			i++
		}
		joined = append(joined, op)
	}
	if len(joined) != len(operands)-1 {
		return expression{}, false
	}

	rendered := make([]expression, len(operands))
	for i, o := range operands {
		e, ok := a.render(o)
		if !ok {
			return expression{}, false
		}
		rendered[i] = e
	}

	parts := make([]string, 0, len(joined))
	frame := ""
	for i, op := range joined {
		left, right := rendered[i], rendered[i+1]
		if frame == "" {
			frame = firstFrame(left, right)
		}
		if op == "not in" {
			parts = append(parts, left.nested()+" not in "+right.nested())
			continue
		}
		mapped, ok := comparisonOperators[op]
		if !ok {
			return expression{}, false
		}
		parts = append(parts, left.nested()+" "+mapped+" "+right.nested())
	}
	if len(parts) == 1 {
		return expression{text: parts[0], frame: frame}, true
	}
	for i := range parts {
		parts[i] = "(" + parts[i] + ")"
	}
	return expression{text: strings.Join(parts, " and "), frame: frame}, true
}

func (a *Analyzer) renderCall(n *pysrc.Node) (expression, bool) {
	fn := n.Field("function")
	args := callArgs(n)

	if fn.Is(pysrc.KindAttribute) {
		method := fn.Field("attribute").Text
		object := fn.Field("object")

		// Series methods on a column.
		if col, frame, ok := a.columnRef(object); ok {
			c := expressions.RenderColumn(col)
			switch method {
			case "isnull", "isna":
				return expression{text: c + " == nil", frame: frame}, true
			case "notnull", "notna":
				return expression{text: c + " != nil", frame: frame}, true
			case "isin":
				if list, ok := a.render(firstArg(n)); ok && len(args) == 1 {
					return expression{text: c + " in " + list.text, frame: frame}, true
				}
			case "between":
				if len(args) >= 2 {
					lo, ok1 := a.render(args[0])
					hi, ok2 := a.render(args[1])
					if ok1 && ok2 {
						return expression{text: c + " >= " + lo.nested() + " and " + c + " <= " + hi.nested(), frame: frame}, true
					}
				}
			case "abs", "round", "floor", "ceil":
				return expression{text: method + "(" + c + ")", frame: frame, atom: true}, true
			case "astype":
				if len(args) == 1 {
					if cast, ok := castFunctions[typeName(args[0])]; ok {
						return expression{text: cast + "(" + c + ")", frame: frame, atom: true}, true
					}
				}
			}
			return expression{}, false
		}

		// String predicates through the .str accessor.
		if object.Is(pysrc.KindAttribute) && object.Field("attribute").Text == "str" {
			col, frame, ok := a.columnRef(object.Field("object"))
			if !ok || len(args) == 0 {
				return expression{}, false
			}
			pattern, ok := a.render(args[0])
			if !ok {
				return expression{}, false
			}
			c := expressions.RenderColumn(col)
			switch method {
			case "contains":
				return expression{text: c + " contains " + pattern.text, frame: frame}, true
			case "startswith":
				return expression{text: c + " startsWith " + pattern.text, frame: frame}, true
			case "endswith":
				return expression{text: c + " endsWith " + pattern.text, frame: frame}, true
			case "match", "fullmatch":
				return expression{text: c + " matches " + pattern.text, frame: frame}, true
			}
			return expression{}, false
		}
	}

	// Module functions, e.g. np.where or np.log.
	name := pysrc.DottedName(fn)
	if name == "" {
		return expression{}, false
	}
	base := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base = name[i+1:]
	}
	if base == "where" && len(args) == 3 {
		cond, ok1 := a.render(args[0])
		yes, ok2 := a.render(args[1])
		no, ok3 := a.render(args[2])
		if !ok1 || !ok2 || !ok3 {
			return expression{}, false
		}
		return expression{
			text:  cond.nested() + " ? " + yes.nested() + " : " + no.nested(),
			frame: firstFrame(cond, yes, no),
		}, true
	}
	fnName, ok := exprFunctions[base]
	if !ok || len(args) == 0 {
		return expression{}, false
	}
	parts := make([]string, 0, len(args))
	frame := ""
	for _, arg := range args {
		e, ok := a.render(arg)
		if !ok {
			return expression{}, false
		}
		if frame == "" {
			frame = e.frame
		}
		parts = append(parts, e.text)
	}
	return expression{text: fnName + "(" + strings.Join(parts, ", ") + ")", frame: frame, atom: true}, true
}

// columnRef resolves df['x'] or df.x on a traced dataframe.
func (a *Analyzer) columnRef(n *pysrc.Node) (column, frame string, ok bool) {
	n = n.Unwrap()
	switch {
	case n.Is(pysrc.KindSubscript):
		obj := n.Field("value")
		idx := n.Fields("subscript")
		if len(idx) != 1 {
			return "", "", false
		}
		frame, ok := a.frameName(obj)
		if !ok {
			return "", "", false
		}
		col, ok := a.columnName(idx[0])
		return col, frame, ok
	case n.Is(pysrc.KindAttribute):
		attr := n.Field("attribute").Text
		if frameAttributes[attr] {
			return "", "", false
		}
		frame, ok := a.frameName(n.Field("object"))
		return attr, frame, ok
	case n.Is(pysrc.KindIdentifier):
		if v, found := a.syms.lookup(n.Text); found && v.kind == valSelection && v.column != "" {
			return v.column, v.frame, true
		}
	}
	return "", "", false
}

// frameName resolves an identifier to the traced dataframe it names.
func (a *Analyzer) frameName(n *pysrc.Node) (string, bool) {
	n = n.Unwrap()
	if !n.Is(pysrc.KindIdentifier) {
		return "", false
	}
	return a.syms.frame(n.Text)
}

// columnName evaluates a subscript index naming one column.
func (a *Analyzer) columnName(n *pysrc.Node) (string, bool) {
	if s, ok := pysrc.StringValue(n); ok {
		return s, true
	}
	if n.Unwrap().Is(pysrc.KindIdentifier) {
		if v, ok := a.syms.lookup(n.Unwrap().Text); ok && v.kind == valLiteral {
			s, ok := v.lit.(string)
			return s, ok
		}
	}
	return "", false
}

// columnList evaluates a subscript index naming several columns.
func (a *Analyzer) columnList(n *pysrc.Node) ([]string, bool) {
	v, ok := pysrc.Literal(n)
	if !ok && n.Unwrap().Is(pysrc.KindIdentifier) {
		if bound, found := a.syms.lookup(n.Unwrap().Text); found && bound.kind == valLiteral {
			v, ok = bound.lit, true
		}
	}
	list, isList := v.([]any)
	if !ok || !isList {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func typeName(n *pysrc.Node) string {
	if s, ok := pysrc.StringValue(n); ok {
		return s
	}
	name := pysrc.DottedName(n)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// callArgs returns the positional arguments of a call.
func callArgs(call *pysrc.Node) []*pysrc.Node {
	list := call.Field("arguments")
	if !list.Is(pysrc.KindArgumentList) {
		return nil
	}
	var out []*pysrc.Node
	for _, c := range list.Children {
		if c.Is(pysrc.KindKeywordArg, "list_splat", "dictionary_splat") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func firstArg(call *pysrc.Node) *pysrc.Node {
	if args := callArgs(call); len(args) > 0 {
		return args[0]
	}
	return nil
}

// Attributes of a dataframe that are not column accesses.
var frameAttributes = map[string]bool{
	"shape": true, "columns": true, "index": true, "dtypes": true, "values": true,
	"size": true, "empty": true, "ndim": true, "T": true, "axes": true, "name": true,
	"dtype": true, "nbytes": true, "array": true, "str": true, "dt": true, "cat": true,
	"loc": true, "iloc": true, "at": true, "iat": true, "plot": true, "attrs": true,
}
