package static

import (
	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/pysrc"
)

// buildCall converts a call site into the catalog's view of it.
func (a *Analyzer) buildCall(node *pysrc.Node, method string) *catalog.Call {
	call := &catalog.Call{
		Callee:  calleeName(node),
		Method:  method,
		Kwargs:  map[string]catalog.Arg{},
		Line:    node.Line,
		EndLine: node.EndLine,
	}
	list := node.Field("arguments")
	if !list.Is(pysrc.KindArgumentList) {
		return call
	}
	for _, c := range list.Children {
		switch {
		case c.Is(pysrc.KindKeywordArg):
			name := c.Field("name").Text
			call.Kwargs[name] = a.buildArg(c.Field("value"))
			call.KwargOrder = append(call.KwargOrder, name)
		case c.Is("list_splat", "dictionary_splat"):
		default:
			call.Args = append(call.Args, a.buildArg(c))
		}
	}
	return call
}

func (a *Analyzer) buildArg(n *pysrc.Node) catalog.Arg {
	arg := catalog.Arg{Source: n.Text}
	if v, ok := a.literal(n); ok {
		arg.Value, arg.Literal = v, true
	}

	u := n.Unwrap()
	switch {
	case u.Is(pysrc.KindIdentifier):
		arg.Name = u.Text
		if v, ok := a.syms.lookup(u.Text); ok {
			switch v.kind {
			case valFrame:
				arg.Frame = v.frame
			case valSelection:
				arg.Frame, arg.Column, arg.Columns = v.frame, v.column, v.columns
			}
		}
	case u.Is(pysrc.KindList, pysrc.KindTuple):
		if names := pysrc.Identifiers(u); len(names) > 0 && !arg.Literal {
			arg.Names = names
		}
	case u.Is(pysrc.KindSubscript, pysrc.KindAttribute):
		if col, frame, ok := a.columnRef(u); ok {
			arg.Frame, arg.Column = frame, col
		} else if u.Is(pysrc.KindSubscript) && len(u.Fields("subscript")) == 1 {
			if frame, ok := a.frameName(u.Field("value")); ok {
				if cols, ok := a.columnList(u.Field("subscript")); ok {
					arg.Frame, arg.Columns = frame, cols
				}
			}
		}
	}

	if e, ok := a.render(n); ok {
		arg.Expr = e.text
		if arg.Frame == "" {
			arg.Frame = e.frame
		}
	}
	return arg
}

// literal evaluates a constant, following names bound to constants.
func (a *Analyzer) literal(n *pysrc.Node) (any, bool) {
	if v, ok := pysrc.Literal(n); ok {
		return v, true
	}
	if u := n.Unwrap(); u.Is(pysrc.KindIdentifier) {
		if v, ok := a.syms.lookup(u.Text); ok && v.kind == valLiteral {
			return v.lit, true
		}
	}
	return nil, false
}

// argNode returns the argument at pos or the first present keyword.
// Keywords take precedence.
func argNode(call *pysrc.Node, pos int, names ...string) *pysrc.Node {
	list := call.Field("arguments")
	if !list.Is(pysrc.KindArgumentList) {
		return nil
	}
	for _, c := range list.Children {
		if !c.Is(pysrc.KindKeywordArg) {
			continue
		}
		for _, name := range names {
			if c.Field("name").Text == name {
				return c.Field("value")
			}
		}
	}
	if pos < 0 {
		return nil
	}
	if args := callArgs(call); pos < len(args) {
		return args[pos]
	}
	return nil
}

// frameArgs returns the dataframes passed at pos, expanding a list such as
// the first argument of pd.concat.
func (a *Analyzer) frameArgs(call *pysrc.Node, pos int, ch *chain) []string {
	n := argNode(call, pos, "X", "left", "objs", "data", "frame")
	if n == nil {
		return nil
	}
	return a.framesOf(n, ch)
}

// sourceArgs returns the additional input dataframes named by positions.
func (a *Analyzer) sourceArgs(call *pysrc.Node, positions []int, ch *chain) []string {
	var out []string
	for _, pos := range positions {
		if n := argNode(call, pos, "right", "other"); n != nil {
			out = append(out, a.framesOf(n, ch)...)
		}
	}
	return out
}

// framesOf resolves an argument to the dataframes it reads. Nested chains
// are resolved first, emitting their own transformations. An unbound name
// in a dataframe position is taken to be an external input.
func (a *Analyzer) framesOf(n *pysrc.Node, ch *chain) []string {
	u := n.Unwrap()
	switch {
	case u.Is(pysrc.KindList, pysrc.KindTuple):
		var out []string
		for _, c := range u.Children {
			out = append(out, a.framesOf(c, ch)...)
		}
		return out
	case u.Is(pysrc.KindIdentifier):
		v, ok := a.syms.lookup(u.Text)
		if !ok {
			if _, imported := a.syms.imported[u.Text]; imported {
				return nil
			}
			a.syms.bind(u.Text, frameValue(u.Text))
			return []string{u.Text}
		}
		if v.frameLike() || v.kind == valExpr {
			return []string{v.frame}
		}
		return nil
	}
	if _, frame, ok := a.columnRef(u); ok {
		return []string{frame}
	}
	if u.Is(pysrc.KindSubscript) {
		if frame, ok := a.frameName(u.Field("value")); ok {
			if _, ok := a.columnList(u.Field("subscript")); ok {
				return []string{frame}
			}
		}
	}
	if v := a.resolve(u, ch); v.frameLike() {
		return []string{v.frame}
	}
	return nil
}

// tracedArgs lists the traced dataframes a call's arguments mention,
// without resolving anything.
func (a *Analyzer) tracedArgs(call *pysrc.Node) []string {
	list := call.Field("arguments")
	if list == nil {
		return nil
	}
	return a.mentions(list)
}
