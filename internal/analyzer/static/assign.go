package static

import (
	"strings"

	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/internal/pysrc"
	"github.com/rendis/pyflow/pkg/schema"
)

func (a *Analyzer) expressionStatement(expr *pysrc.Node) {
	a.resolve(expr, &chain{bare: true})
}

func (a *Analyzer) assignment(n *pysrc.Node) {
	left, right := n.Field("left"), n.Field("right")
	if right == nil {
		return
	}
	// a = b = expr binds every target to the same value.
	targets := []*pysrc.Node{left}
	for right.Is(pysrc.KindAssignment) {
		targets = append(targets, right.Field("left"))
		right = right.Field("right")
	}
	a.assignTo(targets[0], right, n)
	first := pysrc.Identifiers(targets[0])
	if len(first) != 1 {
		return
	}
	v, bound := a.syms.lookup(first[0])
	for _, t := range targets[1:] {
		for _, name := range pysrc.Identifiers(t) {
			if bound {
				a.syms.bind(name, v)
			} else {
				delete(a.syms.vars, name)
			}
		}
	}
}

func (a *Analyzer) assignTo(target, rhs, stmt *pysrc.Node) {
	t := target.Unwrap()
	switch {
	case t.Is(pysrc.KindIdentifier):
		a.assignNames([]string{t.Text}, rhs, stmt)
	case t.Is(pysrc.KindPatternList, pysrc.KindTuplePattern, pysrc.KindTuple, pysrc.KindList, pysrc.KindExprList):
		r := rhs.Unwrap()
		if r.Is(pysrc.KindExprList, pysrc.KindTuple) && len(r.Children) == len(t.Children) {
			for i := range t.Children {
				a.assignTo(t.Children[i], r.Children[i], stmt)
			}
			return
		}
		if names := pysrc.Identifiers(t); len(names) > 0 {
			a.assignNames(names, rhs, stmt)
		}
	case t.Is(pysrc.KindSubscript):
		a.assignSubscript(t, rhs, stmt)
	case t.Is(pysrc.KindAttribute):
		a.assignAttribute(t, rhs, stmt)
	}
}

// assignNames binds the value of rhs. When rhs emitted transformations the
// last one is renamed to the assigned name; several names mean a split.
func (a *Analyzer) assignNames(names []string, rhs, stmt *pysrc.Node) {
	ch := &chain{}
	v := a.resolve(rhs, ch)

	if n := len(ch.emitted); n > 0 && v.frameLike() {
		i := ch.emitted[n-1]
		if a.out[i].Kind != schema.KindWriteData && a.out[i].TargetDataframe == v.frame {
			a.retarget(i, names[0])
			if len(names) > 1 {
				a.out[i].AdditionalTargets = append([]string(nil), names[1:]...)
			}
			for _, name := range names {
				next := frameValue(name)
				if v.kind == valSelection && len(names) == 1 {
					next = value{kind: valSelection, frame: name, column: v.column, columns: v.columns}
				}
				a.syms.bind(name, next)
			}
			return
		}
	}

	switch v.kind {
	case valSelection:
		if len(v.columns) > 0 {
			a.materialize(v, rhs, ch)
			i := len(a.out) - 1
			a.retarget(i, names[0])
			a.syms.bind(names[0], frameValue(names[0]))
			return
		}
		a.bindAll(names, v)
	case valFrame, valGrouped, valRolling, valEstimator, valModule, valExpr, valLiteral, valPlain, valStr, valDt:
		if len(names) > 1 && v.kind != valLiteral {
			a.unbindAll(names)
			return
		}
		if v.kind == valFrame && len(ch.emitted) == 0 && v.frame != "" && v.frame != names[0] {
			a.alias(names[0], v.frame, stmt)
			return
		}
		a.bindAll(names, v)
	default:
		if frames := a.mentions(rhs); len(frames) > 0 && len(ch.emitted) == 0 {
			t := opaqueStatement(frames, rhs.Text, "expression")
			a.emitInto(names[0], t, stmt)
			return
		}
		a.unbindAll(names)
	}
}

// alias records that name now holds the dataset frame holds, so later
// writes to frame leave name pointing at the earlier version.
func (a *Analyzer) alias(name, frame string, stmt *pysrc.Node) {
	a.emitInto(name, schema.Transformation{
		Kind:            schema.KindAlias,
		SourceDataframe: frame,
	}, stmt)
}

func (a *Analyzer) bindAll(names []string, v value) {
	for _, name := range names {
		a.syms.bind(name, v)
	}
}

func (a *Analyzer) unbindAll(names []string) {
	for _, name := range names {
		delete(a.syms.vars, name)
	}
}

// assignSubscript handles df['x'] = ..., df[['a', 'b']] = ... and
// df.loc[rows, 'x'] = ....
func (a *Analyzer) assignSubscript(t, rhs, stmt *pysrc.Node) {
	obj := t.Field("value").Unwrap()
	idx := t.Fields("subscript")
	if len(idx) == 0 {
		return
	}

	if obj.Is(pysrc.KindAttribute) {
		switch obj.Field("attribute").Text {
		case "loc":
			if frameVar, ok := a.targetFrame(obj.Field("object")); ok {
				a.assignLoc(frameVar, idx, rhs, stmt)
			}
		case "iloc", "at", "iat":
			if frameVar, ok := a.targetFrame(obj.Field("object")); ok {
				src, _ := a.syms.frame(frameVar)
				a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
			}
		}
		return
	}

	frameVar, ok := a.targetFrame(obj)
	if !ok || len(idx) != 1 {
		return
	}
	if col, ok := a.columnName(idx[0]); ok {
		a.assignColumns(frameVar, []string{col}, rhs, stmt, "")
		return
	}
	if cols, ok := a.columnList(idx[0]); ok {
		a.assignColumns(frameVar, cols, rhs, stmt, "")
		return
	}
	if u := idx[0].Unwrap(); u.Is(pysrc.KindIdentifier) {
		if _, bound := a.syms.lookup(u.Text); !bound {
			a.assignColumns(frameVar, []string{u.Text}, rhs, stmt, "")
			return
		}
	}
	src, _ := a.syms.frame(frameVar)
	a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
}

// targetFrame returns the variable of a dataframe being modified. An
// unbound name is taken to be an external dataframe.
func (a *Analyzer) targetFrame(n *pysrc.Node) (string, bool) {
	n = n.Unwrap()
	if !n.Is(pysrc.KindIdentifier) {
		return "", false
	}
	v, ok := a.syms.lookup(n.Text)
	if !ok {
		if _, imported := a.syms.imported[n.Text]; imported {
			return "", false
		}
		a.syms.bind(n.Text, frameValue(n.Text))
		return n.Text, true
	}
	return n.Text, v.kind == valFrame
}

func (a *Analyzer) assignLoc(frameVar string, idx []*pysrc.Node, rhs, stmt *pysrc.Node) {
	src, _ := a.syms.frame(frameVar)
	if len(idx) != 2 {
		a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
		return
	}
	cols, ok := a.columnList(idx[1])
	if !ok {
		col, ok := a.columnName(idx[1])
		if !ok {
			a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
			return
		}
		cols = []string{col}
	}
	cond := ""
	if rows := idx[0].Unwrap(); !isFullSlice(rows) {
		e, ok := a.render(rows)
		if !ok {
			a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
			return
		}
		cond = e.nested()
	}
	a.assignColumns(frameVar, cols, rhs, stmt, cond)
}

// assignColumns turns a column assignment into a prepare step. A chain on
// the right-hand side keeps its own operations and is redirected into the
// assigned column; a plain expression becomes a formula. A non-empty cond
// makes the assignment conditional on a row predicate.
func (a *Analyzer) assignColumns(frameVar string, cols []string, rhs, stmt *pysrc.Node, cond string) {
	src, _ := a.syms.frame(frameVar)

	var v value
	if cond == "" {
		ch := &chain{}
		v = a.resolve(rhs, ch)
		if n := len(ch.emitted); n > 0 && v.kind != valPlain {
			i := ch.emitted[n-1]
			if a.out[i].Kind != schema.KindWriteData {
				a.redirect(i, frameVar, cols)
				a.syms.bind(frameVar, frameValue(frameVar))
				return
			}
		}
	}

	var expr string
	switch {
	case v.kind == valExpr:
		expr = v.expr
	case v.kind == valLiteral:
		if _, isDict := v.lit.(map[string]any); !isDict {
			expr = expressions.RenderValue(v.lit)
		}
	case v.kind == valSelection && v.column != "":
		expr = expressions.RenderColumn(v.column)
	default:
		if e, ok := a.render(rhs); ok {
			expr = e.text
		}
	}
	if expr == "" {
		a.emitInto(frameVar, opaqueStatement([]string{src}, stmt.Text, "setitem"), stmt)
		return
	}

	for _, col := range cols {
		text := expr
		if cond != "" {
			text = cond + " ? " + wrap(expr) + " : " + expressions.RenderColumn(col)
		}
		t := schema.Transformation{
			Kind:            schema.KindColumnCreate,
			SourceDataframe: src,
			Parameters: map[string]any{
				schema.ParamOutputColumn: col,
				schema.ParamExpression:   text,
			},
			SuggestedRecipeType:    schema.RecipePrepare,
			SuggestedProcessorType: schema.ProcFormula,
		}
		a.emitInto(frameVar, t, stmt)
		src = frameVar
	}
}

// redirect points the last transformation of a column assignment at the
// assigned dataframe and column.
func (a *Analyzer) redirect(i int, frameVar string, cols []string) {
	t := &a.out[i]
	t.TargetDataframe = frameVar
	params := ensure(t.Parameters)
	existing := toStrings(params[schema.ParamColumns])
	switch {
	case len(cols) == 1:
		if t.Kind == schema.KindColumnCreate || len(existing) != 1 || existing[0] != cols[0] {
			params[schema.ParamOutputColumn] = cols[0]
		}
	case len(existing) == 0:
		params[schema.ParamColumns] = stringsToAny(cols)
	}
	t.Parameters = params
}

func (a *Analyzer) assignAttribute(t, rhs, stmt *pysrc.Node) {
	obj := t.Field("object").Unwrap()
	if !obj.Is(pysrc.KindIdentifier) {
		return
	}
	src, ok := a.syms.frame(obj.Text)
	if !ok {
		return
	}
	frameVar := obj.Text
	attr := t.Field("attribute").Text
	switch {
	case attr == "columns":
		params := map[string]any{}
		if v, ok := a.literal(rhs); ok {
			params[schema.ParamValues] = v
		} else {
			params[schema.ParamExpression] = rhs.Text
		}
		a.emitInto(frameVar, schema.Transformation{
			Kind:                   schema.KindRenameColumns,
			SourceDataframe:        src,
			Parameters:             params,
			SuggestedRecipeType:    schema.RecipePrepare,
			SuggestedProcessorType: schema.ProcColumnRenamer,
		}, stmt)
	case frameAttributes[attr]:
	default:
		a.assignColumns(frameVar, []string{attr}, rhs, stmt, "")
	}
}

// augmented handles df['x'] += expr and its siblings.
func (a *Analyzer) augmented(n *pysrc.Node) {
	left := n.Field("left").Unwrap()
	op := strings.TrimSuffix(n.Operator(), "=")

	if left.Is(pysrc.KindIdentifier) {
		if src, ok := a.syms.frame(left.Text); ok {
			a.emitInto(left.Text, opaqueStatement([]string{src}, n.Text, op), n)
		}
		return
	}
	col, frame, ok := a.columnRef(left)
	if !ok {
		return
	}
	frameVar := pysrc.DottedName(left.Field("value"))
	if frameVar == "" {
		frameVar = pysrc.DottedName(left.Field("object"))
	}
	if frameVar == "" || strings.Contains(frameVar, ".") {
		return
	}
	right, rok := a.render(n.Field("right"))
	mapped, mok := binaryOperators[op]
	if !rok || !mok {
		a.emitInto(frameVar, opaqueStatement([]string{frame}, n.Text, op), n)
		return
	}
	a.emitInto(frameVar, schema.Transformation{
		Kind:            schema.KindColumnCreate,
		SourceDataframe: frame,
		Parameters: map[string]any{
			schema.ParamOutputColumn: col,
			schema.ParamExpression:   expressions.RenderColumn(col) + " " + mapped + " " + right.nested(),
		},
		SuggestedRecipeType:    schema.RecipePrepare,
		SuggestedProcessorType: schema.ProcFormula,
	}, n)
}

// deletion turns del df['x'] into a column drop.
func (a *Analyzer) deletion(s *pysrc.Node) {
	var targets []*pysrc.Node
	for _, c := range s.Children {
		if c.Is(pysrc.KindExprList) {
			targets = append(targets, c.Children...)
			continue
		}
		targets = append(targets, c)
	}

	var order []string
	dropped := map[string][]any{}
	sources := map[string]string{}
	for _, t := range targets {
		t = t.Unwrap()
		if !t.Is(pysrc.KindSubscript) {
			continue
		}
		col, frame, ok := a.columnRef(t)
		frameVar := pysrc.DottedName(t.Field("value"))
		if !ok || frameVar == "" {
			continue
		}
		if _, seen := dropped[frameVar]; !seen {
			order = append(order, frameVar)
			sources[frameVar] = frame
		}
		dropped[frameVar] = append(dropped[frameVar], col)
	}
	for _, frameVar := range order {
		a.emitInto(frameVar, schema.Transformation{
			Kind:                   schema.KindDropColumns,
			SourceDataframe:        sources[frameVar],
			Parameters:             map[string]any{schema.ParamColumns: dropped[frameVar]},
			SuggestedRecipeType:    schema.RecipePrepare,
			SuggestedProcessorType: schema.ProcColumnsSelector,
		}, s)
	}
}

// emitInto emits a statement-level transformation writing target.
func (a *Analyzer) emitInto(target string, t schema.Transformation, node *pysrc.Node) {
	a.emit(&chain{}, t, node)
	a.retarget(len(a.out)-1, target)
	a.syms.bind(target, frameValue(target))
}

func opaqueStatement(sources []string, snippet, op string) schema.Transformation {
	return schema.Transformation{
		Kind:            schema.KindOpaque,
		SourceDataframe: sources[0],
		Parameters: map[string]any{
			schema.ParamRawSnippet: snippet,
			schema.ParamUnknownOp:  op,
		},
		AdditionalSources:   dedupe(sources[1:], sources[0]),
		SuggestedRecipeType: schema.RecipePython,
	}
}

// mentions lists the traced dataframes an expression refers to.
func (a *Analyzer) mentions(n *pysrc.Node) []string {
	var out []string
	var visit func(n *pysrc.Node)
	visit = func(n *pysrc.Node) {
		switch {
		case n.Is(pysrc.KindIdentifier):
			if v, ok := a.syms.lookup(n.Text); ok && (v.frameLike() || v.kind == valExpr) {
				out = append(out, v.frame)
			}
			return
		case n.Is(pysrc.KindAttribute):
			visit(n.Field("object"))
			return
		case n.Is(pysrc.KindKeywordArg):
			visit(n.Field("value"))
			return
		case n.Is(pysrc.KindLambda):
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(n)
	return dedupe(out, "")
}

func wrap(expr string) string {
	if strings.ContainsAny(expr, " ") {
		return "(" + expr + ")"
	}
	return expr
}
