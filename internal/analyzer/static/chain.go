package static

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/internal/pysrc"
	"github.com/rendis/pyflow/pkg/schema"
)

type linkKind int

const (
	linkCall linkKind = iota
	linkAttr
	linkIndex
)

// link is one step of a method chain: ".m(...)", ".attr" or "[...]".
type link struct {
	kind  linkKind
	name  string
	node  *pysrc.Node
	index []*pysrc.Node
}

// chain collects the transformations emitted while resolving one
// statement. The last one receives the statement's target name.
type chain struct {
	// bare is set for expression statements whose value is discarded.
	bare bool
	// root is the variable at the start of the outermost chain, if any.
	root    string
	emitted []int
}

// flatten unrolls an expression into its root and the links applied to
// it, innermost first.
func flatten(n *pysrc.Node) (*pysrc.Node, []link) {
	var links []link
	for {
		n = n.Unwrap()
		switch {
		case n.Is(pysrc.KindCall):
			fn := n.Field("function").Unwrap()
			if !fn.Is(pysrc.KindAttribute) {
				slices.Reverse(links)
				return n, links
			}
			links = append(links, link{kind: linkCall, name: fn.Field("attribute").Text, node: n})
			n = fn.Field("object")
		case n.Is(pysrc.KindAttribute):
			links = append(links, link{kind: linkAttr, name: n.Field("attribute").Text, node: n})
			n = n.Field("object")
		case n.Is(pysrc.KindSubscript):
			links = append(links, link{kind: linkIndex, node: n, index: n.Fields("subscript")})
			n = n.Field("value")
		default:
			slices.Reverse(links)
			return n, links
		}
	}
}

// resolve evaluates an expression, emitting a transformation for every
// recognized data operation. Links are processed innermost first so each
// operation reads the result of the one before it.
func (a *Analyzer) resolve(n *pysrc.Node, ch *chain) value {
	root, links := flatten(n)
	if ch.root == "" && root.Is(pysrc.KindIdentifier) {
		ch.root = root.Text
	}
	cur := a.root(root, links, ch)
	for i := 0; i < len(links); i++ {
		last := i == len(links)-1
		if next, ok := a.topN(cur, links, i, ch); ok {
			cur = next
			i++
			continue
		}
		cur = a.step(cur, links[i], ch, last)
	}
	return cur
}

func (a *Analyzer) root(n *pysrc.Node, links []link, ch *chain) value {
	switch {
	case n.Is(pysrc.KindIdentifier):
		if v, ok := a.syms.lookup(n.Text); ok {
			return v
		}
		if _, ok := a.syms.imported[n.Text]; ok {
			return plain()
		}
		if a.implicitFrame(links) {
			v := frameValue(n.Text)
			a.syms.bind(n.Text, v)
			return v
		}
		return value{}
	case n.Is(pysrc.KindCall):
		return a.functionCall(n, ch, len(links) == 0)
	}
	if v, ok := pysrc.Literal(n); ok {
		return value{kind: valLiteral, lit: v}
	}
	if e, ok := a.render(n); ok && e.frame != "" {
		return value{kind: valExpr, expr: e.text, frame: e.frame}
	}
	return value{}
}

// implicitFrame reports whether an unbound name is used the way only a
// dataframe would be, e.g. a function parameter with df.dropna() applied.
func (a *Analyzer) implicitFrame(links []link) bool {
	if len(links) == 0 {
		return false
	}
	first := links[0]
	switch first.kind {
	case linkCall:
		return a.catalog.Known(catalog.ReceiverFrame, "", first.name)
	case linkIndex:
		return true
	case linkAttr:
		switch first.name {
		case "loc", "iloc":
			return true
		}
	}
	return false
}

func (a *Analyzer) step(cur value, l link, ch *chain, last bool) value {
	switch l.kind {
	case linkAttr:
		return a.attribute(cur, l, ch)
	case linkIndex:
		return a.index(cur, l, ch)
	}
	switch {
	case cur.kind == valModule:
		return a.moduleCall(cur.module, l.name, l.node, ch, last)
	case cur.frameLike(), cur.kind == valEstimator:
		return a.methodCall(cur, l, ch, last)
	case cur.kind == valLiteral, cur.kind == valPlain, cur.kind == valExpr:
		return plain()
	}
	return a.untracedCall(l.node, ch, last)
}

// functionCall handles a call on a bare name: an imported function, a
// builtin, or something the catalog does not know.
func (a *Analyzer) functionCall(n *pysrc.Node, ch *chain, last bool) value {
	fn := n.Field("function").Unwrap()
	if fn.Is(pysrc.KindIdentifier) {
		if ref, ok := a.syms.imported[fn.Text]; ok {
			return a.moduleCall(ref.module, ref.name, n, ch, last)
		}
		if _, bound := a.syms.lookup(fn.Text); !bound && a.catalog.Known(catalog.ReceiverModule, catalog.ModuleBuiltins, fn.Text) {
			return a.moduleCall(catalog.ModuleBuiltins, fn.Text, n, ch, last)
		}
	}
	return a.untracedCall(n, ch, last)
}

func (a *Analyzer) moduleCall(module, method string, node *pysrc.Node, ch *chain, last bool) value {
	call := a.buildCall(node, method)
	shape := catalog.Shape{Receiver: catalog.ReceiverModule, Module: module, Statement: ch.bare && last}
	p, ok := a.catalog.Lookup(call, shape)
	if !ok {
		return a.untracedCall(node, ch, last)
	}

	switch {
	case p.Inspect, p.InspectAsStatement && shape.Statement:
		return plain()
	case p.Yields != "":
		return a.yield(value{kind: valModule, module: module}, p, call, shape)
	case p.Alias:
		if p.FrameArg {
			if srcs := a.frameArgs(node, 0, ch); len(srcs) > 0 {
				return frameValue(srcs[0])
			}
		}
		return value{}
	}

	var src string
	var extra []string
	switch {
	case p.FrameArg:
		srcs := a.frameArgs(node, 0, ch)
		if len(srcs) == 0 {
			return value{}
		}
		src, extra = srcs[0], srcs[1:]
		if p.Kind == schema.KindSplit {
			args := callArgs(node)
			for i := 1; i < len(args); i++ {
				extra = append(extra, a.framesOf(args[i], ch)...)
			}
		}
	case p.Kind != schema.KindReadData:
		// Column functions such as np.where or pd.to_datetime read from the
		// dataframe their arguments select from.
		src = firstCallFrame(call)
		if src == "" {
			return value{}
		}
	}
	extra = append(extra, a.sourceArgs(node, p.SourceArgs, ch)...)

	t := newTransformation(p, p.Params(call, shape))
	t.SourceDataframe = src
	t.AdditionalSources = dedupe(extra, src)
	name := a.emit(ch, t, node)
	if name == "" {
		return plain()
	}
	return frameValue(name)
}

func (a *Analyzer) methodCall(cur value, l link, ch *chain, last bool) value {
	call := a.buildCall(l.node, l.name)
	shape := cur.shape(ch.bare && last)
	p, ok := a.catalog.Lookup(call, shape)
	if !ok {
		if cur.kind == valEstimator {
			return a.untracedCall(l.node, ch, last)
		}
		return a.opaque(cur, l.node, l.name, ch)
	}

	switch {
	case p.Inspect && cur.kind == valEstimator:
		// Fitting a preprocessor keeps the object usable for transform.
		return cur
	case p.Inspect, p.InspectAsStatement && shape.Statement:
		return plain()
	case p.Alias:
		return cur
	case p.Yields != "":
		return a.yield(cur, p, call, shape)
	case cur.kind == valEstimator:
		return a.estimatorCall(cur, p, call, shape, l, ch)
	}

	src := cur.frame
	if cur.kind == valSelection && len(cur.columns) > 0 && !p.Kind.IsPrepare() {
		src = a.materialize(cur, l.node, ch)
		shape.Columns = nil
	}

	params := ensure(p.Params(call, shape))
	switch cur.kind {
	case valGrouped:
		if _, ok := params[schema.ParamGroupBy]; !ok && len(cur.groupBy) > 0 {
			params[schema.ParamGroupBy] = stringsToAny(cur.groupBy)
		}
	case valRolling:
		if cur.window != nil {
			params[schema.ParamWindow] = cur.window
		}
		if len(cur.groupBy) > 0 {
			params[schema.ParamGroupBy] = stringsToAny(cur.groupBy)
		}
	case valStr, valDt:
		params[schema.ParamAccessor] = string(shape.Receiver)
	}

	t := newTransformation(p, params)
	t.SourceDataframe = src
	t.AdditionalSources = dedupe(a.sourceArgs(l.node, p.SourceArgs, ch), src)
	name := a.emit(ch, t, l.node)
	if name == "" {
		return plain()
	}

	if call.Bool(false, -1, "inplace") && ch.root != "" {
		a.retarget(len(a.out)-1, ch.root)
		a.syms.bind(ch.root, frameValue(ch.root))
		return plain()
	}
	if p.Kind.IsPrepare() && cur.kind != valFrame && cur.kind != valGrouped && cur.kind != valRolling {
		return value{kind: valSelection, frame: name, column: cur.column, columns: cur.columns}
	}
	return frameValue(name)
}

// estimatorCall handles fit / transform / predict on a scikit-learn object.
// The source is the dataframe passed as X; columns selected there become
// parameters.
func (a *Analyzer) estimatorCall(cur value, p *catalog.Pattern, call *catalog.Call, shape catalog.Shape, l link, ch *chain) value {
	args := callArgs(l.node)
	var src string
	if x := argNode(l.node, 0, "X"); x != nil {
		if srcs := a.framesOf(x, ch); len(srcs) > 0 {
			src = srcs[0]
		}
	}
	if src == "" {
		return value{}
	}
	var extra []string
	for i := 1; i < len(args); i++ {
		extra = append(extra, a.framesOf(args[i], ch)...)
	}
	if y := argNode(l.node, -1, "y"); y != nil {
		extra = append(extra, a.framesOf(y, ch)...)
	}
	fits := strings.HasPrefix(l.name, "fit")
	if cur.fitted != "" && !fits {
		extra = append(extra, cur.fitted)
	}

	t := newTransformation(p, p.Params(call, shape))
	t.SourceDataframe = src
	t.AdditionalSources = dedupe(extra, src)
	name := a.emit(ch, t, l.node)

	// A bare model.fit(X, y) stores the fitted model under the estimator's
	// own name so later predictions can read it.
	if p.Kind == schema.KindOpaque && fits && ch.bare && ch.root != "" {
		if bound, ok := a.syms.lookup(ch.root); ok && bound.kind == valEstimator {
			a.retarget(len(a.out)-1, ch.root)
			bound.fitted = ch.root
			a.syms.bind(ch.root, bound)
			return plain()
		}
	}
	return frameValue(name)
}

func (a *Analyzer) yield(cur value, p *catalog.Pattern, call *catalog.Call, shape catalog.Shape) value {
	params := p.Params(call, shape)
	switch p.Yields {
	case catalog.ReceiverGrouped:
		return value{kind: valGrouped, frame: cur.frame, groupBy: toStrings(params[schema.ParamGroupBy])}
	case catalog.ReceiverRolling:
		return value{kind: valRolling, frame: cur.frame, column: cur.column, columns: cur.columns,
			groupBy: cur.groupBy, window: params[schema.ParamWindow]}
	case catalog.ReceiverEstimator:
		return value{kind: valEstimator, estimator: p.Method, params: params}
	}
	next := cur
	next.kind = kindOf(p.Yields)
	return next
}

func (a *Analyzer) attribute(cur value, l link, ch *chain) value {
	switch cur.kind {
	case valModule:
		return cur
	case valFrame, valSelection:
		switch l.name {
		case "str", "dt":
			if cur.kind != valSelection {
				return plain()
			}
			next := cur
			next.kind = valStr
			if l.name == "dt" {
				next.kind = valDt
			}
			return next
		case "loc", "iloc", "at", "iat":
			return value{kind: valIndexer, frame: cur.frame, indexer: l.name}
		}
		if frameAttributes[l.name] || cur.kind == valSelection {
			return plain()
		}
		return value{kind: valSelection, frame: cur.frame, column: l.name}
	case valGrouped:
		if frameAttributes[l.name] {
			return plain()
		}
		next := cur
		next.column = l.name
		return next
	case valDt:
		// Date components are attributes: df['d'].dt.year.
		call := &catalog.Call{Callee: l.node.Text, Method: l.name, Line: l.node.Line, EndLine: l.node.EndLine}
		shape := cur.shape(false)
		p, ok := a.catalog.Lookup(call, shape)
		if !ok || p.Kind == "" {
			return plain()
		}
		params := ensure(p.Params(call, shape))
		params[schema.ParamAccessor] = "dt"
		t := newTransformation(p, params)
		t.SourceDataframe = cur.frame
		name := a.emit(ch, t, l.node)
		return value{kind: valSelection, frame: name, column: cur.column}
	}
	return plain()
}

func (a *Analyzer) index(cur value, l link, ch *chain) value {
	switch cur.kind {
	case valFrame:
		if len(l.index) != 1 {
			return a.opaque(cur, l.node, "getitem", ch)
		}
		idx := l.index[0]
		if col, ok := a.columnName(idx); ok {
			return value{kind: valSelection, frame: cur.frame, column: col}
		}
		if cols, ok := a.columnList(idx); ok {
			return value{kind: valSelection, frame: cur.frame, columns: cols}
		}
		if idx.Unwrap().Is(pysrc.KindSlice) {
			return a.slice(cur, idx, l.node, ch)
		}
		if e, ok := a.render(idx); ok && e.frame != "" {
			return frameValue(a.filter(cur.frame, e.text, l.node, ch))
		}
		// Loop variables and other computed names still select a column.
		if idx.Unwrap().Is(pysrc.KindIdentifier) {
			if _, bound := a.syms.lookup(idx.Unwrap().Text); !bound {
				return value{kind: valSelection, frame: cur.frame, column: idx.Unwrap().Text}
			}
		}
		return a.opaque(cur, l.node, "getitem", ch)

	case valGrouped:
		if len(l.index) == 1 {
			next := cur
			if col, ok := a.columnName(l.index[0]); ok {
				next.column = col
				return next
			}
			if cols, ok := a.columnList(l.index[0]); ok {
				next.columns = cols
				return next
			}
		}
		return plain()

	case valIndexer:
		return a.indexer(cur, l, ch)
	}
	return plain()
}

// indexer handles df.loc[rows, cols] and df.iloc[rows] reads.
func (a *Analyzer) indexer(cur value, l link, ch *chain) value {
	frame := frameValue(cur.frame)
	if cur.indexer != "loc" && cur.indexer != "iloc" {
		return plain()
	}
	rows := l.index[0].Unwrap()
	if cur.indexer == "iloc" {
		if len(l.index) == 1 && rows.Is(pysrc.KindSlice) {
			return a.slice(frame, rows, l.node, ch)
		}
		return a.opaque(frame, l.node, "iloc", ch)
	}

	if !isFullSlice(rows) {
		e, ok := a.render(rows)
		if !ok {
			return a.opaque(frame, l.node, "loc", ch)
		}
		frame = frameValue(a.filter(frame.frame, e.text, l.node, ch))
	}
	if len(l.index) < 2 {
		return frame
	}
	if col, ok := a.columnName(l.index[1]); ok {
		return value{kind: valSelection, frame: frame.frame, column: col}
	}
	if cols, ok := a.columnList(l.index[1]); ok {
		return value{kind: valSelection, frame: frame.frame, columns: cols}
	}
	return a.opaque(frame, l.node, "loc", ch)
}

// slice turns df[:n], df[-n:] and df.iloc[:n] into a head or tail sample.
func (a *Analyzer) slice(cur value, idx, node *pysrc.Node, ch *chain) value {
	var lo, hi any
	var hasLo, hasHi bool
	// The grammar keeps no field names on slice bounds; their position
	// relative to the first colon tells them apart.
	colon := 0
	for _, c := range idx.Unwrap().All {
		if !c.Named {
			if c.Text == ":" {
				colon++
			}
			continue
		}
		v, ok := pysrc.Literal(c)
		if !ok {
			return a.opaque(cur, node, "slice", ch)
		}
		switch colon {
		case 0:
			lo, hasLo = v, true
		case 1:
			hi, hasHi = v, true
		}
	}
	params := map[string]any{}
	switch {
	case !hasLo && hasHi:
		if n, ok := hi.(int); ok && n >= 0 {
			params[schema.ParamMethod], params[schema.ParamN] = "head", n
		}
	case hasLo && !hasHi:
		if n, ok := lo.(int); ok && n < 0 {
			params[schema.ParamMethod], params[schema.ParamN] = "tail", -n
		}
	}
	if len(params) == 0 {
		return a.opaque(cur, node, "slice", ch)
	}
	t := schema.Transformation{
		Kind:                schema.KindSample,
		SourceDataframe:     cur.frame,
		Parameters:          params,
		SuggestedRecipeType: schema.RecipeSample,
	}
	return frameValue(a.emit(ch, t, node))
}

func isFullSlice(n *pysrc.Node) bool {
	return n.Is(pysrc.KindSlice) && len(n.Children) == 0
}

// filter emits a row filter on frame for a rendered boolean expression.
func (a *Analyzer) filter(frame, expr string, node *pysrc.Node, ch *chain) string {
	return a.emit(ch, filterTransformation(frame, expr), node)
}

func filterTransformation(frame, expr string) schema.Transformation {
	params := map[string]any{schema.ParamExpression: expr}
	proc := schema.ProcFilterOnFormula
	if set, err := expressions.ParseConditions(expr); err == nil && set.Flat {
		params[schema.ParamConditions] = schema.PlainValue(set.Conditions)
		params[schema.ParamCombinator] = set.Combinator
		proc = schema.ProcFilterOnValue
	}
	return schema.Transformation{
		Kind:                   schema.KindFilter,
		SourceDataframe:        frame,
		Parameters:             params,
		SuggestedRecipeType:    schema.RecipePrepare,
		SuggestedProcessorType: proc,
	}
}

// topN fuses sort_values(...).head(n) into one top-N operation.
func (a *Analyzer) topN(cur value, links []link, i int, ch *chain) (value, bool) {
	if i+1 >= len(links) || cur.kind != valFrame {
		return value{}, false
	}
	sortLink, rowsLink := links[i], links[i+1]
	if sortLink.kind != linkCall || sortLink.name != "sort_values" ||
		rowsLink.kind != linkCall || (rowsLink.name != "head" && rowsLink.name != "tail") {
		return value{}, false
	}
	sortCall := a.buildCall(sortLink.node, sortLink.name)
	sp, ok := a.catalog.Lookup(sortCall, cur.shape(false))
	if !ok || sp.Kind != schema.KindSort {
		return value{}, false
	}
	rowsCall := a.buildCall(rowsLink.node, rowsLink.name)
	n, ok := rowsCall.Int(0, "n")
	if !ok {
		n = 5
	}

	order := sp.Params(sortCall, cur.shape(false))[schema.ParamSortColumns]
	if rowsLink.name == "tail" {
		order = reverseOrder(order)
	}
	t := schema.Transformation{
		Kind:                schema.KindTopN,
		SourceDataframe:     cur.frame,
		Parameters:          map[string]any{schema.ParamN: n, schema.ParamSortColumns: order},
		SuggestedRecipeType: schema.RecipeTopN,
	}
	return frameValue(a.emit(ch, t, rowsLink.node)), true
}

func reverseOrder(order any) any {
	list, ok := order.([]any)
	if !ok {
		return order
	}
	out := make([]any, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		flipped := maps.Clone(m)
		if asc, ok := m["ascending"].(bool); ok {
			flipped["ascending"] = !asc
		}
		out[i] = flipped
	}
	return out
}

// materialize emits a column selection so that a multi-column selection
// can feed a recipe.
func (a *Analyzer) materialize(cur value, node *pysrc.Node, ch *chain) string {
	t := schema.Transformation{
		Kind:                   schema.KindSelectColumns,
		SourceDataframe:        cur.frame,
		Parameters:             map[string]any{schema.ParamColumns: stringsToAny(cur.selected())},
		SuggestedRecipeType:    schema.RecipePrepare,
		SuggestedProcessorType: schema.ProcColumnsSelector,
	}
	return a.emit(ch, t, node)
}

// opaque records a call the catalog does not recognize on a traced
// dataframe. The raw source is kept so the step can become a code recipe.
func (a *Analyzer) opaque(cur value, node *pysrc.Node, method string, ch *chain) value {
	t := schema.Transformation{
		Kind:            schema.KindOpaque,
		SourceDataframe: cur.frame,
		Parameters: map[string]any{
			schema.ParamRawSnippet: node.Text,
			schema.ParamUnknownOp:  method,
		},
		SuggestedRecipeType: schema.RecipePython,
	}
	t.AdditionalSources = dedupe(a.tracedArgs(node), cur.frame)
	return frameValue(a.emit(ch, t, node))
}

// untracedCall handles calls on receivers the analyzer does not track.
// Those reading no traced dataframe are ignored; the rest become opaque
// unless their result is discarded, e.g. plotting.
func (a *Analyzer) untracedCall(node *pysrc.Node, ch *chain, last bool) value {
	frames := a.tracedArgs(node)
	if len(frames) == 0 {
		return value{}
	}
	if ch.bare && last {
		a.notes = append(a.notes, schema.Info(schema.NoteIgnoredStatement, fmt.Sprintf("line %d", node.Line),
			fmt.Sprintf("call %q reads %s but its result is discarded", calleeName(node), strings.Join(frames, ", "))))
		return value{}
	}
	t := schema.Transformation{
		Kind:            schema.KindOpaque,
		SourceDataframe: frames[0],
		Parameters: map[string]any{
			schema.ParamRawSnippet: node.Text,
			schema.ParamUnknownOp:  calleeName(node),
		},
		AdditionalSources:   frames[1:],
		SuggestedRecipeType: schema.RecipePython,
	}
	return frameValue(a.emit(ch, t, node))
}

func calleeName(call *pysrc.Node) string {
	fn := call.Field("function")
	if name := pysrc.DottedName(fn); name != "" {
		return name
	}
	if fn.Is(pysrc.KindAttribute) {
		return fn.Field("attribute").Text
	}
	return fn.Text
}

// emit appends a transformation under a fresh intermediate name and
// returns that name. Writes produce no dataset and get no name.
func (a *Analyzer) emit(ch *chain, t schema.Transformation, node *pysrc.Node) string {
	if t.Kind != schema.KindWriteData {
		a.chainN++
		t.TargetDataframe = fmt.Sprintf("%s%d_%d", schema.ChainPrefix, a.stmt, a.chainN)
	}
	t.SourceLine, t.EndLine = node.Line, node.EndLine
	a.checkFormula(&t)
	if len(t.Parameters) == 0 {
		t.Parameters = nil
	}
	a.out = append(a.out, t)
	ch.emitted = append(ch.emitted, len(a.out)-1)
	return t.TargetDataframe
}

// checkFormula compiles the expression of a filter or computed column.
// One that does not compile is kept as written, as a formula filter, with
// a warning.
func (a *Analyzer) checkFormula(t *schema.Transformation) {
	if t.Kind != schema.KindFilter && t.Kind != schema.KindColumnCreate {
		return
	}
	formula, _ := t.Parameters[schema.ParamExpression].(string)
	if formula == "" {
		return
	}
	err := a.formulas.Check(formula)
	if err == nil {
		return
	}
	if t.Kind == schema.KindFilter {
		delete(t.Parameters, schema.ParamConditions)
		delete(t.Parameters, schema.ParamCombinator)
		t.SuggestedProcessorType = schema.ProcFilterOnFormula
	}
	a.notes = append(a.notes, schema.Warning(schema.NoteInvalidFormula, fmt.Sprintf("line %d", t.SourceLine),
		fmt.Sprintf("%s expression %q is not valid %s syntax and needs review", t.Kind, formula, a.formulas.Name())))
	a.logger.Debug("formula does not compile", slog.Int("line", t.SourceLine), slog.String("error", err.Error()))
}

// retarget renames the output of an emitted transformation. Only the last
// transformation of a statement is retargeted, before anything reads it.
func (a *Analyzer) retarget(i int, name string) {
	a.out[i].TargetDataframe = name
}

func newTransformation(p *catalog.Pattern, params map[string]any) schema.Transformation {
	t := schema.Transformation{
		Kind:                p.Kind,
		Parameters:          params,
		SuggestedRecipeType: p.RecipeType(),
	}
	if p.Kind.IsPrepare() {
		t.SuggestedProcessorType = p.ProcessorType()
	}
	return t
}

func ensure(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}

func dedupe(names []string, exclude string) []string {
	var out []string
	for _, n := range names {
		if n == "" || n == exclude || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func firstCallFrame(c *catalog.Call) string {
	for _, arg := range c.Args {
		if arg.Frame != "" {
			return arg.Frame
		}
	}
	for _, k := range c.KwargOrder {
		if arg := c.Kwargs[k]; arg.Frame != "" {
			return arg.Frame
		}
	}
	return ""
}
