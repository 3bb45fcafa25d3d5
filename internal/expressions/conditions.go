package expressions

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/rendis/pyflow/pkg/schema"
)

// Condition operators carried in schema.FilterCondition.
const (
	OpEq         = "=="
	OpNe         = "!="
	OpGt         = ">"
	OpGe         = ">="
	OpLt         = "<"
	OpLe         = "<="
	OpIn         = "in"
	OpNotIn      = "not_in"
	OpIsNull     = "is_null"
	OpNotNull    = "not_null"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpMatches    = "matches"
)

// Combinators joining the conditions of a ConditionSet.
const (
	CombineAnd = "and"
	CombineOr  = "or"
)

var flippedComparison = map[string]string{
	OpGt: OpLt, OpGe: OpLe, OpLt: OpGt, OpLe: OpGe, OpEq: OpEq, OpNe: OpNe,
}

var stringOperators = map[string]string{
	"contains":   OpContains,
	"startsWith": OpStartsWith,
	"endsWith":   OpEndsWith,
	"matches":    OpMatches,
}

// ConditionSet is a row condition split into flat column comparisons.
type ConditionSet struct {
	Conditions []schema.FilterCondition
	Combinator string
	// Expression is the condition in expr syntax.
	Expression string
	// Flat is false when the expression mixes combinators or uses anything
	// other than column-versus-literal comparisons. Conditions is then nil
	// and only Expression describes the filter.
	Flat bool
}

// ParseConditions parses an expr-syntax boolean expression and flattens it
// into column comparisons when possible.
func ParseConditions(expression string) (*ConditionSet, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"parse condition %q: %s", expression, err.Error()).WithCause(err)
	}

	set := &ConditionSet{Expression: expression}
	combinator := ""
	var conds []schema.FilterCondition
	ok := flatten(tree.Node, &combinator, &conds)
	if !ok {
		return set, nil
	}
	if combinator == "" {
		combinator = CombineAnd
	}
	set.Conditions = conds
	set.Combinator = combinator
	set.Flat = true
	return set, nil
}

func flatten(node ast.Node, combinator *string, out *[]schema.FilterCondition) bool {
	if bin, ok := node.(*ast.BinaryNode); ok {
		if c := booleanOperator(bin.Operator); c != "" {
			if *combinator != "" && *combinator != c {
				return false
			}
			*combinator = c
			return flatten(bin.Left, combinator, out) && flatten(bin.Right, combinator, out)
		}
	}
	cond, ok := comparison(node)
	if !ok {
		return false
	}
	*out = append(*out, cond)
	return true
}

func booleanOperator(op string) string {
	switch op {
	case "and", "&&":
		return CombineAnd
	case "or", "||":
		return CombineOr
	}
	return ""
}

func comparison(node ast.Node) (schema.FilterCondition, bool) {
	switch n := node.(type) {
	case *ast.UnaryNode:
		if n.Operator != "not" && n.Operator != "!" {
			return schema.FilterCondition{}, false
		}
		inner, ok := n.Node.(*ast.BinaryNode)
		if !ok || inner.Operator != "in" {
			return schema.FilterCondition{}, false
		}
		cond, ok := comparison(inner)
		if !ok {
			return schema.FilterCondition{}, false
		}
		cond.Operator = OpNotIn
		return cond, true

	case *ast.BinaryNode:
		if n.Operator == "in" {
			col, ok := columnName(n.Left)
			if !ok {
				return schema.FilterCondition{}, false
			}
			val, ok := literal(n.Right)
			if !ok {
				return schema.FilterCondition{}, false
			}
			return schema.FilterCondition{Column: col, Operator: OpIn, Value: val}, true
		}
		if op, ok := stringOperators[n.Operator]; ok {
			col, ok := columnName(n.Left)
			if !ok {
				return schema.FilterCondition{}, false
			}
			val, ok := literal(n.Right)
			if !ok {
				return schema.FilterCondition{}, false
			}
			return schema.FilterCondition{Column: col, Operator: op, Value: val}, true
		}
		if _, ok := flippedComparison[n.Operator]; !ok {
			return schema.FilterCondition{}, false
		}
		op := n.Operator
		col, ok := columnName(n.Left)
		valueNode := n.Right
		if !ok {
			col, ok = columnName(n.Right)
			if !ok {
				return schema.FilterCondition{}, false
			}
			valueNode = n.Left
			op = flippedComparison[op]
		}
		val, ok := literal(valueNode)
		if !ok {
			return schema.FilterCondition{}, false
		}
		if val == nil {
			switch op {
			case OpEq:
				return schema.FilterCondition{Column: col, Operator: OpIsNull}, true
			case OpNe:
				return schema.FilterCondition{Column: col, Operator: OpNotNull}, true
			}
			return schema.FilterCondition{}, false
		}
		return schema.FilterCondition{Column: col, Operator: op, Value: val}, true
	}
	return schema.FilterCondition{}, false
}

func columnName(node ast.Node) (string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		if n.Value == "$env" {
			return "", false
		}
		return n.Value, true
	case *ast.MemberNode:
		id, ok := n.Node.(*ast.IdentifierNode)
		if !ok || id.Value != "$env" {
			return "", false
		}
		if s, ok := n.Property.(*ast.StringNode); ok {
			return s.Value, true
		}
	}
	return "", false
}

func literal(node ast.Node) (any, bool) {
	switch n := node.(type) {
	case *ast.StringNode:
		return n.Value, true
	case *ast.IntegerNode:
		return n.Value, true
	case *ast.FloatNode:
		return n.Value, true
	case *ast.BoolNode:
		return n.Value, true
	case *ast.NilNode:
		return nil, true
	case *ast.ConstantNode:
		return n.Value, true
	case *ast.UnaryNode:
		if n.Operator != "-" {
			return nil, false
		}
		switch v := n.Node.(type) {
		case *ast.IntegerNode:
			return -v.Value, true
		case *ast.FloatNode:
			return -v.Value, true
		}
	case *ast.ArrayNode:
		items := make([]any, 0, len(n.Nodes))
		for _, item := range n.Nodes {
			v, ok := literal(item)
			if !ok {
				return nil, false
			}
			items = append(items, v)
		}
		return items, true
	}
	return nil, false
}

// RenderConditions renders flat conditions back into expr syntax.
func RenderConditions(conds []schema.FilterCondition, combinator string) string {
	if combinator == "" {
		combinator = CombineAnd
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, RenderCondition(c))
	}
	return strings.Join(parts, " "+combinator+" ")
}

// RenderCondition renders one comparison in expr syntax.
func RenderCondition(c schema.FilterCondition) string {
	col := RenderColumn(c.Column)
	switch c.Operator {
	case OpIsNull:
		return col + " == nil"
	case OpNotNull:
		return col + " != nil"
	case OpIn:
		return col + " in " + RenderValue(c.Value)
	case OpNotIn:
		return "not (" + col + " in " + RenderValue(c.Value) + ")"
	case OpContains:
		return col + " contains " + RenderValue(c.Value)
	case OpStartsWith:
		return col + " startsWith " + RenderValue(c.Value)
	case OpEndsWith:
		return col + " endsWith " + RenderValue(c.Value)
	case OpMatches:
		return col + " matches " + RenderValue(c.Value)
	}
	op := c.Operator
	if op == "" || op == "=" {
		op = OpEq
	}
	return col + " " + op + " " + RenderValue(c.Value)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var exprKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true, "true": true,
	"false": true, "nil": true, "let": true, "if": true, "else": true,
}

// RenderColumn renders a column reference, quoting names that are not
// plain identifiers through the $env map.
func RenderColumn(name string) string {
	if identPattern.MatchString(name) && !exprKeywords[name] {
		return name
	}
	return "$env[" + strconv.Quote(name) + "]"
}

// RenderValue renders a literal in expr syntax.
func RenderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = RenderValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case []string:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = strconv.Quote(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	return RenderValue(schema.PlainValue(v))
}

// ReferencedColumns returns the sorted identifiers an expression reads.
func ReferencedColumns(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"parse expression %q: %s", expression, err.Error()).WithCause(err)
	}
	v := &columnCollector{seen: make(map[string]bool)}
	ast.Walk(&tree.Node, v)
	cols := make([]string, 0, len(v.seen))
	for c := range v.seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

type columnCollector struct {
	seen map[string]bool
}

func (c *columnCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value != "$env" {
			c.seen[n.Value] = true
		}
	case *ast.MemberNode:
		if name, ok := columnName(n); ok {
			c.seen[name] = true
		}
	}
}

// NormalizeQuery rewrites a pandas query string into expr syntax. Backtick
// quoted names become $env lookups, @local references lose their marker,
// and Python boolean operators and literals are translated. Quoted strings
// are copied untouched.
func NormalizeQuery(query string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(query))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != r {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				j = len(runes) - 1
			}
			b.WriteString(string(runes[i : j+1]))
			i = j
		case r == '`':
			j := i + 1
			for j < len(runes) && runes[j] != '`' {
				j++
			}
			b.WriteString(RenderColumn(string(runes[i+1 : min(j, len(runes))])))
			i = j
		case r == '@':
		case r == '&':
			writeWord(&b, "and", runes, i)
		case r == '|':
			writeWord(&b, "or", runes, i)
		case r == '~':
			writeWord(&b, "not", runes, i)
		case isIdentStart(r):
			j := i
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			b.WriteString(pythonWord(string(runes[i:j])))
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// writeWord emits an operator word padded by single spaces.
func writeWord(b *strings.Builder, word string, runes []rune, i int) {
	if s := b.String(); s != "" && !strings.HasSuffix(s, " ") {
		b.WriteByte(' ')
	}
	b.WriteString(word)
	if i+1 < len(runes) && runes[i+1] != ' ' {
		b.WriteByte(' ')
	}
}

func pythonWord(w string) string {
	switch w {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "nil"
	}
	return w
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
