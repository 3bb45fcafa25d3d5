package pysrc

import "strings"

// Node kinds of the Python grammar the analyzers inspect.
const (
	KindModule        = "module"
	KindExprStatement = "expression_statement"
	KindAssignment    = "assignment"
	KindAugAssignment = "augmented_assignment"
	KindCall          = "call"
	KindArgumentList  = "argument_list"
	KindKeywordArg    = "keyword_argument"
	KindAttribute     = "attribute"
	KindSubscript     = "subscript"
	KindIdentifier    = "identifier"
	KindString        = "string"
	KindConcatString  = "concatenated_string"
	KindInteger       = "integer"
	KindFloat         = "float"
	KindTrue          = "true"
	KindFalse         = "false"
	KindNone          = "none"
	KindList          = "list"
	KindTuple         = "tuple"
	KindSet           = "set"
	KindDictionary    = "dictionary"
	KindPair          = "pair"
	KindParenthesized = "parenthesized_expression"
	KindUnary         = "unary_operator"
	KindBinary        = "binary_operator"
	KindBoolean       = "boolean_operator"
	KindNot           = "not_operator"
	KindComparison    = "comparison_operator"
	KindLambda        = "lambda"
	KindConditional   = "conditional_expression"
	KindPatternList   = "pattern_list"
	KindTuplePattern  = "tuple_pattern"
	KindExprList      = "expression_list"
	KindImport        = "import_statement"
	KindImportFrom    = "import_from_statement"
	KindAliasedImport = "aliased_import"
	KindDottedName    = "dotted_name"
	KindBlock         = "block"
	KindFor           = "for_statement"
	KindWhile         = "while_statement"
	KindIf            = "if_statement"
	KindElif          = "elif_clause"
	KindElse          = "else_clause"
	KindWith          = "with_statement"
	KindTry           = "try_statement"
	KindExcept        = "except_clause"
	KindFinally       = "finally_clause"
	KindFunctionDef   = "function_definition"
	KindClassDef      = "class_definition"
	KindDecorated     = "decorated_definition"
	KindSlice         = "slice"
)

// Node is one syntax node. Children holds named children only; All keeps
// anonymous tokens as well, e.g. operators.
type Node struct {
	Kind     string
	Text     string
	Line     int
	EndLine  int
	Named    bool
	Parent   *Node
	Children []*Node
	All      []*Node

	fields map[string][]*Node
}

// Field returns the first child stored under a grammar field name.
func (n *Node) Field(name string) *Node {
	if n == nil {
		return nil
	}
	if fs := n.fields[name]; len(fs) > 0 {
		return fs[0]
	}
	return nil
}

// Fields returns every child stored under a grammar field name.
func (n *Node) Fields(name string) []*Node {
	if n == nil {
		return nil
	}
	return n.fields[name]
}

// Child returns the i-th named child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Is reports whether the node has one of the kinds.
func (n *Node) Is(kinds ...string) bool {
	if n == nil {
		return false
	}
	for _, k := range kinds {
		if n.Kind == k {
			return true
		}
	}
	return false
}

// Operator returns the first anonymous token of the node, e.g. "+" for a
// binary operator or "not in" for a comparison.
func (n *Node) Operator() string {
	if op := n.Field("operator"); op != nil {
		return op.Text
	}
	if ops := n.Fields("operators"); len(ops) > 0 {
		parts := make([]string, 0, 2)
		for _, o := range ops {
			parts = append(parts, o.Text)
		}
		return strings.Join(parts, " ")
	}
	for _, c := range n.All {
		if !c.Named {
			return c.Text
		}
	}
	return ""
}

// Unwrap strips redundant parentheses.
func (n *Node) Unwrap() *Node {
	for n != nil && n.Kind == KindParenthesized && len(n.Children) == 1 {
		n = n.Children[0]
	}
	return n
}

// Walk visits n and its named descendants depth-first. Returning false
// from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// DottedName returns "a.b.c" for an identifier or a chain of attribute
// accesses on an identifier, and "" for anything else.
func DottedName(n *Node) string {
	n = n.Unwrap()
	switch {
	case n.Is(KindIdentifier):
		return n.Text
	case n.Is(KindDottedName):
		return n.Text
	case n.Is(KindAttribute):
		base := DottedName(n.Field("object"))
		attr := n.Field("attribute")
		if base == "" || attr == nil {
			return ""
		}
		return base + "." + attr.Text
	}
	return ""
}

// Identifiers returns the names bound by an assignment target: a single
// identifier, or a tuple / list of identifiers. Other targets yield nil.
func Identifiers(n *Node) []string {
	n = n.Unwrap()
	switch {
	case n.Is(KindIdentifier):
		return []string{n.Text}
	case n.Is(KindPatternList, KindTuplePattern, KindTuple, KindList, KindExprList):
		var out []string
		for _, c := range n.Children {
			if !c.Is(KindIdentifier) {
				return nil
			}
			out = append(out, c.Text)
		}
		return out
	}
	return nil
}

// Body returns the statements of a compound statement's block field.
func Body(n *Node, field string) []*Node {
	b := n.Field(field)
	if b == nil {
		return nil
	}
	if b.Is(KindBlock) {
		return b.Children
	}
	return []*Node{b}
}
