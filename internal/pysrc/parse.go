// Package pysrc parses Python source with tree-sitter and exposes the result
// as a plain Go tree that outlives the native parser.
package pysrc

import (
	"context"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/rendis/pyflow/pkg/schema"
)

var (
	languageOnce sync.Once
	language     *tree_sitter.Language
)

func pythonLanguage() *tree_sitter.Language {
	languageOnce.Do(func() {
		language = tree_sitter.NewLanguage(tree_sitter_python.Language())
	})
	return language
}

// Module is a parsed Python file.
type Module struct {
	Root   *Node
	Source string
}

// Statements returns the top-level statements of the module.
func (m *Module) Statements() []*Node {
	return m.Root.Children
}

// Parse parses source. Any syntax error, including a missing token the
// parser had to invent, fails with SYNTAX_ERROR carrying the first bad line.
func Parse(ctx context.Context, source string) (*Module, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(pythonLanguage()); err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "load python grammar").WithCause(err)
	}

	src := []byte(source)
	tree := parser.ParseWithOptions(func(i int, _ tree_sitter.Point) []byte {
		if i < len(src) {
			return src[i:]
		}
		return nil
	}, nil, &tree_sitter.ParseOptions{
		ProgressCallback: func(tree_sitter.ParseState) bool { return ctx.Err() != nil },
	})
	if tree == nil {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeInternal, "parse cancelled").WithCause(err)
		}
		return nil, schema.NewError(schema.ErrCodeInternal, "parser returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		bad := firstError(root)
		line := 1
		if bad != nil {
			line = rowToLine(bad.StartPosition().Row)
		}
		msg := "invalid syntax"
		if bad != nil && bad.IsMissing() {
			msg = "missing " + strings.TrimSpace(bad.Kind())
		}
		return nil, schema.NewErrorf(schema.ErrCodeSyntax, "%s at line %d", msg, line).WithLine(line)
	}

	return &Module{Root: convert(root, src, nil), Source: source}, nil
}

func firstError(n *tree_sitter.Node) *tree_sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func convert(n *tree_sitter.Node, src []byte, parent *Node) *Node {
	out := &Node{
		Kind:    n.Kind(),
		Text:    n.Utf8Text(src),
		Line:    rowToLine(n.StartPosition().Row),
		EndLine: rowToLine(n.EndPosition().Row),
		Named:   n.IsNamed(),
		Parent:  parent,
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child.Kind() == "comment" {
			continue
		}
		c := convert(child, src, out)
		out.All = append(out.All, c)
		if c.Named {
			out.Children = append(out.Children, c)
		}
		if field := n.FieldNameForChild(uint32(i)); field != "" {
			if out.fields == nil {
				out.fields = make(map[string][]*Node)
			}
			out.fields[field] = append(out.fields[field], c)
		}
	}
	return out
}

// rowToLine converts a zero-based tree-sitter row to a 1-based line.
func rowToLine(row uint) int {
	const maxInt = int(^uint(0) >> 1)
	if row > uint(maxInt-1) {
		return maxInt
	}
	return int(row) + 1
}
