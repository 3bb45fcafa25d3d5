// Package static recognizes dataframe operations in Python source by
// walking its syntax tree. It emits one schema.Transformation per
// recognized operation, in source order.
package static

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/internal/pysrc"
	"github.com/rendis/pyflow/pkg/schema"
)

// Analyzer extracts transformations from a script. An Analyzer is not safe
// for concurrent use; all per-run state is reset by Analyze.
type Analyzer struct {
	catalog  *catalog.Catalog
	formulas expressions.Engine
	logger   *slog.Logger

	syms   *symbols
	out    []schema.Transformation
	notes  []schema.Note
	stmt   int
	chainN int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCatalog sets the pattern catalog. Defaults to catalog.Default().
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *Analyzer) { a.catalog = c }
}

// WithFormulaEngine sets the engine that checks filter and formula
// expressions. Defaults to an expressions.ExprEngine.
func WithFormulaEngine(e expressions.Engine) Option {
	return func(a *Analyzer) { a.formulas = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.catalog == nil {
		a.catalog = catalog.Default()
	}
	if a.formulas == nil {
		a.formulas = expressions.NewExprEngine()
	}
	return a
}

// Analyze parses source and returns the transformations it performs.
// Unparseable source fails with SYNTAX_ERROR; an empty script yields an
// empty list.
func (a *Analyzer) Analyze(ctx context.Context, source string) ([]schema.Transformation, error) {
	a.syms = newSymbols()
	a.out = nil
	a.notes = nil
	a.stmt = 0

	mod, err := pysrc.Parse(ctx, source)
	if err != nil {
		return nil, err
	}
	a.block(ctx, mod.Statements())
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "analysis cancelled").WithCause(err)
	}

	a.logger.DebugContext(ctx, "static analysis complete",
		slog.Int("statements", a.stmt),
		slog.Int("transformations", len(a.out)),
	)
	out := a.out
	if out == nil {
		out = []schema.Transformation{}
	}
	return out, nil
}

// Notes returns the notes raised by the last Analyze call, e.g. statements
// analyzed inside control flow.
func (a *Analyzer) Notes() []schema.Note {
	return append([]schema.Note(nil), a.notes...)
}

func (a *Analyzer) block(ctx context.Context, stmts []*pysrc.Node) {
	for _, s := range stmts {
		if ctx.Err() != nil {
			return
		}
		a.statement(ctx, s)
	}
}

func (a *Analyzer) statement(ctx context.Context, s *pysrc.Node) {
	a.stmt++
	a.chainN = 0

	switch s.Kind {
	case pysrc.KindExprStatement:
		for _, c := range s.Children {
			switch c.Kind {
			case pysrc.KindAssignment:
				a.assignment(c)
			case pysrc.KindAugAssignment:
				a.augmented(c)
			default:
				a.expressionStatement(c)
			}
		}

	case pysrc.KindImport, pysrc.KindImportFrom:
		a.imports(s)

	case "delete_statement":
		a.deletion(s)

	case "return_statement":
		if v := s.Child(0); v != nil {
			a.expressionStatement(v)
		}

	case pysrc.KindFor, pysrc.KindWhile, pysrc.KindIf, pysrc.KindWith, pysrc.KindTry,
		pysrc.KindFunctionDef, pysrc.KindClassDef, pysrc.KindDecorated, "match_statement":
		a.notes = append(a.notes, schema.Info(schema.NoteControlFlow, fmt.Sprintf("line %d", s.Line),
			fmt.Sprintf("statements inside %s are analyzed as if they always run once", describe(s.Kind))))
		a.compound(ctx, s)
	}
}

// compound walks every block nested in a compound statement in source
// order. Conditions and loop headers are not evaluated.
func (a *Analyzer) compound(ctx context.Context, s *pysrc.Node) {
	for _, c := range s.Children {
		switch c.Kind {
		case pysrc.KindBlock:
			a.block(ctx, c.Children)
		case pysrc.KindElif, pysrc.KindElse, pysrc.KindExcept, pysrc.KindFinally,
			"except_group_clause", "case_clause", pysrc.KindFunctionDef, pysrc.KindClassDef:
			a.compound(ctx, c)
		}
	}
}

func describe(kind string) string {
	switch kind {
	case pysrc.KindFor:
		return "a for loop"
	case pysrc.KindWhile:
		return "a while loop"
	case pysrc.KindIf:
		return "an if statement"
	case pysrc.KindWith:
		return "a with block"
	case pysrc.KindTry:
		return "a try block"
	case pysrc.KindFunctionDef, pysrc.KindDecorated:
		return "a function definition"
	case pysrc.KindClassDef:
		return "a class definition"
	}
	return "a match statement"
}

func (a *Analyzer) imports(s *pysrc.Node) {
	if s.Is(pysrc.KindImport) {
		for _, name := range s.Fields("name") {
			path, alias := importName(name)
			if alias == "" {
				// "import a.b" binds "a".
				alias, _, _ = strings.Cut(path, ".")
			}
			a.syms.bind(alias, value{kind: valModule, module: canonicalModule(path)})
		}
		return
	}

	from := s.Field("module_name")
	if from == nil || !from.Is(pysrc.KindDottedName) {
		return
	}
	module := canonicalModule(from.Text)
	for _, name := range s.Fields("name") {
		path, alias := importName(name)
		if alias == "" {
			alias = path
		}
		a.syms.imported[alias] = importRef{module: module, name: path}
	}
}

func importName(n *pysrc.Node) (path, alias string) {
	if n.Is(pysrc.KindAliasedImport) {
		return n.Field("name").Text, n.Field("alias").Text
	}
	return n.Text, ""
}
