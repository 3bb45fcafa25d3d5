package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/pkg/schema"
)

// Catalog is the dispatch table from call signatures to patterns. It is
// instance-scoped; analyzers receive one explicitly.
type Catalog struct {
	mu       sync.RWMutex
	builtins map[string][]*Pattern
	rules    map[string][]*Pattern
	guards   *expressions.CELEngine
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used to report failing guards and extractors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New creates a catalog populated with the built-in pandas, numpy and
// scikit-learn patterns.
func New(opts ...Option) *Catalog {
	c := Empty(opts...)
	for _, p := range builtinPatterns() {
		c.add(p)
	}
	return c
}

// Empty creates a catalog with no patterns.
func Empty(opts ...Option) *Catalog {
	guards, err := expressions.NewCELEngine()
	if err != nil {
		// The guard environment is static; failure here is a programming error.
		panic(err)
	}
	c := &Catalog{
		builtins: make(map[string][]*Pattern),
		rules:    make(map[string][]*Pattern),
		guards:   guards,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns a shared catalog with built-ins only. Callers that load
// rule packs should build their own with New.
func Default() *Catalog {
	defaultOnce.Do(func() { defaultCatalog = New() })
	return defaultCatalog
}

// Register adds a pattern. Patterns carrying a Rule name shadow built-ins
// for the same signature. Guards are compiled eagerly.
func (c *Catalog) Register(p *Pattern) error {
	if p.Method == "" {
		return schema.NewError(schema.ErrCodeValidation, "pattern has no method")
	}
	if p.On == "" {
		p.On = ReceiverFrame
	}
	if p.On == ReceiverModule && p.Module == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "module pattern %s has no module", p.Method)
	}
	if p.Kind != "" && !p.Kind.Known() {
		return schema.NewErrorf(schema.ErrCodeValidation, "pattern %s: unknown kind %q", p.Method, p.Kind)
	}
	if p.Guard != "" {
		if _, err := c.guards.Compile(p.Guard); err != nil {
			return err
		}
	}
	if p.Name == "" {
		p.Name = p.Key()
	}
	c.add(p)
	return nil
}

func (c *Catalog) add(p *Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Rule != "" {
		c.rules[p.Key()] = append(c.rules[p.Key()], p)
		return
	}
	c.builtins[p.Key()] = append(c.builtins[p.Key()], p)
}

// Lookup finds the pattern for a call made on the given receiver shape.
// Rule-pack patterns are consulted before built-ins; within each group the
// first pattern whose guard and predicate accept the call wins.
func (c *Catalog) Lookup(call *Call, shape Shape) (*Pattern, bool) {
	key := dispatchKey(shape.Receiver, shape.Module, call.Method)

	c.mu.RLock()
	candidates := make([]*Pattern, 0, len(c.rules[key])+len(c.builtins[key]))
	candidates = append(candidates, c.rules[key]...)
	candidates = append(candidates, c.builtins[key]...)
	c.mu.RUnlock()

	for _, p := range candidates {
		if c.accepts(p, call, shape) {
			return p, true
		}
	}
	return nil, false
}

// Known reports whether any pattern is registered for the signature,
// regardless of guards.
func (c *Catalog) Known(receiver Receiver, module, method string) bool {
	key := dispatchKey(receiver, module, method)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules[key]) > 0 || len(c.builtins[key]) > 0
}

// Patterns returns every registered pattern sorted by key.
func (c *Catalog) Patterns() []*Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Pattern
	for _, ps := range c.rules {
		out = append(out, ps...)
	}
	for _, ps := range c.builtins {
		out = append(out, ps...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() < out[j].Key()
		}
		return out[i].Rule > out[j].Rule
	})
	return out
}

func (c *Catalog) accepts(p *Pattern, call *Call, shape Shape) bool {
	if p.Match != nil && !p.Match(call, shape) {
		return false
	}
	if p.Guard == "" {
		return true
	}
	ok, err := c.guards.EvaluateBool(context.Background(), p.Guard, map[string]any{
		"call":  call.toMap(),
		"shape": shape.toMap(),
	})
	if err != nil {
		c.logger.Warn("catalog guard failed",
			slog.String("pattern", p.Name),
			slog.String("guard", p.Guard),
			slog.String("error", err.Error()))
		return false
	}
	return ok
}
