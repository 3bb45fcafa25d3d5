// Package translate runs the full pipeline from script source to a
// validated, optionally optimized and persisted flow.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/pyflow/internal/analyzer/semantic"
	"github.com/rendis/pyflow/internal/analyzer/static"
	"github.com/rendis/pyflow/internal/assembler"
	"github.com/rendis/pyflow/internal/catalog"
	"github.com/rendis/pyflow/internal/logging"
	"github.com/rendis/pyflow/internal/optimizer"
	"github.com/rendis/pyflow/internal/scenario"
	"github.com/rendis/pyflow/internal/store"
	"github.com/rendis/pyflow/internal/streaming"
	"github.com/rendis/pyflow/internal/validation"
	"github.com/rendis/pyflow/pkg/schema"
)

// Mode selects the analysis path.
type Mode string

const (
	ModeStatic   Mode = "static"
	ModeSemantic Mode = "semantic"
	// ModeAuto tries semantic analysis and falls back to static analysis
	// when the provider fails.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode name. The empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeStatic, ModeSemantic, ModeAuto:
		return m, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown mode %q (want static, semantic or auto)", s)
	}
}

// Script is one unit of translation input. ID is optional and becomes the
// translation id; callers set it to follow the run on an event hub.
type Script struct {
	ID     string
	Name   string
	Source string
}

// Config holds per-translation settings.
type Config struct {
	Mode           Mode
	Optimize       bool
	Recommend      bool
	Prefix         string
	Suffix         string
	Strict         bool
	Cron           string
	ScenarioName   string
	SkipValidation bool
	// Explain asks the language model for a prose summary of the script.
	Explain bool
}

// DefaultConfig returns auto mode with optimization and recommendations.
func DefaultConfig() Config {
	return Config{Mode: ModeAuto, Optimize: true, Recommend: true}
}

// Result is the outcome of one translation.
type Result struct {
	ID              string                   `json:"id"`
	Script          string                   `json:"script"`
	Mode            Mode                     `json:"mode"`
	FellBack        bool                     `json:"fell_back,omitempty"`
	Flow            *schema.Flow             `json:"flow"`
	Transformations []schema.Transformation  `json:"transformations,omitempty"`
	Analysis        *schema.AnalysisResult   `json:"analysis,omitempty"`
	Validation      *schema.ValidationResult `json:"validation,omitempty"`
	Explanation     string                   `json:"explanation,omitempty"`
	Duration        time.Duration            `json:"duration"`
}

// Option configures a Translator.
type Option func(*Translator)

// WithSemantic enables the semantic path with a shared analyzer.
func WithSemantic(a *semantic.Analyzer) Option {
	return func(t *Translator) { t.semantic = a }
}

// WithCatalog sets the pattern catalog used by static analysis.
func WithCatalog(c *catalog.Catalog) Option {
	return func(t *Translator) { t.catalog = c }
}

// WithStore persists every translation and its phase events.
func WithStore(s store.Store) Option {
	return func(t *Translator) { t.store = s }
}

// WithHub publishes phase events of every translation to hub.
func WithHub(hub streaming.Hub) Option {
	return func(t *Translator) { t.hub = hub }
}

// WithValidator sets the flow validator.
func WithValidator(v *validation.FlowValidator) Option {
	return func(t *Translator) { t.validator = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) { t.logger = l }
}

// WithConfig sets the default per-translation settings.
func WithConfig(cfg Config) Option {
	return func(t *Translator) { t.cfg = cfg }
}

// Translator turns scripts into flows. Static analyzers and assemblers are
// created per call, so a Translator is safe for concurrent use as long as
// the semantic analyzer and store are.
type Translator struct {
	cfg       Config
	semantic  *semantic.Analyzer
	catalog   *catalog.Catalog
	store     store.Store
	hub       streaming.Hub
	validator *validation.FlowValidator
	logger    *slog.Logger
}

// New creates a Translator.
func New(opts ...Option) (*Translator, error) {
	t := &Translator{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.catalog == nil {
		t.catalog = catalog.Default()
	}
	if t.validator == nil {
		v, err := validation.NewFlowValidator()
		if err != nil {
			return nil, err
		}
		t.validator = v
	}
	return t, nil
}

// Config returns the default settings.
func (t *Translator) Config() Config { return t.cfg }

// Translate runs the pipeline with the translator's default settings.
func (t *Translator) Translate(ctx context.Context, script Script) (*Result, error) {
	return t.TranslateWith(ctx, script, t.cfg)
}

// TranslateWith runs the pipeline with explicit settings.
func (t *Translator) TranslateWith(ctx context.Context, script Script, cfg Config) (*Result, error) {
	start := time.Now()
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	id := script.ID
	if id == "" {
		id = uuid.NewString()
	}
	res := &Result{ID: id, Script: script.Name, Mode: cfg.Mode}

	ctx = logging.WithScript(logging.WithFlowID(ctx, res.ID), script.Name)
	logger := logging.LogWith(ctx, t.logger)
	h := t.newHistory(ctx, res, script, cfg.Mode)

	err := t.run(ctx, script, cfg, res, h)
	res.Duration = time.Since(start)
	h.finish(ctx, res, err)
	if err != nil {
		logger.Warn("translation failed", slog.String("code", schema.ErrorCode(err)), slog.String("error", err.Error()))
		return nil, err
	}
	logger.Info("translation complete",
		slog.String("mode", string(res.Mode)),
		slog.Int("datasets", len(res.Flow.Datasets)),
		slog.Int("recipes", len(res.Flow.Recipes)),
		slog.Duration("elapsed", res.Duration),
	)
	return res, nil
}

func (t *Translator) run(ctx context.Context, script Script, cfg Config, res *Result, h *history) error {
	opts := []assembler.Option{
		assembler.WithFlowName(flowName(script.Name)),
		assembler.WithNaming(cfg.Prefix, cfg.Suffix),
		assembler.WithLogger(t.logger),
	}
	if cfg.Strict {
		opts = append(opts, assembler.WithStrict())
	}

	flow, err := t.analyze(ctx, script, cfg.Mode, opts, res, h)
	if err != nil {
		return err
	}
	flow.ID = res.ID
	res.Flow = flow

	if cfg.Optimize {
		octx := logging.WithPhase(ctx, logging.PhaseOptimize)
		oopts := []optimizer.Option{optimizer.WithLogger(logging.LogWith(octx, t.logger))}
		if !cfg.Recommend {
			oopts = append(oopts, optimizer.WithoutRecommendations())
		}
		notes := optimizer.New(oopts...).Optimize(flow)
		h.phase(octx, logging.PhaseOptimize, map[string]any{"notes": len(notes), "recipes": len(flow.Recipes)})
	}

	if cfg.Cron != "" {
		if err := scenario.Attach(flow, cfg.ScenarioName, cfg.Cron); err != nil {
			return err
		}
	}

	if !cfg.SkipValidation {
		vctx := logging.WithPhase(ctx, logging.PhaseValidate)
		vr := t.validator.Validate(flow)
		res.Validation = vr
		h.phase(vctx, logging.PhaseValidate, map[string]any{"errors": len(vr.Errors), "warnings": len(vr.Warnings)})
		if err := vr.ToError(); err != nil {
			return err
		}
	}

	if cfg.Explain {
		t.explain(ctx, script, res)
	}
	return nil
}

// explain fills res.Explanation. A missing or failing provider leaves a
// warning on the flow instead of failing the translation.
func (t *Translator) explain(ctx context.Context, script Script, res *Result) {
	if t.semantic == nil {
		res.Flow.AddNote(schema.Warning(schema.NoteExplainUnavailable, "",
			"no language model is configured, so no explanation was produced"))
		return
	}
	text, err := t.semantic.Explain(ctx, script.Source)
	if err != nil {
		logging.LogWith(ctx, t.logger).Warn("explanation failed", slog.String("error", err.Error()))
		res.Flow.AddNote(schema.Warning(schema.NoteExplainUnavailable, "",
			fmt.Sprintf("explanation failed: %s", errMessage(err))))
		return
	}
	res.Explanation = strings.TrimSpace(text)
}

// analyze produces the assembled flow for the requested mode.
func (t *Translator) analyze(ctx context.Context, script Script, mode Mode, opts []assembler.Option, res *Result, h *history) (*schema.Flow, error) {
	switch mode {
	case ModeStatic:
		return t.static(ctx, script, opts, res, h)
	case ModeSemantic:
		if t.semantic == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "semantic mode needs a configured language model")
		}
		return t.semanticPath(ctx, script, opts, res, h)
	case ModeAuto:
		if t.semantic == nil {
			res.Mode = ModeStatic
			return t.static(ctx, script, opts, res, h)
		}
		flow, perr := t.semanticPath(ctx, script, opts, res, h)
		if perr == nil || !schema.HasCode(perr, schema.ErrCodeProvider) {
			return flow, perr
		}
		logging.LogWith(ctx, t.logger).Warn("language model unavailable, falling back to static analysis",
			slog.String("error", perr.Error()))
		h.fallback(ctx, perr)
		res.Mode = ModeStatic
		res.FellBack = true
		res.Analysis = nil
		flow, err := t.static(ctx, script, opts, res, h)
		if err != nil {
			return nil, err
		}
		flow.AddNote(schema.Warning(schema.NoteProviderFallback, "",
			"semantic analysis failed, flow built by static analysis: "+errMessage(perr)))
		return flow, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown mode %q", mode)
	}
}

func errMessage(err error) string {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

func (t *Translator) static(ctx context.Context, script Script, opts []assembler.Option, res *Result, h *history) (*schema.Flow, error) {
	actx := logging.WithPhase(ctx, logging.PhaseAnalyze)
	a := static.New(static.WithCatalog(t.catalog), static.WithLogger(logging.LogWith(actx, t.logger)))
	ts, err := a.Analyze(actx, script.Source)
	if err != nil {
		return nil, err
	}
	res.Transformations = ts
	h.phase(actx, logging.PhaseAnalyze, map[string]any{"mode": ModeStatic, "transformations": len(ts)})

	bctx := logging.WithPhase(ctx, logging.PhaseAssemble)
	flow, err := assembler.NewStatic(opts...).Assemble(ts)
	if err != nil {
		return nil, err
	}
	for _, n := range a.Notes() {
		flow.AddNote(n)
	}
	h.phase(bctx, logging.PhaseAssemble, flowCounts(flow))
	return flow, nil
}

func (t *Translator) semanticPath(ctx context.Context, script Script, opts []assembler.Option, res *Result, h *history) (*schema.Flow, error) {
	actx := logging.WithPhase(ctx, logging.PhaseAnalyze)
	analysis, err := t.semantic.Analyze(actx, script.Source)
	if err != nil {
		return nil, err
	}
	res.Analysis = analysis
	h.phase(actx, logging.PhaseAnalyze, map[string]any{"mode": ModeSemantic, "steps": len(analysis.Steps)})

	bctx := logging.WithPhase(ctx, logging.PhaseAssemble)
	flow, err := assembler.NewSemantic(opts...).Assemble(analysis.Steps)
	if err != nil {
		return nil, err
	}
	for _, w := range analysis.Warnings {
		flow.AddNote(schema.Warning(schema.NoteSemanticWarning, "", w))
	}
	h.phase(bctx, logging.PhaseAssemble, flowCounts(flow))
	return flow, nil
}

func flowCounts(f *schema.Flow) map[string]any {
	return map[string]any{"datasets": len(f.Datasets), "recipes": len(f.Recipes), "notes": len(f.Notes)}
}

// flowName derives a flow name from a script path.
func flowName(script string) string {
	base := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "flow"
	}
	return assembler.SanitizeName(base)
}

// SourceHash identifies a script body independently of its name.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// String summarizes a result for logs and CLI output.
func (r *Result) String() string {
	if r == nil || r.Flow == nil {
		return "<no flow>"
	}
	return fmt.Sprintf("%s: %d datasets, %d recipes, %d notes (%s)",
		r.Script, len(r.Flow.Datasets), len(r.Flow.Recipes), len(r.Flow.Notes), r.Mode)
}
