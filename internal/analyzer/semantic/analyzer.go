// Package semantic derives data steps from a script by asking a language
// model to describe its transformations.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/internal/llm"
	"github.com/rendis/pyflow/internal/logging"
	"github.com/rendis/pyflow/internal/validation"
	"github.com/rendis/pyflow/pkg/schema"
)

// Completer is the provider surface the analyzer needs.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (any, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	defaultTimeout = 60 * time.Second
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout bounds every provider call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithRetries sets how many extra attempts a transient provider failure
// gets and the base delay of the exponential backoff between them.
func WithRetries(n int, base time.Duration) Option {
	return func(a *Analyzer) {
		a.retries = max(n, 0)
		a.backoff = base
	}
}

// WithCache keeps up to size results keyed by the hash of the source.
func WithCache(size int) Option {
	return func(a *Analyzer) { a.cacheSize = size }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithValidator shares a JSON Schema validator with other components.
func WithValidator(v *validation.JSONSchemaValidator) Option {
	return func(a *Analyzer) { a.validator = v }
}

// Analyzer turns source text into an AnalysisResult through a Completer.
// It is safe for concurrent use.
type Analyzer struct {
	completer Completer
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	cacheSize int
	logger    *slog.Logger
	validator *validation.JSONSchemaValidator
	jq        *expressions.GoJQEngine
	cache     *lru.Cache[string, []byte]
}

// New creates an Analyzer.
func New(completer Completer, opts ...Option) (*Analyzer, error) {
	if completer == nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "semantic analyzer needs a completer")
	}
	a := &Analyzer{
		completer: completer,
		timeout:   defaultTimeout,
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		logger:    slog.Default(),
		jq:        expressions.NewGoJQEngine(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		a.validator = v
	}
	if a.cacheSize > 0 {
		c, err := lru.New[string, []byte](a.cacheSize)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeInternal, "create analysis cache").WithCause(err)
		}
		a.cache = c
	}
	return a, nil
}

// Analyze asks the model for the data steps of source. A blank source
// yields an empty result without a provider call. Provider failures come
// back as PROVIDER_ERROR and unusable answers as RESPONSE_PARSE_ERROR.
func (a *Analyzer) Analyze(ctx context.Context, source string) (*schema.AnalysisResult, error) {
	if strings.TrimSpace(source) == "" {
		return &schema.AnalysisResult{Steps: []schema.DataStep{}}, nil
	}
	ctx = logging.WithPhase(ctx, logging.PhaseAnalyze)
	logger := logging.LogWith(ctx, a.logger)

	key := sourceKey(source)
	if a.cache != nil {
		if doc, ok := a.cache.Get(key); ok {
			logger.Debug("semantic analysis cache hit")
			return decode(doc)
		}
	}

	prompt := buildAnalysisPrompt(source)
	raw, err := retry(ctx, a, logger, func(ctx context.Context) (any, error) {
		return a.completer.CompleteJSON(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}

	doc, err := a.normalize(ctx, raw)
	if err != nil {
		return nil, err
	}
	result, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		a.cache.Add(key, doc)
	}
	logger.Info("semantic analysis complete", slog.Int("steps", len(result.Steps)))
	return result, nil
}

// Explain asks the model for a prose description of source.
func (a *Analyzer) Explain(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	logger := logging.LogWith(ctx, a.logger)
	prompt := buildExplainPrompt(source)
	return retry(ctx, a, logger, func(ctx context.Context) (string, error) {
		return a.completer.Complete(ctx, prompt)
	})
}

func sourceKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// retry runs call with a per-attempt timeout and retries failures that
// IsRetryable reports as transient, waiting base*2^attempt in between.
func retry[T any](ctx context.Context, a *Analyzer, logger *slog.Logger, call func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		out, err := attemptOnce(ctx, a.timeout, call)
		if err == nil {
			return out, nil
		}
		fe := asFlowError(err)
		if !fe.IsRetryable() || attempt >= a.retries || ctx.Err() != nil {
			return zero, fe
		}
		delay := backoffDelay(a.backoff, attempt)
		logger.Warn("provider call failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", fe.Message),
		)
		if err := waitForBackoff(ctx, delay); err != nil {
			return zero, llm.Classify(err)
		}
	}
}

func attemptOnce[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return call(ctx)
}

// asFlowError keeps FlowErrors from the completer and classifies the rest
// as provider failures.
func asFlowError(err error) *schema.FlowError {
	var fe *schema.FlowError
	if errors.As(llm.Classify(err), &fe) {
		return fe
	}
	return schema.NewError(schema.ErrCodeProvider, err.Error()).WithCause(err)
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << attempt
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// waitForBackoff sleeps for delay or returns early when ctx is done.
func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
