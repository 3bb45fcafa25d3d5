package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit throttles requests to rps per second with the given burst.
// rps <= 0 disables the limiter.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		return &rateLimited{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next Client
	lim  *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, prompt)
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt)
}

// WithLogging logs request size, latency and errors. A nil logger uses
// slog.Default().
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := l.next.Generate(ctx, prompt)
	l.record(ctx, prompt, len(out), start, err)
	return out, err
}

func (l *logging) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	start := time.Now()
	out, err := l.next.GenerateJSON(ctx, prompt)
	l.record(ctx, prompt, len(out), start, err)
	return out, err
}

func (l *logging) record(ctx context.Context, prompt string, size int, start time.Time, err error) {
	attrs := []any{
		slog.String("provider", l.next.Name()),
		slog.Int("prompt_bytes", len(prompt)),
		slog.Int("response_bytes", size),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		l.log.WarnContext(ctx, "llm request failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.log.DebugContext(ctx, "llm request", attrs...)
}
