// Package llm holds the language-model clients used by semantic analysis:
// a Gemini client on the official genai SDK, an OpenAI-compatible chat
// completions client, middlewares for rate limiting and logging, and a
// scripted fake for tests.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned when a model answers a JSON request with
// something that does not parse.
var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// ErrEmptyResponse is returned when a model returns no candidates.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// Client is a language-model provider.
type Client interface {
	Name() string
	// Generate returns the model's text answer.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateJSON asks for a JSON object and returns it verbatim.
	GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error)
	Close() error
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether the failure may succeed on retry.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// Middleware decorates a Client with a cross-cutting concern.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order:
// Wrap(inner, A, B) == A(B(inner)).
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// validJSON trims a code fence some models wrap JSON in and checks the
// payload parses.
func validJSON(text string) (json.RawMessage, error) {
	raw := json.RawMessage(stripFence(text))
	if !json.Valid(raw) {
		return nil, ErrInvalidJSON
	}
	return raw, nil
}
