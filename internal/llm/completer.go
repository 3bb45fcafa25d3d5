package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/rendis/pyflow/pkg/schema"
)

// Completer adapts a Client to the map-returning interface semantic
// analysis consumes. Errors come back as FlowErrors: malformed payloads
// as RESPONSE_PARSE_ERROR, everything else as PROVIDER_ERROR.
type Completer struct {
	client Client
}

// NewCompleter wraps client.
func NewCompleter(client Client) *Completer {
	return &Completer{client: client}
}

// Name returns the underlying provider name.
func (c *Completer) Name() string { return c.client.Name() }

// Complete returns the model's text answer.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := c.client.Generate(ctx, prompt)
	if err != nil {
		return "", Classify(err)
	}
	return out, nil
}

// CompleteJSON returns the model's answer decoded as a JSON value. Any
// non-null document is accepted; callers reshape it.
func (c *Completer) CompleteJSON(ctx context.Context, prompt string) (any, error) {
	raw, err := c.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, Classify(err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeResponseParse, "model response is not valid JSON").WithCause(err)
	}
	if out == nil {
		return nil, schema.NewError(schema.ErrCodeResponseParse, "model response is null")
	}
	return out, nil
}

// Close releases the underlying client.
func (c *Completer) Close() error { return c.client.Close() }

// Classify converts a provider error into a FlowError. Transient failures
// (timeouts, 429 and 5xx statuses, network errors, empty answers) are
// marked retryable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, ErrInvalidJSON) {
		return schema.NewError(schema.ErrCodeResponseParse, err.Error()).WithCause(err)
	}
	out := schema.NewError(schema.ErrCodeProvider, err.Error()).WithCause(err)
	if transient(err) {
		out = out.AsTransient()
	}
	return out
}

func transient(err error) bool {
	// Cancellation means the caller gave up.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
