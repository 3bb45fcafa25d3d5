package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeResponse is one scripted answer of a FakeClient.
type FakeResponse struct {
	Text string
	Err  error
}

// FakeClient replays scripted responses in order, repeating the last one
// once the script runs out. It records every prompt it receives.
type FakeClient struct {
	mu        sync.Mutex
	responses []FakeResponse
	prompts   []string
}

// NewFakeClient creates a FakeClient with the given script.
func NewFakeClient(responses ...FakeResponse) *FakeClient {
	return &FakeClient{responses: responses}
}

// NewFakeJSONClient scripts a single JSON answer.
func NewFakeJSONClient(v any) *FakeClient {
	b, _ := json.Marshal(v)
	return NewFakeClient(FakeResponse{Text: string(b)})
}

func (f *FakeClient) Name() string { return "fake" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := f.next(prompt)
	return r.Text, r.Err
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	text, err := f.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return validJSON(text)
}

// Prompts returns the prompts received so far.
func (f *FakeClient) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Calls returns the number of requests served.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *FakeClient) next(prompt string) FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	switch {
	case len(f.responses) == 0:
		return FakeResponse{Text: "{}"}
	case i >= len(f.responses):
		return f.responses[len(f.responses)-1]
	default:
		return f.responses[i]
	}
}
