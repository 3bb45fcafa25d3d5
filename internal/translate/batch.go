package translate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a script with its translation outcome.
type BatchResult struct {
	Script Script
	Result *Result
	Err    error
}

// TranslateBatch translates scripts concurrently, at most limit at a time
// (limit <= 0 means unbounded). Every script gets its own analyzer and
// assembler; one failing script does not cancel the others. Results keep
// the input order.
func (t *Translator) TranslateBatch(ctx context.Context, scripts []Script, limit int) []BatchResult {
	out := make([]BatchResult, len(scripts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range scripts {
		g.Go(func() error {
			res, err := t.Translate(gctx, s)
			out[i] = BatchResult{Script: s, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed returns the batch entries that ended in an error.
func Failed(results []BatchResult) []BatchResult {
	var out []BatchResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
