package quote

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Fetcher fetches the current quote for a single symbol.
type Fetcher interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// FetchMany fetches every symbol concurrently and returns the successes
// in input order. Per-symbol failures are logged and dropped; FetchMany
// itself never fails, an empty result is a valid outcome.
func FetchMany(ctx context.Context, f Fetcher, symbols []string) []Quote {
	results := make([]*Quote, len(symbols))
	var g errgroup.Group
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			q, err := f.Quote(ctx, sym)
			if err != nil {
				slog.Warn("quote fetch failed", "symbol", sym, "error", err)
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Quote, 0, len(symbols))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}
