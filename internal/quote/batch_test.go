package quote

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// flakyFetcher fails the symbols in its fail set and delays the symbols
// in its slow set, so responses arrive out of input order.
type flakyFetcher struct {
	fail map[string]bool
	slow map[string]bool
}

func (f flakyFetcher) Quote(_ context.Context, symbol string) (*Quote, error) {
	if f.slow[symbol] {
		time.Sleep(20 * time.Millisecond)
	}
	if f.fail[symbol] {
		return nil, fmt.Errorf("upstream says no")
	}
	return &Quote{Symbol: symbol, Name: symbol, Price: "1.00"}, nil
}

func TestFetchMany_KeepsInputOrder(t *testing.T) {
	f := flakyFetcher{slow: map[string]bool{"AAPL": true}}
	got := FetchMany(context.Background(), f, []string{"AAPL", "MSFT", "NVDA"})
	if len(got) != 3 {
		t.Fatalf("want 3 quotes, got %d", len(got))
	}
	for i, want := range []string{"AAPL", "MSFT", "NVDA"} {
		if got[i].Symbol != want {
			t.Fatalf("quote %d = %s, want %s (order must follow input, not arrival)", i, got[i].Symbol, want)
		}
	}
}

func TestFetchMany_DropsFailuresSilently(t *testing.T) {
	f := flakyFetcher{fail: map[string]bool{"MSFT": true}}
	in := []string{"AAPL", "MSFT", "NVDA"}
	got := FetchMany(context.Background(), f, in)
	if len(got) != 2 {
		t.Fatalf("want 2 quotes, got %d: %+v", len(got), got)
	}
	if got[0].Symbol != "AAPL" || got[1].Symbol != "NVDA" {
		t.Fatalf("unexpected symbols: %+v", got)
	}
}

func TestFetchMany_TotalFailureIsEmptyNotError(t *testing.T) {
	f := flakyFetcher{fail: map[string]bool{"AAPL": true, "MSFT": true}}
	got := FetchMany(context.Background(), f, []string{"AAPL", "MSFT"})
	if got == nil {
		t.Fatal("want empty slice, got nil")
	}
	if len(got) != 0 {
		t.Fatalf("want 0 quotes, got %d", len(got))
	}
}

func TestFetchMany_EmptyInput(t *testing.T) {
	got := FetchMany(context.Background(), flakyFetcher{}, nil)
	if len(got) != 0 {
		t.Fatalf("want 0 quotes, got %d", len(got))
	}
}
