package articles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketdesk/internal/metrics"
	"marketdesk/internal/snapcache"
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	fail  bool
	rows  []Article
}

func (s *stubSource) Published(_ context.Context, category string, limit int) ([]Article, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return nil, errors.New("connection refused")
	}
	out := make([]Article, 0, limit)
	for _, a := range s.rows {
		if category != "" && a.CategorySlug != category {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func sampleRows() []Article {
	pub := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return []Article{
		{ID: "1", Title: "Rate Cuts Are a Trap", Slug: "rate-cuts-trap", CategorySlug: "the-contrarian", Status: "published", PublishedAt: pub},
		{ID: "2", Title: "Weekly Brief: Oil", Slug: "weekly-brief-oil", CategorySlug: "weekly-brief", Status: "published", PublishedAt: pub.Add(-24 * time.Hour)},
		{ID: "3", Title: "Daily Snapshot", Slug: "daily-snapshot", CategorySlug: "daily-snapshot", Status: "published", PublishedAt: pub.Add(-48 * time.Hour)},
	}
}

func newTestService(src Source) *Service {
	return New(src, snapcache.New(), metrics.New(prometheus.NewRegistry()), 5*time.Minute)
}

func TestList_FetchesAndCounts(t *testing.T) {
	src := &stubSource{rows: sampleRows()}
	s := newTestService(src)

	l, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Count != 3 || len(l.Articles) != 3 {
		t.Fatalf("unexpected list: count=%d len=%d", l.Count, len(l.Articles))
	}
	if l.Cached {
		t.Fatal("first fetch must not be marked cached")
	}
}

func TestList_CacheKeyPerCategoryAndLimit(t *testing.T) {
	src := &stubSource{rows: sampleRows()}
	s := newTestService(src)

	if _, err := s.List(context.Background(), "", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(context.Background(), "weekly-brief", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(context.Background(), "weekly-brief", 5); err != nil {
		t.Fatal(err)
	}
	if got := src.callCount(); got != 3 {
		t.Fatalf("distinct params must miss independently: %d calls", got)
	}

	l, err := s.List(context.Background(), "weekly-brief", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Cached {
		t.Fatal("repeat params within the window must hit the cache")
	}
	if src.callCount() != 3 {
		t.Fatal("cache hit still consulted the database")
	}
}

func TestList_CategoryFilterApplied(t *testing.T) {
	src := &stubSource{rows: sampleRows()}
	s := newTestService(src)

	l, err := s.List(context.Background(), "the-contrarian", 10)
	if err != nil {
		t.Fatal(err)
	}
	if l.Count != 1 || l.Articles[0].Slug != "rate-cuts-trap" {
		t.Fatalf("unexpected filtered list: %+v", l.Articles)
	}
}

func TestList_StaleFallbackWhenDatabaseDown(t *testing.T) {
	src := &stubSource{rows: sampleRows()}
	s := newTestService(src)

	fresh, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	src.fail = true

	stale, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("stale fallback must not error: %v", err)
	}
	if !stale.Cached || stale.Error != "Using stale cache" {
		t.Fatalf("cached=%v error=%q", stale.Cached, stale.Error)
	}
	if stale.Count != fresh.Count {
		t.Fatal("stale fallback must serve the previous list")
	}
}

func TestList_DatabaseDownWithoutCacheIsTerminal(t *testing.T) {
	src := &stubSource{fail: true}
	s := newTestService(src)

	if _, err := s.List(context.Background(), "", 10); err == nil {
		t.Fatal("want error when database is down and no cache exists")
	}
}

func TestList_EmptyResultIsValidAndCached(t *testing.T) {
	src := &stubSource{}
	s := newTestService(src)

	l, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if l.Articles == nil {
		t.Fatal("articles must encode as [], not null")
	}
	if l.Count != 0 {
		t.Fatalf("count = %d", l.Count)
	}

	l, err = s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Cached {
		t.Fatal("empty lists are cacheable snapshots too")
	}
}
