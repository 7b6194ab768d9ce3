// Package articles applies the snapshot-cache pattern to the published
// article list, with the database as the upstream instead of the quote
// provider.
package articles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"marketdesk/internal/metrics"
	"marketdesk/internal/snapcache"
)

const staleCacheNote = "Using stale cache"

// Article is one published article row.
type Article struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Excerpt      string    `json:"excerpt"`
	Content      string    `json:"content"`
	CategorySlug string    `json:"category_slug"`
	Status       string    `json:"status"`
	PublishedAt  time.Time `json:"published_at"`
}

// Source lists published articles, newest first.
type Source interface {
	Published(ctx context.Context, category string, limit int) ([]Article, error)
}

// List is the /api/articles response body.
type List struct {
	Articles  []Article `json:"articles"`
	Count     int       `json:"count"`
	Timestamp string    `json:"timestamp"`
	Cached    bool      `json:"cached"`
	Error     string    `json:"error,omitempty"`
}

type Service struct {
	source Source
	cache  *snapcache.Cache
	met    *metrics.Metrics
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

func New(source Source, cache *snapcache.Cache, met *metrics.Metrics, ttl time.Duration) *Service {
	return &Service{source: source, cache: cache, met: met, ttl: ttl, now: time.Now}
}

// cacheKey derives the snapshot key from the request parameters.
func cacheKey(category string, limit int) string {
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("articles:%s-%d", category, limit)
}

// List returns the article list for the category/limit pair, from cache
// when fresh, falling back to a stale entry when the database is down.
func (s *Service) List(ctx context.Context, category string, limit int) (List, error) {
	if limit <= 0 {
		limit = 10
	}
	key := cacheKey(category, limit)

	if e, ok := s.cache.Get(key); ok && e.Fresh(s.ttl, s.now()) {
		s.met.CacheHits.WithLabelValues("articles").Inc()
		l := e.Value.(List)
		l.Cached = true
		return l, nil
	}
	s.met.CacheMisses.WithLabelValues("articles").Inc()

	var assembled bool
	v, err, _ := s.group.Do(key, func() (any, error) {
		rows, err := s.source.Published(ctx, category, limit)
		if err != nil {
			return nil, fmt.Errorf("listing articles: %w", err)
		}
		if rows == nil {
			rows = []Article{}
		}
		l := List{
			Articles:  rows,
			Count:     len(rows),
			Timestamp: s.now().UTC().Format(time.RFC3339),
		}
		assembled = true
		s.cache.Put(key, l)
		return l, nil
	})
	if err != nil {
		if e, ok := s.cache.Get(key); ok {
			s.met.StaleServes.WithLabelValues("articles").Inc()
			slog.Warn("article refresh failed, serving stale list", "key", key, "error", err)
			l := e.Value.(List)
			l.Cached = true
			l.Error = staleCacheNote
			return l, nil
		}
		s.met.HardFailures.WithLabelValues("articles").Inc()
		return List{}, err
	}

	l := v.(List)
	l.Cached = !assembled
	return l, nil
}
