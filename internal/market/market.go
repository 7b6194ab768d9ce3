// Package market assembles the aggregate snapshots behind the
// /api/market and /api/market-overview endpoints: cache lookup, fanned
// out upstream fetches, index derivation, and stale fallback when a
// refresh fails.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"marketdesk/internal/metrics"
	"marketdesk/internal/quote"
	"marketdesk/internal/snapcache"
)

const (
	snapshotKey = "market"
	overviewKey = "market-overview"

	// staleCacheNote annotates responses served past their freshness
	// window because a refresh failed.
	staleCacheNote = "Using stale cache"
)

// IndexProxy approximates an index level from an ETF quote via a fixed
// multiplier.
type IndexProxy struct {
	Symbol     string
	Name       string
	Multiplier float64
}

// NamedSymbol pairs an upstream ticker with its served display name.
type NamedSymbol struct {
	Symbol string
	Name   string
}

type Config struct {
	SnapshotTTL     time.Duration
	SnapshotIndex   IndexProxy
	SnapshotGainers []string
	SnapshotLosers  []string

	OverviewTTL         time.Duration
	OverviewIndices     []IndexProxy
	OverviewCommodities []NamedSymbol
	OverviewCurrencies  []NamedSymbol
	OverviewGainers     []string
	OverviewLosers      []string
}

// Index is a derived index level.
type Index struct {
	Name          string  `json:"name"`
	Value         string  `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          string  `json:"high,omitempty"`
	Low           string  `json:"low,omitempty"`
	Volume        string  `json:"volume,omitempty"`
}

type Movers struct {
	Gainers []quote.Quote `json:"gainers"`
	Losers  []quote.Quote `json:"losers"`
}

// Snapshot is the /api/market response body.
type Snapshot struct {
	MarketData *Index `json:"marketData"`
	TopMovers  Movers `json:"topMovers"`
	Timestamp  string `json:"timestamp"`
	Cached     bool   `json:"cached"`
	Error      string `json:"error,omitempty"`
}

// Overview is the /api/market-overview response body.
type Overview struct {
	MajorIndices []Index       `json:"majorIndices"`
	Commodities  []quote.Quote `json:"commodities"`
	TopMovers    Movers        `json:"topMovers"`
	Currencies   []quote.Quote `json:"currencies"`
	Timestamp    string        `json:"timestamp"`
	Cached       bool          `json:"cached"`
	Error        string        `json:"error,omitempty"`
}

// Service is the aggregator for both market endpoints. The cache is
// shared process-wide state; the singleflight group keeps concurrent
// misses on the same key down to one upstream refresh.
type Service struct {
	fetcher quote.Fetcher
	cache   *snapcache.Cache
	met     *metrics.Metrics
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
}

func New(f quote.Fetcher, cache *snapcache.Cache, met *metrics.Metrics, cfg Config) *Service {
	return &Service{fetcher: f, cache: cache, met: met, cfg: cfg, now: time.Now}
}

// Snapshot returns the index-plus-movers snapshot, from cache when
// fresh. The returned error is terminal: there was nothing to serve,
// stale or fresh.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	v, cached, stale, err := s.run(ctx, snapshotKey, s.cfg.SnapshotTTL, func(ctx context.Context) (any, error) {
		return s.assembleSnapshot(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap := v.(Snapshot)
	snap.Cached = cached
	if stale {
		snap.Error = staleCacheNote
	}
	return snap, nil
}

// Overview returns the full market overview, from cache when fresh.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	v, cached, stale, err := s.run(ctx, overviewKey, s.cfg.OverviewTTL, func(ctx context.Context) (any, error) {
		return s.assembleOverview(ctx)
	})
	if err != nil {
		return Overview{}, err
	}
	ov := v.(Overview)
	ov.Cached = cached
	if stale {
		ov.Error = staleCacheNote
	}
	return ov, nil
}

// run is the per-request state machine: fresh hit, or refresh, or
// any-age fallback, or terminal failure. cached reports whether the
// caller got previously assembled (or shared in-flight) data; stale
// reports a fallback past the freshness window.
func (s *Service) run(ctx context.Context, key string, ttl time.Duration, assemble func(context.Context) (any, error)) (v any, cached, stale bool, err error) {
	if e, ok := s.cache.Get(key); ok && e.Fresh(ttl, s.now()) {
		s.met.CacheHits.WithLabelValues(key).Inc()
		return e.Value, true, false, nil
	}
	s.met.CacheMisses.WithLabelValues(key).Inc()

	// assembled stays false for callers deduplicated into another
	// caller's in-flight refresh; the closure only runs for the
	// initiator.
	var assembled bool
	v, err, _ = s.group.Do(key, func() (any, error) {
		v, err := assemble(ctx)
		if err != nil {
			return nil, err
		}
		assembled = true
		s.cache.Put(key, v)
		return v, nil
	})
	if err != nil {
		if e, ok := s.cache.Get(key); ok {
			s.met.StaleServes.WithLabelValues(key).Inc()
			slog.Warn("refresh failed, serving stale snapshot", "key", key, "error", err)
			return e.Value, true, true, nil
		}
		s.met.HardFailures.WithLabelValues(key).Inc()
		return nil, false, false, err
	}
	// Joiners did not pay for the fetch, so they see cached data.
	return v, !assembled, false, nil
}

func (s *Service) assembleSnapshot(ctx context.Context) (Snapshot, error) {
	var index, gainers, losers []quote.Quote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		index = quote.FetchMany(gctx, s.fetcher, []string{s.cfg.SnapshotIndex.Symbol})
		return nil
	})
	g.Go(func() error {
		gainers = quote.FetchMany(gctx, s.fetcher, s.cfg.SnapshotGainers)
		return nil
	})
	g.Go(func() error {
		losers = quote.FetchMany(gctx, s.fetcher, s.cfg.SnapshotLosers)
		return nil
	})
	_ = g.Wait()

	requested := 1 + len(s.cfg.SnapshotGainers) + len(s.cfg.SnapshotLosers)
	got := len(index) + len(gainers) + len(losers)
	s.met.SymbolsDropped.Add(float64(requested - got))
	if got == 0 {
		return Snapshot{}, fmt.Errorf("market snapshot: all %d upstream fetches failed", requested)
	}

	snap := Snapshot{
		TopMovers: Movers{Gainers: gainers, Losers: losers},
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	if len(index) > 0 {
		idx := deriveIndex(index[0], s.cfg.SnapshotIndex)
		snap.MarketData = &idx
	}
	return snap, nil
}

func (s *Service) assembleOverview(ctx context.Context) (Overview, error) {
	var indices, commodities, currencies, gainers, losers []quote.Quote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		indices = quote.FetchMany(gctx, s.fetcher, proxySymbols(s.cfg.OverviewIndices))
		return nil
	})
	g.Go(func() error {
		commodities = quote.FetchMany(gctx, s.fetcher, namedSymbols(s.cfg.OverviewCommodities))
		return nil
	})
	g.Go(func() error {
		currencies = quote.FetchMany(gctx, s.fetcher, namedSymbols(s.cfg.OverviewCurrencies))
		return nil
	})
	g.Go(func() error {
		gainers = quote.FetchMany(gctx, s.fetcher, s.cfg.OverviewGainers)
		return nil
	})
	g.Go(func() error {
		losers = quote.FetchMany(gctx, s.fetcher, s.cfg.OverviewLosers)
		return nil
	})
	_ = g.Wait()

	requested := len(s.cfg.OverviewIndices) + len(s.cfg.OverviewCommodities) +
		len(s.cfg.OverviewCurrencies) + len(s.cfg.OverviewGainers) + len(s.cfg.OverviewLosers)
	got := len(indices) + len(commodities) + len(currencies) + len(gainers) + len(losers)
	s.met.SymbolsDropped.Add(float64(requested - got))
	if got == 0 {
		return Overview{}, fmt.Errorf("market overview: all %d upstream fetches failed", requested)
	}

	return Overview{
		MajorIndices: deriveIndices(indices, s.cfg.OverviewIndices),
		Commodities:  withNames(commodities, s.cfg.OverviewCommodities),
		TopMovers:    Movers{Gainers: gainers, Losers: losers},
		Currencies:   withNames(currencies, s.cfg.OverviewCurrencies),
		Timestamp:    s.now().UTC().Format(time.RFC3339),
	}, nil
}

// deriveIndex scales an ETF proxy quote into an implied index level.
// The per-share change is already rounded to 2dp; it is scaled as-is,
// not re-derived from the scaled prices.
func deriveIndex(q quote.Quote, p IndexProxy) Index {
	idx := Index{
		Name:          p.Name,
		Value:         scale(q.Price, p.Multiplier),
		Change:        quote.Round2(q.Change * p.Multiplier),
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
	}
	if q.High != "" {
		idx.High = scale(q.High, p.Multiplier)
	}
	if q.Low != "" {
		idx.Low = scale(q.Low, p.Multiplier)
	}
	return idx
}

// deriveIndices keeps proxy-table order; proxies whose quote failed are
// dropped.
func deriveIndices(quotes []quote.Quote, proxies []IndexProxy) []Index {
	bySym := make(map[string]quote.Quote, len(quotes))
	for _, q := range quotes {
		bySym[q.Symbol] = q
	}
	out := make([]Index, 0, len(proxies))
	for _, p := range proxies {
		if q, ok := bySym[p.Symbol]; ok {
			out = append(out, deriveIndex(q, p))
		}
	}
	return out
}

// withNames keeps basket order and overrides each quote's display name
// with the configured one.
func withNames(quotes []quote.Quote, basket []NamedSymbol) []quote.Quote {
	bySym := make(map[string]quote.Quote, len(quotes))
	for _, q := range quotes {
		bySym[q.Symbol] = q
	}
	out := make([]quote.Quote, 0, len(basket))
	for _, n := range basket {
		if q, ok := bySym[n.Symbol]; ok {
			q.Name = n.Name
			out = append(out, q)
		}
	}
	return out
}

func scale(price string, mult float64) string {
	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return price
	}
	return quote.FormatPrice(f * mult)
}

func proxySymbols(proxies []IndexProxy) []string {
	out := make([]string, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, p.Symbol)
	}
	return out
}

func namedSymbols(basket []NamedSymbol) []string {
	out := make([]string, 0, len(basket))
	for _, n := range basket {
		out = append(out, n.Symbol)
	}
	return out
}
