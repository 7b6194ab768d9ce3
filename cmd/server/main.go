package main

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketdesk/internal/articles"
	"marketdesk/internal/config"
	"marketdesk/internal/httpx"
	"marketdesk/internal/market"
	"marketdesk/internal/metrics"
	"marketdesk/internal/quote/yahoo"
	"marketdesk/internal/snapcache"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	quotes := yahoo.NewClient(httpClient, yahoo.WithBaseURL(cfg.Yahoo.Endpoint))

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	// One process-wide cache shared by every aggregator; created here,
	// torn down only with the process.
	cache := snapcache.New()

	marketSvc := market.New(quotes, cache, met, marketConfig(cfg))

	var articleSvc *articles.Service
	if cfg.Articles.Enabled {
		src, err := articles.OpenPostgres(cfg.Articles.DatabaseURL)
		if err != nil {
			slog.Error("articles database unavailable, /api/articles disabled", "error", err)
		} else {
			defer src.Close()
			articleSvc = articles.New(src, cache, met, time.Duration(cfg.Articles.CacheTTLSec)*time.Second)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/market", handleMarket(marketSvc))
	mux.HandleFunc("/api/market-overview", handleOverview(marketSvc))
	if articleSvc != nil {
		mux.HandleFunc("/api/articles", handleArticles(articleSvc))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func marketConfig(cfg config.Config) market.Config {
	return market.Config{
		SnapshotTTL:         time.Duration(cfg.Market.CacheTTLSec) * time.Second,
		SnapshotIndex:       indexProxy(cfg.Market.Index),
		SnapshotGainers:     cfg.Market.Gainers,
		SnapshotLosers:      cfg.Market.Losers,
		OverviewTTL:         time.Duration(cfg.Overview.CacheTTLSec) * time.Second,
		OverviewIndices:     indexProxies(cfg.Overview.Indices),
		OverviewCommodities: namedSymbols(cfg.Overview.Commodities),
		OverviewCurrencies:  namedSymbols(cfg.Overview.Currencies),
		OverviewGainers:     cfg.Overview.Gainers,
		OverviewLosers:      cfg.Overview.Losers,
	}
}

func indexProxy(p config.IndexProxy) market.IndexProxy {
	return market.IndexProxy{Symbol: p.Symbol, Name: p.Name, Multiplier: p.Multiplier}
}

func indexProxies(in []config.IndexProxy) []market.IndexProxy {
	out := make([]market.IndexProxy, 0, len(in))
	for _, p := range in {
		out = append(out, indexProxy(p))
	}
	return out
}

func namedSymbols(in []config.NamedSymbol) []market.NamedSymbol {
	out := make([]market.NamedSymbol, 0, len(in))
	for _, n := range in {
		out = append(out, market.NamedSymbol{Symbol: n.Symbol, Name: n.Name})
	}
	return out
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panic", "path", r.URL.Path, "panic", rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
