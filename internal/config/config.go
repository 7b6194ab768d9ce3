package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Yahoo struct {
	Endpoint string `json:"endpoint"`
}

// IndexProxy approximates an index level from an ETF quote. The
// multiplier is a domain constant, not a computed value; correct it
// here when the approximation drifts.
type IndexProxy struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// NamedSymbol maps an upstream ticker to the display name served to
// callers (e.g. "EURUSD=X" -> "EUR/USD").
type NamedSymbol struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type Market struct {
	CacheTTLSec int        `json:"cache_ttl_sec"`
	Index       IndexProxy `json:"index"`
	Gainers     []string   `json:"gainers"`
	Losers      []string   `json:"losers"`
}

type Overview struct {
	CacheTTLSec int           `json:"cache_ttl_sec"`
	Indices     []IndexProxy  `json:"indices"`
	Commodities []NamedSymbol `json:"commodities"`
	Currencies  []NamedSymbol `json:"currencies"`
	Gainers     []string      `json:"gainers"`
	Losers      []string      `json:"losers"`
}

type Articles struct {
	Enabled     bool   `json:"enabled"`
	CacheTTLSec int    `json:"cache_ttl_sec"`
	DatabaseURL string `json:"database_url"`
}

type Config struct {
	Server   Server   `json:"server"`
	Yahoo    Yahoo    `json:"yahoo"`
	Market   Market   `json:"market"`
	Overview Overview `json:"overview"`
	Articles Articles `json:"articles"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Yahoo:  Yahoo{Endpoint: "https://query1.finance.yahoo.com"},
		Market: Market{
			CacheTTLSec: 5 * 60,
			Index:       IndexProxy{Symbol: "SPY", Name: "S&P 500", Multiplier: 10},
			Gainers:     []string{"NVDA", "AAPL", "MSFT"},
			Losers:      []string{"TSLA", "META", "AMZN"},
		},
		Overview: Overview{
			CacheTTLSec: 10 * 60,
			Indices: []IndexProxy{
				{Symbol: "SPY", Name: "S&P 500", Multiplier: 10},
				{Symbol: "DIA", Name: "Dow Jones", Multiplier: 100},
				{Symbol: "QQQ", Name: "NASDAQ", Multiplier: 30},
				{Symbol: "IWM", Name: "Russell 2000", Multiplier: 10},
			},
			Commodities: []NamedSymbol{
				{Symbol: "USO", Name: "Crude Oil (USO ETF)"},
				{Symbol: "GLD", Name: "Gold (GLD ETF)"},
				{Symbol: "SLV", Name: "Silver (SLV ETF)"},
				{Symbol: "UNG", Name: "Natural Gas (UNG ETF)"},
			},
			Currencies: []NamedSymbol{
				{Symbol: "EURUSD=X", Name: "EUR/USD"},
				{Symbol: "GBPUSD=X", Name: "GBP/USD"},
				{Symbol: "JPY=X", Name: "USD/JPY"},
			},
			Gainers: []string{"NVDA", "AAPL", "MSFT", "GOOGL", "AMD"},
			Losers:  []string{"TSLA", "META", "AMZN", "NFLX", "BA"},
		},
		Articles: Articles{
			Enabled:     false,
			CacheTTLSec: 5 * 60,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override select
// fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("YAHOO_ENDPOINT"); v != "" {
		cfg.Yahoo.Endpoint = v
	}
	if v := os.Getenv("MARKET_CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Market.CacheTTLSec = x
		}
	}
	if v := os.Getenv("OVERVIEW_CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Overview.CacheTTLSec = x
		}
	}
	if v := os.Getenv("ARTICLES_CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Articles.CacheTTLSec = x
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Articles.DatabaseURL = v
		cfg.Articles.Enabled = true
	}
}
