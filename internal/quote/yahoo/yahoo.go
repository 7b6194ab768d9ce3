package yahoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"marketdesk/internal/quote"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// maxBody caps how much of a response we are willing to parse.
const maxBody = 1 << 20

// HTTPClient describes the HTTP client used to reach the chart API.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=yahoo.go HTTPClient
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client fetches single-instrument snapshots from the Yahoo Finance
// chart API. The endpoint is unauthenticated but rejects requests
// without a browser-like User-Agent; the injected HTTPClient is
// expected to carry one.
type Client struct {
	baseURL    string
	httpClient HTTPClient
}

// ClientOption is a configuration option for the chart API client.
type ClientOption func(*Client)

// WithBaseURL overrides the chart API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// NewClient creates a chart API client on top of hc.
func NewClient(hc HTTPClient, options ...ClientOption) *Client {
	c := &Client{baseURL: defaultBaseURL, httpClient: hc}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Quote fetches the current snapshot for one symbol. A single attempt,
// no retries; the request deadline comes from the underlying client.
// Any transport, status, or shape problem is returned as an error for
// the caller to drop.
func (c *Client) Quote(ctx context.Context, symbol string) (*quote.Quote, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	res, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, fmt.Errorf("GET %s -> %d: %s", u, res.StatusCode, string(b))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return parseChart(symbol, body)
}

// parseChart normalizes the nested chart/meta/indicators document into
// a Quote. A missing result, a missing price, or a zero previous close
// makes the whole quote invalid.
func parseChart(symbol string, body []byte) (*quote.Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: malformed JSON", symbol)
	}

	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("%s: no chart data", symbol)
	}

	meta := result.Get("meta")
	price := meta.Get("regularMarketPrice")
	prev := meta.Get("chartPreviousClose")
	if price.Type != gjson.Number || prev.Type != gjson.Number || prev.Float() == 0 {
		return nil, fmt.Errorf("%s: missing price or previous close", symbol)
	}

	name := meta.Get("longName").String()
	if name == "" {
		name = meta.Get("shortName").String()
	}
	if name == "" {
		name = symbol
	}

	change := price.Float() - prev.Float()
	q := &quote.Quote{
		Symbol:        symbol,
		Name:          name,
		Price:         quote.FormatPrice(price.Float()),
		Change:        quote.Round2(change),
		ChangePercent: quote.Round2(change / prev.Float() * 100),
	}

	bar := result.Get("indicators.quote.0")
	if high := bar.Get("high.0"); high.Type == gjson.Number {
		q.High = quote.FormatPrice(high.Float())
	}
	if low := bar.Get("low.0"); low.Type == gjson.Number {
		q.Low = quote.FormatPrice(low.Float())
	}
	q.Volume = quote.FormatVolume(bar.Get("volume.0").Int())

	return q, nil
}
