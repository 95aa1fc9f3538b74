package finnhub

import (
	"context"
	"net/url"
	"strings"
	"time"

	sdk "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/fetcher"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

// Upstream HTTP cache lifetimes.
const (
	ProfileCacheTTL = time.Hour
	MetricsCacheTTL = 30 * time.Minute
	SearchCacheTTL  = 30 * time.Minute
	NewsCacheTTL    = 300 * time.Second
)

type Quote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

type Profile struct {
	Name                 string  `json:"name"`
	Ticker               string  `json:"ticker"`
	Exchange             string  `json:"exchange"`
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Industry             string  `json:"finnhubIndustry"`
	Logo                 string  `json:"logo"`
	WebURL               string  `json:"weburl"`
	MarketCapitalization float64 `json:"marketCapitalization"`
}

type Metrics struct {
	Metric struct {
		PENormalizedAnnual *float64 `json:"peNormalizedAnnual"`
	} `json:"metric"`
}

type SearchResult struct {
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
}

type SearchResponse struct {
	Count  int            `json:"count"`
	Result []SearchResult `json:"result"`
}

// Client builds Finnhub REST URLs and decodes their payloads through the
// shared fetcher. News payloads use the SDK wire model.
type Client struct {
	baseURL string
	token   string
	f       *fetcher.Fetcher
}

func New(baseURL, token string, f *fetcher.Fetcher) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(token), f: f}
}

func (c *Client) HasToken() bool {
	return c != nil && c.token != ""
}

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	var q Quote
	err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q)
	return q, err
}

func (c *Client) Profile(ctx context.Context, symbol string) (Profile, error) {
	var p Profile
	err := c.get(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &p, fetcher.WithCacheTTL(ProfileCacheTTL))
	return p, err
}

func (c *Client) Metrics(ctx context.Context, symbol string) (Metrics, error) {
	var m Metrics
	err := c.get(ctx, "/stock/metric", url.Values{"symbol": {symbol}, "metric": {"all"}}, &m, fetcher.WithCacheTTL(MetricsCacheTTL))
	return m, err
}

func (c *Client) Search(ctx context.Context, query string) (SearchResponse, error) {
	var r SearchResponse
	err := c.get(ctx, "/search", url.Values{"q": {query}}, &r, fetcher.WithCacheTTL(SearchCacheTTL))
	return r, err
}

// CompanyNews returns a symbol's articles published between from and to
// (yyyy-mm-dd, inclusive).
func (c *Client) CompanyNews(ctx context.Context, symbol, from, to string) ([]sdk.MarketNews, error) {
	var out []sdk.MarketNews
	q := url.Values{"symbol": {symbol}, "from": {from}, "to": {to}}
	err := c.get(ctx, "/company-news", q, &out, fetcher.WithCacheTTL(NewsCacheTTL))
	return out, err
}

func (c *Client) GeneralNews(ctx context.Context) ([]sdk.MarketNews, error) {
	var out []sdk.MarketNews
	err := c.get(ctx, "/news", url.Values{"category": {"general"}}, &out, fetcher.WithCacheTTL(NewsCacheTTL))
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any, opts ...fetcher.Option) error {
	if !c.HasToken() {
		return errs.New(errs.KindConfigMissing, "FINNHUB API key is not configured")
	}
	q.Set("token", c.token)
	return c.f.FetchJSON(ctx, c.baseURL+path+"?"+q.Encode(), out, opts...)
}
