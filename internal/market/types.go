package market

import (
	"context"

	"watchlist-service/internal/finnhub"
)

type StockDetails struct {
	Symbol             string  `json:"symbol"`
	Company            string  `json:"company"`
	CurrentPrice       float64 `json:"currentPrice"`
	ChangePercent      float64 `json:"changePercent"`
	PriceFormatted     string  `json:"priceFormatted"`
	ChangeFormatted    string  `json:"changeFormatted"`
	MarketCapFormatted string  `json:"marketCapFormatted"`
	PERatio            string  `json:"peRatio"`
}

type StockWithWatchlistStatus struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Exchange      string `json:"exchange"`
	Type          string `json:"type"`
	IsInWatchlist bool   `json:"isInWatchlist"`
}

// Provider is the upstream market-data API. *finnhub.Client implements it.
type Provider interface {
	HasToken() bool
	Quote(ctx context.Context, symbol string) (finnhub.Quote, error)
	Profile(ctx context.Context, symbol string) (finnhub.Profile, error)
	Metrics(ctx context.Context, symbol string) (finnhub.Metrics, error)
	Search(ctx context.Context, query string) (finnhub.SearchResponse, error)
}

// WatchlistLookup resolves the symbols a user is watching.
type WatchlistLookup interface {
	WatchlistSymbols(ctx context.Context, userID string) ([]string, error)
}
