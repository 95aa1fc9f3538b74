package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/market"
	"watchlist-service/internal/news"
	"watchlist-service/internal/store"
)

const (
	notAvailable    = "N/A"
	maxNewsArticles = 6
)

var ErrInvalidInput = errors.New("invalid watchlist input")

// Store is the watchlist persistence both backends provide.
type Store interface {
	WatchlistSymbols(ctx context.Context, userID string) ([]string, error)
	ListWatchlist(ctx context.Context, userID string) ([]store.WatchlistItem, error)
	AddToWatchlist(ctx context.Context, userID, symbol, company string) error
	RemoveFromWatchlist(ctx context.Context, userID, symbol string) error
	IsInWatchlist(ctx context.Context, userID, symbol string) (bool, error)
	WatchlistUsers(ctx context.Context) ([]string, error)
}

type DetailsSource interface {
	GetStockDetails(ctx context.Context, symbol string) (*market.StockDetails, error)
}

type NewsSource interface {
	GetNews(ctx context.Context, symbols []string, maxArticles int) ([]news.Article, error)
}

// Row is a watchlist entry enriched with market data. Price fields are nil
// when market data is unavailable.
type Row struct {
	Symbol          string    `json:"symbol"`
	Company         string    `json:"company"`
	AddedAt         time.Time `json:"addedAt"`
	CurrentPrice    *float64  `json:"currentPrice"`
	ChangePercent   *float64  `json:"changePercent"`
	PriceFormatted  string    `json:"priceFormatted"`
	ChangeFormatted string    `json:"changeFormatted"`
	MarketCap       string    `json:"marketCap"`
	PERatio         *string   `json:"peRatio"`
}

type Service struct {
	store   Store
	details DetailsSource
	news    NewsSource
	logger  *zap.Logger
}

func NewService(st Store, details DetailsSource, newsSrc NewsSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, details: details, news: newsSrc, logger: logger}
}

func (s *Service) Symbols(ctx context.Context, userID string) ([]string, error) {
	return s.store.WatchlistSymbols(ctx, userID)
}

func (s *Service) Add(ctx context.Context, userID, symbol, company string) error {
	symbol = market.NormalizeSymbol(symbol)
	company = strings.TrimSpace(company)
	if symbol == "" || len(symbol) > 10 {
		return fmt.Errorf("%w: symbol must be 1-10 characters", ErrInvalidInput)
	}
	if company == "" || len(company) > 200 {
		return fmt.Errorf("%w: company name must be 1-200 characters", ErrInvalidInput)
	}
	return s.store.AddToWatchlist(ctx, userID, symbol, company)
}

func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	return s.store.RemoveFromWatchlist(ctx, userID, market.NormalizeSymbol(symbol))
}

func (s *Service) Contains(ctx context.Context, userID, symbol string) (bool, error) {
	return s.store.IsInWatchlist(ctx, userID, market.NormalizeSymbol(symbol))
}

// WithData lists userID's watchlist newest first, each row enriched with
// stock details fetched concurrently. A symbol whose details cannot be
// loaded gets placeholder values; only rate limiting fails the call.
func (s *Service) WithData(ctx context.Context, userID string) ([]Row, error) {
	items, err := s.store.ListWatchlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	rows := make([]Row, len(items))
	if len(items) == 0 {
		return rows, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			d, err := s.details.GetStockDetails(gctx, item.Symbol)
			if err != nil {
				if errs.Is(err, errs.KindRateLimited) {
					return err
				}
				s.logger.Warn("watchlist details unavailable", zap.String("symbol", item.Symbol), zap.Error(err))
				rows[i] = placeholderRow(item)
				return nil
			}
			rows[i] = detailRow(item, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func placeholderRow(item store.WatchlistItem) Row {
	return Row{
		Symbol:          item.Symbol,
		Company:         item.CompanyName,
		AddedAt:         item.AddedAt,
		PriceFormatted:  notAvailable,
		ChangeFormatted: notAvailable,
		MarketCap:       notAvailable,
	}
}

func detailRow(item store.WatchlistItem, d *market.StockDetails) Row {
	price := d.CurrentPrice
	change := d.ChangePercent
	pe := d.PERatio
	return Row{
		Symbol:          d.Symbol,
		Company:         d.Company,
		AddedAt:         item.AddedAt,
		CurrentPrice:    &price,
		ChangePercent:   &change,
		PriceFormatted:  d.PriceFormatted,
		ChangeFormatted: d.ChangeFormatted,
		MarketCap:       d.MarketCapFormatted,
		PERatio:         &pe,
	}
}

// News returns up to six articles for userID's watchlist, falling back to
// general market news when the watchlist is empty. Failures yield an
// empty list.
func (s *Service) News(ctx context.Context, userID string) []news.Article {
	symbols, err := s.store.WatchlistSymbols(ctx, userID)
	if err != nil {
		s.logger.Warn("watchlist lookup failed", zap.String("user_id", userID), zap.Error(err))
		symbols = nil
	}
	articles, err := s.news.GetNews(ctx, symbols, maxNewsArticles)
	if err != nil {
		s.logger.Error("watchlist news failed", zap.String("user_id", userID), zap.Error(err))
		return []news.Article{}
	}
	if len(articles) > maxNewsArticles {
		articles = articles[:maxNewsArticles]
	}
	return articles
}

func (s *Service) Users(ctx context.Context) ([]string, error) {
	return s.store.WatchlistUsers(ctx)
}
