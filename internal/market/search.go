package market

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/finnhub"
	"watchlist-service/internal/limiter"
)

// SearchStocks looks up symbols matching query, or lists popular symbols
// when query is blank, and flags those already on userID's watchlist.
// Only rate-limit errors are returned; other failures yield an empty list.
func (s *Service) SearchStocks(ctx context.Context, query, userID string) ([]StockWithWatchlistStatus, error) {
	watched := s.watchedSet(ctx, userID)

	if !s.provider.HasToken() {
		s.logger.Error("stock search unavailable", zap.Error(errs.New(errs.KindConfigMissing, "FINNHUB API key is not configured")))
		return []StockWithWatchlistStatus{}, nil
	}

	var (
		results []finnhub.SearchResult
		err     error
	)
	if q := strings.TrimSpace(query); q == "" {
		results = s.popularResults(ctx)
	} else {
		results, err = s.searchResults(ctx, q)
		if err != nil {
			if errs.Is(err, errs.KindRateLimited) {
				return nil, err
			}
			s.logger.Error("stock search failed", zap.String("query", q), zap.Error(err))
			return []StockWithWatchlistStatus{}, nil
		}
	}

	out := make([]StockWithWatchlistStatus, 0, min(len(results), maxSearchResults))
	for _, r := range results {
		if len(out) == maxSearchResults {
			break
		}
		sym := strings.ToUpper(r.Symbol)
		name := r.Description
		if name == "" {
			name = sym
		}
		exchange := r.DisplaySymbol
		if exchange == "" {
			exchange = "US"
		}
		typ := r.Type
		if typ == "" {
			typ = "Stock"
		}
		_, inList := watched[sym]
		out = append(out, StockWithWatchlistStatus{
			Symbol:        sym,
			Name:          name,
			Exchange:      exchange,
			Type:          typ,
			IsInWatchlist: inList,
		})
	}
	return out, nil
}

func (s *Service) searchResults(ctx context.Context, q string) ([]finnhub.SearchResult, error) {
	resp, err := limiter.Run(ctx, s.limiter, func(ctx context.Context) (finnhub.SearchResponse, error) {
		return s.provider.Search(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// popularResults loads the profiles of the leading popular symbols. A
// profile that fails or has no name is left out. DisplaySymbol carries the
// profile's exchange.
func (s *Service) popularResults(ctx context.Context) []finnhub.SearchResult {
	top := s.popular
	if len(top) > popularProfileCount {
		top = top[:popularProfileCount]
	}

	profiles := make([]finnhub.Profile, len(top))
	var g errgroup.Group
	for i, sym := range top {
		g.Go(func() error {
			p, err := limiter.Run(ctx, s.limiter, func(ctx context.Context) (finnhub.Profile, error) {
				return s.provider.Profile(ctx, NormalizeSymbol(sym))
			})
			if err != nil {
				s.logger.Warn("popular profile fetch failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			profiles[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]finnhub.SearchResult, 0, len(top))
	for i, sym := range top {
		p := profiles[i]
		name := p.Name
		if name == "" {
			name = p.Ticker
		}
		if name == "" {
			continue
		}
		sym = NormalizeSymbol(sym)
		exchange := p.Exchange
		if exchange == "" {
			exchange = sym
		}
		out = append(out, finnhub.SearchResult{
			Symbol:        sym,
			Description:   name,
			DisplaySymbol: exchange,
			Type:          "Common Stock",
		})
	}
	return out
}

func (s *Service) watchedSet(ctx context.Context, userID string) map[string]struct{} {
	set := make(map[string]struct{})
	if s.watchlist == nil || userID == "" {
		return set
	}
	symbols, err := s.watchlist.WatchlistSymbols(ctx, userID)
	if err != nil {
		s.logger.Warn("watchlist lookup failed", zap.String("user_id", userID), zap.Error(err))
		return set
	}
	for _, sym := range symbols {
		set[NormalizeSymbol(sym)] = struct{}{}
	}
	return set
}
