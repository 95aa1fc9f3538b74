package market

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"watchlist-service/internal/cache"
	"watchlist-service/internal/errs"
	"watchlist-service/internal/finnhub"
	"watchlist-service/internal/limiter"
)

const (
	popularProfileCount = 10
	maxSearchResults    = 15
)

var DefaultPopularSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA", "NFLX", "ORCL", "CRM",
	"AMD", "INTC", "IBM", "ADBE", "PYPL", "UBER", "SHOP", "SPOT", "COIN", "PLTR",
}

type Options struct {
	// Coalesce shares one in-flight detail load between concurrent cold
	// callers of the same symbol. The shared load ignores caller
	// cancellation; each caller stops waiting on its own ctx, and joined
	// callers receive copies of the record and the same error value.
	Coalesce       bool
	PopularSymbols []string
}

type Service struct {
	provider  Provider
	limiter   *limiter.Limiter
	quotes    *cache.TTL[string, finnhub.Quote]
	watchlist WatchlistLookup
	logger    *zap.Logger

	coalesce bool
	popular  []string
	inflight singleflight.Group
}

func NewService(provider Provider, lim *limiter.Limiter, quotes *cache.TTL[string, finnhub.Quote], watchlist WatchlistLookup, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	popular := opts.PopularSymbols
	if len(popular) == 0 {
		popular = DefaultPopularSymbols
	}
	return &Service{
		provider:  provider,
		limiter:   lim,
		quotes:    quotes,
		watchlist: watchlist,
		logger:    logger,
		coalesce:  opts.Coalesce,
		popular:   popular,
	}
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetStockDetails composes quote, profile and metrics for symbol. A quote
// younger than the quote TTL is reused instead of refetched. Rate-limit
// errors are returned as is; anything else is wrapped with its kind kept.
func (s *Service) GetStockDetails(ctx context.Context, symbol string) (*StockDetails, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, errs.New(errs.KindDataInvalid, "symbol is empty")
	}
	if !s.provider.HasToken() {
		err := errs.New(errs.KindConfigMissing, "FINNHUB API key is not configured")
		s.logger.Error("stock details unavailable", zap.String("symbol", sym), zap.Error(err))
		return nil, err
	}

	if !s.coalesce {
		return s.loadDetails(ctx, sym)
	}
	ch := s.inflight.DoChan(sym, func() (any, error) {
		return s.loadDetails(context.WithoutCancel(ctx), sym)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		d := *res.Val.(*StockDetails)
		return &d, nil
	}
}

func (s *Service) loadDetails(ctx context.Context, sym string) (*StockDetails, error) {
	quote, cached := s.quotes.Get(sym)
	var (
		profile finnhub.Profile
		metrics finnhub.Metrics
	)

	g, gctx := errgroup.WithContext(ctx)
	if !cached {
		g.Go(func() error {
			q, err := limiter.Run(gctx, s.limiter, func(ctx context.Context) (finnhub.Quote, error) {
				return s.provider.Quote(ctx, sym)
			})
			quote = q
			return err
		})
	}
	g.Go(func() error {
		p, err := limiter.Run(gctx, s.limiter, func(ctx context.Context) (finnhub.Profile, error) {
			return s.provider.Profile(ctx, sym)
		})
		profile = p
		return err
	})
	g.Go(func() error {
		m, err := limiter.Run(gctx, s.limiter, func(ctx context.Context) (finnhub.Metrics, error) {
			return s.provider.Metrics(ctx, sym)
		})
		metrics = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.detailsError(sym, err)
	}

	if !cached {
		s.quotes.Put(sym, quote)
	}

	if quote.Current == 0 || profile.Name == "" {
		return nil, s.detailsError(sym, errs.New(errs.KindDataInvalid, "invalid stock data received from API"))
	}

	// profile2 reports market capitalisation in millions of USD.
	marketCap := profile.MarketCapitalization * 1e6

	return &StockDetails{
		Symbol:             sym,
		Company:            profile.Name,
		CurrentPrice:       quote.Current,
		ChangePercent:      quote.ChangePercent,
		PriceFormatted:     FormatPrice(quote.Current),
		ChangeFormatted:    FormatChangePercent(quote.ChangePercent),
		MarketCapFormatted: FormatMarketCap(marketCap),
		PERatio:            FormatPE(metrics.Metric.PENormalizedAnnual),
	}, nil
}

func (s *Service) detailsError(sym string, err error) error {
	if errs.Is(err, errs.KindRateLimited) {
		return err
	}
	s.logger.Error("fetch stock details failed", zap.String("symbol", sym), zap.Error(err))
	return errs.Wrap(errs.KindOf(err), "failed to fetch stock details", err)
}

// Quote returns the latest quote for symbol, served from the quote cache
// when fresh.
func (s *Service) Quote(ctx context.Context, symbol string) (finnhub.Quote, error) {
	sym := NormalizeSymbol(symbol)
	if q, ok := s.quotes.Get(sym); ok {
		return q, nil
	}
	q, err := limiter.Run(ctx, s.limiter, func(ctx context.Context) (finnhub.Quote, error) {
		return s.provider.Quote(ctx, sym)
	})
	if err != nil {
		return finnhub.Quote{}, err
	}
	s.quotes.Put(sym, q)
	return q, nil
}
