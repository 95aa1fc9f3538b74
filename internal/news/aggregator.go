package news

import (
	"context"
	"sort"
	"strings"
	"time"

	sdk "github.com/Finnhub-Stock-API/finnhub-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/limiter"
)

const (
	DefaultMaxArticles  = 6
	DefaultLookbackDays = 5
	DefaultGeneralCap   = 20
)

// Source is the upstream news feed. *finnhub.Client implements it.
type Source interface {
	HasToken() bool
	CompanyNews(ctx context.Context, symbol, from, to string) ([]sdk.MarketNews, error)
	GeneralNews(ctx context.Context) ([]sdk.MarketNews, error)
}

type Options struct {
	MaxArticles  int
	LookbackDays int
	// GeneralCap bounds the deduplicated general feed before the final cut.
	GeneralCap int
}

type Aggregator struct {
	source  Source
	limiter *limiter.Limiter
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

func NewAggregator(source Source, lim *limiter.Limiter, opts Options, logger *zap.Logger) *Aggregator {
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = DefaultMaxArticles
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.GeneralCap <= 0 {
		opts.GeneralCap = DefaultGeneralCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{source: source, limiter: lim, logger: logger, opts: opts, now: time.Now}
}

// GetNews interleaves company news for symbols, one article per symbol per
// round, and returns the picks newest first. When no symbols are given or
// none yields an article, the general market feed is used instead.
// maxArticles <= 0 selects the configured default.
func (a *Aggregator) GetNews(ctx context.Context, symbols []string, maxArticles int) ([]Article, error) {
	if maxArticles <= 0 {
		maxArticles = a.opts.MaxArticles
	}
	if !a.source.HasToken() {
		err := errs.New(errs.KindConfigMissing, "FINNHUB API key is not configured")
		a.logger.Error("news unavailable", zap.Error(err))
		return nil, errs.Wrap(errs.KindConfigMissing, "failed to fetch news", err)
	}

	clean := cleanSymbols(symbols)
	if len(clean) > 0 {
		perSymbol := a.companyNews(ctx, clean)
		if picked := roundRobin(clean, perSymbol, maxArticles); len(picked) > 0 {
			sort.SliceStable(picked, func(i, j int) bool {
				return picked[i].Datetime > picked[j].Datetime
			})
			return picked, nil
		}
	}

	return a.generalNews(ctx, maxArticles)
}

// companyNews fetches each symbol's trailing window concurrently. A failed
// symbol contributes no articles.
func (a *Aggregator) companyNews(ctx context.Context, symbols []string) [][]raw {
	from, to := dateRange(a.now(), a.opts.LookbackDays)
	out := make([][]raw, len(symbols))

	var g errgroup.Group
	for i, sym := range symbols {
		g.Go(func() error {
			items, err := limiter.Run(ctx, a.limiter, func(ctx context.Context) ([]sdk.MarketNews, error) {
				return a.source.CompanyNews(ctx, sym, from, to)
			})
			if err != nil {
				a.logger.Warn("company news fetch failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			valid := make([]raw, 0, len(items))
			for _, n := range items {
				if r := fromSDK(n); r.valid() {
					valid = append(valid, r)
				}
			}
			out[i] = valid
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func roundRobin(symbols []string, perSymbol [][]raw, maxArticles int) []Article {
	picked := make([]Article, 0, maxArticles)
	for round := 0; round < maxArticles; round++ {
		for i, sym := range symbols {
			if len(perSymbol[i]) == 0 {
				continue
			}
			r := perSymbol[i][0]
			perSymbol[i] = perSymbol[i][1:]
			picked = append(picked, r.companyArticle(sym))
			if len(picked) >= maxArticles {
				return picked
			}
		}
	}
	return picked
}

func (a *Aggregator) generalNews(ctx context.Context, maxArticles int) ([]Article, error) {
	items, err := limiter.Run(ctx, a.limiter, func(ctx context.Context) ([]sdk.MarketNews, error) {
		return a.source.GeneralNews(ctx)
	})
	if err != nil {
		a.logger.Error("general news fetch failed", zap.Error(err))
		return nil, errs.Wrap(errs.KindOf(err), "failed to fetch news", err)
	}

	seen := make(map[string]struct{})
	unique := make([]raw, 0, a.opts.GeneralCap)
	for _, n := range items {
		r := fromSDK(n)
		if !r.valid() {
			continue
		}
		key := r.dedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
		if len(unique) >= a.opts.GeneralCap {
			break
		}
	}

	if len(unique) > maxArticles {
		unique = unique[:maxArticles]
	}
	out := make([]Article, 0, len(unique))
	for _, r := range unique {
		out = append(out, r.generalArticle())
	}
	return out, nil
}

func cleanSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dateRange returns the yyyy-mm-dd bounds of the window ending today.
func dateRange(now time.Time, days int) (from, to string) {
	const layout = "2006-01-02"
	return now.AddDate(0, 0, -days).Format(layout), now.Format(layout)
}
