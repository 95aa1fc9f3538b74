package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"watchlist-service/internal/alert"
	"watchlist-service/internal/api"
	"watchlist-service/internal/cache"
	"watchlist-service/internal/config"
	"watchlist-service/internal/digest"
	"watchlist-service/internal/fetcher"
	"watchlist-service/internal/finnhub"
	"watchlist-service/internal/limiter"
	"watchlist-service/internal/logging"
	"watchlist-service/internal/market"
	"watchlist-service/internal/news"
	"watchlist-service/internal/push/webhook"
	"watchlist-service/internal/scheduler"
	"watchlist-service/internal/store"
	"watchlist-service/internal/store/mongostore"
	"watchlist-service/internal/watchlist"
)

// backend is what both persistence implementations provide.
type backend interface {
	watchlist.Store
	alert.Store
	Close() error
}

func main() {
	configPath := flag.String("config", "configs/app.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("store error", zap.Error(err))
	}

	rc, closeCache, err := responseCache(cfg)
	if err != nil {
		logger.Fatal("response cache error", zap.Error(err))
	}

	f := fetcher.New(fetcher.Config{
		Timeout:     time.Duration(cfg.Finnhub.TimeoutMs) * time.Millisecond,
		MaxRetries:  cfg.Finnhub.MaxRetries,
		BaseBackoff: fetcher.DefaultBaseBackoff,
	}, rc, logger.Named("fetcher"))
	fh := finnhub.New(cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, f)
	if !fh.HasToken() {
		logger.Warn("FINNHUB_API_KEY is not set; market data endpoints will report a configuration error")
	}

	lim := limiter.New(cfg.Limiter.Concurrency)
	quotes := cache.NewTTL[string, finnhub.Quote](time.Duration(cfg.Cache.QuoteTTLSec) * time.Second)

	mktSvc := market.NewService(fh, lim, quotes, st, market.Options{
		Coalesce:       cfg.Market.Coalesce,
		PopularSymbols: cfg.Market.PopularSymbols,
	}, logger.Named("market"))
	newsAgg := news.NewAggregator(fh, lim, news.Options{
		MaxArticles:  cfg.News.MaxArticles,
		LookbackDays: cfg.News.LookbackDays,
		GeneralCap:   cfg.News.GeneralCap,
	}, logger.Named("news"))
	wlSvc := watchlist.NewService(st, mktSvc, newsAgg, logger.Named("watchlist"))
	alertSvc := alert.NewService(st, logger.Named("alert"))

	var notifier *webhook.Client
	if cfg.Push.Webhook.URL != "" {
		notifier = webhook.NewClient(cfg.Push.Webhook.URL, cfg.Push.Webhook.Secret,
			time.Duration(cfg.Push.Webhook.TimeoutMs)*time.Millisecond)
	} else {
		logger.Warn("push webhook not configured; alert triggers will be recorded as undelivered")
	}

	evaluator := alert.NewEvaluator(st, mktSvc, optionalNotifier(notifier),
		alert.NewTokenBucket(cfg.Alert.RateLimit.PerMinute, cfg.Alert.RateLimit.Burst),
		logger.Named("evaluator"))

	digestAgent := digest.New(digest.Config{
		Enabled:   cfg.Digest.Enabled,
		Model:     cfg.Digest.Model,
		APIKey:    cfg.Digest.APIKey,
		BaseURL:   cfg.Digest.BaseURL,
		TimeoutMs: cfg.Digest.TimeoutMs,
	}, logger.Named("digest"))

	schedCfg := scheduler.Config{AlertInterval: time.Duration(cfg.Alert.EvalIntervalSec) * time.Second}
	var digestRunner scheduler.DigestRunner
	if cfg.Digest.Enabled && notifier != nil {
		digestRunner = digest.NewRunner(digestAgent, wlSvc, notifier, logger.Named("digest"))
		schedCfg.DigestCron = cfg.Digest.Cron
	}
	sched, err := scheduler.New(evaluator, digestRunner, schedCfg, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("scheduler error", zap.Error(err))
	}
	sched.Start()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		sched.Stop()
		if err := st.Close(); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
		closeCache()
	})

	api.RegisterRoutes(h, api.Deps{
		Stocks:    mktSvc,
		News:      newsAgg,
		Watchlist: wlSvc,
		Alerts:    alertSvc,
		Notifier:  optionalNotifier(notifier),
		Status: func() map[string]any {
			return map[string]any{
				"store":   cfg.Store.Backend,
				"cache":   cfg.Cache.Response.Backend,
				"finnhub": fh.HasToken(),
				"digest":  digestAgent.Status(),
			}
		},
		Logger: logger.Named("api"),
	})

	logger.Info("server starting",
		zap.String("addr", addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("cache", cfg.Cache.Response.Backend),
		zap.Int("concurrency", lim.Limit()))
	h.Spin()
}

func openStore(cfg *config.Config) (backend, error) {
	switch cfg.Store.Backend {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mongostore.Open(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database)
	default:
		return store.Open(cfg.Store.Sqlite.Path)
	}
}

func responseCache(cfg *config.Config) (fetcher.ResponseCache, func(), error) {
	rcfg := cfg.Cache.Response
	if rcfg.Backend != "redis" {
		return fetcher.NewMemoryCache(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: rcfg.RedisAddr, DB: rcfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", rcfg.RedisAddr, err)
	}
	return fetcher.NewRedisCache(client, rcfg.KeyPrefix), func() { _ = client.Close() }, nil
}

// optionalNotifier keeps a nil *webhook.Client from becoming a non-nil
// interface value.
func optionalNotifier(c *webhook.Client) alert.Notifier {
	if c == nil {
		return nil
	}
	return c
}
