package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Finnhub FinnhubConfig `yaml:"finnhub"`
	Limiter LimiterConfig `yaml:"limiter"`
	Cache   CacheConfig   `yaml:"cache"`
	Market  MarketConfig  `yaml:"market"`
	News    NewsConfig    `yaml:"news"`
	Store   StoreConfig   `yaml:"store"`
	Alert   AlertConfig   `yaml:"alert"`
	Push    PushConfig    `yaml:"push"`
	Digest  DigestConfig  `yaml:"digest"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type FinnhubConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

type LimiterConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type CacheConfig struct {
	QuoteTTLSec int                 `yaml:"quote_ttl_sec"`
	Response    ResponseCacheConfig `yaml:"response"`
}

type ResponseCacheConfig struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MarketConfig struct {
	Coalesce       bool     `yaml:"coalesce"`
	PopularSymbols []string `yaml:"popular_symbols"`
}

type NewsConfig struct {
	MaxArticles  int `yaml:"max_articles"`
	LookbackDays int `yaml:"lookback_days"`
	GeneralCap   int `yaml:"general_cap"`
}

type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Sqlite  SqliteConfig `yaml:"sqlite"`
	Mongo   MongoConfig  `yaml:"mongo"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type AlertConfig struct {
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	EvalIntervalSec int             `yaml:"eval_interval_sec"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

type PushConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	URL       string `yaml:"url"`
	Secret    string `yaml:"secret"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type DigestConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Cron      string `yaml:"cron"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Finnhub: FinnhubConfig{
			BaseURL:    "https://finnhub.io/api/v1",
			TimeoutMs:  10000,
			MaxRetries: 2,
		},
		Limiter: LimiterConfig{Concurrency: 8},
		Cache: CacheConfig{
			QuoteTTLSec: 30,
			Response: ResponseCacheConfig{
				Backend:   "memory",
				KeyPrefix: "watchlist:http:",
			},
		},
		Market: MarketConfig{Coalesce: true},
		News: NewsConfig{
			MaxArticles:  6,
			LookbackDays: 5,
			GeneralCap:   20,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Sqlite:  SqliteConfig{Path: "data/watchlist.db"},
			Mongo:   MongoConfig{Database: "watchlist"},
		},
		Alert: AlertConfig{
			RateLimit:       RateLimitConfig{PerMinute: 60, Burst: 10},
			EvalIntervalSec: 60,
		},
		Push: PushConfig{
			Webhook: WebhookConfig{TimeoutMs: 5000},
		},
		Digest: DigestConfig{
			Enabled:   false,
			Model:     "gpt-4.1-mini",
			TimeoutMs: 15000,
			Cron:      "0 12 * * *",
		},
	}
}

// Load reads .env (if present) into the process environment, decodes the
// YAML file at path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("FINNHUB_BASE_URL"); v != "" {
		cfg.Finnhub.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Response.RedisAddr = v
		cfg.Cache.Response.Backend = "redis"
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.Mongo.URI = v
		cfg.Store.Backend = "mongo"
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Push.Webhook.URL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Push.Webhook.Secret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Digest.APIKey = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.Cache.QuoteTTLSec <= 0 {
		return fmt.Errorf("cache.quote_ttl_sec must be positive, got %d", c.Cache.QuoteTTLSec)
	}
	switch c.Cache.Response.Backend {
	case "memory":
	case "redis":
		if c.Cache.Response.RedisAddr == "" {
			return fmt.Errorf("cache.response.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.response.backend: %q", c.Cache.Response.Backend)
	}
	switch c.Store.Backend {
	case "sqlite":
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store.backend: %q", c.Store.Backend)
	}
	return nil
}
