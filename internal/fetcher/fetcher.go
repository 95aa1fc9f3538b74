package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"watchlist-service/internal/errs"
)

const (
	DefaultMaxRetries  = 2
	DefaultBaseBackoff = time.Second
	DefaultTimeout     = 10 * time.Second
)

// ResponseCache stores raw upstream bodies for a caller-chosen lifetime.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

type Fetcher struct {
	client      *http.Client
	cache       ResponseCache
	maxRetries  int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

type requestOptions struct {
	cacheTTL   time.Duration
	maxRetries int
}

type Option func(*requestOptions)

// WithCacheTTL lets the response be served from, and stored into, the
// response cache for d. Without it the cache is bypassed.
func WithCacheTTL(d time.Duration) Option {
	return func(o *requestOptions) {
		o.cacheTTL = d
	}
}

func WithMaxRetries(n int) Option {
	return func(o *requestOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

func New(cfg Config, rc ResponseCache, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:      &http.Client{Timeout: cfg.Timeout},
		cache:       rc,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// FetchJSON GETs url and decodes the JSON body into out. A 429 is retried
// with exponential backoff (base, 2*base, ...) and becomes a rate-limit
// error once the retry budget is spent. Any other non-2xx fails at once.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, out any, opts ...Option) error {
	ro := requestOptions{maxRetries: f.maxRetries}
	for _, opt := range opts {
		opt(&ro)
	}

	useCache := ro.cacheTTL > 0 && f.cache != nil
	key := cacheKey(url)
	if useCache {
		body, ok, err := f.cache.Get(ctx, key)
		if err != nil {
			f.logger.Warn("response cache read failed", zap.Error(err))
		} else if ok {
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
			f.logger.Warn("cached response undecodable, refetching")
		}
	}

	for attempt := 0; attempt <= ro.maxRetries; attempt++ {
		body, status, err := f.get(ctx, url)
		if err != nil {
			return errs.Wrap(errs.KindTransient, "request upstream", err)
		}

		if status == http.StatusTooManyRequests {
			if attempt == ro.maxRetries {
				return errs.RateLimited("fetch upstream")
			}
			backoff := f.baseBackoff * time.Duration(1<<attempt)
			f.logger.Warn("upstream rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			if err := f.sleep(ctx, backoff); err != nil {
				return errs.Wrap(errs.KindTransient, "backoff interrupted", err)
			}
			continue
		}

		if status < 200 || status > 299 {
			return &errs.Error{
				Kind:   errs.KindTransient,
				Op:     "fetch failed",
				Status: status,
				Body:   strings.TrimSpace(string(body)),
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return errs.Wrap(errs.KindDataInvalid, "decode upstream", err)
		}
		if useCache {
			if err := f.cache.Set(ctx, key, body, ro.cacheTTL); err != nil {
				f.logger.Warn("response cache write failed", zap.Error(err))
			}
		}
		return nil
	}

	return errs.New(errs.KindUnknown, "fetch: retry loop exited unexpectedly")
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// cacheKey hashes the url so the query-string token never lands in a
// shared cache.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
