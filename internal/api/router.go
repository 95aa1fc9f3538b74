package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"watchlist-service/internal/alert"
	"watchlist-service/internal/errs"
	"watchlist-service/internal/market"
	"watchlist-service/internal/news"
	"watchlist-service/internal/store"
	"watchlist-service/internal/watchlist"
)

const (
	userHeader         = "X-User-ID"
	defaultNewsArticle = 6
	maxNewsArticles    = 50
)

type StockService interface {
	GetStockDetails(ctx context.Context, symbol string) (*market.StockDetails, error)
	SearchStocks(ctx context.Context, query, userID string) ([]market.StockWithWatchlistStatus, error)
}

type NewsService interface {
	GetNews(ctx context.Context, symbols []string, maxArticles int) ([]news.Article, error)
}

type WatchlistService interface {
	WithData(ctx context.Context, userID string) ([]watchlist.Row, error)
	Add(ctx context.Context, userID, symbol, company string) error
	Remove(ctx context.Context, userID, symbol string) error
	News(ctx context.Context, userID string) []news.Article
}

type AlertService interface {
	List(ctx context.Context, userID string) ([]store.Alert, error)
	Create(ctx context.Context, userID string, req alert.CreateRequest) (*store.Alert, error)
	Update(ctx context.Context, userID, id string, u store.AlertUpdate) (*store.Alert, error)
	Delete(ctx context.Context, userID, id string) error
	Triggers(ctx context.Context, userID, id string, limit int) ([]store.AlertTrigger, error)
}

type Notifier interface {
	SendMarkdown(ctx context.Context, title, markdown string) error
}

// Deps are the services behind the HTTP surface. Notifier and Status may be
// nil.
type Deps struct {
	Stocks    StockService
	News      NewsService
	Watchlist WatchlistService
	Alerts    AlertService
	Notifier  Notifier
	Status    func() map[string]any
	Logger    *zap.Logger
}

type TestPushRequest struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

type addWatchlistRequest struct {
	Symbol  string `json:"symbol"`
	Company string `json:"company"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		resp := map[string]any{"ok": true}
		if d.Status != nil {
			for k, v := range d.Status() {
				resp[k] = v
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	v1 := h.Group("/api/v1")

	v1.GET("/stocks/:symbol", func(ctx context.Context, c *app.RequestContext) {
		details, err := d.Stocks.GetStockDetails(ctx, c.Param("symbol"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "stock": details})
	})

	v1.GET("/search", func(ctx context.Context, c *app.RequestContext) {
		results, err := d.Stocks.SearchStocks(ctx, c.Query("q"), userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": results})
	})

	v1.GET("/news", func(ctx context.Context, c *app.RequestContext) {
		maxArticles, err := parseMax(c.Query("max"))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		articles, err := d.News.GetNews(ctx, parseSymbols(c.Query("symbols")), maxArticles)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": articles})
	})

	wl := v1.Group("/watchlist", requireUser)

	wl.GET("", func(ctx context.Context, c *app.RequestContext) {
		rows, err := d.Watchlist.WithData(ctx, userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": rows})
	})

	wl.POST("", func(ctx context.Context, c *app.RequestContext) {
		var req addWatchlistRequest
		if err := c.BindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		if err := d.Watchlist.Add(ctx, userID(c), req.Symbol, req.Company); err != nil {
			writeError(c, err)
			return
		}
		logger.Info("watchlist add", zap.String("user_id", userID(c)), zap.String("symbol", market.NormalizeSymbol(req.Symbol)))
		c.JSON(http.StatusCreated, map[string]any{"ok": true, "symbol": market.NormalizeSymbol(req.Symbol)})
	})

	wl.DELETE("/:symbol", func(ctx context.Context, c *app.RequestContext) {
		if err := d.Watchlist.Remove(ctx, userID(c), c.Param("symbol")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	wl.GET("/news", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": d.Watchlist.News(ctx, userID(c))})
	})

	al := v1.Group("/alerts", requireUser)

	al.GET("", func(ctx context.Context, c *app.RequestContext) {
		items, err := d.Alerts.List(ctx, userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items})
	})

	al.POST("", func(ctx context.Context, c *app.RequestContext) {
		var req alert.CreateRequest
		if err := c.BindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		a, err := d.Alerts.Create(ctx, userID(c), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, map[string]any{"ok": true, "alert": a})
	})

	al.PATCH("/:id", func(ctx context.Context, c *app.RequestContext) {
		var req store.AlertUpdate
		if err := c.BindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		a, err := d.Alerts.Update(ctx, userID(c), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "alert": a})
	})

	al.DELETE("/:id", func(ctx context.Context, c *app.RequestContext) {
		if err := d.Alerts.Delete(ctx, userID(c), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	al.GET("/:id/triggers", func(ctx context.Context, c *app.RequestContext) {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		items, err := d.Alerts.Triggers(ctx, userID(c), c.Param("id"), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items})
	})

	v1.POST("/test/push", func(ctx context.Context, c *app.RequestContext) {
		if d.Notifier == nil {
			c.JSON(http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "push webhook not configured",
			})
			return
		}
		var req TestPushRequest
		if err := c.BindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		if err := d.Notifier.SendMarkdown(ctx, req.Title, req.Markdown); err != nil {
			logger.Warn("test push failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})
}

func requireUser(ctx context.Context, c *app.RequestContext) {
	if userID(c) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, map[string]any{
			"ok":    false,
			"error": "missing " + userHeader + " header",
		})
		return
	}
	c.Next(ctx)
}

func userID(c *app.RequestContext) string {
	return strings.TrimSpace(string(c.GetHeader(userHeader)))
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": msg})
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusFor(err), map[string]any{"ok": false, "error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, watchlist.ErrInvalidInput), errors.Is(err, alert.ErrInvalidInput),
		errors.Is(err, store.ErrWatchlistFull):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyInWatchlist), errors.Is(err, store.ErrDuplicateAlert):
		return http.StatusConflict
	}

	var e *errs.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindDataInvalid:
		return http.StatusNotFound
	case errs.KindConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func parseSymbols(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMax(raw string) (int, error) {
	if raw == "" {
		return defaultNewsArticle, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid max")
	}
	return min(v, maxNewsArticles), nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 200, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(v, 1000), nil
}
