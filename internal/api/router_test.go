package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/go-playground/assert/v2"

	"watchlist-service/internal/alert"
	"watchlist-service/internal/errs"
	"watchlist-service/internal/market"
	"watchlist-service/internal/news"
	"watchlist-service/internal/store"
	"watchlist-service/internal/watchlist"
)

type fakeStocks struct {
	err        error
	searchUser string
}

func (f *fakeStocks) GetStockDetails(_ context.Context, symbol string) (*market.StockDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &market.StockDetails{Symbol: symbol, Company: "Apple Inc", CurrentPrice: 190.5}, nil
}

func (f *fakeStocks) SearchStocks(_ context.Context, query, userID string) ([]market.StockWithWatchlistStatus, error) {
	f.searchUser = userID
	return []market.StockWithWatchlistStatus{{Symbol: "AAPL", Name: query, IsInWatchlist: userID != ""}}, nil
}

type fakeNews struct {
	symbols []string
	max     int
}

func (f *fakeNews) GetNews(_ context.Context, symbols []string, maxArticles int) ([]news.Article, error) {
	f.symbols, f.max = symbols, maxArticles
	return []news.Article{{ID: 1, Headline: "h"}}, nil
}

type fakeWatchlist struct {
	added  []string
	addErr error
}

func (f *fakeWatchlist) WithData(context.Context, string) ([]watchlist.Row, error) {
	return []watchlist.Row{{Symbol: "AAPL", PriceFormatted: "N/A"}}, nil
}

func (f *fakeWatchlist) Add(_ context.Context, userID, symbol, _ string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, userID+":"+symbol)
	return nil
}

func (f *fakeWatchlist) Remove(context.Context, string, string) error { return nil }

func (f *fakeWatchlist) News(context.Context, string) []news.Article { return []news.Article{} }

type fakeAlerts struct{}

func (fakeAlerts) List(context.Context, string) ([]store.Alert, error) { return []store.Alert{}, nil }

func (fakeAlerts) Create(_ context.Context, userID string, req alert.CreateRequest) (*store.Alert, error) {
	if req.Threshold <= 0 {
		return nil, alert.ErrInvalidInput
	}
	return &store.Alert{ID: "1", UserID: userID, Symbol: req.Symbol, TargetPrice: req.Threshold}, nil
}

func (fakeAlerts) Update(_ context.Context, userID, id string, u store.AlertUpdate) (*store.Alert, error) {
	if id != "1" {
		return nil, store.ErrNotFound
	}
	a := &store.Alert{ID: id, UserID: userID, Symbol: "AAPL", TargetPrice: 150}
	if u.TargetPrice != nil {
		a.TargetPrice = *u.TargetPrice
	}
	return a, nil
}

func (fakeAlerts) Delete(context.Context, string, string) error { return store.ErrNotFound }

func (fakeAlerts) Triggers(context.Context, string, string, int) ([]store.AlertTrigger, error) {
	return []store.AlertTrigger{}, nil
}

type testEnv struct {
	h         *server.Hertz
	stocks    *fakeStocks
	news      *fakeNews
	watchlist *fakeWatchlist
}

func newEnv() *testEnv {
	env := &testEnv{
		h:         server.New(),
		stocks:    &fakeStocks{},
		news:      &fakeNews{},
		watchlist: &fakeWatchlist{},
	}
	RegisterRoutes(env.h, Deps{
		Stocks:    env.stocks,
		News:      env.news,
		Watchlist: env.watchlist,
		Alerts:    fakeAlerts{},
		Status:    func() map[string]any { return map[string]any{"store": "sqlite"} },
	})
	return env
}

func (e *testEnv) do(method, url, body, user string) (int, map[string]any) {
	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: bytes.NewBufferString(body), Len: len(body)}
	}
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if user != "" {
		headers = append(headers, ut.Header{Key: userHeader, Value: user})
	}
	w := ut.PerformRequest(e.h.Engine, method, url, b, headers...)
	resp := w.Result()
	var out map[string]any
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestHealthz(t *testing.T) {
	code, body := newEnv().do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "sqlite", body["store"])
}

func TestStockDetailsStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{errs.RateLimited("fetch upstream"), http.StatusTooManyRequests},
		{errs.New(errs.KindDataInvalid, "invalid stock data received from API"), http.StatusNotFound},
		{errs.Wrap(errs.KindConfigMissing, "failed to fetch stock details", errs.New(errs.KindConfigMissing, "FINNHUB API key is not configured")), http.StatusServiceUnavailable},
		{errs.Wrap(errs.KindTransient, "failed to fetch stock details", errors.New("status 500")), http.StatusBadGateway},
	}
	for _, tc := range cases {
		env := newEnv()
		env.stocks.err = tc.err
		code, body := env.do(http.MethodGet, "/api/v1/stocks/AAPL", "", "")
		assert.Equal(t, tc.want, code)
		assert.Equal(t, tc.err == nil, body["ok"])
	}
}

func TestSearchPassesOptionalUser(t *testing.T) {
	env := newEnv()
	code, body := env.do(http.MethodGet, "/api/v1/search?q=apple", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", env.stocks.searchUser)
	assert.Equal(t, 1, len(body["items"].([]any)))

	env.do(http.MethodGet, "/api/v1/search?q=apple", "", "u1")
	assert.Equal(t, "u1", env.stocks.searchUser)
}

func TestNewsParsesQuery(t *testing.T) {
	env := newEnv()
	code, _ := env.do(http.MethodGet, "/api/v1/news?symbols=aapl,%20msft,,&max=3", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"aapl", "msft"}, env.news.symbols)
	assert.Equal(t, 3, env.news.max)

	env.do(http.MethodGet, "/api/v1/news", "", "")
	assert.Equal(t, 0, len(env.news.symbols))
	assert.Equal(t, defaultNewsArticle, env.news.max)

	code, _ = env.do(http.MethodGet, "/api/v1/news?max=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWatchlistRequiresUser(t *testing.T) {
	env := newEnv()
	code, body := env.do(http.MethodGet, "/api/v1/watchlist", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["ok"])

	code, body = env.do(http.MethodGet, "/api/v1/watchlist", "", "u1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, len(body["items"].([]any)))
}

func TestWatchlistAdd(t *testing.T) {
	env := newEnv()
	code, body := env.do(http.MethodPost, "/api/v1/watchlist", `{"symbol":"aapl","company":"Apple"}`, "u1")
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, []string{"u1:aapl"}, env.watchlist.added)

	env.watchlist.addErr = store.ErrAlreadyInWatchlist
	code, _ = env.do(http.MethodPost, "/api/v1/watchlist", `{"symbol":"aapl","company":"Apple"}`, "u1")
	assert.Equal(t, http.StatusConflict, code)

	env.watchlist.addErr = watchlist.ErrInvalidInput
	code, _ = env.do(http.MethodPost, "/api/v1/watchlist", `{"symbol":"","company":"Apple"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlertRoutes(t *testing.T) {
	env := newEnv()
	code, body := env.do(http.MethodPost, "/api/v1/alerts", `{"symbol":"AAPL","company":"Apple","condition":"above","threshold":200}`, "u1")
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 200.0, body["alert"].(map[string]any)["threshold"])

	code, _ = env.do(http.MethodPost, "/api/v1/alerts", `{"symbol":"AAPL","threshold":0}`, "u1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(http.MethodPatch, "/api/v1/alerts/9", `{"isActive":false}`, "u1")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(http.MethodDelete, "/api/v1/alerts/9", "", "u1")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(http.MethodGet, "/api/v1/alerts/9/triggers?limit=x", "", "u1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlertPatchThreshold(t *testing.T) {
	env := newEnv()
	code, body := env.do(http.MethodPatch, "/api/v1/alerts/1", `{"threshold":200}`, "u1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 200.0, body["alert"].(map[string]any)["threshold"])

	code, body = env.do(http.MethodPatch, "/api/v1/alerts/1", `{"isActive":false}`, "u1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 150.0, body["alert"].(map[string]any)["threshold"])
}

func TestTestPushWithoutNotifier(t *testing.T) {
	code, _ := newEnv().do(http.MethodPost, "/api/v1/test/push", `{"title":"t","markdown":"m"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
