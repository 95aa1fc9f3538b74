package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/fetcher"
)

func TestClientBuildsRequests(t *testing.T) {
	var gotPath, gotToken, gotSymbol, gotMetric string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		gotSymbol = r.URL.Query().Get("symbol")
		gotMetric = r.URL.Query().Get("metric")
		switch r.URL.Path {
		case "/stock/metric":
			w.Write([]byte(`{"metric":{"peNormalizedAnnual":28.44}}`))
		case "/company-news":
			w.Write([]byte(`[{"id":7,"headline":"h","summary":"s","url":"u","source":"src","datetime":1700000000,"related":"AAPL"}]`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret", fetcher.New(fetcher.Config{}, nil, nil))

	m, err := c.Metrics(context.Background(), "AAPL")
	assert.Equal(t, nil, err)
	assert.Equal(t, "/stock/metric", gotPath)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "AAPL", gotSymbol)
	assert.Equal(t, "all", gotMetric)
	assert.Equal(t, 28.44, *m.Metric.PENormalizedAnnual)

	news, err := c.CompanyNews(context.Background(), "AAPL", "2026-10-10", "2026-10-15")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(news))
	assert.Equal(t, int64(7), *news[0].Id)
	assert.Equal(t, "AAPL", *news[0].Related)
}

func TestClientWithoutToken(t *testing.T) {
	c := New("", "  ", fetcher.New(fetcher.Config{}, nil, nil))
	assert.Equal(t, false, c.HasToken())

	_, err := c.Quote(context.Background(), "AAPL")
	assert.Equal(t, true, errs.Is(err, errs.KindConfigMissing))
}
