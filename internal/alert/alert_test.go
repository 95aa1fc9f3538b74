package alert

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/finnhub"
	"watchlist-service/internal/store"
)

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func newFakeQuotes(prices map[string]float64) *fakeQuotes {
	return &fakeQuotes{prices: prices, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeQuotes) Quote(_ context.Context, symbol string) (finnhub.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := f.errs[symbol]; err != nil {
		return finnhub.Quote{}, err
	}
	return finnhub.Quote{Current: f.prices[symbol], ChangePercent: 1.5}, nil
}

type fakeNotifier struct {
	titles []string
	bodies []string
	err    error
}

func (n *fakeNotifier) SendMarkdown(_ context.Context, title, markdown string) error {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, markdown)
	return n.err
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(openStore(t), nil)
	ctx := context.Background()

	bad := []CreateRequest{
		{Symbol: "", Company: "Apple", Condition: "above", Threshold: 10},
		{Symbol: "AAPL", Company: "", Condition: "above", Threshold: 10},
		{Symbol: "AAPL", Company: "Apple", Condition: "sideways", Threshold: 10},
		{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 0.001},
		{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 10, Frequency: "weekly"},
	}
	for _, req := range bad {
		_, err := svc.Create(ctx, "u1", req)
		assert.Equal(t, true, errors.Is(err, ErrInvalidInput))
	}

	a, err := svc.Create(ctx, "u1", CreateRequest{Symbol: "aapl", Company: "Apple", Condition: "Above", Threshold: 200})
	assert.Equal(t, nil, err)
	assert.Equal(t, "AAPL", a.Symbol)
	assert.Equal(t, ConditionAbove, a.Condition)
	assert.Equal(t, FrequencyOncePerDay, a.Frequency)
	assert.Equal(t, true, a.IsActive)

	_, err = svc.Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 200, Frequency: "once"})
	assert.Equal(t, store.ErrDuplicateAlert, err)
}

func TestUpdateValidation(t *testing.T) {
	svc := NewService(openStore(t), nil)
	ctx := context.Background()
	a, err := svc.Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 200})
	assert.Equal(t, nil, err)

	bogus := "weekly"
	_, err = svc.Update(ctx, "u1", a.ID, store.AlertUpdate{Frequency: &bogus})
	assert.Equal(t, true, errors.Is(err, ErrInvalidInput))

	cond := " BELOW "
	got, err := svc.Update(ctx, "u1", a.ID, store.AlertUpdate{Condition: &cond})
	assert.Equal(t, nil, err)
	assert.Equal(t, ConditionBelow, got.Condition)

	_, err = svc.Triggers(ctx, "u2", a.ID, 10)
	assert.Equal(t, store.ErrNotFound, err)
}

func newTestEvaluator(st Store, q QuoteSource, n Notifier, now time.Time) *Evaluator {
	e := NewEvaluator(st, q, n, NewTokenBucket(0, 0), nil)
	e.now = func() time.Time { return now }
	return e
}

func TestEvaluatorFiresOnCrossing(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	svc := NewService(st, nil)

	above, _ := svc.Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 200, Frequency: "once"})
	below, _ := svc.Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "below", Threshold: 150})
	_, _ = svc.Create(ctx, "u2", CreateRequest{Symbol: "MSFT", Company: "Microsoft", Condition: "above", Threshold: 500})

	quotes := newFakeQuotes(map[string]float64{"AAPL": 200, "MSFT": 400})
	n := &fakeNotifier{}
	now := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	res, err := newTestEvaluator(st, quotes, n, now).Run(ctx)

	assert.Equal(t, nil, err)
	assert.Equal(t, RunResult{Alerts: 3, Symbols: 2, Fired: 1}, res)
	assert.Equal(t, 1, quotes.calls["AAPL"])
	assert.Equal(t, []string{"AAPL price alert"}, n.titles)
	assert.Equal(t, true, strings.Contains(n.bodies[0], "is $200.00, above your target of $200.00"))

	got, _ := st.GetAlert(ctx, "u1", above.ID)
	assert.Equal(t, false, got.IsActive)
	assert.Equal(t, 1, got.TriggerCount)

	untouched, _ := st.GetAlert(ctx, "u1", below.ID)
	assert.Equal(t, true, untouched.IsActive)
	assert.Equal(t, 0, untouched.TriggerCount)

	triggers, _ := st.ListTriggers(ctx, above.ID, 10)
	assert.Equal(t, 1, len(triggers))
	assert.Equal(t, true, triggers[0].Delivered)
}

func TestEvaluatorRespectsFrequency(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	a, _ := NewService(st, nil).Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "below", Threshold: 150, Frequency: "once_per_hour"})

	quotes := newFakeQuotes(map[string]float64{"AAPL": 140})
	n := &fakeNotifier{}
	start := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

	res, _ := newTestEvaluator(st, quotes, n, start).Run(ctx)
	assert.Equal(t, 1, res.Fired)

	res, _ = newTestEvaluator(st, quotes, n, start.Add(30*time.Minute)).Run(ctx)
	assert.Equal(t, 0, res.Fired)

	res, _ = newTestEvaluator(st, quotes, n, start.Add(time.Hour)).Run(ctx)
	assert.Equal(t, 1, res.Fired)

	got, _ := st.GetAlert(ctx, "u1", a.ID)
	assert.Equal(t, true, got.IsActive)
	assert.Equal(t, 2, got.TriggerCount)
	assert.Equal(t, start.Add(time.Hour), *got.LastTriggeredAt)
}

func TestEvaluatorQuoteFailures(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	svc := NewService(st, nil)
	_, _ = svc.Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 1})
	_, _ = svc.Create(ctx, "u1", CreateRequest{Symbol: "MSFT", Company: "Microsoft", Condition: "above", Threshold: 1})

	quotes := newFakeQuotes(map[string]float64{"MSFT": 400})
	quotes.errs["AAPL"] = errs.New(errs.KindTransient, "status 500")
	res, err := newTestEvaluator(st, quotes, &fakeNotifier{}, time.Now()).Run(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Fired)

	limited := newFakeQuotes(map[string]float64{"MSFT": 400})
	limited.errs["AAPL"] = errs.RateLimited("quote")
	res, err = newTestEvaluator(st, limited, &fakeNotifier{}, time.Now().Add(48*time.Hour)).Run(ctx)
	assert.Equal(t, true, errs.Is(err, errs.KindRateLimited))
	assert.Equal(t, 0, res.Fired)
	assert.Equal(t, 0, limited.calls["MSFT"])
}

func TestEvaluatorRecordsUndeliveredTriggers(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	a, _ := NewService(st, nil).Create(ctx, "u1", CreateRequest{Symbol: "AAPL", Company: "Apple", Condition: "above", Threshold: 1})

	n := &fakeNotifier{err: errors.New("webhook down")}
	res, err := newTestEvaluator(st, newFakeQuotes(map[string]float64{"AAPL": 10}), n, time.Now()).Run(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, res.Fired)

	triggers, _ := st.ListTriggers(ctx, a.ID, 10)
	assert.Equal(t, false, triggers[0].Delivered)
	assert.Equal(t, "webhook down", triggers[0].Error)
}

func TestTokenBucket(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(60, 2)
	b.lastRefill = now
	b.now = func() time.Time { return now }
	var slept time.Duration
	b.sleep = func(d time.Duration) {
		slept += d
		now = now.Add(d)
	}

	assert.Equal(t, true, b.Allow())
	assert.Equal(t, true, b.Allow())
	assert.Equal(t, false, b.Allow())

	assert.Equal(t, false, b.WaitForToken(500*time.Millisecond))
	assert.Equal(t, true, b.WaitForToken(2*time.Second))
	assert.Equal(t, time.Second, slept)

	var disabled *TokenBucket
	assert.Equal(t, true, disabled.Allow())
	assert.Equal(t, true, NewTokenBucket(0, 0).WaitForToken(0))
}
