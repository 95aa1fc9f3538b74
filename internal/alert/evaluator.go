package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"watchlist-service/internal/errs"
	"watchlist-service/internal/finnhub"
	"watchlist-service/internal/market"
	"watchlist-service/internal/store"
)

// pushWait bounds how long a fired alert waits for a notification token.
const pushWait = 2 * time.Second

type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (finnhub.Quote, error)
}

// Notifier delivers a markdown message to the user's channel.
type Notifier interface {
	SendMarkdown(ctx context.Context, title, markdown string) error
}

// RunResult summarises one evaluation pass.
type RunResult struct {
	Alerts  int
	Symbols int
	Fired   int
	Skipped int
}

type Evaluator struct {
	store    Store
	quotes   QuoteSource
	notifier Notifier
	bucket   *TokenBucket
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator builds an evaluator. notifier may be nil, in which case
// triggers are recorded as undelivered.
func NewEvaluator(st Store, quotes QuoteSource, notifier Notifier, bucket *TokenBucket, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		store:    st,
		quotes:   quotes,
		notifier: notifier,
		bucket:   bucket,
		logger:   logger,
		now:      time.Now,
	}
}

// Run checks every active alert against the latest quote of its symbol.
// Each distinct symbol is quoted once. A rate-limited quote stops the run.
func (e *Evaluator) Run(ctx context.Context) (RunResult, error) {
	var res RunResult
	active, err := e.store.ActiveAlerts(ctx)
	if err != nil {
		return res, fmt.Errorf("load active alerts: %w", err)
	}
	res.Alerts = len(active)

	bySymbol := make(map[string][]store.Alert)
	var order []string
	for _, a := range active {
		if _, ok := bySymbol[a.Symbol]; !ok {
			order = append(order, a.Symbol)
		}
		bySymbol[a.Symbol] = append(bySymbol[a.Symbol], a)
	}
	res.Symbols = len(order)

	for _, sym := range order {
		q, err := e.quotes.Quote(ctx, sym)
		if err != nil {
			if errs.Is(err, errs.KindRateLimited) {
				e.logger.Warn("alert evaluation aborted: rate limited", zap.String("symbol", sym))
				return res, err
			}
			e.logger.Warn("alert quote failed", zap.String("symbol", sym), zap.Error(err))
			res.Skipped += len(bySymbol[sym])
			continue
		}
		if q.Current <= 0 {
			res.Skipped += len(bySymbol[sym])
			continue
		}
		for _, a := range bySymbol[sym] {
			if !e.due(a, q.Current) {
				continue
			}
			if err := e.fire(ctx, a, q); err != nil {
				e.logger.Error("record alert trigger failed", zap.String("alert_id", a.ID), zap.Error(err))
				continue
			}
			res.Fired++
		}
	}
	return res, nil
}

func (e *Evaluator) due(a store.Alert, price float64) bool {
	if !crossed(a.Condition, price, a.TargetPrice) {
		return false
	}
	if a.LastTriggeredAt == nil {
		return true
	}
	window, ok := frequencyWindow(a.Frequency)
	if !ok {
		return false
	}
	return e.now().Sub(*a.LastTriggeredAt) >= window
}

func (e *Evaluator) fire(ctx context.Context, a store.Alert, q finnhub.Quote) error {
	now := e.now().UTC()
	t := store.AlertTrigger{
		AlertID:     a.ID,
		UserID:      a.UserID,
		Symbol:      a.Symbol,
		Price:       q.Current,
		TriggeredAt: now,
	}
	if err := e.notify(ctx, a, q, now); err != nil {
		t.Error = err.Error()
		e.logger.Warn("alert notification failed", zap.String("alert_id", a.ID), zap.Error(err))
	} else {
		t.Delivered = true
	}
	e.logger.Info("alert fired",
		zap.String("alert_id", a.ID),
		zap.String("user_id", a.UserID),
		zap.String("symbol", a.Symbol),
		zap.Float64("price", q.Current),
		zap.Bool("delivered", t.Delivered))
	return e.store.RecordTrigger(ctx, t, a.Frequency != FrequencyOnce)
}

func (e *Evaluator) notify(ctx context.Context, a store.Alert, q finnhub.Quote, at time.Time) error {
	if e.notifier == nil {
		return fmt.Errorf("push notifier not configured")
	}
	if !e.bucket.Allow() && !e.bucket.WaitForToken(pushWait) {
		return fmt.Errorf("push throttled")
	}
	title, body := message(a, q, at)
	return e.notifier.SendMarkdown(ctx, title, body)
}

func message(a store.Alert, q finnhub.Quote, at time.Time) (string, string) {
	title := fmt.Sprintf("%s price alert", a.Symbol)
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "**%s** (%s) is %s, %s your target of %s.\n\n",
		a.CompanyName, a.Symbol, market.FormatPrice(q.Current), a.Condition, market.FormatPrice(a.TargetPrice))
	if change := market.FormatChangePercent(q.ChangePercent); change != "" {
		fmt.Fprintf(&b, "- Change: %s\n", change)
	}
	fmt.Fprintf(&b, "- Triggered: %s\n", at.Format("2006-01-02 15:04 MST"))
	return title, b.String()
}

func crossed(condition string, price, target float64) bool {
	switch condition {
	case ConditionAbove:
		return price >= target
	case ConditionBelow:
		return price <= target
	default:
		return false
	}
}

// frequencyWindow is the minimum gap between two firings of an alert.
func frequencyWindow(f string) (time.Duration, bool) {
	switch f {
	case FrequencyOnce:
		return 0, true
	case FrequencyOncePerMinute:
		return time.Minute, true
	case FrequencyOncePerHour:
		return time.Hour, true
	case FrequencyOncePerDay:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}
