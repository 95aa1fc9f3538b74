package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWatchlistAddListRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	assert.Equal(t, nil, s.AddToWatchlist(ctx, "u1", " aapl ", " Apple Inc "))
	assert.Equal(t, nil, s.AddToWatchlist(ctx, "u1", "msft", "Microsoft"))
	assert.Equal(t, nil, s.AddToWatchlist(ctx, "u2", "nvda", "NVIDIA"))
	assert.Equal(t, ErrAlreadyInWatchlist, s.AddToWatchlist(ctx, "u1", "AAPL", "Apple"))

	items, err := s.ListWatchlist(ctx, "u1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(items))
	assert.Equal(t, "MSFT", items[0].Symbol)
	assert.Equal(t, "AAPL", items[1].Symbol)
	assert.Equal(t, "Apple Inc", items[1].CompanyName)
	assert.Equal(t, base.Add(time.Minute), items[1].AddedAt)

	syms, err := s.WatchlistSymbols(ctx, "u1")
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"MSFT", "AAPL"}, syms)

	in, err := s.IsInWatchlist(ctx, "u1", "msft")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, in)

	assert.Equal(t, nil, s.RemoveFromWatchlist(ctx, "u1", "msft"))
	assert.Equal(t, nil, s.RemoveFromWatchlist(ctx, "u1", "TSLA"))
	in, err = s.IsInWatchlist(ctx, "u1", "MSFT")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, in)

	users, err := s.WatchlistUsers(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"u1", "u2"}, users)

	empty, err := s.WatchlistSymbols(ctx, "nobody")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(empty))
}

func TestWatchlistCap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxWatchlistItems; i++ {
		if err := s.AddToWatchlist(ctx, "u1", fmt.Sprintf("S%03d", i), "Co"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	assert.Equal(t, ErrWatchlistFull, s.AddToWatchlist(ctx, "u1", "EXTRA", "Co"))
	assert.Equal(t, nil, s.AddToWatchlist(ctx, "u2", "EXTRA", "Co"))
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := &Alert{UserID: "u1", Symbol: "aapl", CompanyName: "Apple", Condition: "above", TargetPrice: 200, Frequency: "once_per_day", IsActive: true}
	assert.Equal(t, nil, s.CreateAlert(ctx, a))
	assert.NotEqual(t, "", a.ID)
	assert.Equal(t, "AAPL", a.Symbol)

	dup := &Alert{UserID: "u1", Symbol: "AAPL", CompanyName: "Apple", Condition: "above", TargetPrice: 200, Frequency: "once", IsActive: true}
	assert.Equal(t, ErrDuplicateAlert, s.CreateAlert(ctx, dup))

	other := &Alert{UserID: "u1", Symbol: "AAPL", CompanyName: "Apple", Condition: "below", TargetPrice: 150, Frequency: "once", IsActive: true}
	assert.Equal(t, nil, s.CreateAlert(ctx, other))

	list, err := s.ListAlerts(ctx, "u1")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(list))

	price := 210.0
	updated, err := s.UpdateAlert(ctx, "u1", a.ID, AlertUpdate{TargetPrice: &price})
	assert.Equal(t, nil, err)
	assert.Equal(t, 210.0, updated.TargetPrice)

	_, err = s.UpdateAlert(ctx, "u2", a.ID, AlertUpdate{TargetPrice: &price})
	assert.Equal(t, ErrNotFound, err)

	firedAt := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	err = s.RecordTrigger(ctx, AlertTrigger{AlertID: other.ID, UserID: "u1", Symbol: "AAPL", Price: 149, Delivered: true, TriggeredAt: firedAt}, false)
	assert.Equal(t, nil, err)

	got, err := s.GetAlert(ctx, "u1", other.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, got.IsActive)
	assert.Equal(t, 1, got.TriggerCount)
	assert.Equal(t, firedAt, *got.LastTriggeredAt)

	active, err := s.ActiveAlerts(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(active))
	assert.Equal(t, a.ID, active[0].ID)

	triggers, err := s.ListTriggers(ctx, other.ID, 10)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(triggers))
	assert.Equal(t, true, triggers[0].Delivered)
	assert.Equal(t, 149.0, triggers[0].Price)

	assert.Equal(t, nil, s.DeleteAlert(ctx, "u1", a.ID))
	assert.Equal(t, ErrNotFound, s.DeleteAlert(ctx, "u1", a.ID))
	assert.Equal(t, ErrNotFound, s.DeleteAlert(ctx, "u1", "not-a-number"))
}

func TestNilStore(t *testing.T) {
	var s *Store
	assert.Equal(t, nil, s.Close())
	_, err := s.ListWatchlist(context.Background(), "u1")
	assert.NotEqual(t, nil, err)
}
