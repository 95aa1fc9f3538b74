package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"watchlist-service/internal/alert"
)

type countingAlerts struct{ n atomic.Int32 }

func (c *countingAlerts) Run(context.Context) (alert.RunResult, error) {
	c.n.Add(1)
	return alert.RunResult{Alerts: 1}, nil
}

type countingDigest struct {
	n   atomic.Int32
	err error
}

func (c *countingDigest) Run(context.Context) (int, error) {
	c.n.Add(1)
	return 0, c.err
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(&countingAlerts{}, &countingDigest{}, Config{AlertInterval: time.Minute, DigestCron: "0 12 * * *"}, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, s.cron.Len())

	s, err = New(&countingAlerts{}, nil, Config{DigestCron: "0 12 * * *"}, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, s.cron.Len())
	assert.Equal(t, defaultAlertInterval, s.cfg.AlertInterval)
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&countingAlerts{}, &countingDigest{}, Config{DigestCron: "not a cron"}, nil)
	assert.NotEqual(t, nil, err)
}

func TestStartRunsAlertsImmediately(t *testing.T) {
	alerts := &countingAlerts{}
	s, err := New(alerts, nil, Config{AlertInterval: time.Hour}, nil)
	assert.Equal(t, nil, err)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for alerts.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int32(1), alerts.n.Load())
}

func TestRunDigestLogsFailure(t *testing.T) {
	d := &countingDigest{err: errors.New("push down")}
	s, err := New(&countingAlerts{}, d, Config{DigestCron: "0 12 * * *"}, nil)
	assert.Equal(t, nil, err)
	s.runDigest()
	assert.Equal(t, int32(1), d.n.Load())
}
