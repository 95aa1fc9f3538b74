package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"watchlist-service/internal/alert"
)

const (
	defaultAlertInterval = 60 * time.Second
	digestTimeout        = 5 * time.Minute
)

type AlertRunner interface {
	Run(ctx context.Context) (alert.RunResult, error)
}

type DigestRunner interface {
	Run(ctx context.Context) (int, error)
}

type Config struct {
	AlertInterval time.Duration
	// DigestCron is a five-field cron expression; empty disables the digest.
	DigestCron string
}

// Scheduler runs the periodic alert evaluation and news digest jobs.
type Scheduler struct {
	cron   *gocron.Scheduler
	alerts AlertRunner
	digest DigestRunner
	cfg    Config
	logger *zap.Logger
}

// New builds a scheduler. digest may be nil.
func New(alerts AlertRunner, digest DigestRunner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AlertInterval < time.Second {
		cfg.AlertInterval = defaultAlertInterval
	}
	s := &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		alerts: alerts,
		digest: digest,
		cfg:    cfg,
		logger: logger,
	}
	s.cron.SingletonModeAll()

	if _, err := s.cron.Every(int(cfg.AlertInterval / time.Second)).Seconds().Do(s.runAlerts); err != nil {
		return nil, fmt.Errorf("schedule alert evaluation: %w", err)
	}
	if digest != nil && cfg.DigestCron != "" {
		if _, err := s.cron.Cron(cfg.DigestCron).Do(s.runDigest); err != nil {
			return nil, fmt.Errorf("schedule digest %q: %w", cfg.DigestCron, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info("scheduler started", zap.Int("jobs", s.cron.Len()))
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runAlerts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AlertInterval)
	defer cancel()
	start := time.Now()
	res, err := s.alerts.Run(ctx)
	fields := []zap.Field{
		zap.Int("alerts", res.Alerts),
		zap.Int("symbols", res.Symbols),
		zap.Int("fired", res.Fired),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("alert evaluation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("alert evaluation done", fields...)
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()
	sent, err := s.digest.Run(ctx)
	if err != nil {
		s.logger.Warn("digest run failed", zap.Int("sent", sent), zap.Error(err))
		return
	}
	s.logger.Info("digest run done", zap.Int("sent", sent))
}
