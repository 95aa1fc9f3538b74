package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"watchlist-service/internal/market"
	"watchlist-service/internal/store"
)

const (
	ConditionAbove = "above"
	ConditionBelow = "below"

	FrequencyOnce          = "once"
	FrequencyOncePerMinute = "once_per_minute"
	FrequencyOncePerHour   = "once_per_hour"
	FrequencyOncePerDay    = "once_per_day"

	minTargetPrice = 0.01
)

var ErrInvalidInput = errors.New("invalid alert input")

// Store is the alert persistence both backends provide.
type Store interface {
	CreateAlert(ctx context.Context, a *store.Alert) error
	ListAlerts(ctx context.Context, userID string) ([]store.Alert, error)
	ActiveAlerts(ctx context.Context) ([]store.Alert, error)
	GetAlert(ctx context.Context, userID, id string) (*store.Alert, error)
	UpdateAlert(ctx context.Context, userID, id string, u store.AlertUpdate) (*store.Alert, error)
	DeleteAlert(ctx context.Context, userID, id string) error
	RecordTrigger(ctx context.Context, t store.AlertTrigger, keepActive bool) error
	ListTriggers(ctx context.Context, alertID string, limit int) ([]store.AlertTrigger, error)
}

// CreateRequest is the payload for a new price alert.
type CreateRequest struct {
	Symbol    string  `json:"symbol"`
	Company   string  `json:"company"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
	Frequency string  `json:"frequency"`
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(st Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*store.Alert, error) {
	a := &store.Alert{
		UserID:      userID,
		Symbol:      market.NormalizeSymbol(req.Symbol),
		CompanyName: strings.TrimSpace(req.Company),
		Condition:   strings.ToLower(strings.TrimSpace(req.Condition)),
		TargetPrice: req.Threshold,
		Frequency:   strings.TrimSpace(req.Frequency),
		IsActive:    true,
	}
	if a.Frequency == "" {
		a.Frequency = FrequencyOncePerDay
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.store.CreateAlert(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("alert created",
		zap.String("user_id", userID),
		zap.String("alert_id", a.ID),
		zap.String("symbol", a.Symbol),
		zap.String("condition", a.Condition),
		zap.Float64("threshold", a.TargetPrice))
	return a, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Alert, error) {
	return s.store.ListAlerts(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*store.Alert, error) {
	return s.store.GetAlert(ctx, userID, id)
}

func (s *Service) Update(ctx context.Context, userID, id string, u store.AlertUpdate) (*store.Alert, error) {
	if u.Condition != nil {
		c := strings.ToLower(strings.TrimSpace(*u.Condition))
		if !validCondition(c) {
			return nil, fmt.Errorf("%w: condition must be above or below", ErrInvalidInput)
		}
		u.Condition = &c
	}
	if u.TargetPrice != nil && *u.TargetPrice < minTargetPrice {
		return nil, fmt.Errorf("%w: threshold must be at least %.2f", ErrInvalidInput, minTargetPrice)
	}
	if u.Frequency != nil {
		if _, ok := frequencyWindow(*u.Frequency); !ok {
			return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, *u.Frequency)
		}
	}
	return s.store.UpdateAlert(ctx, userID, id, u)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteAlert(ctx, userID, id)
}

// Triggers returns the firing history of one of userID's alerts.
func (s *Service) Triggers(ctx context.Context, userID, id string, limit int) ([]store.AlertTrigger, error) {
	if _, err := s.store.GetAlert(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.ListTriggers(ctx, id, limit)
}

func validate(a *store.Alert) error {
	if a.Symbol == "" || len(a.Symbol) > 10 {
		return fmt.Errorf("%w: symbol must be 1-10 characters", ErrInvalidInput)
	}
	if a.CompanyName == "" || len(a.CompanyName) > 200 {
		return fmt.Errorf("%w: company name must be 1-200 characters", ErrInvalidInput)
	}
	if !validCondition(a.Condition) {
		return fmt.Errorf("%w: condition must be above or below", ErrInvalidInput)
	}
	if a.TargetPrice < minTargetPrice {
		return fmt.Errorf("%w: threshold must be at least %.2f", ErrInvalidInput, minTargetPrice)
	}
	if _, ok := frequencyWindow(a.Frequency); !ok {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, a.Frequency)
	}
	return nil
}

func validCondition(c string) bool {
	return c == ConditionAbove || c == ConditionBelow
}
