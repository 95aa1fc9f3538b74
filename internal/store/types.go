package store

import (
	"errors"
	"time"
)

// MaxWatchlistItems caps how many symbols one user may watch.
const MaxWatchlistItems = 120

var (
	ErrAlreadyInWatchlist = errors.New("stock already in watchlist")
	ErrWatchlistFull      = errors.New("watchlist cannot exceed 120 stocks")
	ErrDuplicateAlert     = errors.New("an identical alert already exists for this stock")
	ErrNotFound           = errors.New("not found")
)

type WatchlistItem struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"companyName"`
	AddedAt     time.Time `json:"addedAt"`
}

type Alert struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Symbol          string     `json:"symbol"`
	CompanyName     string     `json:"companyName"`
	Condition       string     `json:"condition"`
	TargetPrice     float64    `json:"threshold"`
	Frequency       string     `json:"frequency"`
	IsActive        bool       `json:"isActive"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int        `json:"triggerCount"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// AlertUpdate carries the mutable alert fields; nil leaves a field as is.
type AlertUpdate struct {
	Condition   *string  `json:"condition,omitempty"`
	TargetPrice *float64 `json:"threshold,omitempty"`
	Frequency   *string  `json:"frequency,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// AlertTrigger records one firing of an alert.
type AlertTrigger struct {
	AlertID     string    `json:"alertId"`
	UserID      string    `json:"userId"`
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	TriggeredAt time.Time `json:"triggeredAt"`
}
