package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

const alertColumns = `id, user_id, symbol, company_name, condition, target_price, frequency,
	is_active, last_triggered_at, trigger_count, created_at`

// CreateAlert inserts a and fills in its ID and CreatedAt.
func (s *Store) CreateAlert(ctx context.Context, a *Alert) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	now := s.now()
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	a.CompanyName = strings.TrimSpace(a.CompanyName)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (user_id, symbol, company_name, condition, target_price, frequency, is_active, trigger_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		a.UserID, a.Symbol, a.CompanyName, a.Condition, a.TargetPrice, a.Frequency, boolInt(a.IsActive), toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = strconv.FormatInt(id, 10)
	a.CreatedAt = fromMillis(toMillis(now))
	a.TriggerCount = 0
	return nil
}

// ListAlerts returns userID's alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, userID string) ([]Alert, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// ActiveAlerts returns every active alert across users, grouped by symbol.
func (s *Store) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE is_active = 1 ORDER BY symbol, id`)
}

func (s *Store) GetAlert(ctx context.Context, userID, id string) (*Alert, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	out, err := s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ? AND user_id = ?`, n, userID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (s *Store) UpdateAlert(ctx context.Context, userID, id string, u AlertUpdate) (*Alert, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	sets := []string{"updated_at = ?"}
	args := []any{toMillis(s.now())}
	if u.Condition != nil {
		sets = append(sets, "condition = ?")
		args = append(args, *u.Condition)
	}
	if u.TargetPrice != nil {
		sets = append(sets, "target_price = ?")
		args = append(args, *u.TargetPrice)
	}
	if u.Frequency != nil {
		sets = append(sets, "frequency = ?")
		args = append(args, *u.Frequency)
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*u.IsActive))
	}
	args = append(args, n, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAlert
		}
		return nil, fmt.Errorf("update alert: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetAlert(ctx, userID, id)
}

func (s *Store) DeleteAlert(ctx context.Context, userID, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ? AND user_id = ?`, n, userID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTrigger stores t and bumps the alert's trigger bookkeeping. The
// alert stays active only when keepActive is set.
func (s *Store) RecordTrigger(ctx context.Context, t AlertTrigger, keepActive bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	n, err := strconv.ParseInt(t.AlertID, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	if t.TriggeredAt.IsZero() {
		t.TriggeredAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record trigger: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alert_triggers (alert_id, user_id, symbol, price, delivered, error, triggered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.AlertID, t.UserID, t.Symbol, t.Price, boolInt(t.Delivered), t.Error, toMillis(t.TriggeredAt),
	); err != nil {
		return fmt.Errorf("insert alert trigger: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET last_triggered_at = ?, trigger_count = trigger_count + 1, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		toMillis(t.TriggeredAt), boolInt(keepActive), toMillis(s.now()), n,
	); err != nil {
		return fmt.Errorf("update alert trigger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record trigger: %w", err)
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context, alertID string, limit int) ([]AlertTrigger, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, user_id, symbol, price, delivered, COALESCE(error, ''), triggered_at
		 FROM alert_triggers WHERE alert_id = ? ORDER BY triggered_at DESC, id DESC LIMIT ?`,
		alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert triggers: %w", err)
	}
	defer rows.Close()

	var out []AlertTrigger
	for rows.Next() {
		var (
			t         AlertTrigger
			delivered int
			at        int64
		)
		if err := rows.Scan(&t.AlertID, &t.UserID, &t.Symbol, &t.Price, &delivered, &t.Error, &at); err != nil {
			return nil, fmt.Errorf("scan alert trigger: %w", err)
		}
		t.Delivered = delivered == 1
		t.TriggeredAt = fromMillis(at)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows alert trigger: %w", err)
	}
	return out, nil
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := []Alert{}
	for rows.Next() {
		var (
			a         Alert
			id        int64
			active    int
			lastTrig  sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&id, &a.UserID, &a.Symbol, &a.CompanyName, &a.Condition, &a.TargetPrice, &a.Frequency,
			&active, &lastTrig, &a.TriggerCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ID = strconv.FormatInt(id, 10)
		a.IsActive = active == 1
		if lastTrig.Valid {
			t := fromMillis(lastTrig.Int64)
			a.LastTriggeredAt = &t
		}
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows alert: %w", err)
	}
	return out, nil
}
