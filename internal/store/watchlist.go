package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func (s *Store) WatchlistSymbols(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if userID == "" {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM watchlist_items WHERE user_id = ? ORDER BY added_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query watchlist symbols: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan watchlist symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows watchlist symbol: %w", err)
	}
	return out, nil
}

// ListWatchlist returns userID's items, most recently added first.
func (s *Store) ListWatchlist(ctx context.Context, userID string) ([]WatchlistItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, company_name, added_at FROM watchlist_items
		 WHERE user_id = ? ORDER BY added_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	out := []WatchlistItem{}
	for rows.Next() {
		var (
			item    WatchlistItem
			addedAt int64
		)
		if err := rows.Scan(&item.Symbol, &item.CompanyName, &addedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		item.AddedAt = fromMillis(addedAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows watchlist item: %w", err)
	}
	return out, nil
}

func (s *Store) AddToWatchlist(ctx context.Context, userID, symbol, company string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add watchlist: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM watchlist_items WHERE user_id = ? AND symbol = ?`, userID, symbol).Scan(&exists)
	if err == nil {
		return ErrAlreadyInWatchlist
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check watchlist item: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watchlist_items WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return fmt.Errorf("count watchlist: %w", err)
	}
	if count >= MaxWatchlistItems {
		return ErrWatchlistFull
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO watchlist_items (user_id, symbol, company_name, added_at) VALUES (?, ?, ?, ?)`,
		userID, symbol, strings.TrimSpace(company), toMillis(s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyInWatchlist
		}
		return fmt.Errorf("insert watchlist item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add watchlist: %w", err)
	}
	return nil
}

// RemoveFromWatchlist is a no-op when the symbol is not watched.
func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, symbol string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist_items WHERE user_id = ? AND symbol = ?`,
		userID, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("delete watchlist item: %w", err)
	}
	return nil
}

func (s *Store) IsInWatchlist(ctx context.Context, userID, symbol string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("store not initialized")
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM watchlist_items WHERE user_id = ? AND symbol = ?`,
		userID, strings.ToUpper(strings.TrimSpace(symbol))).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check watchlist item: %w", err)
	}
	return true, nil
}

// WatchlistUsers lists every user with at least one watched symbol.
func (s *Store) WatchlistUsers(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM watchlist_items ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan watchlist user: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows watchlist user: %w", err)
	}
	return out, nil
}
