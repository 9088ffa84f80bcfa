package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RayBen445/ChatBot/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
// Increment is a single upsert statement, so concurrent increments are
// serialized by SQLite and never lost.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Counts returns every month counter for uid.
func (s *UsageStore) Counts(ctx context.Context, uid string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT month_key, count FROM message_counts WHERE uid = ?
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// Increment adds one to the month counter and returns the new value.
func (s *UsageStore) Increment(ctx context.Context, uid, monthKey string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO message_counts (uid, month_key, count) VALUES (?, ?, 1)
		ON CONFLICT(uid, month_key) DO UPDATE SET count = count + 1
		RETURNING count
	`, uid, monthKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment count: %w", err)
	}
	return n, nil
}

// Reserve increments the month counter if it is below limit. The upsert's
// WHERE clause makes the check and the increment one statement; when it
// does not match, no row is returned and the current value is read back.
func (s *UsageStore) Reserve(ctx context.Context, uid, monthKey string, limit int64) (int64, bool, error) {
	if limit > 0 {
		var n int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO message_counts (uid, month_key, count) VALUES (?, ?, 1)
			ON CONFLICT(uid, month_key) DO UPDATE SET count = count + 1
			WHERE count < ?
			RETURNING count
		`, uid, monthKey, limit).Scan(&n)
		if err == nil {
			return n, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("reserve count: %w", err)
		}
	}

	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM message_counts WHERE uid = ? AND month_key = ?
	`, uid, monthKey).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("read count: %w", err)
	}
	return n, false, nil
}

// Release decrements the month counter, stopping at zero.
func (s *UsageStore) Release(ctx context.Context, uid, monthKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE message_counts SET count = count - 1
		WHERE uid = ? AND month_key = ? AND count > 0
	`, uid, monthKey)
	if err != nil {
		return fmt.Errorf("release count: %w", err)
	}
	return nil
}

// Reset zeroes the month counter, creating the key if needed.
func (s *UsageStore) Reset(ctx context.Context, uid, monthKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_counts (uid, month_key, count) VALUES (?, ?, 0)
		ON CONFLICT(uid, month_key) DO UPDATE SET count = 0
	`, uid, monthKey)
	if err != nil {
		return fmt.Errorf("reset count: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
