package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/ports"
)

// AccountStore implements ports.AccountStore using SQLite.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new SQLite account store.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `uid, email, display_name, role, tier, status,
	suspended_until, banned_at, suspended_at, reactivated_at, subscription_updated_at, last_message_at,
	created_at, last_active, updated_at, version`

// Get retrieves an account by uid.
func (s *AccountStore) Get(ctx context.Context, uid string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uid = ?`, uid)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, fmt.Errorf("account %s: %w", uid, ports.ErrNotFound)
	}
	return a, err
}

// CreateIfAbsent inserts a unless the uid exists, then returns the stored row.
func (s *AccountStore) CreateIfAbsent(ctx context.Context, a account.Account) (account.Account, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(uid) DO NOTHING
	`,
		a.UID, a.Email, a.DisplayName, string(a.Role), string(a.Tier), string(a.Status),
		nullTime(a.SuspendedUntil), nullTime(a.BannedAt), nullTime(a.SuspendedAt),
		nullTime(a.ReactivatedAt), nullTime(a.SubscriptionUpdatedAt), nullTime(a.LastMessageAt),
		a.CreatedAt.UTC(), a.LastActive.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return account.Account{}, false, fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return account.Account{}, false, fmt.Errorf("insert account: %w", err)
	}

	stored, err := s.Get(ctx, a.UID)
	if err != nil {
		return account.Account{}, false, err
	}
	return stored, n == 1, nil
}

// Update writes a if the stored version still equals a.Version.
// LastActive and LastMessageAt are left to the touch methods.
func (s *AccountStore) Update(ctx context.Context, a account.Account) (account.Account, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = ?, display_name = ?, role = ?, tier = ?, status = ?,
			suspended_until = ?, banned_at = ?, suspended_at = ?, reactivated_at = ?,
			subscription_updated_at = ?, updated_at = ?, version = version + 1
		WHERE uid = ? AND version = ?
	`,
		a.Email, a.DisplayName, string(a.Role), string(a.Tier), string(a.Status),
		nullTime(a.SuspendedUntil), nullTime(a.BannedAt), nullTime(a.SuspendedAt), nullTime(a.ReactivatedAt),
		nullTime(a.SubscriptionUpdatedAt), a.UpdatedAt.UTC(),
		a.UID, a.Version,
	)
	if err != nil {
		return account.Account{}, fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return account.Account{}, fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, a.UID); err != nil {
			return account.Account{}, err
		}
		return account.Account{}, fmt.Errorf("account %s at version %d: %w", a.UID, a.Version, ports.ErrConflict)
	}
	return s.Get(ctx, a.UID)
}

// TouchActive sets LastActive.
func (s *AccountStore) TouchActive(ctx context.Context, uid string, at time.Time) error {
	return s.touch(ctx, "last_active", uid, at)
}

// TouchMessage sets LastMessageAt.
func (s *AccountStore) TouchMessage(ctx context.Context, uid string, at time.Time) error {
	return s.touch(ctx, "last_message_at", uid, at)
}

func (s *AccountStore) touch(ctx context.Context, column, uid string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET `+column+` = ? WHERE uid = ?`, at.UTC(), uid)
	if err != nil {
		return fmt.Errorf("touch %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", uid, ports.ErrNotFound)
	}
	return nil
}

// List returns accounts matching f, oldest first.
func (s *AccountStore) List(ctx context.Context, f ports.AccountFilter) ([]account.Account, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, string(f.Tier))
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(f.Role))
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, uid"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := []account.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ping checks the database is reachable.
func (s *AccountStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (account.Account, error) {
	var (
		a                                    account.Account
		role, tier, status                   string
		suspendedUntil, bannedAt, suspended  sql.NullTime
		reactivated, subUpdated, lastMessage sql.NullTime
	)
	err := row.Scan(
		&a.UID, &a.Email, &a.DisplayName, &role, &tier, &status,
		&suspendedUntil, &bannedAt, &suspended, &reactivated, &subUpdated, &lastMessage,
		&a.CreatedAt, &a.LastActive, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return account.Account{}, err
	}
	a.Role = account.Role(role)
	a.Tier = account.Tier(tier)
	a.Status = account.Status(status)
	a.SuspendedUntil = timePtr(suspendedUntil)
	a.BannedAt = timePtr(bannedAt)
	a.SuspendedAt = timePtr(suspended)
	a.ReactivatedAt = timePtr(reactivated)
	a.SubscriptionUpdatedAt = timePtr(subUpdated)
	a.LastMessageAt = timePtr(lastMessage)
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastActive = a.LastActive.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
