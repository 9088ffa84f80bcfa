// Package memory provides in-memory store implementations for tests,
// single-process development and the CLI's dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/ports"
)

// AccountStore is an in-memory implementation of ports.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]account.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]account.Account)}
}

// Get retrieves an account by uid.
func (s *AccountStore) Get(ctx context.Context, uid string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[uid]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", uid, ports.ErrNotFound)
	}
	return a.Clone(), nil
}

// CreateIfAbsent stores a unless the uid is already taken.
func (s *AccountStore) CreateIfAbsent(ctx context.Context, a account.Account) (account.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[a.UID]; ok {
		return existing.Clone(), false, nil
	}
	a = a.Clone()
	a.MessageCount = nil
	a.Version = 1
	s.accounts[a.UID] = a
	return a.Clone(), true, nil
}

// Update replaces the account if the versions match.
func (s *AccountStore) Update(ctx context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.accounts[a.UID]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", a.UID, ports.ErrNotFound)
	}
	if cur.Version != a.Version {
		return account.Account{}, fmt.Errorf("account %s at version %d: %w", a.UID, a.Version, ports.ErrConflict)
	}
	next := a.Clone()
	next.MessageCount = nil
	// Touch fields are owned by TouchActive/TouchMessage.
	next.LastActive = cur.LastActive
	next.LastMessageAt = cur.LastMessageAt
	next.Version = cur.Version + 1
	s.accounts[a.UID] = next
	return next.Clone(), nil
}

// TouchActive sets LastActive.
func (s *AccountStore) TouchActive(ctx context.Context, uid string, at time.Time) error {
	return s.touch(uid, func(a *account.Account) { a.LastActive = at })
}

// TouchMessage sets LastMessageAt.
func (s *AccountStore) TouchMessage(ctx context.Context, uid string, at time.Time) error {
	return s.touch(uid, func(a *account.Account) { a.LastMessageAt = &at })
}

func (s *AccountStore) touch(uid string, fn func(*account.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[uid]
	if !ok {
		return fmt.Errorf("account %s: %w", uid, ports.ErrNotFound)
	}
	fn(&a)
	s.accounts[uid] = a
	return nil
}

// List returns accounts matching f, oldest first.
func (s *AccountStore) List(ctx context.Context, f ports.AccountFilter) ([]account.Account, error) {
	s.mu.RLock()
	matched := make([]account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if f.Matches(a) {
			matched = append(matched, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].UID < matched[j].UID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []account.Account{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Ping always succeeds.
func (s *AccountStore) Ping(ctx context.Context) error {
	return nil
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
