package app

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// AccountService creates accounts on first login and reads them back with
// their usage attached.
type AccountService struct {
	accounts ports.AccountStore
	usage    ports.UsageStore
	clock    ports.Clock
	logger   zerolog.Logger

	// Hot-reloadable: lower-cased emails promoted to admin at creation.
	adminEmails atomic.Pointer[map[string]struct{}]
}

// AccountDeps contains dependencies for AccountService.
type AccountDeps struct {
	Accounts ports.AccountStore
	Usage    ports.UsageStore
	Clock    ports.Clock
	Logger   zerolog.Logger
}

// AccountConfig contains configuration for AccountService.
type AccountConfig struct {
	AdminEmails []string
}

// NewAccountService creates a new account service.
func NewAccountService(deps AccountDeps, cfg AccountConfig) *AccountService {
	s := &AccountService{
		accounts: deps.Accounts,
		usage:    deps.Usage,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	s.SetAdminEmails(cfg.AdminEmails)
	return s
}

// SetAdminEmails replaces the promotion list. Safe to call while serving.
// Existing accounts keep their stored role.
func (s *AccountService) SetAdminEmails(emails []string) {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	s.adminEmails.Store(&set)
}

func (s *AccountService) isAdminEmail(email string) bool {
	set := s.adminEmails.Load()
	if set == nil || email == "" {
		return false
	}
	_, ok := (*set)[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// EnsureAccount returns the account for a verified identity, creating it on
// first login. Returning logins refresh LastActive.
// The bool reports whether the account was created by this call.
func (s *AccountService) EnsureAccount(ctx context.Context, id ports.Identity) (account.Account, bool, error) {
	const op = "account.ensure"
	if id.UID == "" {
		return account.Account{}, false, failure.InvalidArgument(op, "identity has no uid")
	}

	now := s.clock.Now()
	role := account.RoleUser
	if s.isAdminEmail(id.Email) {
		role = account.RoleAdmin
	}

	stored, created, err := s.accounts.CreateIfAbsent(ctx, account.New(id.UID, id.Email, id.DisplayName, role, now))
	if err != nil {
		return account.Account{}, false, storeError(op, "account", err)
	}

	if created {
		s.logger.Info().
			Str("uid", stored.UID).
			Str("role", string(stored.Role)).
			Msg("account created")
	} else if err := s.accounts.TouchActive(ctx, id.UID, now); err != nil {
		s.logger.Warn().Err(err).Str("uid", id.UID).Msg("failed to record last active")
	} else {
		stored.LastActive = now
	}

	stored, err = s.hydrate(ctx, op, stored)
	if err != nil {
		return account.Account{}, false, err
	}
	return stored, created, nil
}

// Get returns the account with MessageCount filled from the usage store.
func (s *AccountService) Get(ctx context.Context, uid string) (account.Account, error) {
	const op = "account.get"
	a, err := s.accounts.Get(ctx, uid)
	if err != nil {
		return account.Account{}, storeError(op, "account", err)
	}
	return s.hydrate(ctx, op, a)
}

func (s *AccountService) hydrate(ctx context.Context, op string, a account.Account) (account.Account, error) {
	counts, err := s.usage.Counts(ctx, a.UID)
	if err != nil {
		return account.Account{}, storeError(op, "usage", err)
	}
	a.MessageCount = counts
	return a, nil
}
