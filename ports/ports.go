// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
)

// Store sentinel errors. Adapters wrap these with context; callers test
// with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
	ErrExists   = errors.New("already exists")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// AccountFilter narrows ListAccounts. Zero fields match everything.
type AccountFilter struct {
	Status account.Status
	Tier   account.Tier
	Role   account.Role
	Limit  int
	Offset int
}

// Matches reports whether a passes the filter (ignores paging).
func (f AccountFilter) Matches(a account.Account) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Tier != "" && a.Tier != f.Tier {
		return false
	}
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	return true
}

// AccountStore persists account records.
// MessageCount is not persisted here; usage lives in UsageStore.
type AccountStore interface {
	// Get retrieves an account by uid.
	Get(ctx context.Context, uid string) (account.Account, error)

	// CreateIfAbsent stores a unless an account with the same uid exists.
	// It returns the stored record and whether it was created.
	CreateIfAbsent(ctx context.Context, a account.Account) (account.Account, bool, error)

	// Update replaces the record if its stored Version equals a.Version,
	// and returns the record with the bumped Version.
	// Returns ErrConflict on a version mismatch and ErrNotFound if absent.
	Update(ctx context.Context, a account.Account) (account.Account, error)

	// TouchActive sets LastActive without a version check.
	TouchActive(ctx context.Context, uid string, at time.Time) error

	// TouchMessage sets LastMessageAt without a version check.
	TouchMessage(ctx context.Context, uid string, at time.Time) error

	// List returns accounts matching the filter ordered by creation time.
	List(ctx context.Context, f AccountFilter) ([]account.Account, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// UsageStore persists month-bucketed message counters.
type UsageStore interface {
	// Counts returns every month-key counter for uid (empty map if none).
	Counts(ctx context.Context, uid string) (map[string]int64, error)

	// Increment atomically adds one to the counter for monthKey and
	// returns the post-increment value.
	Increment(ctx context.Context, uid, monthKey string) (int64, error)

	// Reserve adds one to the counter for monthKey only while it is below
	// limit, checking and incrementing in one atomic step. It returns the
	// resulting value and false, leaving the counter untouched, once the
	// limit has been reached.
	Reserve(ctx context.Context, uid, monthKey string, limit int64) (int64, bool, error)

	// Release takes back one reserved message. The counter never drops
	// below zero.
	Release(ctx context.Context, uid, monthKey string) error

	// Reset sets the counter for monthKey to zero. The key is kept.
	Reset(ctx context.Context, uid, monthKey string) error
}

// DiscountStore persists discounts. Discounts are never deleted.
type DiscountStore interface {
	List(ctx context.Context) ([]pricing.Discount, error)
	Get(ctx context.Context, id string) (pricing.Discount, error)
	Create(ctx context.Context, d pricing.Discount) error
	// Update replaces an existing discount. Returns ErrNotFound if absent.
	Update(ctx context.Context, d pricing.Discount) error
}

// PricingStore persists the editable price table.
type PricingStore interface {
	// Get returns the stored table; an empty table when none was saved.
	Get(ctx context.Context) (pricing.Table, error)

	// Put replaces the stored table.
	Put(ctx context.Context, t pricing.Table, at time.Time, by string) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Identity is the verified caller as asserted by the identity provider.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// IdentityVerifier checks identity-provider tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// GenerationRequest is one call to the text-generation provider.
type GenerationRequest struct {
	Prompt   string
	MaxChars int
	Priority string
}

// GenerationResult is the provider's reply.
type GenerationResult struct {
	Text  string
	Model string
}

// Generator calls the external text-generation provider.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Metrics records governance events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	EntitlementDecision(reason string, allowed bool)
	UsageIncrement(tier string)
	AdminAction(action, outcome string)
	Generation(outcome string, d time.Duration)
	PricingFallback(source string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) EntitlementDecision(string, bool) {}
func (NopMetrics) UsageIncrement(string)            {}
func (NopMetrics) AdminAction(string, string)       {}
func (NopMetrics) Generation(string, time.Duration) {}
func (NopMetrics) PricingFallback(string)           {}
