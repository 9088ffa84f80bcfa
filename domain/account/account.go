// Package account provides the account value type and its lifecycle state machine.
// All functions are pure: they take the current time as an argument and
// return new values instead of mutating shared state.
package account

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierPlus Tier = "plus"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierPro, TierPlus}

// Status is the persisted lifecycle status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// Account is the canonical account record (value type).
// Optional timestamps are nil when the event never happened.
type Account struct {
	UID         string
	Email       string
	DisplayName string
	Role        Role
	Tier        Tier
	Status      Status

	// SuspendedUntil is set on the first suspension and never cleared.
	// Expiry is derived by Effective, not stored.
	SuspendedUntil *time.Time

	BannedAt              *time.Time
	SuspendedAt           *time.Time
	ReactivatedAt         *time.Time
	SubscriptionUpdatedAt *time.Time
	LastMessageAt         *time.Time

	// MessageCount maps month-key (YYYY-MM) to messages sent in that month.
	MessageCount map[string]int64

	CreatedAt  time.Time
	LastActive time.Time
	UpdatedAt  time.Time

	// Version is the optimistic-concurrency token maintained by stores.
	Version int64
}

// New returns a freshly created account: active, free tier.
func New(uid, email, displayName string, role Role, now time.Time) Account {
	if role == "" {
		role = RoleUser
	}
	return Account{
		UID:          uid,
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		Tier:         TierFree,
		Status:       StatusActive,
		MessageCount: map[string]int64{},
		CreatedAt:    now,
		LastActive:   now,
		UpdatedAt:    now,
	}
}

// IsAdmin reports whether the stored role is admin.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Clone returns a deep copy so callers can transition without aliasing maps.
func (a Account) Clone() Account {
	c := a
	if a.MessageCount != nil {
		c.MessageCount = make(map[string]int64, len(a.MessageCount))
		for k, v := range a.MessageCount {
			c.MessageCount[k] = v
		}
	}
	return c
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPro, TierPlus:
		return t, nil
	}
	return "", fmt.Errorf("invalid subscription tier %q", s)
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusSuspended, StatusBanned:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
