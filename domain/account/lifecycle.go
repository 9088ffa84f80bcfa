package account

import (
	"errors"
	"time"
)

// State is the effective lifecycle state used for authorization.
type State string

const (
	StateActive    State = "active"
	StateSuspended State = "suspended"
	StateBanned    State = "banned"
)

// Allowed suspension durations.
const (
	Suspend7Days  = 7 * 24 * time.Hour
	Suspend30Days = 30 * 24 * time.Hour
)

// ErrInvalidDuration is returned for suspension durations other than 7d and 30d.
var ErrInvalidDuration = errors.New("suspension duration must be 7d or 30d")

// Effective derives the lifecycle state at now.
// A suspension whose deadline has passed counts as active even though the
// stored status still reads suspended; only Reactivate rewrites the status.
// Callers must use this instead of reading Status directly.
// This is a PURE function.
func Effective(a Account, now time.Time) State {
	switch a.Status {
	case StatusBanned:
		return StateBanned
	case StatusSuspended:
		if a.SuspendedUntil != nil && now.Before(*a.SuspendedUntil) {
			return StateSuspended
		}
		return StateActive
	default:
		return StateActive
	}
}

// SuspensionExpired reports whether a stored suspension has lapsed.
// This is a PURE function.
func SuspensionExpired(a Account, now time.Time) bool {
	return a.Status == StatusSuspended && Effective(a, now) == StateActive
}

// ParseSuspendDuration accepts "7d" or "30d".
func ParseSuspendDuration(s string) (time.Duration, error) {
	switch s {
	case "7d":
		return Suspend7Days, nil
	case "30d":
		return Suspend30Days, nil
	}
	return 0, ErrInvalidDuration
}

// Ban moves the account to banned from any state.
// This is a PURE function.
func Ban(a Account, now time.Time) Account {
	next := a.Clone()
	next.Status = StatusBanned
	next.BannedAt = timePtr(now)
	next.UpdatedAt = now
	return next
}

// Suspend moves the account to suspended until now+d from any state.
// This is a PURE function.
func Suspend(a Account, d time.Duration, now time.Time) (Account, error) {
	if d != Suspend7Days && d != Suspend30Days {
		return a, ErrInvalidDuration
	}
	next := a.Clone()
	next.Status = StatusSuspended
	next.SuspendedAt = timePtr(now)
	next.SuspendedUntil = timePtr(now.Add(d))
	next.UpdatedAt = now
	return next, nil
}

// Reactivate moves the account to active from any state.
// SuspendedUntil is intentionally left in place.
// This is a PURE function.
func Reactivate(a Account, now time.Time) Account {
	next := a.Clone()
	next.Status = StatusActive
	next.ReactivatedAt = timePtr(now)
	next.UpdatedAt = now
	return next
}

// ChangeTier sets the subscription tier without looking at lifecycle state.
// This is a PURE function.
func ChangeTier(a Account, t Tier, now time.Time) Account {
	next := a.Clone()
	next.Tier = t
	next.SubscriptionUpdatedAt = timePtr(now)
	next.UpdatedAt = now
	return next
}
