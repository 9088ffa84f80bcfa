// Package entitlement resolves what an account may do right now.
// Resolve is the single decision function used by both the advisory
// pre-flight endpoint and server-side chat enforcement.
package entitlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
)

// Feature is a gated product capability.
type Feature string

const (
	FeatureChat               Feature = "chat"
	FeatureAdvancedChat       Feature = "advanced_chat"
	FeatureVoiceInput         Feature = "voice_input"
	FeatureFileUpload         Feature = "file_upload"
	FeatureUnlimitedHistory   Feature = "unlimited_history"
	FeatureLongContext        Feature = "long_context"
	FeaturePrioritySupport    Feature = "priority_support"
	FeaturePriorityProcessing Feature = "priority_processing"
)

// AllFeatures is the full feature set in display order.
var AllFeatures = []Feature{
	FeatureChat,
	FeatureAdvancedChat,
	FeatureVoiceInput,
	FeatureFileUpload,
	FeatureUnlimitedHistory,
	FeatureLongContext,
	FeaturePrioritySupport,
	FeaturePriorityProcessing,
}

// ParseFeature normalizes a feature name. An empty string means chat.
func ParseFeature(s string) Feature {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FeatureChat
	}
	return Feature(s)
}

// Known reports whether f is a recognized feature.
func (f Feature) Known() bool {
	for _, k := range AllFeatures {
		if f == k {
			return true
		}
	}
	return false
}

// Priority is the processing class handed to the generation provider.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Reason is the machine-readable outcome code.
type Reason string

const (
	ReasonAllowed          Reason = "allowed"
	ReasonAdmin            Reason = "admin"
	ReasonBanned           Reason = "banned"
	ReasonSuspended        Reason = "suspended"
	ReasonQuotaExceeded    Reason = "quota_exceeded"
	ReasonFeatureNotInTier Reason = "feature_not_in_tier"
	ReasonUnknownFeature   Reason = "unknown_feature"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Unlimited marks an absent ceiling in Limit and Remaining.
const Unlimited int64 = -1

// Profile describes what a tier grants.
type Profile struct {
	Tier                account.Tier
	Features            []Feature
	ResponseBudgetChars int
	Priority            Priority
	MonthlyCeiling      int64 // Unlimited when there is no ceiling
	HistoryDays         int   // 0 = unlimited
	ContextMessages     int
}

// Has reports whether the profile grants f.
func (p Profile) Has(f Feature) bool {
	for _, g := range p.Features {
		if g == f {
			return true
		}
	}
	return false
}

// MaxResponseBudgetChars is the largest budget of any tier.
const MaxResponseBudgetChars = 8000

// FreeMonthlyCeiling is the free-tier message limit per calendar month.
const FreeMonthlyCeiling = 50

// Profiles maps each tier to its grants.
var Profiles = map[account.Tier]Profile{
	account.TierFree: {
		Tier:                account.TierFree,
		Features:            []Feature{FeatureChat},
		ResponseBudgetChars: 1000,
		Priority:            PriorityLow,
		MonthlyCeiling:      FreeMonthlyCeiling,
		HistoryDays:         7,
		ContextMessages:     5,
	},
	account.TierPro: {
		Tier:                account.TierPro,
		Features:            []Feature{FeatureChat, FeatureAdvancedChat, FeatureVoiceInput, FeaturePrioritySupport},
		ResponseBudgetChars: 4000,
		Priority:            PriorityMedium,
		MonthlyCeiling:      Unlimited,
		HistoryDays:         30,
		ContextMessages:     5,
	},
	account.TierPlus: {
		Tier:                account.TierPlus,
		Features:            AllFeatures,
		ResponseBudgetChars: MaxResponseBudgetChars,
		Priority:            PriorityHigh,
		MonthlyCeiling:      Unlimited,
		HistoryDays:         0,
		ContextMessages:     10,
	},
}

// adminProfile grants everything with the largest budget and no ceiling.
var adminProfile = Profile{
	Features:            AllFeatures,
	ResponseBudgetChars: MaxResponseBudgetChars,
	Priority:            PriorityHigh,
	MonthlyCeiling:      Unlimited,
	HistoryDays:         0,
	ContextMessages:     10,
}

// ProfileFor returns the tier profile, defaulting to free for unknown tiers.
func ProfileFor(t account.Tier) Profile {
	if p, ok := Profiles[t]; ok {
		return p
	}
	return Profiles[account.TierFree]
}

// Decision is the outcome of one entitlement check (value type).
// It is recomputed on every request and never cached.
type Decision struct {
	Allowed             bool
	Reason              Reason
	Message             string
	Feature             Feature
	Tier                account.Tier
	ResponseBudgetChars int
	Features            []Feature
	Priority            Priority
	Used                int64
	Limit               int64 // Unlimited when there is no ceiling
	Remaining           int64 // Unlimited when there is no ceiling
	HistoryDays         int
	ContextMessages     int
	SuspendedUntil      *time.Time
}

// HasFeature reports whether the decision grants f.
func (d Decision) HasFeature(f Feature) bool {
	for _, g := range d.Features {
		if g == f {
			return true
		}
	}
	return false
}

// Resolve decides whether acct may use feature given its usage in the
// current month. Lifecycle is checked first, so a banned or suspended admin
// is denied like anyone else.
// This is a PURE function - it never mutates usage.
func Resolve(acct account.Account, feature Feature, used int64, now time.Time) Decision {
	d := Decision{
		Feature:   feature,
		Tier:      acct.Tier,
		Used:      used,
		Limit:     Unlimited,
		Remaining: Unlimited,
	}

	switch account.Effective(acct, now) {
	case account.StateBanned:
		return deny(d, ReasonBanned, "account is banned")
	case account.StateSuspended:
		d.SuspendedUntil = acct.SuspendedUntil
		return deny(d, ReasonSuspended, fmt.Sprintf("account suspended until %s", acct.SuspendedUntil.UTC().Format(time.RFC3339)))
	}

	if !feature.Known() {
		return deny(d, ReasonUnknownFeature, fmt.Sprintf("unknown feature %q", feature))
	}

	if acct.IsAdmin() {
		return allow(d, adminProfile, ReasonAdmin)
	}

	p := ProfileFor(acct.Tier)
	if !p.Has(feature) {
		d = withProfile(d, p)
		return deny(d, ReasonFeatureNotInTier, fmt.Sprintf("%s is not included in the %s plan", feature, p.Tier))
	}

	if p.MonthlyCeiling != Unlimited {
		d.Limit = p.MonthlyCeiling
		if used >= p.MonthlyCeiling {
			return QuotaExceeded(withProfile(d, p), used)
		}
		d.Remaining = p.MonthlyCeiling - used
	}

	return allow(d, p, ReasonAllowed)
}

// QuotaExceeded turns d into the denial for a month whose ceiling d.Limit
// has been met with used messages. It also covers a check that passed but
// lost the race for the last message.
func QuotaExceeded(d Decision, used int64) Decision {
	d.Used = used
	d.Remaining = 0
	return deny(d, ReasonQuotaExceeded, fmt.Sprintf("monthly message limit of %d reached; upgrade to continue", d.Limit))
}

// StoreUnavailable is the fail-closed decision used when the account or
// usage cannot be read.
func StoreUnavailable(feature Feature) Decision {
	return Decision{
		Allowed:   false,
		Reason:    ReasonStoreUnavailable,
		Message:   "unable to verify entitlement, please try again later",
		Feature:   feature,
		Limit:     Unlimited,
		Remaining: Unlimited,
	}
}

func withProfile(d Decision, p Profile) Decision {
	d.Features = p.Features
	d.Priority = p.Priority
	d.HistoryDays = p.HistoryDays
	d.ContextMessages = p.ContextMessages
	return d
}

func allow(d Decision, p Profile, r Reason) Decision {
	d = withProfile(d, p)
	d.Allowed = true
	d.Reason = r
	d.ResponseBudgetChars = p.ResponseBudgetChars
	return d
}

func deny(d Decision, r Reason, msg string) Decision {
	d.Allowed = false
	d.Reason = r
	d.Message = msg
	d.ResponseBudgetChars = 0
	return d
}
