// Package view holds the JSON representations served by the HTTP adapters.
// Domain types carry no wire tags; handlers convert through this package.
package view

import (
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/domain/usage"
)

// Account is the wire form of an account. Status is the effective status.
type Account struct {
	UID                   string           `json:"uid"`
	Email                 string           `json:"email,omitempty"`
	DisplayName           string           `json:"displayName,omitempty"`
	Role                  account.Role     `json:"role"`
	Tier                  account.Tier     `json:"subscription"`
	Status                account.State    `json:"status"`
	StoredStatus          account.Status   `json:"storedStatus"`
	SuspendedUntil        *time.Time       `json:"suspendedUntil,omitempty"`
	SuspensionExpired     bool             `json:"suspensionExpired,omitempty"`
	BannedAt              *time.Time       `json:"bannedAt,omitempty"`
	SuspendedAt           *time.Time       `json:"suspendedAt,omitempty"`
	ReactivatedAt         *time.Time       `json:"reactivatedAt,omitempty"`
	SubscriptionUpdatedAt *time.Time       `json:"subscriptionUpdatedAt,omitempty"`
	LastMessageAt         *time.Time       `json:"lastMessageAt,omitempty"`
	MessageCount          map[string]int64 `json:"messageCount"`
	CreatedAt             time.Time        `json:"createdAt"`
	LastActive            time.Time        `json:"lastActive"`
	Version               int64            `json:"version"`
}

// FromAccount converts a to its wire form as seen at now.
func FromAccount(a account.Account, now time.Time) Account {
	counts := a.MessageCount
	if counts == nil {
		counts = map[string]int64{}
	}
	return Account{
		UID:                   a.UID,
		Email:                 a.Email,
		DisplayName:           a.DisplayName,
		Role:                  a.Role,
		Tier:                  a.Tier,
		Status:                account.Effective(a, now),
		StoredStatus:          a.Status,
		SuspendedUntil:        a.SuspendedUntil,
		SuspensionExpired:     account.SuspensionExpired(a, now),
		BannedAt:              a.BannedAt,
		SuspendedAt:           a.SuspendedAt,
		ReactivatedAt:         a.ReactivatedAt,
		SubscriptionUpdatedAt: a.SubscriptionUpdatedAt,
		LastMessageAt:         a.LastMessageAt,
		MessageCount:          counts,
		CreatedAt:             a.CreatedAt,
		LastActive:            a.LastActive,
		Version:               a.Version,
	}
}

// Accounts converts a slice of accounts.
func Accounts(list []account.Account, now time.Time) []Account {
	out := make([]Account, 0, len(list))
	for _, a := range list {
		out = append(out, FromAccount(a, now))
	}
	return out
}

// Decision is the wire form of an entitlement decision.
// Limit and Remaining are omitted when the tier has no ceiling.
type Decision struct {
	Allowed           bool                  `json:"allowed"`
	Reason            entitlement.Reason    `json:"reason,omitempty"`
	Message           string                `json:"message,omitempty"`
	Feature           entitlement.Feature   `json:"feature"`
	Tier              account.Tier          `json:"subscription,omitempty"`
	MaxResponseLength int                   `json:"maxResponseLength"`
	PriorityClass     entitlement.Priority  `json:"priorityClass,omitempty"`
	FeatureFlags      []entitlement.Feature `json:"featureFlags"`
	Used              int64                 `json:"used"`
	Limit             *int64                `json:"limit,omitempty"`
	Remaining         *int64                `json:"remaining,omitempty"`
	Unlimited         bool                  `json:"unlimited"`
	HistoryDays       int                   `json:"historyDays,omitempty"`
	ContextMessages   int                   `json:"contextMessages,omitempty"`
	SuspendedUntil    *time.Time            `json:"suspendedUntil,omitempty"`
}

// FromDecision converts d.
func FromDecision(d entitlement.Decision) Decision {
	out := Decision{
		Allowed:           d.Allowed,
		Reason:            d.Reason,
		Message:           d.Message,
		Feature:           d.Feature,
		Tier:              d.Tier,
		MaxResponseLength: d.ResponseBudgetChars,
		PriorityClass:     d.Priority,
		FeatureFlags:      d.Features,
		Used:              d.Used,
		Unlimited:         d.Limit == entitlement.Unlimited,
		HistoryDays:       d.HistoryDays,
		ContextMessages:   d.ContextMessages,
		SuspendedUntil:    d.SuspendedUntil,
	}
	if out.FeatureFlags == nil {
		out.FeatureFlags = []entitlement.Feature{}
	}
	if !out.Unlimited {
		limit, remaining := d.Limit, d.Remaining
		out.Limit, out.Remaining = &limit, &remaining
	}
	return out
}

// Usage is the message counter summary returned by /api/messages.
type Usage struct {
	MessageCount int64        `json:"messageCount"`
	CurrentMonth string       `json:"currentMonth"`
	TotalCount   int64        `json:"totalCount"`
	ResetsAt     time.Time    `json:"resetsAt"`
	History      []UsageMonth `json:"history"`
}

// UsageMonth is one month of the usage history.
type UsageMonth struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// FromSnapshot converts s.
func FromSnapshot(s usage.Snapshot) Usage {
	history := make([]UsageMonth, 0, len(s.History))
	for _, m := range s.History {
		history = append(history, UsageMonth{Month: m.Key, Count: m.Count})
	}
	return Usage{
		MessageCount: s.Count,
		CurrentMonth: s.MonthKey,
		TotalCount:   s.Lifetime,
		ResetsAt:     s.ResetsAt,
		History:      history,
	}
}

// Discount is the wire form of a discount.
type Discount struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Percent   int            `json:"percent"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	Tiers     []account.Tier `json:"tiers"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"createdAt"`
	CreatedBy string         `json:"createdBy,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// FromDiscount converts d.
func FromDiscount(d pricing.Discount) Discount {
	tiers := d.Tiers
	if tiers == nil {
		tiers = []account.Tier{}
	}
	return Discount{
		ID:        d.ID,
		Name:      d.Name,
		Percent:   d.Percent,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Tiers:     tiers,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		CreatedBy: d.CreatedBy,
		UpdatedAt: d.UpdatedAt,
	}
}

// Discounts converts a slice of discounts.
func Discounts(list []pricing.Discount) []Discount {
	out := make([]Discount, 0, len(list))
	for _, d := range list {
		out = append(out, FromDiscount(d))
	}
	return out
}

// Quote is the wire form of a price quote. Amounts are display strings
// rounded to the currency's minor unit.
type Quote struct {
	Tier            account.Tier     `json:"tier"`
	Currency        pricing.Currency `json:"currency"`
	BasePrice       string           `json:"basePrice"`
	FinalPrice      string           `json:"finalPrice"`
	Savings         string           `json:"savings,omitempty"`
	DiscountPercent int              `json:"discountPercent,omitempty"`
	DiscountID      string           `json:"discountId,omitempty"`
	DiscountName    string           `json:"discountName,omitempty"`
	FromDefault     bool             `json:"fromDefault"`
}

// FromQuote converts q.
func FromQuote(q pricing.Quote) Quote {
	out := Quote{
		Tier:        q.Tier,
		Currency:    q.Currency,
		BasePrice:   pricing.Display(q.Base, q.Currency),
		FinalPrice:  pricing.Display(q.Final, q.Currency),
		FromDefault: q.FromDefault,
	}
	if q.Discount != nil {
		out.Savings = pricing.Display(q.Savings(), q.Currency)
		out.DiscountPercent = q.Discount.Percent
		out.DiscountID = q.Discount.ID
		out.DiscountName = q.Discount.Name
	}
	return out
}

// Capabilities renders the catalog for tier keyed by capability name.
func Capabilities(tier account.Tier) map[string]entitlement.Capability {
	out := make(map[string]entitlement.Capability, len(entitlement.Catalog[tier]))
	for _, c := range entitlement.Catalog[tier] {
		out[c.Name] = c
	}
	return out
}
