package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/shopspring/decimal"
)

// Discount is a time-windowed percentage reduction (value type).
// Deactivation is a soft delete: Active is cleared, the record stays.
type Discount struct {
	ID        string
	Name      string
	Percent   int // 1-99
	StartDate time.Time
	EndDate   time.Time
	Tiers     []account.Tier
	Active    bool
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
}

// Discount validation errors.
var (
	ErrInvalidPercent = errors.New("discount percent must be between 1 and 99")
	ErrInvalidWindow  = errors.New("discount start date must not be after end date")
	ErrNoTiers        = errors.New("discount must name at least one paid tier")
	ErrEmptyName      = errors.New("discount name is required")
)

// AppliesTo reports whether tier is listed.
func (d Discount) AppliesTo(tier account.Tier) bool {
	for _, t := range d.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// IsEffective reports whether the discount applies to tier at now.
// Both window bounds are inclusive.
// This is a PURE function.
func (d Discount) IsEffective(tier account.Tier, now time.Time) bool {
	if !d.Active || !d.AppliesTo(tier) {
		return false
	}
	return !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// ValidateDiscount checks a discount before it is stored.
func ValidateDiscount(d Discount) error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if d.Percent < 1 || d.Percent > 99 {
		return ErrInvalidPercent
	}
	if d.StartDate.After(d.EndDate) {
		return ErrInvalidWindow
	}
	if len(d.Tiers) == 0 {
		return ErrNoTiers
	}
	for _, t := range d.Tiers {
		if t != account.TierPro && t != account.TierPlus {
			return ErrNoTiers
		}
	}
	return nil
}

// SelectDiscount picks the effective discount with the largest percent.
// Ties go to the lexicographically smallest ID so the result does not depend
// on input order.
// This is a PURE function.
func SelectDiscount(discounts []Discount, tier account.Tier, now time.Time) (Discount, bool) {
	var (
		best  Discount
		found bool
	)
	for _, d := range discounts {
		if !d.IsEffective(tier, now) {
			continue
		}
		if !found || d.Percent > best.Percent || (d.Percent == best.Percent && d.ID < best.ID) {
			best = d
			found = true
		}
	}
	return best, found
}

// Quote is a priced offer for one tier in one currency.
type Quote struct {
	Tier        account.Tier
	Currency    Currency
	Base        decimal.Decimal
	Final       decimal.Decimal
	Discount    *Discount
	FromDefault bool
}

// Savings returns Base - Final.
func (q Quote) Savings() decimal.Decimal {
	return q.Base.Sub(q.Final)
}

// NewQuote prices tier in currency c at now.
// The free tier is never discounted.
// This is a PURE function.
func NewQuote(table, defaults Table, discounts []Discount, tier account.Tier, c Currency, now time.Time) (Quote, error) {
	base, fromDefault, err := BasePrice(table, defaults, tier, c)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Tier:        tier,
		Currency:    c,
		Base:        base,
		Final:       base,
		FromDefault: fromDefault,
	}
	if tier == account.TierFree {
		return q, nil
	}
	if d, ok := SelectDiscount(discounts, tier, now); ok {
		q.Final = Apply(base, d.Percent)
		q.Discount = &d
	}
	return q, nil
}
