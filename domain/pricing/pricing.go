// Package pricing provides multi-currency tier prices and discount selection.
// All functions are pure. Arithmetic uses arbitrary-precision decimals;
// rounding for display happens only through Display.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	NGN Currency = "NGN"
	JPY Currency = "JPY"
)

// Supported lists every currency the engine can quote.
var Supported = []Currency{USD, EUR, GBP, NGN, JPY}

// Errors returned by pricing functions.
var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrUnknownTier         = errors.New("unknown tier")
	ErrNegativePrice       = errors.New("price must not be negative")
	ErrFreeNotZero         = errors.New("free tier price must be zero")
)

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Supported() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
	return c, nil
}

// Supported reports whether c is quotable.
func (c Currency) Supported() bool {
	for _, s := range Supported {
		if c == s {
			return true
		}
	}
	return false
}

// Decimals returns the minor-unit precision used for display.
func (c Currency) Decimals() int32 {
	if c == JPY {
		return 0
	}
	return 2
}

// Table maps tier and currency to a base monthly price.
type Table map[account.Tier]map[Currency]decimal.Decimal

// DefaultTable returns the built-in price table used when the stored table
// is missing an entry or cannot be read.
func DefaultTable() Table {
	return Table{
		account.TierPro: {
			USD: decimal.RequireFromString("9.99"),
			EUR: decimal.RequireFromString("9.49"),
			GBP: decimal.RequireFromString("7.99"),
			NGN: decimal.NewFromInt(15000),
			JPY: decimal.NewFromInt(1500),
		},
		account.TierPlus: {
			USD: decimal.RequireFromString("19.99"),
			EUR: decimal.RequireFromString("18.99"),
			GBP: decimal.RequireFromString("15.99"),
			NGN: decimal.NewFromInt(30000),
			JPY: decimal.NewFromInt(3000),
		},
	}
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for tier, prices := range t {
		m := make(map[Currency]decimal.Decimal, len(prices))
		for c, p := range prices {
			m[c] = p
		}
		out[tier] = m
	}
	return out
}

// Lookup returns the price for tier in currency, if present.
func (t Table) Lookup(tier account.Tier, c Currency) (decimal.Decimal, bool) {
	prices, ok := t[tier]
	if !ok {
		return decimal.Zero, false
	}
	p, ok := prices[c]
	return p, ok
}

// Merge returns a copy of t with every entry of patch applied on top.
func (t Table) Merge(patch Table) Table {
	out := t.Clone()
	for tier, prices := range patch {
		if out[tier] == nil {
			out[tier] = make(map[Currency]decimal.Decimal, len(prices))
		}
		for c, p := range prices {
			out[tier][c] = p
		}
	}
	return out
}

// ValidateTable checks tiers, currencies and amounts.
func ValidateTable(t Table) error {
	for tier, prices := range t {
		if _, err := account.ParseTier(string(tier)); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
		for c, p := range prices {
			if !c.Supported() {
				return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
			}
			if p.IsNegative() {
				return fmt.Errorf("%s/%s: %w", tier, c, ErrNegativePrice)
			}
			if tier == account.TierFree && !p.IsZero() {
				return ErrFreeNotZero
			}
		}
	}
	return nil
}

// BasePrice resolves the undiscounted price. Entries missing from table are
// taken from defaults; fromDefault reports when that happened.
// The free tier is always zero.
// This is a PURE function.
func BasePrice(table, defaults Table, tier account.Tier, c Currency) (amount decimal.Decimal, fromDefault bool, err error) {
	if !c.Supported() {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	if tier == account.TierFree {
		return decimal.Zero, false, nil
	}
	if p, ok := table.Lookup(tier, c); ok {
		return p, false, nil
	}
	if p, ok := defaults.Lookup(tier, c); ok {
		return p, true, nil
	}
	return decimal.Zero, false, fmt.Errorf("%w: no price for %s/%s", ErrUnknownTier, tier, c)
}

// Apply computes base × (1 − percent/100) at full precision.
// This is a PURE function.
func Apply(base decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return base
	}
	factor := decimal.NewFromInt(100 - int64(percent)).Div(decimal.NewFromInt(100))
	return base.Mul(factor)
}

// Display formats amount for presentation, e.g. "7.49" or "1125".
func Display(amount decimal.Decimal, c Currency) string {
	return amount.StringFixed(c.Decimals())
}
