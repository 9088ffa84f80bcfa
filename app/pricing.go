package app

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// PricingEngine quotes tier prices from the stored table and active
// discounts. Reads fail open: an unreadable table falls back to the
// defaults and an unreadable discount list means no discount.
type PricingEngine struct {
	prices    ports.PricingStore
	discounts ports.DiscountStore
	clock     ports.Clock
	metrics   ports.Metrics
	logger    zerolog.Logger

	// Hot-reloadable fallback table.
	defaults atomic.Pointer[pricing.Table]
}

// PricingDeps contains dependencies for PricingEngine.
type PricingDeps struct {
	Prices    ports.PricingStore
	Discounts ports.DiscountStore
	Clock     ports.Clock
	Metrics   ports.Metrics
	Logger    zerolog.Logger
}

// PricingConfig contains configuration for PricingEngine.
type PricingConfig struct {
	// Defaults overrides pricing.DefaultTable when non-empty.
	Defaults pricing.Table
}

// NewPricingEngine creates a new pricing engine.
func NewPricingEngine(deps PricingDeps, cfg PricingConfig) *PricingEngine {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	e := &PricingEngine{
		prices:    deps.Prices,
		discounts: deps.Discounts,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	e.SetDefaults(cfg.Defaults)
	return e
}

// SetDefaults replaces the fallback table. Entries in t are layered over
// the built-in defaults so a partial override keeps the other prices.
func (e *PricingEngine) SetDefaults(t pricing.Table) {
	merged := pricing.DefaultTable().Merge(t)
	e.defaults.Store(&merged)
}

// Defaults returns a copy of the fallback table.
func (e *PricingEngine) Defaults() pricing.Table {
	return e.defaults.Load().Clone()
}

// Table returns the effective price table: stored entries over defaults.
func (e *PricingEngine) Table(ctx context.Context) pricing.Table {
	return e.Defaults().Merge(e.storedTable(ctx))
}

func (e *PricingEngine) storedTable(ctx context.Context) pricing.Table {
	t, err := e.prices.Get(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("pricing table unavailable, using defaults")
		e.metrics.PricingFallback("store_error")
		return nil
	}
	if len(t) == 0 {
		e.metrics.PricingFallback("empty")
	}
	return t
}

// ActiveDiscounts returns discounts currently effective for any paid tier.
func (e *PricingEngine) ActiveDiscounts(ctx context.Context) []pricing.Discount {
	all := e.allDiscounts(ctx)
	now := e.clock.Now()

	var out []pricing.Discount
	for _, d := range all {
		if d.IsEffective(account.TierPro, now) || d.IsEffective(account.TierPlus, now) {
			out = append(out, d)
		}
	}
	return out
}

func (e *PricingEngine) allDiscounts(ctx context.Context) []pricing.Discount {
	ds, err := e.discounts.List(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("discounts unavailable, quoting without discount")
		e.metrics.PricingFallback("discount_error")
		return nil
	}
	return ds
}

// Quote prices one tier in one currency at the current time.
func (e *PricingEngine) Quote(ctx context.Context, tier account.Tier, c pricing.Currency) (pricing.Quote, error) {
	const op = "pricing.quote"
	if !c.Supported() {
		return pricing.Quote{}, failure.InvalidArgument(op, "unsupported currency "+string(c))
	}
	if _, err := account.ParseTier(string(tier)); err != nil {
		return pricing.Quote{}, failure.InvalidArgument(op, err.Error())
	}

	q, err := pricing.NewQuote(e.storedTable(ctx), e.Defaults(), e.allDiscounts(ctx), tier, c, e.clock.Now())
	return q, quoteError(op, err)
}

// QuoteAll prices every tier in currency c, lowest tier first.
// The stores are read once for the whole set.
func (e *PricingEngine) QuoteAll(ctx context.Context, c pricing.Currency) ([]pricing.Quote, error) {
	const op = "pricing.quote_all"
	if !c.Supported() {
		return nil, failure.InvalidArgument(op, "unsupported currency "+string(c))
	}

	var (
		table     = e.storedTable(ctx)
		defaults  = e.Defaults()
		discounts = e.allDiscounts(ctx)
		now       = e.clock.Now()
	)
	quotes := make([]pricing.Quote, 0, len(account.Tiers))
	for _, tier := range account.Tiers {
		q, err := pricing.NewQuote(table, defaults, discounts, tier, c, now)
		if err != nil {
			return nil, quoteError(op, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func quoteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pricing.ErrUnsupportedCurrency), errors.Is(err, pricing.ErrUnknownTier):
		return &failure.Error{Kind: failure.KindInvalidArgument, Op: op, Message: err.Error(), Err: err}
	default:
		return failure.Wrap(failure.KindInternal, op, err)
	}
}
