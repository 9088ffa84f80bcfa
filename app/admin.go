package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/domain/usage"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// Admin action names accepted by Execute.
const (
	ActionBan            = "ban"
	ActionSuspend        = "suspend"
	ActionReactivate     = "reactivate"
	ActionChangeTier     = "changeTier"
	ActionUpdatePricing  = "updatePricing"
	ActionCreateDiscount = "createDiscount"
	ActionUpdateDiscount = "updateDiscount"
	ActionResetUsage     = "resetUsage"
)

// DefaultMaxRetries bounds the read-transition-write loop on version conflicts.
const DefaultMaxRetries = 5

// AdminGateway authorizes and performs administrative mutations.
// Every operation re-reads the actor's stored role; nothing is cached.
type AdminGateway struct {
	accounts  ports.AccountStore
	usage     *UsageCounter
	prices    ports.PricingStore
	discounts ports.DiscountStore
	clock     ports.Clock
	ids       ports.IDGenerator
	metrics   ports.Metrics
	logger    zerolog.Logger

	maxRetries int
}

// AdminDeps contains dependencies for AdminGateway.
type AdminDeps struct {
	Accounts  ports.AccountStore
	Usage     *UsageCounter
	Prices    ports.PricingStore
	Discounts ports.DiscountStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.Metrics
	Logger    zerolog.Logger
}

// AdminConfig contains configuration for AdminGateway.
type AdminConfig struct {
	MaxRetries int
}

// NewAdminGateway creates a new admin gateway.
func NewAdminGateway(deps AdminDeps, cfg AdminConfig) *AdminGateway {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &AdminGateway{
		accounts:   deps.Accounts,
		usage:      deps.Usage,
		prices:     deps.Prices,
		discounts:  deps.Discounts,
		clock:      deps.Clock,
		ids:        deps.IDGen,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		maxRetries: cfg.MaxRetries,
	}
}

// Authorize returns the actor's account if it may act as an admin.
// A banned or currently suspended admin is refused.
func (g *AdminGateway) Authorize(ctx context.Context, actorID string) (account.Account, error) {
	const op = "admin.authorize"
	if strings.TrimSpace(actorID) == "" {
		return account.Account{}, failure.Unauthorized(op, "acting admin is required")
	}

	actor, err := g.accounts.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return account.Account{}, failure.Unauthorized(op, "acting admin is not an administrator")
		}
		return account.Account{}, failure.StoreUnavailable(op, err)
	}
	if !actor.IsAdmin() {
		return account.Account{}, failure.Unauthorized(op, "acting admin is not an administrator")
	}
	if account.Effective(actor, g.clock.Now()) != account.StateActive {
		return account.Account{}, failure.Unauthorized(op, "acting admin is not active")
	}
	return actor, nil
}

// Ban bans the target account.
func (g *AdminGateway) Ban(ctx context.Context, actorID, targetID string) (account.Account, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return account.Account{}, g.observe(ActionBan, err)
	}
	a, err := g.transition(ctx, ActionBan, actorID, targetID, func(a account.Account, now time.Time) (account.Account, error) {
		return account.Ban(a, now), nil
	})
	return a, g.observe(ActionBan, err)
}

// Suspend suspends the target for "7d" or "30d".
func (g *AdminGateway) Suspend(ctx context.Context, actorID, targetID, duration string) (account.Account, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return account.Account{}, g.observe(ActionSuspend, err)
	}
	d, err := account.ParseSuspendDuration(duration)
	if err != nil {
		return account.Account{}, g.observe(ActionSuspend, failure.InvalidArgument("admin."+ActionSuspend, err.Error()))
	}
	a, err := g.transition(ctx, ActionSuspend, actorID, targetID, func(a account.Account, now time.Time) (account.Account, error) {
		return account.Suspend(a, d, now)
	})
	return a, g.observe(ActionSuspend, err)
}

// Reactivate returns the target to active. SuspendedUntil is kept.
func (g *AdminGateway) Reactivate(ctx context.Context, actorID, targetID string) (account.Account, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return account.Account{}, g.observe(ActionReactivate, err)
	}
	a, err := g.transition(ctx, ActionReactivate, actorID, targetID, func(a account.Account, now time.Time) (account.Account, error) {
		return account.Reactivate(a, now), nil
	})
	return a, g.observe(ActionReactivate, err)
}

// ChangeTier sets the target's subscription tier regardless of its
// lifecycle state.
func (g *AdminGateway) ChangeTier(ctx context.Context, actorID, targetID, tier string) (account.Account, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return account.Account{}, g.observe(ActionChangeTier, err)
	}
	t, err := account.ParseTier(tier)
	if err != nil {
		return account.Account{}, g.observe(ActionChangeTier, failure.InvalidArgument("admin."+ActionChangeTier, err.Error()))
	}
	a, err := g.transition(ctx, ActionChangeTier, actorID, targetID, func(a account.Account, now time.Time) (account.Account, error) {
		return account.ChangeTier(a, t, now), nil
	})
	return a, g.observe(ActionChangeTier, err)
}

// transition runs read, transition, compare-and-swap, retrying on version
// conflicts up to maxRetries times. The actor must already be authorized.
func (g *AdminGateway) transition(ctx context.Context, action, actorID, targetID string, fn func(account.Account, time.Time) (account.Account, error)) (account.Account, error) {
	op := "admin." + action
	if strings.TrimSpace(targetID) == "" {
		return account.Account{}, failure.InvalidArgument(op, "target account is required")
	}

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		cur, err := g.accounts.Get(ctx, targetID)
		if err != nil {
			return account.Account{}, storeError(op, "account", err)
		}
		next, err := fn(cur, g.clock.Now())
		if err != nil {
			return account.Account{}, failure.InvalidArgument(op, err.Error())
		}

		saved, err := g.accounts.Update(ctx, next)
		if err == nil {
			g.logger.Info().
				Str("action", action).
				Str("actor", actorID).
				Str("uid", targetID).
				Str("status", string(saved.Status)).
				Str("tier", string(saved.Tier)).
				Msg("admin action applied")
			return saved, nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			return account.Account{}, storeError(op, "account", err)
		}
		g.logger.Debug().Str("uid", targetID).Int("attempt", attempt).Msg("version conflict, retrying")
	}
	return account.Account{}, failure.New(failure.KindConflict, op, "account changed concurrently, please retry")
}

// UpdatePricing merges patch into the stored table and saves the result.
// Unlike quoting, this does not fall back to defaults when the store fails.
func (g *AdminGateway) UpdatePricing(ctx context.Context, actorID string, patch pricing.Table) (pricing.Table, error) {
	t, err := g.updatePricing(ctx, actorID, patch)
	return t, g.observe(ActionUpdatePricing, err)
}

func (g *AdminGateway) updatePricing(ctx context.Context, actorID string, patch pricing.Table) (pricing.Table, error) {
	const op = "admin." + ActionUpdatePricing
	actor, err := g.Authorize(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, failure.InvalidArgument(op, "pricing update is empty")
	}
	if err := pricing.ValidateTable(patch); err != nil {
		return nil, failure.InvalidArgument(op, err.Error())
	}

	stored, err := g.prices.Get(ctx)
	if err != nil {
		return nil, storeError(op, "pricing", err)
	}
	next := stored.Merge(patch)
	if err := g.prices.Put(ctx, next, g.clock.Now(), actor.UID); err != nil {
		return nil, storeError(op, "pricing", err)
	}
	g.logger.Info().Str("action", ActionUpdatePricing).Str("actor", actor.UID).Msg("pricing updated")
	return next, nil
}

// DiscountInput describes a new discount.
type DiscountInput struct {
	Name      string
	Percent   int
	StartDate time.Time
	EndDate   time.Time
	Tiers     []account.Tier
	// Active defaults to true when nil.
	Active *bool
}

// DiscountPatch changes selected fields of a discount. Nil fields are kept.
type DiscountPatch struct {
	Name      *string
	Percent   *int
	StartDate *time.Time
	EndDate   *time.Time
	Tiers     []account.Tier
	Active    *bool
}

// CreateDiscount validates and stores a new discount.
func (g *AdminGateway) CreateDiscount(ctx context.Context, actorID string, in DiscountInput) (pricing.Discount, error) {
	d, err := g.createDiscount(ctx, actorID, in)
	return d, g.observe(ActionCreateDiscount, err)
}

func (g *AdminGateway) createDiscount(ctx context.Context, actorID string, in DiscountInput) (pricing.Discount, error) {
	const op = "admin." + ActionCreateDiscount
	actor, err := g.Authorize(ctx, actorID)
	if err != nil {
		return pricing.Discount{}, err
	}

	now := g.clock.Now()
	d := pricing.Discount{
		ID:        g.ids.New(),
		Name:      strings.TrimSpace(in.Name),
		Percent:   in.Percent,
		StartDate: in.StartDate.UTC(),
		EndDate:   in.EndDate.UTC(),
		Tiers:     in.Tiers,
		Active:    in.Active == nil || *in.Active,
		CreatedAt: now,
		CreatedBy: actor.UID,
		UpdatedAt: now,
	}
	if err := pricing.ValidateDiscount(d); err != nil {
		return pricing.Discount{}, failure.InvalidArgument(op, err.Error())
	}
	if err := g.discounts.Create(ctx, d); err != nil {
		return pricing.Discount{}, storeError(op, "discount", err)
	}
	g.logger.Info().Str("action", ActionCreateDiscount).Str("actor", actor.UID).Str("discount", d.ID).Int("percent", d.Percent).Msg("discount created")
	return d, nil
}

// UpdateDiscount applies patch to an existing discount. Setting Active to
// false is how a discount is removed; discounts are never deleted.
func (g *AdminGateway) UpdateDiscount(ctx context.Context, actorID, id string, patch DiscountPatch) (pricing.Discount, error) {
	d, err := g.updateDiscount(ctx, actorID, id, patch)
	return d, g.observe(ActionUpdateDiscount, err)
}

// DeactivateDiscount soft-deletes a discount.
func (g *AdminGateway) DeactivateDiscount(ctx context.Context, actorID, id string) (pricing.Discount, error) {
	inactive := false
	return g.UpdateDiscount(ctx, actorID, id, DiscountPatch{Active: &inactive})
}

func (g *AdminGateway) updateDiscount(ctx context.Context, actorID, id string, patch DiscountPatch) (pricing.Discount, error) {
	const op = "admin." + ActionUpdateDiscount
	actor, err := g.Authorize(ctx, actorID)
	if err != nil {
		return pricing.Discount{}, err
	}
	if strings.TrimSpace(id) == "" {
		return pricing.Discount{}, failure.InvalidArgument(op, "discount id is required")
	}

	d, err := g.discounts.Get(ctx, id)
	if err != nil {
		return pricing.Discount{}, storeError(op, "discount", err)
	}
	if patch.Name != nil {
		d.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Percent != nil {
		d.Percent = *patch.Percent
	}
	if patch.StartDate != nil {
		d.StartDate = patch.StartDate.UTC()
	}
	if patch.EndDate != nil {
		d.EndDate = patch.EndDate.UTC()
	}
	if patch.Tiers != nil {
		d.Tiers = patch.Tiers
	}
	if patch.Active != nil {
		d.Active = *patch.Active
	}
	d.UpdatedAt = g.clock.Now()

	if err := pricing.ValidateDiscount(d); err != nil {
		return pricing.Discount{}, failure.InvalidArgument(op, err.Error())
	}
	if err := g.discounts.Update(ctx, d); err != nil {
		return pricing.Discount{}, storeError(op, "discount", err)
	}
	g.logger.Info().Str("action", ActionUpdateDiscount).Str("actor", actor.UID).Str("discount", d.ID).Bool("active", d.Active).Msg("discount updated")
	return d, nil
}

// ResetUsage zeroes the target's current-month message counter.
// An empty targetID resets the actor's own counter.
func (g *AdminGateway) ResetUsage(ctx context.Context, actorID, targetID string) (usage.Snapshot, error) {
	s, err := g.resetUsage(ctx, actorID, targetID)
	return s, g.observe(ActionResetUsage, err)
}

func (g *AdminGateway) resetUsage(ctx context.Context, actorID, targetID string) (usage.Snapshot, error) {
	const op = "admin." + ActionResetUsage
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return usage.Snapshot{}, err
	}
	if targetID == "" {
		targetID = actorID
	}
	if _, err := g.accounts.Get(ctx, targetID); err != nil {
		return usage.Snapshot{}, storeError(op, "account", err)
	}

	key := usage.MonthKey(g.clock.Now())
	if err := g.usage.Reset(ctx, targetID, key); err != nil {
		return usage.Snapshot{}, err
	}
	g.logger.Info().Str("action", ActionResetUsage).Str("actor", actorID).Str("uid", targetID).Str("month", key).Msg("usage reset")
	return g.usage.Get(ctx, targetID)
}

// ListAccounts returns accounts matching f with their usage attached.
func (g *AdminGateway) ListAccounts(ctx context.Context, actorID string, f ports.AccountFilter) ([]account.Account, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return nil, err
	}
	accts, err := g.accounts.List(ctx, f)
	if err != nil {
		return nil, storeError("admin.list_accounts", "account", err)
	}
	for i := range accts {
		counts, err := g.usage.Counts(ctx, accts[i].UID)
		if err != nil {
			return nil, err
		}
		accts[i].MessageCount = counts
	}
	return accts, nil
}

// ListDiscounts returns every discount, active or not.
func (g *AdminGateway) ListDiscounts(ctx context.Context, actorID string) ([]pricing.Discount, error) {
	if _, err := g.Authorize(ctx, actorID); err != nil {
		return nil, err
	}
	ds, err := g.discounts.List(ctx)
	if err != nil {
		return nil, storeError("admin.list_discounts", "discount", err)
	}
	return ds, nil
}

func (g *AdminGateway) observe(action string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = string(failure.KindOf(err))
		g.logger.Warn().Err(err).Str("action", action).Msg("admin action rejected")
	}
	g.metrics.AdminAction(action, outcome)
	return err
}

// AdminCommand is a single request to Execute, as received from the admin
// endpoint or the CLI.
type AdminCommand struct {
	Action        string
	ActorID       string
	TargetID      string
	Duration      string
	Tier          string
	Pricing       pricing.Table
	Discount      *DiscountInput
	DiscountID    string
	DiscountPatch *DiscountPatch
}

// AdminOutcome carries whichever record the action produced.
type AdminOutcome struct {
	Action   string
	Account  *account.Account
	Pricing  pricing.Table
	Discount *pricing.Discount
	Usage    *usage.Snapshot
}

// Execute dispatches cmd to the matching operation.
func (g *AdminGateway) Execute(ctx context.Context, cmd AdminCommand) (AdminOutcome, error) {
	out := AdminOutcome{Action: cmd.Action}
	var (
		acct account.Account
		err  error
	)
	switch cmd.Action {
	case ActionBan:
		acct, err = g.Ban(ctx, cmd.ActorID, cmd.TargetID)
	case ActionSuspend:
		acct, err = g.Suspend(ctx, cmd.ActorID, cmd.TargetID, cmd.Duration)
	case ActionReactivate:
		acct, err = g.Reactivate(ctx, cmd.ActorID, cmd.TargetID)
	case ActionChangeTier:
		acct, err = g.ChangeTier(ctx, cmd.ActorID, cmd.TargetID, cmd.Tier)
	case ActionUpdatePricing:
		out.Pricing, err = g.UpdatePricing(ctx, cmd.ActorID, cmd.Pricing)
		return out, err
	case ActionCreateDiscount:
		if cmd.Discount == nil {
			return out, failure.InvalidArgument("admin."+cmd.Action, "discount is required")
		}
		d, err := g.CreateDiscount(ctx, cmd.ActorID, *cmd.Discount)
		if err == nil {
			out.Discount = &d
		}
		return out, err
	case ActionUpdateDiscount:
		var patch DiscountPatch
		if cmd.DiscountPatch != nil {
			patch = *cmd.DiscountPatch
		}
		d, err := g.UpdateDiscount(ctx, cmd.ActorID, cmd.DiscountID, patch)
		if err == nil {
			out.Discount = &d
		}
		return out, err
	case ActionResetUsage:
		s, err := g.ResetUsage(ctx, cmd.ActorID, cmd.TargetID)
		if err == nil {
			out.Usage = &s
		}
		return out, err
	default:
		return out, failure.InvalidArgument("admin.execute", "invalid action "+cmd.Action)
	}
	if err == nil {
		out.Account = &acct
	}
	return out, err
}
