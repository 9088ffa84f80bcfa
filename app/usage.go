package app

import (
	"context"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/usage"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// UsageCounter reads and advances month-bucketed message counters.
// Increments rely on the store's atomic primitive and are at-least-once:
// a caller retrying after an ambiguous failure may count a message twice.
type UsageCounter struct {
	usage    ports.UsageStore
	accounts ports.AccountStore
	clock    ports.Clock
	metrics  ports.Metrics
	logger   zerolog.Logger
}

// UsageDeps contains dependencies for UsageCounter.
type UsageDeps struct {
	Usage    ports.UsageStore
	Accounts ports.AccountStore
	Clock    ports.Clock
	Metrics  ports.Metrics
	Logger   zerolog.Logger
}

// NewUsageCounter creates a new usage counter.
func NewUsageCounter(deps UsageDeps) *UsageCounter {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &UsageCounter{
		usage:    deps.Usage,
		accounts: deps.Accounts,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Get returns the current-month count and lifetime total for uid.
func (c *UsageCounter) Get(ctx context.Context, uid string) (usage.Snapshot, error) {
	counts, err := c.Counts(ctx, uid)
	if err != nil {
		return usage.Snapshot{}, err
	}
	return usage.Summarize(uid, counts, c.clock.Now()), nil
}

// Counts returns every month counter for uid.
func (c *UsageCounter) Counts(ctx context.Context, uid string) (map[string]int64, error) {
	counts, err := c.usage.Counts(ctx, uid)
	if err != nil {
		return nil, storeError("usage.counts", "usage", err)
	}
	return counts, nil
}

// CurrentCount returns only the current-month count.
func (c *UsageCounter) CurrentCount(ctx context.Context, uid string) (int64, error) {
	snap, err := c.Get(ctx, uid)
	return snap.Count, err
}

// Increment records one message for uid in the current month and returns
// the post-increment count with its month key. LastMessageAt is refreshed
// on a best-effort basis.
func (c *UsageCounter) Increment(ctx context.Context, uid string, tier account.Tier) (int64, string, error) {
	now := c.clock.Now()
	key := usage.MonthKey(now)

	n, err := c.usage.Increment(ctx, uid, key)
	if err != nil {
		return 0, key, storeError("usage.increment", "usage", err)
	}
	c.metrics.UsageIncrement(string(tier))

	if err := c.accounts.TouchMessage(ctx, uid, now); err != nil {
		c.logger.Warn().Err(err).Str("uid", uid).Msg("failed to record last message time")
	}
	return n, key, nil
}

// Reserve claims one message of the current month for uid before any work
// is done for it. With a limit the claim only succeeds while the count is
// below it; entitlement.Unlimited always succeeds. The post-claim count and
// month key are returned, and ok is false when the limit was already met.
func (c *UsageCounter) Reserve(ctx context.Context, uid string, tier account.Tier, limit int64) (n int64, key string, ok bool, err error) {
	if limit == entitlement.Unlimited {
		n, key, err = c.Increment(ctx, uid, tier)
		return n, key, err == nil, err
	}

	now := c.clock.Now()
	key = usage.MonthKey(now)
	n, ok, err = c.usage.Reserve(ctx, uid, key, limit)
	if err != nil {
		return 0, key, false, storeError("usage.reserve", "usage", err)
	}
	if !ok {
		return n, key, false, nil
	}
	c.metrics.UsageIncrement(string(tier))

	if err := c.accounts.TouchMessage(ctx, uid, now); err != nil {
		c.logger.Warn().Err(err).Str("uid", uid).Msg("failed to record last message time")
	}
	return n, key, true, nil
}

// Release returns a reserved message for monthKey.
func (c *UsageCounter) Release(ctx context.Context, uid, monthKey string) error {
	if err := c.usage.Release(ctx, uid, monthKey); err != nil {
		return storeError("usage.release", "usage", err)
	}
	return nil
}

// Reset zeroes the counter for monthKey. The key itself is kept.
func (c *UsageCounter) Reset(ctx context.Context, uid, monthKey string) error {
	const op = "usage.reset"
	if _, err := usage.ParseMonthKey(monthKey); err != nil {
		return failure.InvalidArgument(op, "month key must be YYYY-MM")
	}
	if err := c.usage.Reset(ctx, uid, monthKey); err != nil {
		return storeError(op, "usage", err)
	}
	return nil
}
