package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/chat"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// End-to-end chat scenarios
// -----------------------------------------------------------------------------

func TestChat_FreeTierQuotaAcrossMonthRollover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)
	env.memUsage.Seed("u1", "2024-06", 49)

	// 50th message of the month is allowed and counted.
	res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hi"})
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
	assert.Equal(t, int64(50), res.Count)
	assert.Equal(t, "2024-06", res.MonthKey)
	assert.Equal(t, int64(0), res.Decision.Remaining)

	// 51st is refused before generation.
	calls := env.generator.calls.Load()
	res, err = env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "again"})
	require.NoError(t, err)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, entitlement.ReasonQuotaExceeded, res.Decision.Reason)
	assert.Equal(t, calls, env.generator.calls.Load(), "generator must not run on denial")
	assert.Empty(t, res.Reply)

	// A new month starts a new bucket.
	env.clock.Set(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	res, err = env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "july"})
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, "2024-07", res.MonthKey)

	snap, err := env.counter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Count)
	assert.Equal(t, int64(51), snap.Lifetime)
}

func TestChat_SuspensionExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "admin", account.RoleAdmin, account.TierFree)
	env.seed(t, "u1", account.RoleUser, account.TierPro)

	_, err := env.admin.Suspend(ctx, "admin", "u1", "7d")
	require.NoError(t, err)

	env.clock.Advance(6 * 24 * time.Hour)
	res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hello"})
	require.NoError(t, err)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, entitlement.ReasonSuspended, res.Decision.Reason)
	assert.Contains(t, res.Decision.Message, "2024-06-27T12:00:00Z")

	env.clock.Advance(2 * 24 * time.Hour)
	res, err = env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Decision.Allowed)

	stored, err := env.accounts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, account.StatusSuspended, stored.Status, "expiry is never written back")
}

func TestChat_BannedAdminIsDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	target := env.seed(t, "admin2", account.RoleAdmin, account.TierPlus)

	_, err := env.accounts.Update(ctx, account.Ban(target, env.clock.Now()))
	require.NoError(t, err)

	res, err := env.chat.Send(ctx, app.ChatRequest{UID: "admin2", Message: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, entitlement.ReasonBanned, res.Decision.Reason)
}

// -----------------------------------------------------------------------------
// Generation and counting
// -----------------------------------------------------------------------------

func TestChat_PassesBudgetAndPriority(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", account.RoleUser, account.TierPlus)

	res, err := env.chat.Send(context.Background(), app.ChatRequest{
		UID:     "u1",
		Message: "write a function that reverses a string",
		History: []chat.Message{{Role: "user", Content: "earlier"}},
		Feature: entitlement.FeatureLongContext,
	})
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)

	env.generator.mu.Lock()
	last := env.generator.last
	env.generator.mu.Unlock()
	assert.Equal(t, 8000, last.MaxChars)
	assert.Equal(t, string(entitlement.PriorityHigh), last.Priority)
	assert.Contains(t, last.Prompt, "earlier")
	assert.Contains(t, last.Prompt, "premium mode")
	assert.Equal(t, "stub", res.Model)
}

func TestChat_TruncatesLowPriorityReply(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", account.RoleUser, account.TierFree)
	env.generator.set(strings.Repeat("a", 1500), nil)

	res, err := env.chat.Send(context.Background(), app.ChatRequest{UID: "u1", Message: "long please"})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Reply, strings.Repeat("a", 997)+"..."))
	assert.Contains(t, res.Reply, chat.UpgradeHint)
}

func TestChat_GenerationFailureDoesNotCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)
	env.generator.set("", errors.New("provider 500"))

	res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrUpstreamGeneration)
	assert.True(t, res.Decision.Allowed)

	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Retryable())

	snap, err := env.counter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Count)
}

func TestChat_UsageWriteFailureFailsClosed(t *testing.T) {
	for _, tier := range []account.Tier{account.TierFree, account.TierPro} {
		t.Run(string(tier), func(t *testing.T) {
			env := newTestEnv(t, withUsage(func(s ports.UsageStore) ports.UsageStore {
				return failingUsage{UsageStore: s, failWrites: true}
			}))
			env.seed(t, "u1", account.RoleUser, tier)

			res, err := env.chat.Send(context.Background(), app.ChatRequest{UID: "u1", Message: "hi"})
			assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
			assert.False(t, res.Decision.Allowed)
			assert.Equal(t, entitlement.ReasonStoreUnavailable, res.Decision.Reason)
			assert.Empty(t, res.Reply)
			assert.Zero(t, env.generator.calls.Load())
		})
	}
}

func TestChat_CeilingHoldsWhileGenerationInFlight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)
	env.memUsage.Seed("u1", "2024-06", 49)

	// Every allowed request parks inside the generator until released.
	env.generator.mu.Lock()
	locked := true
	defer func() {
		if locked {
			env.generator.mu.Unlock()
		}
	}()

	const n = 10
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
		denied  atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hi"})
			assert.NoError(t, err)
			if res.Decision.Allowed {
				allowed.Add(1)
				return
			}
			assert.Equal(t, entitlement.ReasonQuotaExceeded, res.Decision.Reason)
			denied.Add(1)
		}()
	}

	require.Eventually(t, func() bool {
		return denied.Load() == n-1
	}, 2*time.Second, 5*time.Millisecond, "all but one request must be refused before generation completes")
	assert.Equal(t, int32(1), env.generator.calls.Load())

	env.generator.mu.Unlock()
	locked = false
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
	got, err := env.counter.CurrentCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(entitlement.FreeMonthlyCeiling), got)
}

func TestChat_FailedGenerationReleasesLastSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)
	env.memUsage.Seed("u1", "2024-06", 49)

	env.generator.set("", errors.New("provider 503"))
	_, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hi"})
	require.ErrorIs(t, err, failure.ErrUpstreamGeneration)

	env.generator.set("ok", nil)
	res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "retry"})
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
	assert.Equal(t, int64(50), res.Count)
	assert.Equal(t, int64(0), res.Decision.Remaining)
}

func TestChat_ConcurrentSendsCountEveryMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierPro)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.chat.Send(ctx, app.ChatRequest{UID: "u1", Message: "hi"})
			assert.NoError(t, err)
			assert.True(t, res.Decision.Allowed)
		}()
	}
	wg.Wait()

	snap, err := env.counter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), snap.Count)

	stored, err := env.accounts.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageAt)
}

// -----------------------------------------------------------------------------
// Entitlement service
// -----------------------------------------------------------------------------

func TestEntitlement_FailsClosedWhenUsageUnreadable(t *testing.T) {
	env := newTestEnv(t, withUsage(func(s ports.UsageStore) ports.UsageStore {
		return failingUsage{UsageStore: s, failCounts: true}
	}))
	env.seed(t, "u1", account.RoleUser, account.TierPlus)

	d, _, err := env.entitlements.Check(context.Background(), "u1", entitlement.FeatureChat)
	assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
	assert.False(t, d.Allowed)
	assert.Equal(t, entitlement.ReasonStoreUnavailable, d.Reason)

	res, err := env.chat.Send(context.Background(), app.ChatRequest{UID: "u1", Message: "hi"})
	assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
	assert.False(t, res.Decision.Allowed)
	assert.Zero(t, env.generator.calls.Load())
}

func TestEntitlement_MissingAccount(t *testing.T) {
	env := newTestEnv(t)
	d, _, err := env.entitlements.Check(context.Background(), "ghost", entitlement.FeatureChat)
	assert.ErrorIs(t, err, failure.ErrNotFound)
	assert.False(t, d.Allowed)
}

func TestEntitlement_FeatureNotInTier(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", account.RoleUser, account.TierPro)

	d, _, err := env.entitlements.Check(context.Background(), "u1", entitlement.FeatureFileUpload)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, entitlement.ReasonFeatureNotInTier, d.Reason)

	d, _, err = env.entitlements.Check(context.Background(), "u1", entitlement.FeatureVoiceInput)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4000, d.ResponseBudgetChars)
}

func TestEntitlement_CheckDoesNotCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)

	for i := 0; i < 3; i++ {
		_, _, err := env.entitlements.Check(ctx, "u1", entitlement.FeatureChat)
		require.NoError(t, err)
	}
	snap, err := env.counter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, snap.Count)
}

// -----------------------------------------------------------------------------
// Usage counter
// -----------------------------------------------------------------------------

func TestUsageCounter_ConcurrentIncrements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", account.RoleUser, account.TierFree)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.counter.Increment(ctx, "u1", account.TierFree)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.counter.CurrentCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got)
}

func TestUsageCounter_ResetValidatesKey(t *testing.T) {
	env := newTestEnv(t)
	err := env.counter.Reset(context.Background(), "u1", "June")
	assert.ErrorIs(t, err, failure.ErrInvalidArgument)
}
