package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RayBen445/ChatBot/adapters/clock"
	"github.com/RayBen445/ChatBot/adapters/idgen"
	"github.com/RayBen445/ChatBot/adapters/memory"
	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

var errStoreDown = errors.New("store down")

// testEnv wires every service against in-memory stores.
type testEnv struct {
	clock     *clock.Fake
	accounts  ports.AccountStore
	usage     ports.UsageStore
	prices    ports.PricingStore
	discounts ports.DiscountStore
	generator *stubGenerator
	metrics   *recordingMetrics

	memUsage *memory.UsageStore

	accountSvc   *app.AccountService
	counter      *app.UsageCounter
	pricing      *app.PricingEngine
	entitlements *app.EntitlementService
	chat         *app.ChatService
	admin        *app.AdminGateway
}

type envOption func(*testEnv)

func withAccounts(fn func(ports.AccountStore) ports.AccountStore) envOption {
	return func(e *testEnv) { e.accounts = fn(e.accounts) }
}

func withUsage(fn func(ports.UsageStore) ports.UsageStore) envOption {
	return func(e *testEnv) { e.usage = fn(e.usage) }
}

func withPrices(s ports.PricingStore) envOption {
	return func(e *testEnv) { e.prices = s }
}

func withDiscounts(fn func(ports.DiscountStore) ports.DiscountStore) envOption {
	return func(e *testEnv) { e.discounts = fn(e.discounts) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	memUsage := memory.NewUsageStore(8)
	e := &testEnv{
		clock:     clock.NewFake(baseTime),
		accounts:  memory.NewAccountStore(),
		usage:     memUsage,
		prices:    memory.NewPricingStore(),
		discounts: memory.NewDiscountStore(),
		generator: &stubGenerator{reply: "Hello from the model."},
		metrics:   newRecordingMetrics(),
		memUsage:  memUsage,
	}
	for _, opt := range opts {
		opt(e)
	}

	logger := zerolog.Nop()
	e.accountSvc = app.NewAccountService(app.AccountDeps{
		Accounts: e.accounts,
		Usage:    e.usage,
		Clock:    e.clock,
		Logger:   logger,
	}, app.AccountConfig{AdminEmails: []string{"root@mindbot.dev"}})
	e.counter = app.NewUsageCounter(app.UsageDeps{
		Usage:    e.usage,
		Accounts: e.accounts,
		Clock:    e.clock,
		Metrics:  e.metrics,
		Logger:   logger,
	})
	e.pricing = app.NewPricingEngine(app.PricingDeps{
		Prices:    e.prices,
		Discounts: e.discounts,
		Clock:     e.clock,
		Metrics:   e.metrics,
		Logger:    logger,
	}, app.PricingConfig{})
	e.entitlements = app.NewEntitlementService(app.EntitlementDeps{
		Accounts: e.accounts,
		Usage:    e.usage,
		Clock:    e.clock,
		Metrics:  e.metrics,
		Logger:   logger,
	})
	e.chat = app.NewChatService(app.ChatDeps{
		Entitlements: e.entitlements,
		Usage:        e.counter,
		Generator:    e.generator,
		Clock:        e.clock,
		Metrics:      e.metrics,
		Logger:       logger,
	}, app.ChatConfig{GenerationTimeout: time.Second})
	e.admin = app.NewAdminGateway(app.AdminDeps{
		Accounts:  e.accounts,
		Usage:     e.counter,
		Prices:    e.prices,
		Discounts: e.discounts,
		Clock:     e.clock,
		IDGen:     idgen.NewSequential("disc_"),
		Metrics:   e.metrics,
		Logger:    logger,
	}, app.AdminConfig{})
	return e
}

// seed creates an account directly in the store with the given role and tier.
func (e *testEnv) seed(t *testing.T, uid string, role account.Role, tier account.Tier) account.Account {
	t.Helper()
	ctx := context.Background()
	a, _, err := e.accounts.CreateIfAbsent(ctx, account.New(uid, uid+"@example.com", "", role, e.clock.Now()))
	require.NoError(t, err)
	if tier != account.TierFree {
		a, err = e.accounts.Update(ctx, account.ChangeTier(a, tier, e.clock.Now()))
		require.NoError(t, err)
	}
	return a
}

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls atomic.Int32
	last  ports.GenerationRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	g.calls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = req
	if g.err != nil {
		return ports.GenerationResult{}, g.err
	}
	return ports.GenerationResult{Text: g.reply, Model: "stub"}, nil
}

func (g *stubGenerator) set(reply string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reply, g.err = reply, err
}

type recordingMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	admin     map[string]int
	usage     int
	fallbacks map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		decisions: map[string]int{},
		admin:     map[string]int{},
		fallbacks: map[string]int{},
	}
}

func (m *recordingMetrics) EntitlementDecision(reason string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[reason]++
}

func (m *recordingMetrics) UsageIncrement(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage++
}

func (m *recordingMetrics) AdminAction(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin[action+"/"+outcome]++
}

func (m *recordingMetrics) Generation(string, time.Duration) {}

func (m *recordingMetrics) PricingFallback(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[source]++
}

func (m *recordingMetrics) adminCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admin[key]
}

func (m *recordingMetrics) fallbackCount(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbacks[source]
}

// failingUsage fails reads and/or writes.
type failingUsage struct {
	ports.UsageStore
	failCounts bool
	failWrites bool
}

func (f failingUsage) Counts(ctx context.Context, uid string) (map[string]int64, error) {
	if f.failCounts {
		return nil, errStoreDown
	}
	return f.UsageStore.Counts(ctx, uid)
}

func (f failingUsage) Increment(ctx context.Context, uid, monthKey string) (int64, error) {
	if f.failWrites {
		return 0, errStoreDown
	}
	return f.UsageStore.Increment(ctx, uid, monthKey)
}

func (f failingUsage) Reserve(ctx context.Context, uid, monthKey string, limit int64) (int64, bool, error) {
	if f.failWrites {
		return 0, false, errStoreDown
	}
	return f.UsageStore.Reserve(ctx, uid, monthKey, limit)
}

// conflictingAccounts reports a version conflict on the first n updates.
type conflictingAccounts struct {
	ports.AccountStore
	remaining atomic.Int32
}

func (c *conflictingAccounts) Update(ctx context.Context, a account.Account) (account.Account, error) {
	if c.remaining.Add(-1) >= 0 {
		return account.Account{}, ports.ErrConflict
	}
	return c.AccountStore.Update(ctx, a)
}

// downAccounts fails every read.
type downAccounts struct {
	ports.AccountStore
}

func (downAccounts) Get(context.Context, string) (account.Account, error) {
	return account.Account{}, errStoreDown
}

type downPrices struct{}

func (downPrices) Get(context.Context) (pricing.Table, error) { return nil, errStoreDown }

func (downPrices) Put(context.Context, pricing.Table, time.Time, string) error { return errStoreDown }

type downDiscounts struct {
	ports.DiscountStore
}

func (downDiscounts) List(context.Context) ([]pricing.Discount, error) { return nil, errStoreDown }
