package app

import (
	"context"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/usage"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EntitlementService loads the inputs of an entitlement decision and
// resolves it. The same path serves advisory pre-flight checks and
// enforcement before generation.
type EntitlementService struct {
	accounts ports.AccountStore
	usage    ports.UsageStore
	clock    ports.Clock
	metrics  ports.Metrics
	logger   zerolog.Logger
}

// EntitlementDeps contains dependencies for EntitlementService.
type EntitlementDeps struct {
	Accounts ports.AccountStore
	Usage    ports.UsageStore
	Clock    ports.Clock
	Metrics  ports.Metrics
	Logger   zerolog.Logger
}

// NewEntitlementService creates a new entitlement service.
func NewEntitlementService(deps EntitlementDeps) *EntitlementService {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &EntitlementService{
		accounts: deps.Accounts,
		usage:    deps.Usage,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Check decides whether uid may use feature right now.
//
// The decision is always returned. A missing account yields a NotFound
// error; an unreadable store yields a StoreUnavailable error together with
// the fail-closed decision.
func (s *EntitlementService) Check(ctx context.Context, uid string, feature entitlement.Feature) (entitlement.Decision, account.Account, error) {
	const op = "entitlement.check"
	now := s.clock.Now()

	var (
		acct   account.Account
		counts map[string]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.accounts.Get(gctx, uid)
		acct = a
		return err
	})
	g.Go(func() error {
		c, err := s.usage.Counts(gctx, uid)
		counts = c
		return err
	})

	if err := g.Wait(); err != nil {
		d := entitlement.StoreUnavailable(feature)
		ferr := storeError(op, "account", err)
		if failure.KindOf(ferr) == failure.KindNotFound {
			d.Reason = ""
			d.Message = "account not found"
		} else {
			s.logger.Error().Err(err).Str("uid", uid).Msg("entitlement inputs unavailable")
		}
		s.record(d)
		return d, account.Account{}, ferr
	}

	acct.MessageCount = counts
	d := s.Decide(acct, feature, now)
	return d, acct, nil
}

// Decide resolves an already-loaded account at now.
func (s *EntitlementService) Decide(acct account.Account, feature entitlement.Feature, now time.Time) entitlement.Decision {
	used := usage.CountFor(acct.MessageCount, usage.MonthKey(now))
	d := entitlement.Resolve(acct, feature, used, now)
	s.record(d)
	if !d.Allowed {
		s.logger.Debug().
			Str("uid", acct.UID).
			Str("feature", string(feature)).
			Str("reason", string(d.Reason)).
			Msg("entitlement denied")
	}
	return d
}

func (s *EntitlementService) record(d entitlement.Decision) {
	if d.Reason == "" {
		return
	}
	s.metrics.EntitlementDecision(string(d.Reason), d.Allowed)
}
