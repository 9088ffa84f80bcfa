package app

import (
	"context"
	"time"

	"github.com/RayBen445/ChatBot/domain/chat"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// ChatService runs one chat turn: enforce, generate, count.
type ChatService struct {
	entitlements *EntitlementService
	usage        *UsageCounter
	generator    ports.Generator
	clock        ports.Clock
	metrics      ports.Metrics
	logger       zerolog.Logger

	timeout time.Duration
}

// ChatDeps contains dependencies for ChatService.
type ChatDeps struct {
	Entitlements *EntitlementService
	Usage        *UsageCounter
	Generator    ports.Generator
	Clock        ports.Clock
	Metrics      ports.Metrics
	Logger       zerolog.Logger
}

// ChatConfig contains configuration for ChatService.
type ChatConfig struct {
	// GenerationTimeout bounds one provider call. Zero means 60s.
	GenerationTimeout time.Duration
}

// NewChatService creates a new chat service.
func NewChatService(deps ChatDeps, cfg ChatConfig) *ChatService {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 60 * time.Second
	}
	return &ChatService{
		entitlements: deps.Entitlements,
		usage:        deps.Usage,
		generator:    deps.Generator,
		clock:        deps.Clock,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		timeout:      cfg.GenerationTimeout,
	}
}

// ChatRequest is one user turn.
type ChatRequest struct {
	UID     string
	Message string
	History []chat.Message
	Feature entitlement.Feature
}

// ChatResult is the outcome of a turn. When Decision.Allowed is false no
// generation happened and Reply is empty.
type ChatResult struct {
	Decision  entitlement.Decision
	Reply     string
	Truncated bool
	Model     string
	Count     int64
	MonthKey  string
}

// Send enforces the entitlement, reserves the message against the monthly
// ceiling, generates a reply within the response budget and returns it.
// The reservation is taken before the provider runs, so concurrent sessions
// cannot push the count past the ceiling. It is released again when
// generation fails.
//
// A denial is not an error: the result carries the decision.
func (s *ChatService) Send(ctx context.Context, req ChatRequest) (ChatResult, error) {
	const op = "chat.send"
	if req.Feature == "" {
		req.Feature = entitlement.FeatureChat
	}

	d, acct, err := s.entitlements.Check(ctx, req.UID, req.Feature)
	if err != nil {
		return ChatResult{Decision: d}, err
	}
	res := ChatResult{Decision: d, Count: d.Used}
	if !d.Allowed {
		return res, nil
	}

	n, key, ok, err := s.usage.Reserve(ctx, req.UID, acct.Tier, d.Limit)
	res.MonthKey = key
	if err != nil {
		s.logger.Error().Err(err).Str("uid", req.UID).Msg("failed to reserve message usage")
		res.Decision = entitlement.StoreUnavailable(req.Feature)
		return res, err
	}
	res.Count = n
	if !ok {
		res.Decision = entitlement.QuotaExceeded(d, n)
		s.entitlements.record(res.Decision)
		return res, nil
	}
	if d.Limit != entitlement.Unlimited {
		res.Decision.Used = n
		res.Decision.Remaining = max(d.Limit-n, 0)
	}

	prompt := chat.Build(req.Message, req.History, chat.Profile{DisplayName: acct.DisplayName, Email: acct.Email}, d)

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	out, err := s.generator.Generate(gctx, ports.GenerationRequest{
		Prompt:   prompt,
		MaxChars: d.ResponseBudgetChars,
		Priority: string(d.Priority),
	})
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		s.metrics.Generation("error", elapsed)
		s.logger.Error().Err(err).Str("uid", req.UID).Msg("generation failed")
		if rerr := s.usage.Release(context.WithoutCancel(ctx), req.UID, key); rerr != nil {
			s.logger.Warn().Err(rerr).Str("uid", req.UID).Str("month", key).Msg("failed to release reserved message")
		} else {
			res.Count = d.Used
			res.Decision = d
		}
		return res, failure.UpstreamGeneration(op, err)
	}
	s.metrics.Generation("ok", elapsed)

	res.Reply, res.Truncated = chat.Truncate(out.Text, d.ResponseBudgetChars, d.Priority)
	res.Model = out.Model
	return res, nil
}
