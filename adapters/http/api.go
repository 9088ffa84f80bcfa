package http

import (
	"net/http"

	"github.com/RayBen445/ChatBot/adapters/auth"
	"github.com/RayBen445/ChatBot/adapters/http/view"
	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/chat"
	"github.com/RayBen445/ChatBot/domain/entitlement"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/pkg/respond"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// APIHandler serves the end-user API under /api.
type APIHandler struct {
	accounts     *app.AccountService
	entitlements *app.EntitlementService
	chat         *app.ChatService
	usage        *app.UsageCounter
	pricing      *app.PricingEngine
	admin        *app.AdminGateway
	verifier     ports.IdentityVerifier
	authFailures auth.FailureRecorder
	clock        ports.Clock
	logger       zerolog.Logger
}

// APIDeps contains dependencies for the API handler.
type APIDeps struct {
	Accounts     *app.AccountService
	Entitlements *app.EntitlementService
	Chat         *app.ChatService
	Usage        *app.UsageCounter
	Pricing      *app.PricingEngine
	Admin        *app.AdminGateway
	Verifier     ports.IdentityVerifier
	AuthFailures auth.FailureRecorder // Optional
	Clock        ports.Clock
	Logger       zerolog.Logger
}

// NewAPIHandler creates the end-user API handler.
func NewAPIHandler(deps APIDeps) *APIHandler {
	return &APIHandler{
		accounts:     deps.Accounts,
		entitlements: deps.Entitlements,
		chat:         deps.Chat,
		usage:        deps.Usage,
		pricing:      deps.Pricing,
		admin:        deps.Admin,
		verifier:     deps.Verifier,
		authFailures: deps.AuthFailures,
		clock:        deps.Clock,
		logger:       deps.Logger,
	}
}

// Router returns the chi router for /api.
func (h *APIHandler) Router() chi.Router {
	r := chi.NewRouter()

	// Public catalog and prices
	r.Get("/features", h.Features)
	r.Get("/pricing", h.Pricing)
	r.Get("/pricing/{tier}", h.TierPricing)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.verifier, h.logger, h.authFailures))

		r.Post("/session", h.Session)
		r.Get("/entitlements", h.Entitlements)
		r.Post("/chat", h.Chat)
		r.Get("/messages", h.Messages)
		r.Post("/messages", h.UpdateMessages)
	})

	return r
}

// identity returns the verified caller or writes 401.
func identity(w http.ResponseWriter, r *http.Request) (ports.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthenticated", "identity token required")
	}
	return id, ok
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

type sessionResponse struct {
	Account view.Account `json:"account"`
	Created bool         `json:"created"`
}

// Session creates the caller's account on first sign-in and touches it afterwards.
func (h *APIHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	a, created, err := h.accounts.EnsureAccount(r.Context(), id)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.JSON(w, status, sessionResponse{
		Account: view.FromAccount(a, h.clock.Now()),
		Created: created,
	})
}

// -----------------------------------------------------------------------------
// Entitlements and chat
// -----------------------------------------------------------------------------

// Entitlements returns the advisory decision for ?feature= (default chat).
// A denial is still 200; only enforcement in Chat refuses the request.
func (h *APIHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	feature := entitlement.ParseFeature(r.URL.Query().Get("feature"))
	d, _, err := h.entitlements.Check(r.Context(), id.UID, feature)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, view.FromDecision(d))
}

type chatRequest struct {
	Message     string         `json:"message" validate:"required,max=20000"`
	ChatHistory []chat.Message `json:"chatHistory" validate:"max=100,dive"`
	Feature     string         `json:"feature"`
}

type chatUsage struct {
	MessageCount int64  `json:"messageCount"`
	CurrentMonth string `json:"currentMonth,omitempty"`
	Limit        *int64 `json:"limit,omitempty"`
	Remaining    *int64 `json:"remaining,omitempty"`
}

type chatResponse struct {
	Message           string                `json:"message"`
	MaxResponseLength int                   `json:"maxResponseLength"`
	PriorityClass     entitlement.Priority  `json:"priorityClass"`
	FeatureFlags      []entitlement.Feature `json:"featureFlags"`
	Truncated         bool                  `json:"truncated"`
	Model             string                `json:"model,omitempty"`
	Usage             chatUsage             `json:"usage"`
}

type denialResponse struct {
	Error       respond.ErrorDetail `json:"error"`
	Entitlement view.Decision       `json:"entitlement"`
}

// Chat enforces the entitlement, generates a reply and counts the message.
func (h *APIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Failure(w, err)
		return
	}

	res, err := h.chat.Send(r.Context(), app.ChatRequest{
		UID:     id.UID,
		Message: req.Message,
		History: req.ChatHistory,
		Feature: entitlement.ParseFeature(req.Feature),
	})
	if err != nil {
		respond.Failure(w, err)
		return
	}
	if !res.Decision.Allowed {
		respond.JSON(w, http.StatusForbidden, denialResponse{
			Error:       respond.ErrorDetail{Code: string(res.Decision.Reason), Message: res.Decision.Message},
			Entitlement: view.FromDecision(res.Decision),
		})
		return
	}

	dv := view.FromDecision(res.Decision)
	respond.JSON(w, http.StatusOK, chatResponse{
		Message:           res.Reply,
		MaxResponseLength: dv.MaxResponseLength,
		PriorityClass:     dv.PriorityClass,
		FeatureFlags:      dv.FeatureFlags,
		Truncated:         res.Truncated,
		Model:             res.Model,
		Usage: chatUsage{
			MessageCount: res.Count,
			CurrentMonth: res.MonthKey,
			Limit:        dv.Limit,
			Remaining:    dv.Remaining,
		},
	})
}

// -----------------------------------------------------------------------------
// Message counters
// -----------------------------------------------------------------------------

// Messages returns the caller's message counters.
func (h *APIHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if _, err := h.accounts.Get(r.Context(), id.UID); err != nil {
		respond.Failure(w, err)
		return
	}
	snap, err := h.usage.Get(r.Context(), id.UID)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, view.FromSnapshot(snap))
}

type messagesRequest struct {
	Action string `json:"action" validate:"required,oneof=increment reset"`
	UserID string `json:"userId"`
}

// UpdateMessages increments the caller's counter or, for admins, resets a
// user's current-month counter.
func (h *APIHandler) UpdateMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req messagesRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Failure(w, err)
		return
	}

	switch req.Action {
	case "reset":
		snap, err := h.admin.ResetUsage(r.Context(), id.UID, req.UserID)
		if err != nil {
			respond.Failure(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, view.FromSnapshot(snap))

	default:
		a, err := h.accounts.Get(r.Context(), id.UID)
		if err != nil {
			respond.Failure(w, err)
			return
		}
		if state := account.Effective(a, h.clock.Now()); state != account.StateActive {
			respond.Error(w, http.StatusForbidden, string(state), "account is "+string(state))
			return
		}
		n, key, err := h.usage.Increment(r.Context(), id.UID, a.Tier)
		if err != nil {
			respond.Failure(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"messageCount": n,
			"currentMonth": key,
		})
	}
}

// -----------------------------------------------------------------------------
// Public catalog
// -----------------------------------------------------------------------------

type tierFeatures struct {
	Tier              account.Tier                      `json:"tier"`
	FeatureFlags      []entitlement.Feature             `json:"featureFlags"`
	MaxResponseLength int                               `json:"maxResponseLength"`
	PriorityClass     entitlement.Priority              `json:"priorityClass"`
	MonthlyLimit      *int64                            `json:"monthlyLimit,omitempty"`
	HistoryDays       int                               `json:"historyDays"`
	ContextMessages   int                               `json:"contextMessages"`
	Capabilities      map[string]entitlement.Capability `json:"capabilities"`
}

func featuresFor(t account.Tier) tierFeatures {
	p := entitlement.ProfileFor(t)
	out := tierFeatures{
		Tier:              t,
		FeatureFlags:      p.Features,
		MaxResponseLength: p.ResponseBudgetChars,
		PriorityClass:     p.Priority,
		HistoryDays:       p.HistoryDays,
		ContextMessages:   p.ContextMessages,
		Capabilities:      view.Capabilities(t),
	}
	if p.MonthlyCeiling != entitlement.Unlimited {
		limit := p.MonthlyCeiling
		out.MonthlyLimit = &limit
	}
	return out
}

// Features returns the capability catalog for ?tier=, or for every tier.
func (h *APIHandler) Features(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("tier"); raw != "" {
		t, err := account.ParseTier(raw)
		if err != nil {
			respond.Failure(w, failure.InvalidArgument("http.features", "unknown tier "+raw))
			return
		}
		respond.JSON(w, http.StatusOK, featuresFor(t))
		return
	}
	all := make([]tierFeatures, 0, len(account.Tiers))
	for _, t := range account.Tiers {
		all = append(all, featuresFor(t))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"tiers": all})
}

func currencyParam(r *http.Request) (pricing.Currency, error) {
	raw := r.URL.Query().Get("currency")
	if raw == "" {
		return pricing.USD, nil
	}
	c, err := pricing.ParseCurrency(raw)
	if err != nil {
		return "", failure.InvalidArgument("http.pricing", "unsupported currency "+raw)
	}
	return c, nil
}

// Pricing quotes every tier in ?currency= (default USD).
func (h *APIHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	c, err := currencyParam(r)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	quotes, err := h.pricing.QuoteAll(r.Context(), c)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	out := make([]view.Quote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, view.FromQuote(q))
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"currency":  c,
		"quotes":    out,
		"discounts": view.Discounts(h.pricing.ActiveDiscounts(r.Context())),
	})
}

// TierPricing quotes one tier in ?currency= (default USD).
func (h *APIHandler) TierPricing(w http.ResponseWriter, r *http.Request) {
	c, err := currencyParam(r)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	t, err := account.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		respond.Failure(w, failure.InvalidArgument("http.pricing", "unknown tier "+chi.URLParam(r, "tier")))
		return
	}
	q, err := h.pricing.Quote(r.Context(), t, c)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, view.FromQuote(q))
}
