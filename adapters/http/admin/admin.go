// Package admin provides HTTP handlers for the Admin API.
//
// Every endpoint requires a verified identity token. Authorization is
// decided by app.AdminGateway from the stored account, never from token
// claims.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/RayBen445/ChatBot/adapters/auth"
	"github.com/RayBen445/ChatBot/adapters/http/view"
	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/failure"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/pkg/respond"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides admin API endpoints.
type Handler struct {
	gateway      *app.AdminGateway
	pricing      *app.PricingEngine
	verifier     ports.IdentityVerifier
	authFailures auth.FailureRecorder
	clock        ports.Clock
	logger       zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Gateway      *app.AdminGateway
	Pricing      *app.PricingEngine
	Verifier     ports.IdentityVerifier
	AuthFailures auth.FailureRecorder // Optional
	Clock        ports.Clock
	Logger       zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		gateway:      deps.Gateway,
		pricing:      deps.Pricing,
		verifier:     deps.Verifier,
		authFailures: deps.AuthFailures,
		clock:        deps.Clock,
		logger:       deps.Logger,
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Middleware(h.verifier, h.logger, h.authFailures))

	r.Post("/actions", h.Action)
	r.Get("/accounts", h.ListAccounts)
	r.Get("/discounts", h.ListDiscounts)
	r.Get("/pricing", h.GetPricing)

	return r
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

// discountBody carries discount fields for createDiscount and updateDiscount.
// Absent fields are left unchanged on update.
type discountBody struct {
	Name      *string        `json:"name"`
	Percent   *int           `json:"percent"`
	StartDate *time.Time     `json:"startDate"`
	EndDate   *time.Time     `json:"endDate"`
	Tiers     []account.Tier `json:"tiers"`
	Active    *bool          `json:"active"`
}

func (b discountBody) input() app.DiscountInput {
	in := app.DiscountInput{Tiers: b.Tiers, Active: b.Active}
	if b.Name != nil {
		in.Name = *b.Name
	}
	if b.Percent != nil {
		in.Percent = *b.Percent
	}
	if b.StartDate != nil {
		in.StartDate = *b.StartDate
	}
	if b.EndDate != nil {
		in.EndDate = *b.EndDate
	}
	return in
}

func (b discountBody) patch() app.DiscountPatch {
	return app.DiscountPatch{
		Name:      b.Name,
		Percent:   b.Percent,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Tiers:     b.Tiers,
		Active:    b.Active,
	}
}

type actionRequest struct {
	Action          string        `json:"action" validate:"required,oneof=ban suspend reactivate changeTier updatePricing createDiscount updateDiscount resetUsage"`
	TargetAccountID string        `json:"targetAccountId"`
	ActingAdminID   string        `json:"actingAdminId"`
	Duration        string        `json:"duration"`
	Tier            string        `json:"tier"`
	Pricing         pricing.Table `json:"pricing"`
	Discount        *discountBody `json:"discount"`
	DiscountID      string        `json:"discountId"`
}

type actionResponse struct {
	Action   string         `json:"action"`
	Account  *view.Account  `json:"account,omitempty"`
	Pricing  pricing.Table  `json:"pricing,omitempty"`
	Discount *view.Discount `json:"discount,omitempty"`
	Usage    *view.Usage    `json:"usage,omitempty"`
}

// Action executes one admin command on behalf of the verified caller.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthenticated", "identity token required")
		return
	}
	var req actionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Failure(w, err)
		return
	}
	if req.ActingAdminID != "" && req.ActingAdminID != id.UID {
		h.logger.Warn().Str("caller", id.UID).Str("claimed", req.ActingAdminID).Str("action", req.Action).Msg("acting admin mismatch")
		respond.Failure(w, failure.Unauthorized("admin."+req.Action, "actingAdminId does not match the verified caller"))
		return
	}

	cmd := app.AdminCommand{
		Action:     req.Action,
		ActorID:    id.UID,
		TargetID:   req.TargetAccountID,
		Duration:   req.Duration,
		Tier:       req.Tier,
		Pricing:    req.Pricing,
		DiscountID: req.DiscountID,
	}
	if req.Discount != nil {
		switch req.Action {
		case app.ActionCreateDiscount:
			in := req.Discount.input()
			cmd.Discount = &in
		case app.ActionUpdateDiscount:
			p := req.Discount.patch()
			cmd.DiscountPatch = &p
		}
	}

	out, err := h.gateway.Execute(r.Context(), cmd)
	if err != nil {
		respond.Failure(w, err)
		return
	}

	resp := actionResponse{Action: out.Action, Pricing: out.Pricing}
	if out.Account != nil {
		a := view.FromAccount(*out.Account, h.clock.Now())
		resp.Account = &a
	}
	if out.Discount != nil {
		d := view.FromDiscount(*out.Discount)
		resp.Discount = &d
	}
	if out.Usage != nil {
		u := view.FromSnapshot(*out.Usage)
		resp.Usage = &u
	}
	status := http.StatusOK
	if out.Action == app.ActionCreateDiscount {
		status = http.StatusCreated
	}
	respond.JSON(w, status, resp)
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

// ListAccounts lists accounts filtered by ?status=&tier=&role=&limit=&offset=.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	f, err := parseFilter(r)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	list, err := h.gateway.ListAccounts(r.Context(), id.UID, f)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"accounts": view.Accounts(list, h.clock.Now()),
		"total":    len(list),
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

// ListDiscounts lists every discount, active or not.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := h.gateway.ListDiscounts(r.Context(), id.UID)
	if err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"discounts": view.Discounts(list)})
}

// GetPricing returns the effective price table (defaults merged with stored).
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if _, err := h.gateway.Authorize(r.Context(), id.UID); err != nil {
		respond.Failure(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"pricing":    h.pricing.Table(r.Context()),
		"currencies": pricing.Supported,
	})
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func parseFilter(r *http.Request) (ports.AccountFilter, error) {
	const op = "admin.listAccounts"
	q := r.URL.Query()
	f := ports.AccountFilter{
		Limit:  parseIntQuery(r, "limit", defaultLimit),
		Offset: parseIntQuery(r, "offset", 0),
	}
	if f.Limit <= 0 || f.Limit > maxLimit {
		f.Limit = defaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if s := q.Get("status"); s != "" {
		st, err := account.ParseStatus(s)
		if err != nil {
			return f, failure.InvalidArgument(op, err.Error())
		}
		f.Status = st
	}
	if s := q.Get("tier"); s != "" {
		t, err := account.ParseTier(s)
		if err != nil {
			return f, failure.InvalidArgument(op, err.Error())
		}
		f.Tier = t
	}
	if s := q.Get("role"); s != "" {
		role, err := account.ParseRole(s)
		if err != nil {
			return f, failure.InvalidArgument(op, err.Error())
		}
		f.Role = role
	}
	return f, nil
}

func parseIntQuery(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
