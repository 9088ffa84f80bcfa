package app

import (
	"time"

	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

// Services bundles every application service wired against one set of stores.
type Services struct {
	Accounts     *AccountService
	Usage        *UsageCounter
	Pricing      *PricingEngine
	Entitlements *EntitlementService
	Chat         *ChatService
	Admin        *AdminGateway
}

// Deps contains the adapters shared by all services.
type Deps struct {
	Accounts  ports.AccountStore
	Usage     ports.UsageStore
	Prices    ports.PricingStore
	Discounts ports.DiscountStore
	Generator ports.Generator
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.Metrics
	Logger    zerolog.Logger
}

// Config contains the tunables shared by all services.
type Config struct {
	AdminEmails       []string
	PricingDefaults   pricing.Table
	GenerationTimeout time.Duration
	MaxRetries        int
}

// NewServices wires every service.
func NewServices(deps Deps, cfg Config) *Services {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	s := &Services{}
	s.Accounts = NewAccountService(AccountDeps{
		Accounts: deps.Accounts,
		Usage:    deps.Usage,
		Clock:    deps.Clock,
		Logger:   deps.Logger.With().Str("component", "accounts").Logger(),
	}, AccountConfig{AdminEmails: cfg.AdminEmails})
	s.Usage = NewUsageCounter(UsageDeps{
		Usage:    deps.Usage,
		Accounts: deps.Accounts,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger.With().Str("component", "usage").Logger(),
	})
	s.Pricing = NewPricingEngine(PricingDeps{
		Prices:    deps.Prices,
		Discounts: deps.Discounts,
		Clock:     deps.Clock,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger.With().Str("component", "pricing").Logger(),
	}, PricingConfig{Defaults: cfg.PricingDefaults})
	s.Entitlements = NewEntitlementService(EntitlementDeps{
		Accounts: deps.Accounts,
		Usage:    deps.Usage,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger.With().Str("component", "entitlement").Logger(),
	})
	s.Chat = NewChatService(ChatDeps{
		Entitlements: s.Entitlements,
		Usage:        s.Usage,
		Generator:    deps.Generator,
		Clock:        deps.Clock,
		Metrics:      deps.Metrics,
		Logger:       deps.Logger.With().Str("component", "chat").Logger(),
	}, ChatConfig{GenerationTimeout: cfg.GenerationTimeout})
	s.Admin = NewAdminGateway(AdminDeps{
		Accounts:  deps.Accounts,
		Usage:     s.Usage,
		Prices:    deps.Prices,
		Discounts: deps.Discounts,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger.With().Str("component", "admin").Logger(),
	}, AdminConfig{MaxRetries: cfg.MaxRetries})
	return s
}
