// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file (hot reloaded) or, when no file is
// given, from CHATBOT_* environment variables.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RayBen445/ChatBot/adapters/auth"
	"github.com/RayBen445/ChatBot/adapters/clock"
	"github.com/RayBen445/ChatBot/adapters/generation"
	apihttp "github.com/RayBen445/ChatBot/adapters/http"
	"github.com/RayBen445/ChatBot/adapters/http/admin"
	"github.com/RayBen445/ChatBot/adapters/idgen"
	"github.com/RayBen445/ChatBot/adapters/memory"
	"github.com/RayBen445/ChatBot/adapters/metrics"
	"github.com/RayBen445/ChatBot/adapters/redis"
	"github.com/RayBen445/ChatBot/adapters/sqlite"
	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/config"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options provides optional hooks for application initialization.
type Options struct {
	// ConfigPath is the YAML file to load and watch. Empty means the
	// configuration comes from the environment only.
	ConfigPath string

	// Version is reported by GET /version.
	Version apihttp.VersionResponse

	// LogOutput overrides stdout for the application logger.
	LogOutput io.Writer

	// Clock overrides the wall clock. Used by tests.
	Clock ports.Clock
}

// Runtime holds the stores and services built from one configuration.
// The CLI uses it directly; App adds the HTTP surface on top.
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Services *app.Services
	Metrics  *metrics.Collector
	Verifier *auth.Verifier
	Clock    ports.Clock
	DB       *sqlite.DB

	usageRedis *redis.UsageStore
	checks     map[string]apihttp.HealthCheck
}

// App represents the running application.
type App struct {
	*Runtime

	Holder     *config.Holder // nil when configured from the environment
	Handler    http.Handler
	HTTPServer *http.Server
}

// LoadConfig reads the configuration the same way New does.
func LoadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// New loads configuration and creates the application.
func New(ctx context.Context, opts Options) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	var (
		cfg    *config.Config
		holder *config.Holder
		err    error
	)
	if opts.ConfigPath != "" {
		holder, err = config.NewHolder(opts.ConfigPath, zerolog.Nop())
		if err != nil {
			return nil, err
		}
		cfg = holder.Get()
	} else {
		cfg, err = config.LoadFromEnv()
		if err != nil {
			return nil, err
		}
	}

	a, err := NewWithConfig(ctx, cfg, opts)
	if err != nil {
		if holder != nil {
			holder.Stop()
		}
		return nil, err
	}
	if holder != nil {
		a.attachHolder(holder, opts.ConfigPath)
	}
	return a, nil
}

// NewWithConfig creates the application from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	rt, err := Open(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	a := &App{Runtime: rt}
	a.initHTTP(opts.Version)
	return a, nil
}

// Open builds stores and services without starting any listener.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := NewLogger(cfg.Logging, out)
	logger.Info().Msg("initializing chatbot")

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Clock:  clk,
		checks: map[string]apihttp.HealthCheck{},
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.Metrics = metrics.NewWithRegistry(reg, reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	deps, err := rt.initStores(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	deps.Generator, err = newGenerator(cfg.Generation, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init generation: %w", err)
	}

	rt.Verifier, err = auth.NewVerifier(auth.Config{
		Secret:   cfg.Identity.Secret,
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Leeway:   cfg.Identity.Leeway,
		Clock:    clk,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init identity: %w", err)
	}

	defaults, err := cfg.Pricing.Table()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("pricing defaults: %w", err)
	}

	deps.Clock = clk
	deps.IDGen = idgen.UUID{}
	deps.Logger = logger
	if rt.Metrics != nil {
		deps.Metrics = rt.Metrics
	}
	rt.Services = app.NewServices(deps, app.Config{
		AdminEmails:       cfg.Admin.Emails,
		PricingDefaults:   defaults,
		GenerationTimeout: cfg.Generation.Timeout,
		MaxRetries:        cfg.Admin.MaxRetries,
	})
	return rt, nil
}

func (rt *Runtime) initStores(ctx context.Context) (app.Deps, error) {
	cfg := rt.Config
	var deps app.Deps

	switch cfg.Database.Driver {
	case "memory":
		deps.Accounts = memory.NewAccountStore()
		deps.Usage = memory.NewUsageStore(cfg.Usage.Shards)
		deps.Prices = memory.NewPricingStore()
		deps.Discounts = memory.NewDiscountStore()
		rt.Logger.Warn().Msg("using in-memory storage; data is lost on restart")
	default:
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return deps, fmt.Errorf("init database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return deps, fmt.Errorf("migrate: %w", err)
		}
		rt.DB = db
		rt.checks["database"] = db.Ping
		deps.Accounts = sqlite.NewAccountStore(db)
		deps.Usage = sqlite.NewUsageStore(db)
		deps.Prices = sqlite.NewPricingStore(db)
		deps.Discounts = sqlite.NewDiscountStore(db)
		rt.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database ready")
	}

	if cfg.Usage.Backend == "redis" {
		store, err := redis.NewUsageStore(ctx, redis.Options{
			Addr:      cfg.Usage.Redis.Addr,
			Password:  cfg.Usage.Redis.Password,
			DB:        cfg.Usage.Redis.DB,
			KeyPrefix: cfg.Usage.Redis.KeyPrefix,
		})
		if err != nil {
			return deps, fmt.Errorf("init usage backend: %w", err)
		}
		rt.usageRedis = store
		rt.checks["redis"] = store.Ping
		deps.Usage = store
		rt.Logger.Info().Str("addr", cfg.Usage.Redis.Addr).Msg("usage counters on redis")
	}
	return deps, nil
}

func newGenerator(cfg config.GenerationConfig, logger zerolog.Logger) (ports.Generator, error) {
	if cfg.URL == "" {
		logger.Warn().Msg("no generation provider configured, replies are canned")
		return generation.Offline{}, nil
	}
	client, err := generation.NewClient(generation.Config{
		BaseURL: cfg.URL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", cfg.Model).Msg("generation provider configured")
	return client, nil
}

// Close releases stores. Safe to call on a partially built runtime.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.usageRedis != nil {
		if err := rt.usageRedis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		rt.usageRedis = nil
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		rt.DB = nil
	}
	return errors.Join(errs...)
}

// ApplyConfig pushes the reloadable fields of cfg into the running services.
func (rt *Runtime) ApplyConfig(cfg *config.Config) error {
	table, err := cfg.Pricing.Table()
	if err != nil {
		return fmt.Errorf("pricing defaults: %w", err)
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	rt.Services.Accounts.SetAdminEmails(cfg.Admin.Emails)
	rt.Services.Pricing.SetDefaults(table)
	rt.Config = cfg
	return nil
}

func (a *App) initHTTP(version apihttp.VersionResponse) {
	cfg := a.Config
	var authFailures auth.FailureRecorder
	if a.Metrics != nil {
		authFailures = a.Metrics
	}

	api := apihttp.NewAPIHandler(apihttp.APIDeps{
		Accounts:     a.Services.Accounts,
		Entitlements: a.Services.Entitlements,
		Chat:         a.Services.Chat,
		Usage:        a.Services.Usage,
		Pricing:      a.Services.Pricing,
		Admin:        a.Services.Admin,
		Verifier:     a.Verifier,
		AuthFailures: authFailures,
		Clock:        a.Clock,
		Logger:       a.Logger.With().Str("component", "api").Logger(),
	})
	adminHandler := admin.NewHandler(admin.Deps{
		Gateway:      a.Services.Admin,
		Pricing:      a.Services.Pricing,
		Verifier:     a.Verifier,
		AuthFailures: authFailures,
		Clock:        a.Clock,
		Logger:       a.Logger.With().Str("component", "admin").Logger(),
	})
	health := apihttp.NewHealthHandler(a.checks, a.Logger)

	a.Handler = apihttp.NewRouter(api, health, a.Logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		AdminHandler:   adminHandler.Router(),
		Version:        version,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func (a *App) attachHolder(h *config.Holder, path string) {
	a.Holder = h
	h.OnChange(func(cfg *config.Config) {
		err := a.ApplyConfig(cfg)
		if err != nil {
			a.Logger.Error().Err(err).Msg("apply reloaded config")
		}
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err)
		}
	})
	h.OnError(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err)
		}
	})
	if err := h.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Str("path", path).Msg("config file watch disabled")
	}
	h.WatchSignals()
}

// Run starts the HTTP server and blocks until ctx ends or SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down")
		return a.Shutdown()
	})
	return g.Wait()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
		a.Holder = nil
	}

	var errs []error
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, err)
		}
	}
	if err := a.Runtime.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("store close error")
		errs = append(errs, err)
	}

	a.Logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// NewLogger builds the application logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "chatbot").Logger()
}
