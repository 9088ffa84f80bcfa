// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settleDelay is how long the holder waits after the last reload request
// before reading the file. Editors that save atomically emit several events
// per save; they collapse into one reload.
const settleDelay = 50 * time.Millisecond

// Holder owns the live configuration. Readers call Get; the file watcher,
// SIGHUP and explicit Reload calls swap in a newly validated config and
// notify listeners. A config that fails to load never replaces the current one.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
	onError  []func(error)

	path   string
	logger zerolog.Logger

	requests chan string
	loop     sync.Once
	done     chan struct{}
	stop     sync.Once
	watcher  *fsnotify.Watcher
}

// NewHolder loads path and returns a holder serving it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	cfg, err := Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Holder{
		config:   cfg,
		path:     abs,
		logger:   logger.With().Str("config", abs).Logger(),
		requests: make(chan string, 1),
		done:     make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// OnChange registers fn to run after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers fn to run when a reload is rejected.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Reload reads the file again. On failure the current config stays in place
// and the error listeners run.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config rejected, keeping current settings")
		for _, fn := range h.listeners().errs {
			fn(err)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.config
	h.config = next
	h.mu.Unlock()

	applied, pending := changedFields(prev, next)
	h.logger.Info().
		Strs("applied", applied).
		Strs("needs_restart", pending).
		Msg("config reloaded")

	for _, fn := range h.listeners().changes {
		fn(next)
	}
	return nil
}

type listenerSet struct {
	changes []func(*Config)
	errs    []func(error)
}

func (h *Holder) listeners() listenerSet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return listenerSet{changes: h.onChange, errs: h.onError}
}

// WatchFile reloads whenever the config file is written or replaced.
// The parent directory is watched so renames onto the path are seen.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	h.mu.Lock()
	h.watcher = w
	h.mu.Unlock()

	h.startLoop()
	go h.forwardFileEvents(w)
	return nil
}

// WatchSignals reloads on SIGHUP.
func (h *Holder) WatchSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)

	h.startLoop()
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-sig:
				h.request("sighup")
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stop.Do(func() {
		close(h.done)
		h.mu.Lock()
		w := h.watcher
		h.mu.Unlock()
		if w != nil {
			w.Close()
		}
	})
}

func (h *Holder) forwardFileEvents(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.request("file")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("config watcher error")
		case <-h.done:
			return
		}
	}
}

// request asks the reload loop for a reload. A request made while another
// one is still pending is dropped.
func (h *Holder) request(source string) {
	select {
	case h.requests <- source:
	default:
	}
}

func (h *Holder) startLoop() {
	h.loop.Do(func() { go h.reloadLoop() })
}

func (h *Holder) reloadLoop() {
	var (
		timer  *time.Timer
		due    <-chan time.Time
		source string
	)
	for {
		select {
		case source = <-h.requests:
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			due = timer.C
		case <-due:
			due = nil
			h.logger.Debug().Str("source", source).Msg("reloading config")
			_ = h.Reload()
		case <-h.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// changedFields lists the settings that differ between prev and next,
// split into those applied live and those that wait for a restart.
func changedFields(prev, next *Config) (applied, pending []string) {
	if prev.Logging.Level != next.Logging.Level {
		applied = append(applied, "logging.level")
	}
	if !slices.Equal(prev.Admin.Emails, next.Admin.Emails) {
		applied = append(applied, "admin.emails")
	}
	if !pricingDefaultsEqual(prev.Pricing.Defaults, next.Pricing.Defaults) {
		applied = append(applied, "pricing.defaults")
	}

	if prev.Server.Host != next.Server.Host {
		pending = append(pending, "server.host")
	}
	if prev.Server.Port != next.Server.Port {
		pending = append(pending, "server.port")
	}
	if prev.Database.Driver != next.Database.Driver {
		pending = append(pending, "database.driver")
	}
	if prev.Database.DSN != next.Database.DSN {
		pending = append(pending, "database.dsn")
	}
	if prev.Usage.Backend != next.Usage.Backend {
		pending = append(pending, "usage.backend")
	}
	if prev.Identity.Secret != next.Identity.Secret {
		pending = append(pending, "identity.secret")
	}
	if prev.Generation.URL != next.Generation.URL {
		pending = append(pending, "generation.url")
	}
	return applied, pending
}

func pricingDefaultsEqual(a, b map[string]map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for tier, prices := range a {
		other, ok := b[tier]
		if !ok || len(other) != len(prices) {
			return false
		}
		for cur, amount := range prices {
			if other[cur] != amount {
				return false
			}
		}
	}
	return true
}

// ReloadableFields lists the settings applied without a restart.
func ReloadableFields() []string {
	return []string{
		"admin.emails",
		"pricing.defaults",
		"logging.level",
	}
}

// NonReloadableFields lists the settings that need a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"database.driver",
		"database.dsn",
		"usage.backend",
		"identity.secret",
		"generation.url",
	}
}
