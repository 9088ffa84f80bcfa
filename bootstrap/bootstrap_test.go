package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RayBen445/ChatBot/adapters/auth"
	"github.com/RayBen445/ChatBot/adapters/clock"
	apihttp "github.com/RayBen445/ChatBot/adapters/http"
	"github.com/RayBen445/ChatBot/bootstrap"
	"github.com/RayBen445/ChatBot/config"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

const testSecret = "bootstrap-secret"

var testNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

func parseConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(content))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chatbot.db")
	return parseConfig(t, `
identity:
  secret: "`+testSecret+`"
database:
  driver: sqlite
  dsn: "`+dsn+`"
admin:
  emails: ["root@mindbot.dev"]
logging:
  level: debug
  format: console
`)
}

func token(t *testing.T, clk ports.Clock, id ports.Identity) string {
	t.Helper()
	tok, err := auth.NewIssuer(auth.Config{Secret: testSecret, Clock: clk}).Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func call(t *testing.T, srv *httptest.Server, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestBootstrap_Integration(t *testing.T) {
	clk := clock.NewFake(testNow)
	var logs bytes.Buffer

	a, err := bootstrap.NewWithConfig(context.Background(), sqliteConfig(t), bootstrap.Options{
		LogOutput: &logs,
		Clock:     clk,
		Version:   apihttp.VersionResponse{Version: "1.2.3"},
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()

	if a.DB == nil {
		t.Error("DB should not be nil for the sqlite driver")
	}
	if a.HTTPServer == nil || a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("HTTPServer not configured: %+v", a.HTTPServer)
	}
	if a.Metrics == nil {
		t.Error("metrics should be enabled by default")
	}

	srv := httptest.NewServer(a.Handler)
	defer srv.Close()

	status, body := call(t, srv, http.MethodGet, "/health/ready", "", nil)
	if status != http.StatusOK {
		t.Fatalf("readiness = %d, body %v", status, body)
	}

	status, body = call(t, srv, http.MethodGet, "/version", "", nil)
	if status != http.StatusOK || body["version"] != "1.2.3" {
		t.Errorf("version = %d %v", status, body)
	}

	root := token(t, clk, ports.Identity{UID: "root", Email: "root@mindbot.dev"})
	status, body = call(t, srv, http.MethodPost, "/api/session", root, nil)
	if status != http.StatusCreated {
		t.Fatalf("session = %d, body %v", status, body)
	}
	acct, _ := body["account"].(map[string]any)
	if acct["role"] != "admin" {
		t.Errorf("configured admin email was not promoted: %v", acct)
	}

	user := token(t, clk, ports.Identity{UID: "u1", Email: "u1@example.com"})
	if status, body = call(t, srv, http.MethodPost, "/api/session", user, nil); status != http.StatusCreated {
		t.Fatalf("user session = %d, body %v", status, body)
	}

	status, body = call(t, srv, http.MethodPost, "/api/chat", user, map[string]any{"message": "hello"})
	if status != http.StatusOK {
		t.Fatalf("chat = %d, body %v", status, body)
	}
	if body["model"] != "offline" {
		t.Errorf("model = %v, want offline", body["model"])
	}

	status, _ = call(t, srv, http.MethodGet, "/admin/accounts", user, nil)
	if status != http.StatusForbidden {
		t.Errorf("non-admin listing = %d, want 403", status)
	}
	status, body = call(t, srv, http.MethodGet, "/admin/accounts", root, nil)
	if status != http.StatusOK || body["total"] != float64(2) {
		t.Errorf("admin listing = %d %v", status, body)
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), "chatbot_requests_total") {
		t.Error("metrics output missing chatbot_requests_total")
	}
	if !strings.Contains(string(data), "go_goroutines") {
		t.Error("metrics output missing go runtime collector")
	}

	if !strings.Contains(logs.String(), "initializing chatbot") {
		t.Error("startup was not logged to the configured output")
	}
}

func TestBootstrap_DatabaseMigration(t *testing.T) {
	a, err := bootstrap.Open(context.Background(), sqliteConfig(t), bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"accounts", "message_counts", "prices", "discounts", "schema_migrations"} {
		var count int
		if err := a.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("query %s table: %v", table, err)
		}
	}
}

func TestBootstrap_MemoryDriver(t *testing.T) {
	cfg := parseConfig(t, `
identity:
  secret: "`+testSecret+`"
database:
  driver: memory
metrics:
  enabled: false
`)
	a, err := bootstrap.NewWithConfig(context.Background(), cfg, bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()

	if a.DB != nil {
		t.Error("memory driver should not open a database")
	}
	if a.Metrics != nil {
		t.Error("metrics disabled but collector created")
	}

	srv := httptest.NewServer(a.Handler)
	defer srv.Close()

	status, _ := call(t, srv, http.MethodGet, "/metrics", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("/metrics = %d, want 404 when disabled", status)
	}
}

func TestBootstrap_RedisUnavailable(t *testing.T) {
	cfg := parseConfig(t, `
identity:
  secret: "`+testSecret+`"
database:
  driver: memory
usage:
  backend: redis
  redis:
    addr: "127.0.0.1:1"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := bootstrap.Open(ctx, cfg, bootstrap.Options{LogOutput: io.Discard}); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestBootstrap_InvalidGenerationURL(t *testing.T) {
	cfg := parseConfig(t, `
identity:
  secret: "`+testSecret+`"
database:
  driver: memory
generation:
  url: "not a url"
`)
	if _, err := bootstrap.Open(context.Background(), cfg, bootstrap.Options{LogOutput: io.Discard}); err == nil {
		t.Fatal("expected error for a relative generation URL")
	}
}

func TestBootstrap_GracefulShutdown(t *testing.T) {
	a, err := bootstrap.NewWithConfig(context.Background(), sqliteConfig(t), bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	db := a.DB

	if err := a.Shutdown(); err != nil {
		t.Errorf("shutdown error: %v", err)
	}

	if _, err := db.Query("SELECT 1"); err == nil {
		t.Error("expected error querying closed database")
	}

	// A second shutdown is harmless.
	if err := a.Shutdown(); err != nil {
		t.Errorf("second shutdown error: %v", err)
	}
}

func TestBootstrap_RunStopsOnContextCancel(t *testing.T) {
	cfg := parseConfig(t, `
identity:
  secret: "`+testSecret+`"
database:
  driver: memory
server:
  host: 127.0.0.1
  port: 0
`)
	a, err := bootstrap.NewWithConfig(context.Background(), cfg, bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApplyConfig(t *testing.T) {
	a, err := bootstrap.Open(context.Background(), sqliteConfig(t), bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer a.Close()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	next := parseConfig(t, `
identity:
  secret: "`+testSecret+`"
logging:
  level: warn
admin:
  emails: ["ops@mindbot.dev"]
pricing:
  defaults:
    pro:
      USD: "11.00"
`)
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("global level = %s, want warn", zerolog.GlobalLevel())
	}
	got := a.Services.Pricing.Defaults()[account.TierPro][pricing.Currency("USD")]
	if got.String() != "11" {
		t.Errorf("pro/USD default = %s, want 11", got.String())
	}
	if a.Config != next {
		t.Error("runtime config was not swapped")
	}
}

func TestNew_ConfigFileHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	base := `
identity:
  secret: "` + testSecret + `"
database:
  driver: memory
`
	write(base)

	a, err := bootstrap.New(context.Background(), bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()

	if a.Holder == nil {
		t.Fatal("config holder should be attached for file configuration")
	}

	write(base + `
pricing:
  defaults:
    plus:
      EUR: "20.00"
`)
	if err := a.Holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := a.Services.Pricing.Defaults()[account.TierPlus][pricing.Currency("EUR")]
	if got.String() != "20" {
		t.Errorf("plus/EUR default = %s, want 20", got.String())
	}
}

func TestNewLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "error", Format: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Error().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line logged at error level")
	}
	if !strings.Contains(out, `"service":"chatbot"`) {
		t.Errorf("missing service field: %s", out)
	}
}
