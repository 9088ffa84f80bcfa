package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RayBen445/ChatBot/bootstrap"
	"github.com/RayBen445/ChatBot/config"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLI writes a config backed by a fresh sqlite file and seeds an admin
// (root) and a regular user (u1).
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chatbot.yaml")
	content := `
identity:
  secret: "cli-secret"
database:
  driver: sqlite
  dsn: "` + filepath.Join(dir, "chatbot.db") + `"
admin:
  emails: ["root@mindbot.dev"]
pricing:
  currencies: ["USD"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	rt, err := bootstrap.Open(context.Background(), cfg, bootstrap.Options{LogOutput: io.Discard})
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	_, _, err = rt.Services.Accounts.EnsureAccount(ctx, ports.Identity{UID: "root", Email: "root@mindbot.dev"})
	require.NoError(t, err)
	_, _, err = rt.Services.Accounts.EnsureAccount(ctx, ports.Identity{UID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	actingAdmin = ""
	listStatus, listTier, listRole = "", "", ""
	listLimit, listOffset = 100, 0
	pricingCurrency = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatbot dev")
}

func TestAccounts_RequireActingAdmin(t *testing.T) {
	path := setupCLI(t)

	_, err := run(t, "accounts", "list", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as")
}

func TestAccounts_NonAdminRefused(t *testing.T) {
	path := setupCLI(t)

	_, err := run(t, "accounts", "ban", "root", "--as", "u1", "--config", path)
	require.Error(t, err)
}

func TestAccounts_Lifecycle(t *testing.T) {
	path := setupCLI(t)

	out, err := run(t, "accounts", "suspend", "u1", "--duration", "30d", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:  suspended")
	assert.Contains(t, out, "Until:")

	out, err = run(t, "accounts", "list", "--status", "suspended", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
	assert.NotContains(t, out, "root@mindbot.dev")

	out, err = run(t, "accounts", "reactivate", "u1", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:  active")

	out, err = run(t, "accounts", "tier", "u1", "plus", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tier:    plus")

	_, err = run(t, "accounts", "suspend", "u1", "--duration", "3d", "--as", "root", "--config", path)
	require.Error(t, err)

	out, err = run(t, "accounts", "reset-usage", "u1", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 messages this month")
}

func TestPricing_SetAndShow(t *testing.T) {
	path := setupCLI(t)

	out, err := run(t, "pricing", "set", "pro", "USD", "12.49", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "pro/USD set to")

	out, err = run(t, "pricing", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "12.49")

	_, err = run(t, "pricing", "set", "free", "USD", "1", "--as", "root", "--config", path)
	require.Error(t, err, "free tier must stay zero")
}

func TestDiscounts_CreateListDeactivate(t *testing.T) {
	path := setupCLI(t)

	out, err := run(t, "discounts", "create", "--name", "Summer", "--percent", "25",
		"--tiers", "pro", "--end", "2999-12-31", "--as", "root", "--config", path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Created discount "), out)
	id := strings.TrimSpace(strings.TrimPrefix(out, "Created discount "))

	out, err = run(t, "discounts", "list", "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Summer")
	assert.Contains(t, out, "25%")

	out, err = run(t, "discounts", "deactivate", id, "--as", "root", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Deactivated discount "+id)

	_, err = run(t, "discounts", "create", "--name", "Bad", "--percent", "100",
		"--end", "2999-12-31", "--as", "root", "--config", path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := setupCLI(t)

	out, err := run(t, "validate", "--check-stores", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, checkMark+" Configuration valid")
	assert.Contains(t, out, checkMark+" Stores reachable")
	assert.Contains(t, out, "generation: offline")
}
