package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/RayBen445/ChatBot/bootstrap"
	"github.com/RayBen445/ChatBot/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string

	// actingAdmin is the account UID admin commands run as (--as).
	actingAdmin string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatbot",
	Short: "Account, entitlement and pricing service for the chat assistant",
	Long: `chatbot governs who may talk to the assistant and how much.

It keeps user accounts with a subscription tier and lifecycle status,
counts messages per calendar month, decides entitlements per feature,
quotes prices in several currencies and exposes an admin surface.

Quick start:
  chatbot serve       # Start the HTTP API
  chatbot validate    # Validate configuration

Administration:
  chatbot accounts    # Ban, suspend, reactivate, change tiers
  chatbot pricing     # Show and update prices
  chatbot discounts   # Manage promotional discounts`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "chatbot.yaml", "config file path")
}

// configPath returns cfgFile when it exists, or "" to use the environment.
func configPath() string {
	if cfgFile == "" {
		return ""
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return ""
	}
	return cfgFile
}

// openRuntime builds stores and services for one-shot CLI commands.
// Logging is reduced to warnings so command output stays readable.
func openRuntime(ctx context.Context, logOut io.Writer) (*bootstrap.Runtime, error) {
	cfg, err := bootstrap.LoadConfig(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging = config.LoggingConfig{Level: "warn", Format: "console"}
	return bootstrap.Open(ctx, cfg, bootstrap.Options{LogOutput: logOut})
}

// requireAdmin validates --as for commands that act on behalf of an admin.
func requireAdmin() error {
	if actingAdmin == "" {
		return fmt.Errorf("--as <admin-uid> is required")
	}
	return nil
}
