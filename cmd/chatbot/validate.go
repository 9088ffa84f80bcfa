package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RayBen445/ChatBot/bootstrap"
	"github.com/spf13/cobra"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the chatbot configuration.

Checks:
  - YAML syntax and required fields
  - Pricing defaults parse and respect the free-tier rule
  - Stores are reachable (with --check-stores)

Examples:
  chatbot validate
  chatbot validate --config /etc/chatbot/config.yaml --check-stores`,
	RunE: runValidate,
}

var validateCheckStores bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStores, "check-stores", false, "open the database and usage backend")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath()
	source := path
	if source == "" {
		source = "environment"
	}
	fmt.Fprintf(out, "Validating %s...\n\n", source)

	cfg, err := bootstrap.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(out, "  %s Configuration valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Configuration valid\n", checkMark)
	fmt.Fprintf(out, "      listen:     %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "      database:   %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "      usage:      %s\n", cfg.Usage.Backend)
	if cfg.Generation.URL == "" {
		fmt.Fprintf(out, "      generation: offline\n")
	} else {
		fmt.Fprintf(out, "      generation: %s (%s)\n", cfg.Generation.URL, cfg.Generation.Model)
	}
	fmt.Fprintf(out, "      admins:     %d configured\n", len(cfg.Admin.Emails))

	if !validateCheckStores {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		fmt.Fprintf(out, "  %s Stores reachable\n", crossMark)
		return err
	}
	defer rt.Close()
	fmt.Fprintf(out, "  %s Stores reachable\n", checkMark)
	return nil
}
