package main

import (
	"fmt"

	apihttp "github.com/RayBen445/ChatBot/adapters/http"
	"github.com/RayBen445/ChatBot/bootstrap"
	"github.com/RayBen445/ChatBot/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the chatbot HTTP API.

The server will:
  - Load configuration from chatbot.yaml (or --config), watching it for changes
  - Or load configuration from CHATBOT_* environment variables
  - Open the account store and usage backend
  - Serve /api, /admin, /health and /metrics

Environment variables (for container deployments):
  CHATBOT_IDENTITY_SECRET   - Identity token secret (required)
  CHATBOT_DATABASE_DSN      - Database path (default: chatbot.db)
  CHATBOT_SERVER_PORT       - Server port (default: 8080)
  CHATBOT_GENERATION_URL    - Generation provider (empty = offline replies)
  CHATBOT_ADMIN_EMAILS      - Comma-separated admin emails
  CHATBOT_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  chatbot serve
  chatbot serve --config /etc/chatbot/config.yaml

  # Container (env vars only):
  CHATBOT_IDENTITY_SECRET=... chatbot serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configPath()
	if path == "" && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s\n", cfgFile)
		fmt.Fprintf(out, "Option 2: Set %sIDENTITY_SECRET\n", config.EnvPrefix)
		return nil
	}

	a, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath: path,
		Version:    apihttp.VersionResponse{Version: version, Commit: commit},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return a.Run(cmd.Context())
}
