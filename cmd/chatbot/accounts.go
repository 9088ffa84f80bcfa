package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts",
	Long: `Manage chatbot accounts.

Accounts are created when a user first signs in. Every command here runs
as an admin account (--as) and is authorized exactly like the HTTP admin
API: the acting account must exist, hold the admin role and be active.

Examples:
  chatbot accounts list --as root --status suspended
  chatbot accounts suspend u_123 --duration 7d --as root
  chatbot accounts tier u_123 pro --as root`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireAdmin()
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountsList,
}

var accountsBanCmd = &cobra.Command{
	Use:   "ban <uid>",
	Short: "Ban an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsBan,
}

var accountsSuspendCmd = &cobra.Command{
	Use:   "suspend <uid>",
	Short: "Suspend an account for 7d or 30d",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsSuspend,
}

var accountsReactivateCmd = &cobra.Command{
	Use:   "reactivate <uid>",
	Short: "Reactivate a banned or suspended account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsReactivate,
}

var accountsTierCmd = &cobra.Command{
	Use:   "tier <uid> <free|pro|plus>",
	Short: "Change an account's subscription tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsTier,
}

var accountsResetUsageCmd = &cobra.Command{
	Use:   "reset-usage <uid>",
	Short: "Reset the current month's message count",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsResetUsage,
}

var (
	listStatus      string
	listTier        string
	listRole        string
	listLimit       int
	listOffset      int
	suspendDuration string
)

func init() {
	rootCmd.AddCommand(accountsCmd)

	accountsCmd.PersistentFlags().StringVar(&actingAdmin, "as", "", "admin account UID to act as (required)")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsBanCmd)
	accountsCmd.AddCommand(accountsSuspendCmd)
	accountsCmd.AddCommand(accountsReactivateCmd)
	accountsCmd.AddCommand(accountsTierCmd)
	accountsCmd.AddCommand(accountsResetUsageCmd)

	accountsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by stored status (active, suspended, banned)")
	accountsListCmd.Flags().StringVar(&listTier, "tier", "", "filter by tier (free, pro, plus)")
	accountsListCmd.Flags().StringVar(&listRole, "role", "", "filter by role (user, admin)")
	accountsListCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum accounts to list")
	accountsListCmd.Flags().IntVar(&listOffset, "offset", 0, "accounts to skip")

	accountsSuspendCmd.Flags().StringVar(&suspendDuration, "duration", "7d", "suspension length: 7d or 30d")
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	f := ports.AccountFilter{Limit: listLimit, Offset: listOffset}
	var err error
	if listStatus != "" {
		if f.Status, err = account.ParseStatus(listStatus); err != nil {
			return err
		}
	}
	if listTier != "" {
		if f.Tier, err = account.ParseTier(listTier); err != nil {
			return err
		}
	}
	if listRole != "" {
		if f.Role, err = account.ParseRole(listRole); err != nil {
			return err
		}
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.Services.Admin.ListAccounts(ctx, actingAdmin, f)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No accounts found.")
		return nil
	}

	now := rt.Clock.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tEMAIL\tROLE\tTIER\tSTATUS")
	fmt.Fprintln(w, "---\t-----\t----\t----\t------")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.UID, a.Email, a.Role, a.Tier, account.Effective(a, now))
	}
	return w.Flush()
}

// transition runs one account lifecycle or tier command and prints the result.
func transition(cmd *cobra.Command, uid, verb string, fn func(ctx context.Context, rtAdmin adminActions) (account.Account, error)) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	a, err := fn(ctx, rt.Services.Admin)
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, uid, err)
	}
	printAccount(cmd, a, rt.Clock.Now())
	return nil
}

// adminActions is the subset of the admin gateway the account commands use.
type adminActions interface {
	Ban(ctx context.Context, actorID, targetID string) (account.Account, error)
	Suspend(ctx context.Context, actorID, targetID, duration string) (account.Account, error)
	Reactivate(ctx context.Context, actorID, targetID string) (account.Account, error)
	ChangeTier(ctx context.Context, actorID, targetID, tier string) (account.Account, error)
}

func runAccountsBan(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], "ban", func(ctx context.Context, g adminActions) (account.Account, error) {
		return g.Ban(ctx, actingAdmin, args[0])
	})
}

func runAccountsSuspend(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], "suspend", func(ctx context.Context, g adminActions) (account.Account, error) {
		return g.Suspend(ctx, actingAdmin, args[0], suspendDuration)
	})
}

func runAccountsReactivate(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], "reactivate", func(ctx context.Context, g adminActions) (account.Account, error) {
		return g.Reactivate(ctx, actingAdmin, args[0])
	})
}

func runAccountsTier(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], "change tier of", func(ctx context.Context, g adminActions) (account.Account, error) {
		return g.ChangeTier(ctx, actingAdmin, args[0], args[1])
	})
}

func runAccountsResetUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.Services.Admin.ResetUsage(ctx, actingAdmin, args[0])
	if err != nil {
		return fmt.Errorf("reset usage of %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Usage reset for %s (%s): %d messages this month, %d total\n",
		snap.UID, snap.MonthKey, snap.Count, snap.Lifetime)
	return nil
}

func printAccount(cmd *cobra.Command, a account.Account, now time.Time) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "UID:     %s\n", a.UID)
	fmt.Fprintf(out, "Email:   %s\n", a.Email)
	fmt.Fprintf(out, "Role:    %s\n", a.Role)
	fmt.Fprintf(out, "Tier:    %s\n", a.Tier)
	fmt.Fprintf(out, "Status:  %s\n", account.Effective(a, now))
	if a.SuspendedUntil != nil {
		fmt.Fprintf(out, "Until:   %s\n", a.SuspendedUntil.UTC().Format(time.RFC3339))
	}
}
