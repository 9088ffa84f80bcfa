package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RayBen445/ChatBot/app"
	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var discountsCmd = &cobra.Command{
	Use:   "discounts",
	Short: "Manage promotional discounts",
	Long: `Manage promotional discounts.

A discount takes a whole percentage (1-99) off the listed tiers between
its start and end dates. When several apply, quotes use the largest.

Examples:
  chatbot discounts list --as root
  chatbot discounts create --name "Summer" --percent 25 --tiers pro,plus \
      --start 2024-06-01 --end 2024-08-31 --as root
  chatbot discounts deactivate disc_123 --as root`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return requireAdmin()
	},
}

var discountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every discount",
	RunE:  runDiscountsList,
}

var discountsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a discount",
	RunE:  runDiscountsCreate,
}

var discountsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <discount-id>",
	Short: "Deactivate a discount",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscountsDeactivate,
}

var (
	discountName    string
	discountPercent int
	discountTiers   []string
	discountStart   string
	discountEnd     string
)

func init() {
	rootCmd.AddCommand(discountsCmd)

	discountsCmd.PersistentFlags().StringVar(&actingAdmin, "as", "", "admin account UID to act as (required)")

	discountsCmd.AddCommand(discountsListCmd)
	discountsCmd.AddCommand(discountsCreateCmd)
	discountsCmd.AddCommand(discountsDeactivateCmd)

	discountsCreateCmd.Flags().StringVar(&discountName, "name", "", "display name (required)")
	discountsCreateCmd.Flags().IntVar(&discountPercent, "percent", 0, "percentage off, 1-99 (required)")
	discountsCreateCmd.Flags().StringSliceVar(&discountTiers, "tiers", []string{"pro", "plus"}, "tiers the discount applies to")
	discountsCreateCmd.Flags().StringVar(&discountStart, "start", "", "first day, YYYY-MM-DD (default: today)")
	discountsCreateCmd.Flags().StringVar(&discountEnd, "end", "", "last day, YYYY-MM-DD (required)")
	discountsCreateCmd.MarkFlagRequired("name")
	discountsCreateCmd.MarkFlagRequired("percent")
	discountsCreateCmd.MarkFlagRequired("end")
}

func runDiscountsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.Services.Admin.ListDiscounts(ctx, actingAdmin)
	if err != nil {
		return fmt.Errorf("list discounts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No discounts found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPERCENT\tTIERS\tSTART\tEND\tACTIVE")
	fmt.Fprintln(w, "--\t----\t-------\t-----\t-----\t---\t------")
	for _, d := range list {
		printDiscountRow(w, d)
	}
	return w.Flush()
}

func printDiscountRow(w *tabwriter.Writer, d pricing.Discount) {
	tiers := make([]string, len(d.Tiers))
	for i, t := range d.Tiers {
		tiers[i] = string(t)
	}
	fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\t%s\t%t\n", d.ID, d.Name, d.Percent,
		strings.Join(tiers, ","), d.StartDate.Format(dateLayout), d.EndDate.Format(dateLayout), d.Active)
}

func runDiscountsCreate(cmd *cobra.Command, args []string) error {
	in := app.DiscountInput{Name: discountName, Percent: discountPercent}
	for _, raw := range discountTiers {
		t, err := account.ParseTier(raw)
		if err != nil {
			return err
		}
		in.Tiers = append(in.Tiers, t)
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	in.StartDate = rt.Clock.Now().UTC().Truncate(24 * time.Hour)
	if discountStart != "" {
		if in.StartDate, err = time.ParseInLocation(dateLayout, discountStart, time.UTC); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	end, err := time.ParseInLocation(dateLayout, discountEnd, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	// The end date is inclusive.
	in.EndDate = end.Add(24*time.Hour - time.Second)

	d, err := rt.Services.Admin.CreateDiscount(ctx, actingAdmin, in)
	if err != nil {
		return fmt.Errorf("create discount: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created discount %s\n", d.ID)
	return nil
}

func runDiscountsDeactivate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.Services.Admin.DeactivateDiscount(ctx, actingAdmin, args[0])
	if err != nil {
		return fmt.Errorf("deactivate discount: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deactivated discount %s (%s)\n", d.ID, d.Name)
	return nil
}
