package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show and update subscription prices",
	Long: `Show quotes or update the stored price table.

Quotes apply the best active discount. Prices missing from the stored
table fall back to the configured defaults.

Examples:
  chatbot pricing show --currency EUR
  chatbot pricing set pro USD 12.49 --as root`,
}

var pricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show quotes for every tier",
	RunE:  runPricingShow,
}

var pricingSetCmd = &cobra.Command{
	Use:   "set <tier> <currency> <amount>",
	Short: "Set one stored price",
	Args:  cobra.ExactArgs(3),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return requireAdmin()
	},
	RunE: runPricingSet,
}

var pricingCurrency string

func init() {
	rootCmd.AddCommand(pricingCmd)

	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingSetCmd)

	pricingShowCmd.Flags().StringVar(&pricingCurrency, "currency", "", "currency code (default: every configured currency)")
	pricingSetCmd.Flags().StringVar(&actingAdmin, "as", "", "admin account UID to act as (required)")
}

func runPricingShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	codes := rt.Config.Pricing.Currencies
	if pricingCurrency != "" {
		codes = []string{pricingCurrency}
	}
	if len(codes) == 0 {
		for _, c := range pricing.Supported {
			codes = append(codes, string(c))
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tCURRENCY\tBASE\tFINAL\tDISCOUNT")
	fmt.Fprintln(w, "----\t--------\t----\t-----\t--------")
	for _, code := range codes {
		c, err := pricing.ParseCurrency(code)
		if err != nil {
			return err
		}
		quotes, err := rt.Services.Pricing.QuoteAll(ctx, c)
		if err != nil {
			return fmt.Errorf("quote %s: %w", c, err)
		}
		for _, q := range quotes {
			disc := "-"
			if q.Discount != nil {
				disc = fmt.Sprintf("%s (%d%%)", q.Discount.Name, q.Discount.Percent)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", q.Tier, q.Currency,
				pricing.Display(q.Base, q.Currency), pricing.Display(q.Final, q.Currency), disc)
		}
	}
	return w.Flush()
}

func runPricingSet(cmd *cobra.Command, args []string) error {
	tier, err := account.ParseTier(args[0])
	if err != nil {
		return err
	}
	c, err := pricing.ParseCurrency(args[1])
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(args[2]))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[2], err)
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	patch := pricing.Table{tier: {c: amount}}
	if _, err := rt.Services.Admin.UpdatePricing(ctx, actingAdmin, patch); err != nil {
		return fmt.Errorf("update pricing: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s set to %s\n", tier, c, pricing.Display(amount, c))
	return nil
}
