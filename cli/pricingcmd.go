package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/blackjuly/ultra-mcp/pricing"
)

func newPricingCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect and manage the model pricing cache",
	}
	cmd.AddCommand(
		newPricingShowCommand(a),
		newPricingCalculateCommand(a),
		newPricingRefreshCommand(a),
		newPricingClearCommand(a),
		newPricingInfoCommand(a),
	)
	return cmd
}

func newPricingShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [filter]",
		Short: "List known model prices, optionally filtered by substring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Pricing()
			if err != nil {
				return err
			}
			catalog, err := svc.GetLatestPricing(cmd.Context(), false)
			if err != nil {
				return err
			}

			var filter string
			if len(args) == 1 {
				filter = strings.ToLower(args[0])
			}

			names := make([]string, 0, len(catalog))
			for name := range catalog {
				if filter == "" || strings.Contains(strings.ToLower(name), filter) {
					names = append(names, name)
				}
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				entry := catalog[name]
				fmt.Fprintf(out, "%-50s in %s/tok  out %s/tok\n",
					name,
					pricing.FormatCost(entry.InputCostPerToken),
					pricing.FormatCost(entry.OutputCostPerToken))
			}
			fmt.Fprintf(out, "%d models\n", len(names))
			return nil
		},
	}
}

func newPricingCalculateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "calculate <model> <inputTokens> <outputTokens>",
		Short: "Calculate the cost of a hypothetical call",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputTokens, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "parse input token count %q", args[1])
			}
			outputTokens, err := strconv.Atoi(args[2])
			if err != nil {
				return errors.Wrapf(err, "parse output token count %q", args[2])
			}

			svc, err := a.Pricing()
			if err != nil {
				return err
			}
			cost, err := svc.CalculateCost(cmd.Context(), args[0], inputTokens, outputTokens)
			if err != nil {
				return err
			}
			if cost == nil {
				return errors.Errorf("model %q not found in pricing catalog", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "input:  %s\n", pricing.FormatCost(cost.InputCost))
			fmt.Fprintf(out, "output: %s\n", pricing.FormatCost(cost.OutputCost))
			fmt.Fprintf(out, "total:  %s\n", pricing.FormatCost(cost.TotalCost))
			if cost.TieredApplied {
				fmt.Fprintln(out, "tiered pricing applied (above 200k tokens)")
			}
			return nil
		},
	}
}

func newPricingRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force-refresh the pricing catalog from the remote source",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Pricing()
			if err != nil {
				return err
			}
			catalog, err := svc.GetLatestPricing(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d models\n", len(catalog))
			return nil
		},
	}
}

func newPricingClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the on-disk and in-memory pricing caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Pricing()
			if err != nil {
				return err
			}
			if err := svc.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pricing cache cleared")
			return nil
		},
	}
}

func newPricingInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show pricing cache freshness and origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.Pricing()
			if err != nil {
				return err
			}
			info, err := svc.Info()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:    %s\n", info.Path)
			fmt.Fprintf(out, "source:  %s\n", info.SourceURL)
			if !info.Exists {
				fmt.Fprintln(out, "state:   no cache on disk")
				return nil
			}
			state := "stale"
			if info.Fresh {
				state = "fresh"
			}
			fmt.Fprintf(out, "state:   %s (age %s)\n", state, info.Age.Round(time.Second))
			fmt.Fprintf(out, "models:  %d\n", info.Models)
			return nil
		},
	}
}
