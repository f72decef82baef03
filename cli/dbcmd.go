package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/pricing"
)

func newDBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the request log",
	}
	cmd.AddCommand(
		newDBShowCommand(a),
		newDBStatsCommand(a),
		newDBViewCommand(a),
	)
	return cmd
}

func newDBShowCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List recent requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			rows, err := model.GetRecentRequests(db, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, row := range rows {
				started := time.UnixMilli(row.StartedAt).Format(time.RFC3339)
				tokens := "-"
				if row.TotalTokens != nil {
					tokens = fmt.Sprintf("%d tok", *row.TotalTokens)
				}
				cost := "-"
				if row.CostUSD != nil {
					cost = pricing.FormatCost(*row.CostUSD)
				}
				fmt.Fprintf(out, "%s  %s  %-7s  %-18s %-28s %8s  %s\n",
					row.ID, started, row.Status, row.Provider, row.Model, tokens, cost)
			}
			fmt.Fprintf(out, "%d requests\n", len(rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	return cmd
}

func newDBStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate counters over the whole request log",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			stats, err := model.GetRequestStats(db)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "requests: %d (%d success, %d error, %d pending)\n",
				stats.TotalRequests, stats.SuccessRequests, stats.ErrorRequests, stats.PendingRequests)
			fmt.Fprintf(out, "tokens:   %d\n", stats.TotalTokens)
			fmt.Fprintf(out, "cost:     %s\n", pricing.FormatCost(stats.TotalCostUSD))
			return nil
		},
	}
}

func newDBViewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Print one request record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			row, err := model.GetRequestByID(db, args[0])
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(row, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encode request record")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}
