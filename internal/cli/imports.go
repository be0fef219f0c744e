package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tradejournal/internal/importer"
	"tradejournal/internal/models"
)

// addImportCommands adds bulk import and rebuild commands.
func addImportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import executions from CSV files",
		Long: `Import broker fills or legacy closed-trade exports.

Rows are grouped by (broker, ticker) and replayed in time order, one
transaction per scope. Fills sharing broker, ticker, side, price and
timestamp are merged first unless import.merge_duplicates is off.`,
	}

	cmd.AddCommand(newImportCmd(app, "fills <file.csv>", "Import a fills CSV",
		`  journal import fills tradebook.csv --broker zerodha
  journal import fills fills.csv --date-format "02/01/2006 15:04"`,
		(*importer.Importer).ImportFills))
	cmd.AddCommand(newImportCmd(app, "legacy <file.csv>", "Import a legacy closed-trade CSV",
		`  journal import legacy old-journal.csv`,
		(*importer.Importer).ImportLegacy))

	rootCmd.AddCommand(cmd)
	rootCmd.AddCommand(newRecomputeCmd(app))
}

type importFunc func(im *importer.Importer, ctx context.Context, path string) (*importer.Summary, error)

func newImportCmd(app *App, use, short, example string, run importFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, importTimeout)
			defer cancel()

			im := app.Importer
			broker, _ := cmd.Flags().GetString("broker")
			dateFormat, _ := cmd.Flags().GetString("date-format")
			workers, _ := cmd.Flags().GetInt("workers")
			if cmd.Flags().Changed("broker") || cmd.Flags().Changed("date-format") || cmd.Flags().Changed("workers") {
				if dateFormat == "" {
					dateFormat = app.Config.Import.DateFormat
				}
				if workers <= 0 {
					workers = app.Config.Import.Workers
				}
				im = importer.New(app.Journal,
					importer.WithWorkers(workers),
					importer.WithMergeDuplicates(app.Config.Import.MergeDuplicates),
					importer.WithReadOptions(importer.ReadOptions{DateFormat: dateFormat, Broker: broker}),
					importer.WithLogger(app.Logger),
				)
			}

			summary, err := run(im, ctx, args[0])
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{
					"rows":       summary.Rows,
					"merged":     summary.Merged,
					"executions": summary.Executions,
					"scopes":     summary.Scopes,
					"trades":     summary.Trades,
				})
			}
			output.Success("✓ Imported %s", args[0])
			output.Printf("  Rows:       %d\n", summary.Rows)
			output.Printf("  Merged:     %d\n", summary.Merged)
			output.Printf("  Executions: %d\n", summary.Executions)
			output.Printf("  Scopes:     %d\n", summary.Scopes)
			output.Printf("  Trades:     %d\n", summary.Trades)
			return nil
		},
	}
	cmd.Flags().String("broker", "", "broker for rows without a broker column")
	cmd.Flags().String("date-format", "", "timestamp layout (Go reference time)")
	cmd.Flags().Int("workers", 0, "scopes replayed in parallel")
	return cmd
}

func newRecomputeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild derived trades from the execution ledger",
		Long: `Replay every scope, or one scope given --broker and --ticker, and
rewrite its trades. Trade ids, stops and targets are kept when the
trade still exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, importTimeout)
			defer cancel()

			broker, ticker, _, _, _, _ := scopeFilterFromFlags(cmd)
			var scopes, trades int
			if broker != "" || ticker != "" {
				if broker == "" || ticker == "" {
					return fmt.Errorf("--broker and --ticker must be given together")
				}
				res, err := app.Journal.Recompute(ctx, models.Scope{Broker: broker, Ticker: ticker})
				if err != nil {
					output.Error("Recompute failed: %v", err)
					return err
				}
				scopes, trades = 1, len(res.Trades)
			} else {
				results, err := app.Journal.RecomputeAll(ctx)
				if err != nil {
					output.Error("Recompute failed: %v", err)
					return err
				}
				scopes = len(results)
				for _, r := range results {
					trades += len(r.Trades)
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"scopes": scopes, "trades": trades})
			}
			output.Success("✓ Recomputed %d scopes, %d trades", scopes, trades)
			return nil
		},
	}
	cmd.Flags().String("broker", "", "broker of the scope")
	cmd.Flags().String("ticker", "", "ticker of the scope")
	return cmd
}
