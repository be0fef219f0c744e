package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
	"tradejournal/internal/store"
)

// addTradeCommands adds the derived trade views.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Review derived trades",
		Long:  "List and inspect the round-trip trades derived from your executions.",
	}

	cmd.AddCommand(newTradesListCmd(app))
	cmd.AddCommand(newTradesShowCmd(app))

	rootCmd.AddCommand(cmd)
}

func newTradesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List trades",
		Example: `  journal trades ls
  journal trades ls --ticker INFY --closed
  journal trades ls --from 2024-02-01 --side SHORT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			filter, err := tradeFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			trades, err := app.Store.ListTrades(ctx, filter)
			if err != nil {
				output.Error("Failed to fetch trades: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(newTradeViews(trades))
			}
			if len(trades) == 0 {
				output.Info("No trades found.")
				output.Println()
				output.Dim("Tip: trades appear once executions are recorded with 'journal exec add' or 'journal import fills'.")
				return nil
			}

			renderTrades(output, app, trades)
			output.Println()
			renderSummary(output, app, trades)
			return nil
		},
	}
	addScopeFilterFlags(cmd)
	cmd.Flags().String("side", "", "LONG or SHORT")
	cmd.Flags().Bool("open", false, "only open trades")
	cmd.Flags().Bool("closed", false, "only closed trades")
	return cmd
}

func tradeFilterFromFlags(cmd *cobra.Command) (store.TradeFilter, error) {
	var filter store.TradeFilter
	var err error
	filter.Broker, filter.Ticker, filter.StartDate, filter.EndDate, filter.Limit, err = scopeFilterFromFlags(cmd)
	if err != nil {
		return filter, err
	}

	if raw, _ := cmd.Flags().GetString("side"); raw != "" {
		switch side := models.TradeSide(strings.ToUpper(raw)); side {
		case models.TradeSideLong, models.TradeSideShort:
			filter.Side = side
		default:
			return filter, fmt.Errorf("invalid side %q (must be LONG or SHORT)", raw)
		}
	}

	open, _ := cmd.Flags().GetBool("open")
	closed, _ := cmd.Flags().GetBool("closed")
	switch {
	case open && closed:
		return filter, fmt.Errorf("--open and --closed are exclusive")
	case open:
		filter.Open = &open
	case closed:
		f := false
		filter.Open = &f
	}
	return filter, nil
}

func renderTrades(output *Output, app *App, trades []models.Trade) {
	f := app.Format
	table := NewTable(output, "ID", "Entry", "Scope", "Side", "Qty", "Closed", "Avg Entry", "Avg Exit", "Net P&L", "Status")
	for _, t := range trades {
		status := output.Yellow("OPEN")
		if t.IsClosed {
			status = output.DimText("CLOSED")
		}
		table.AddRow(
			output.BoldText(shortID(t.ID)),
			f.DateTime(t.EntryAt),
			t.Scope().String(),
			output.Side(t.Side),
			f.Quantity(t.Quantity),
			f.Quantity(t.ClosedQuantity),
			f.Amount(t.AverageEntry),
			f.NullAmount(t.AverageExit),
			output.FormatPnL(f, t.NetPnL),
			status,
		)
	}
	table.Render()
}

func renderSummary(output *Output, app *App, trades []models.Trade) {
	var gross, fees, net decimal.Decimal
	var wins, losses, closed int
	for _, t := range trades {
		gross = gross.Add(t.PnL)
		fees = fees.Add(t.Fees)
		net = net.Add(t.NetPnL)
		if !t.IsClosed {
			continue
		}
		closed++
		if t.NetPnL.IsPositive() {
			wins++
		} else {
			losses++
		}
	}

	output.Bold("Summary")
	output.Printf("  Total Trades: %d (%d closed)\n", len(trades), closed)
	output.Printf("  Gross P&L:    %s\n", output.FormatPnL(app.Format, gross))
	output.Printf("  Fees:         %s\n", app.Format.Amount(fees))
	output.Printf("  Net P&L:      %s\n", output.FormatPnL(app.Format, net))
}

func newTradesShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show a trade with its executions, stops and targets",
		Long:  "Show one trade. The id may be shortened to any unique prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			id, err := resolveTradeID(ctx, app.Store, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			detail, err := app.Store.GetTradeDetail(ctx, id)
			if err != nil {
				output.Error("Failed to load trade: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(newTradeDetailView(*detail))
			}
			renderTradeDetail(output, app, detail)
			return nil
		},
	}
}

func renderTradeDetail(output *Output, app *App, d *models.TradeDetail) {
	f := app.Format
	t := d.Trade

	lines := []string{
		fmt.Sprintf("Scope:        %s (%s)", output.Cyan(t.Scope().String()), t.Instrument),
		fmt.Sprintf("Side:         %s", output.Side(t.Side)),
		fmt.Sprintf("Quantity:     %s (closed %s)", f.Quantity(t.Quantity), f.Quantity(t.ClosedQuantity)),
		fmt.Sprintf("Entry:        %s @ %s", f.DateTime(t.EntryAt), f.Amount(t.AverageEntry)),
		fmt.Sprintf("Exit:         %s @ %s", f.NullDateTime(t.ExitAt), f.NullAmount(t.AverageExit)),
		fmt.Sprintf("P&L:          %s", output.FormatPnL(f, t.PnL)),
		fmt.Sprintf("Fees:         %s", f.Amount(t.Fees)),
		fmt.Sprintf("Net P&L:      %s", output.FormatPnL(f, t.NetPnL)),
	}
	if t.Lots != nil {
		lines = append(lines, fmt.Sprintf("Lots:         %d", *t.Lots))
	}
	if t.IsClosed {
		lines = append(lines, fmt.Sprintf("Held:         %s", FormatDuration(t.HoldDuration())))
	}
	output.Box("Trade "+t.ID, lines)

	output.Println()
	output.Bold("Executions")
	members := NewTable(output, "Execution", "Role", "Quantity")
	for _, m := range d.Executions {
		members.AddRow(strconv.FormatInt(m.ExecutionID, 10), string(m.Role), f.Quantity(m.Quantity))
	}
	members.Render()

	output.Println()
	output.Bold("Stops")
	renderAnnotations(output, app, stopViews(d.Stops))
	output.Println()
	output.Bold("Targets")
	renderAnnotations(output, app, targetViews(d.Targets))
}

func renderAnnotations(output *Output, app *App, views []annotationView) {
	if len(views) == 0 {
		output.Dim("  none")
		return
	}
	table := NewTable(output, "ID", "Price", "Primary", "Pinned")
	for _, v := range views {
		primary, pinned := "", ""
		if v.IsPrimary {
			primary = output.Green("★")
		}
		if v.Pinned {
			pinned = "📌"
		}
		table.AddRow(strconv.FormatInt(v.ID, 10), app.Format.Amount(v.Price), primary, pinned)
	}
	table.Render()
}

// resolveTradeID expands a unique id prefix to the full trade id.
func resolveTradeID(ctx context.Context, s store.JournalStore, ref string) (string, error) {
	if _, err := s.GetTrade(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, errors.ErrDataNotFound) {
		return "", err
	}

	trades, err := s.ListTrades(ctx, store.TradeFilter{})
	if err != nil {
		return "", err
	}
	var match string
	for _, t := range trades {
		if strings.HasPrefix(t.ID, ref) {
			if match != "" {
				return "", errors.NewValidationError("trade", ref, "trade id prefix is ambiguous")
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", errors.NewNotFoundError("trade", ref)
	}
	return match, nil
}
