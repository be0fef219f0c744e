package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
	"tradejournal/internal/store"
)

// addExecutionCommands adds the execution ledger commands.
func addExecutionCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "exec",
		Aliases: []string{"executions", "fill"},
		Short:   "Manage broker executions",
		Long: `Record, correct, delete and lock broker executions.

Every change recomputes the trades of the affected (broker, ticker) scope.`,
	}

	cmd.AddCommand(newExecAddCmd(app))
	cmd.AddCommand(newExecEditCmd(app))
	cmd.AddCommand(newExecRemoveCmd(app))
	cmd.AddCommand(newExecLockCmd(app))
	cmd.AddCommand(newExecListCmd(app))

	rootCmd.AddCommand(cmd)
}

func addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().String("broker", "", "broker name")
	cmd.Flags().String("ticker", "", "ticker symbol")
	cmd.Flags().String("instrument", "EQUITY", "EQUITY, INDEX, FUTURES or OPTIONS")
	cmd.Flags().String("side", "", "BUY or SELL")
	cmd.Flags().String("qty", "", "quantity")
	cmd.Flags().Int("lots", 0, "number of lots (derivatives)")
	cmd.Flags().String("price", "", "fill price")
	cmd.Flags().String("at", "", "execution time (RFC3339 or 2006-01-02 15:04:05, default now)")
}

// applyExecutionFlags copies every flag the user set onto e.
func applyExecutionFlags(cmd *cobra.Command, e *models.Execution) error {
	flags := cmd.Flags()
	if flags.Changed("broker") {
		e.Broker, _ = flags.GetString("broker")
	}
	if flags.Changed("ticker") {
		e.Ticker, _ = flags.GetString("ticker")
	}
	if flags.Changed("instrument") || e.Instrument == "" {
		raw, _ := flags.GetString("instrument")
		instrument, err := models.ParseInstrument(raw)
		if err != nil {
			return err
		}
		e.Instrument = instrument
	}
	if flags.Changed("side") {
		raw, _ := flags.GetString("side")
		side, err := models.ParseOrderSide(raw)
		if err != nil {
			return err
		}
		e.Side = side
	}
	if flags.Changed("qty") {
		raw, _ := flags.GetString("qty")
		qty, err := money.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid quantity: %w", err)
		}
		e.Quantity = qty
	}
	if flags.Changed("lots") {
		lots, _ := flags.GetInt("lots")
		e.Lots = &lots
	}
	if flags.Changed("price") {
		raw, _ := flags.GetString("price")
		price, err := money.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid price: %w", err)
		}
		e.Price = price
	}
	if flags.Changed("at") {
		raw, _ := flags.GetString("at")
		at, err := parseTimeFlag(raw)
		if err != nil {
			return err
		}
		e.ExecutedAt = at
	}
	return nil
}

func parseTimeFlag(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", raw)
}

// parseEndFlag turns an inclusive --to value into an exclusive bound at the
// next step of the precision it was written with: a bare date covers the
// whole day and "15:04" the whole minute.
func parseEndFlag(raw string) (time.Time, error) {
	if d, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return d.AddDate(0, 0, 1), nil
	}
	if m, err := time.ParseInLocation("2006-01-02 15:04", raw, time.UTC); err == nil {
		return m.Add(time.Minute), nil
	}
	t, err := parseTimeFlag(raw)
	if err != nil {
		return t, err
	}
	return t.Truncate(time.Second).Add(time.Second), nil
}

func parseExecutionID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid execution id %q", raw)
	}
	return id, nil
}

func newExecAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an execution",
		Example: `  journal exec add --broker zerodha --ticker INFY --side BUY --qty 100 --price 1500.50
  journal exec add --broker zerodha --ticker NIFTY24FEBFUT --instrument FUTURES --side SELL --qty 50 --lots 1 --price 22000 --at "2024-02-01 09:20:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			e := models.Execution{ExecutedAt: time.Now().UTC()}
			if err := applyExecutionFlags(cmd, &e); err != nil {
				output.Error("%v", err)
				return err
			}

			res, err := app.Journal.Apply(ctx, journal.InsertExecution(e))
			if err != nil {
				output.Error("Failed to record execution: %v", err)
				return err
			}
			return printMutation(output, app, res, "Recorded execution #%d", res.Execution.ID)
		},
	}
	addExecutionFlags(cmd)
	cmd.MarkFlagRequired("broker")
	cmd.MarkFlagRequired("ticker")
	cmd.MarkFlagRequired("side")
	cmd.MarkFlagRequired("qty")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newExecEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <execution-id>",
		Short: "Correct an execution",
		Long:  "Change any field of an unlocked execution. Flags that are not given keep their stored value.",
		Example: `  journal exec edit 42 --price 1501.25
  journal exec edit 42 --ticker TCS`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			id, err := parseExecutionID(args[0])
			if err != nil {
				return err
			}
			e, err := app.Store.GetExecution(ctx, id)
			if err != nil {
				output.Error("Failed to load execution: %v", err)
				return err
			}
			if err := applyExecutionFlags(cmd, e); err != nil {
				output.Error("%v", err)
				return err
			}

			res, err := app.Journal.Apply(ctx, journal.EditExecution(*e))
			if err != nil {
				output.Error("Failed to edit execution: %v", err)
				return err
			}
			return printMutation(output, app, res, "Updated execution #%d", id)
		},
	}
	addExecutionFlags(cmd)
	return cmd
}

func newExecRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <execution-id>",
		Aliases: []string{"delete"},
		Short:   "Delete an execution",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			id, err := parseExecutionID(args[0])
			if err != nil {
				return err
			}
			res, err := app.Journal.Apply(ctx, journal.DeleteExecution(id))
			if err != nil {
				output.Error("Failed to delete execution: %v", err)
				return err
			}
			return printMutation(output, app, res, "Deleted execution #%d", id)
		},
	}
}

func newExecLockCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <execution-id>",
		Short: "Lock an execution against edits and deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			id, err := parseExecutionID(args[0])
			if err != nil {
				return err
			}
			res, err := app.Journal.Apply(ctx, journal.LockExecution(id))
			if err != nil {
				output.Error("Failed to lock execution: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(newMutationView(res))
			}
			output.Success("✓ Execution #%d locked", id)
			return nil
		},
	}
}

func newExecListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List executions",
		Example: `  journal exec ls --ticker INFY
  journal exec ls --from 2024-02-01 --to 2024-02-29 --locked`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			filter, err := executionFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			execs, err := app.Store.ListExecutions(ctx, filter)
			if err != nil {
				output.Error("Failed to list executions: %v", err)
				return err
			}

			if output.IsJSON() {
				views := make([]executionView, len(execs))
				for i, e := range execs {
					views[i] = newExecutionView(e)
				}
				return output.JSON(views)
			}

			if len(execs) == 0 {
				output.Info("No executions found.")
				return nil
			}
			table := NewTable(output, "ID", "Time", "Broker", "Ticker", "Side", "Qty", "Price", "Locked")
			for _, e := range execs {
				locked := ""
				if e.Locked {
					locked = "🔒"
				}
				side := output.Green(string(e.Side))
				if e.Side == models.OrderSideSell {
					side = output.Red(string(e.Side))
				}
				table.AddRow(
					strconv.FormatInt(e.ID, 10),
					app.Format.DateTime(e.ExecutedAt),
					e.Broker,
					e.Ticker,
					side,
					app.Format.Quantity(e.Quantity),
					app.Format.Amount(e.Price),
					locked,
				)
			}
			table.Render()
			return nil
		},
	}
	addScopeFilterFlags(cmd)
	cmd.Flags().Bool("locked", false, "only locked executions")
	cmd.Flags().Bool("unlocked", false, "only unlocked executions")
	return cmd
}

func addScopeFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("broker", "", "filter by broker")
	cmd.Flags().String("ticker", "", "filter by ticker")
	cmd.Flags().String("from", "", "start date (inclusive)")
	cmd.Flags().String("to", "", "end date or time (inclusive)")
	cmd.Flags().Int("limit", 0, "maximum rows")
}

func executionFilterFromFlags(cmd *cobra.Command) (store.ExecutionFilter, error) {
	var filter store.ExecutionFilter
	var err error
	filter.Broker, filter.Ticker, filter.StartDate, filter.EndDate, filter.Limit, err = scopeFilterFromFlags(cmd)
	if err != nil {
		return filter, err
	}
	locked, _ := cmd.Flags().GetBool("locked")
	unlocked, _ := cmd.Flags().GetBool("unlocked")
	switch {
	case locked && unlocked:
		return filter, fmt.Errorf("--locked and --unlocked are exclusive")
	case locked:
		filter.Locked = &locked
	case unlocked:
		f := false
		filter.Locked = &f
	}
	return filter, nil
}

func scopeFilterFromFlags(cmd *cobra.Command) (broker, ticker string, from, to time.Time, limit int, err error) {
	broker, _ = cmd.Flags().GetString("broker")
	ticker, _ = cmd.Flags().GetString("ticker")
	broker = strings.ToLower(strings.TrimSpace(broker))
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	limit, _ = cmd.Flags().GetInt("limit")
	if raw, _ := cmd.Flags().GetString("from"); raw != "" {
		if from, err = parseTimeFlag(raw); err != nil {
			return
		}
	}
	if raw, _ := cmd.Flags().GetString("to"); raw != "" {
		if to, err = parseEndFlag(raw); err != nil {
			return
		}
	}
	return
}

// printMutation reports a committed mutation and the trades it produced.
func printMutation(output *Output, app *App, res *journal.Result, format string, args ...interface{}) error {
	if output.IsJSON() {
		return output.JSON(newMutationView(res))
	}
	output.Success("✓ "+format, args...)
	for _, s := range res.Scopes {
		output.Println()
		output.Bold("%s (%d trades)", s.Scope, len(s.Trades))
		if len(s.Trades) == 0 {
			continue
		}
		renderTrades(output, app, s.Trades)
	}
	return nil
}
