package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradejournal/internal/money"
)

// annotationOps binds the stop or target operations of the coordinator.
type annotationOps struct {
	noun   string
	add    func(ctx context.Context, tradeID string, price decimal.Decimal) (annotationView, error)
	remove func(ctx context.Context, id int64) error
	pin    func(ctx context.Context, id int64) error
	unpin  func(ctx context.Context, id int64) error
}

// addAnnotationCommands adds the stop and target commands.
func addAnnotationCommands(rootCmd *cobra.Command, app *App) {
	stops := annotationOps{
		noun: "stop",
		add: func(ctx context.Context, tradeID string, price decimal.Decimal) (annotationView, error) {
			s, err := app.Journal.AddStop(ctx, tradeID, price)
			if err != nil {
				return annotationView{}, err
			}
			return annotationView{ID: s.ID, TradeID: s.TradeID, Price: s.Price, IsPrimary: s.IsPrimary, Pinned: s.Pinned}, nil
		},
		remove: func(ctx context.Context, id int64) error { return app.Journal.RemoveStop(ctx, id) },
		pin:    func(ctx context.Context, id int64) error { return app.Journal.PinStop(ctx, id) },
		unpin:  func(ctx context.Context, id int64) error { return app.Journal.UnpinStop(ctx, id) },
	}
	targets := annotationOps{
		noun: "target",
		add: func(ctx context.Context, tradeID string, price decimal.Decimal) (annotationView, error) {
			t, err := app.Journal.AddTarget(ctx, tradeID, price)
			if err != nil {
				return annotationView{}, err
			}
			return annotationView{ID: t.ID, TradeID: t.TradeID, Price: t.Price, IsPrimary: t.IsPrimary, Pinned: t.Pinned}, nil
		},
		remove: func(ctx context.Context, id int64) error { return app.Journal.RemoveTarget(ctx, id) },
		pin:    func(ctx context.Context, id int64) error { return app.Journal.PinTarget(ctx, id) },
		unpin:  func(ctx context.Context, id int64) error { return app.Journal.UnpinTarget(ctx, id) },
	}

	rootCmd.AddCommand(newAnnotationCmd(app, stops,
		"Manage stop prices",
		`Attach stop prices to a trade. The primary stop is the one closest to the
entry: the lowest price for a long trade, the highest for a short one.
A pinned stop stays primary until it is unpinned.`))
	rootCmd.AddCommand(newAnnotationCmd(app, targets,
		"Manage target prices",
		`Attach target prices to a trade. The primary target is the nearest one:
the lowest price for a long trade, the highest for a short one.
A pinned target stays primary until it is unpinned.`))
}

func newAnnotationCmd(app *App, ops annotationOps, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   ops.noun,
		Short: short,
		Long:  long,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "add <trade-id> <price>",
		Short:   fmt.Sprintf("Attach a %s to a trade", ops.noun),
		Example: fmt.Sprintf("  journal %s add 3f2a9c1e 1480.50", ops.noun),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newAppOutput(cmd, app)
			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			tradeID, err := resolveTradeID(ctx, app.Store, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			price, err := money.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid price: %w", err)
			}

			view, err := ops.add(ctx, tradeID, price)
			if err != nil {
				output.Error("Failed to add %s: %v", ops.noun, err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(view)
			}
			output.Success("✓ Added %s #%d at %s", ops.noun, view.ID, app.Format.Amount(view.Price))
			if view.IsPrimary {
				output.Dim("  It is now the primary %s of the trade.", ops.noun)
			}
			return nil
		},
	})

	idCmd := func(use, short, done string, fn func(ctx context.Context, id int64) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <" + ops.noun + "-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				output := newAppOutput(cmd, app)
				ctx, cancel := commandContext(cmd, commandTimeout)
				defer cancel()

				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid %s id %q", ops.noun, args[0])
				}
				if err := fn(ctx, id); err != nil {
					output.Error("Failed to %s %s: %v", use, ops.noun, err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"id": id, "action": use})
				}
				output.Success("✓ %s #%d %s", ops.noun, id, done)
				return nil
			},
		}
	}

	cmd.AddCommand(idCmd("rm", fmt.Sprintf("Remove a %s", ops.noun), "removed", ops.remove))
	cmd.AddCommand(idCmd("pin", fmt.Sprintf("Pin a %s as the primary one", ops.noun), "pinned", ops.pin))
	cmd.AddCommand(idCmd("unpin", fmt.Sprintf("Return a trade's %ss to automatic selection", ops.noun), "unpinned", ops.unpin))

	return cmd
}
