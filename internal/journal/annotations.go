package journal

import (
	"context"

	"github.com/shopspring/decimal"

	"tradejournal/internal/audit"
	"tradejournal/internal/errors"
	"tradejournal/internal/models"
	"tradejournal/internal/store"
)

// AddStop attaches a stop price to a trade and returns it with its primary
// flag as chosen by the selection policy.
func (c *Coordinator) AddStop(ctx context.Context, tradeID string, price decimal.Decimal) (*models.TradeStop, error) {
	if !price.IsPositive() {
		return nil, errors.NewValidationError("price", price.String(), "stop price must be positive")
	}
	var added models.TradeStop
	err := c.withTrade(ctx, tradeID, audit.StopAdded, func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		st := &models.TradeStop{TradeID: tradeID, Price: price, CreatedAt: c.now()}
		if err := tx.InsertStop(ctx, st); err != nil {
			return err
		}
		set, err := c.recomputeScope(ctx, tx, scope, nil)
		if err != nil {
			return err
		}
		for _, s := range set.Stops {
			if s.ID == st.ID {
				added = s
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// AddTarget attaches a target price to a trade.
func (c *Coordinator) AddTarget(ctx context.Context, tradeID string, price decimal.Decimal) (*models.TradeTarget, error) {
	if !price.IsPositive() {
		return nil, errors.NewValidationError("price", price.String(), "target price must be positive")
	}
	var added models.TradeTarget
	err := c.withTrade(ctx, tradeID, audit.TargetAdded, func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		tg := &models.TradeTarget{TradeID: tradeID, Price: price, CreatedAt: c.now()}
		if err := tx.InsertTarget(ctx, tg); err != nil {
			return err
		}
		set, err := c.recomputeScope(ctx, tx, scope, nil)
		if err != nil {
			return err
		}
		for _, t := range set.Targets {
			if t.ID == tg.ID {
				added = t
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveStop deletes a stop; another stop may become primary.
func (c *Coordinator) RemoveStop(ctx context.Context, stopID int64) error {
	st, err := c.store.GetStop(ctx, stopID)
	if err != nil {
		return err
	}
	return c.withTrade(ctx, st.TradeID, audit.StopRemoved, func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		if err := tx.DeleteStop(ctx, stopID); err != nil {
			return err
		}
		_, err := c.recomputeScope(ctx, tx, scope, nil)
		return err
	})
}

// RemoveTarget deletes a target.
func (c *Coordinator) RemoveTarget(ctx context.Context, targetID int64) error {
	tg, err := c.store.GetTarget(ctx, targetID)
	if err != nil {
		return err
	}
	return c.withTrade(ctx, tg.TradeID, audit.TargetRemoved, func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		if err := tx.DeleteTarget(ctx, targetID); err != nil {
			return err
		}
		_, err := c.recomputeScope(ctx, tx, scope, nil)
		return err
	})
}

// PinStop makes a stop the primary one regardless of the selection policy.
// The pin survives recomputation until UnpinStop.
func (c *Coordinator) PinStop(ctx context.Context, stopID int64) error {
	return c.pinStop(ctx, stopID, true)
}

// UnpinStop returns the trade's stops to the selection policy.
func (c *Coordinator) UnpinStop(ctx context.Context, stopID int64) error {
	return c.pinStop(ctx, stopID, false)
}

// PinTarget makes a target the primary one regardless of the policy.
func (c *Coordinator) PinTarget(ctx context.Context, targetID int64) error {
	return c.pinTarget(ctx, targetID, true)
}

// UnpinTarget returns the trade's targets to the selection policy.
func (c *Coordinator) UnpinTarget(ctx context.Context, targetID int64) error {
	return c.pinTarget(ctx, targetID, false)
}

func (c *Coordinator) pinStop(ctx context.Context, stopID int64, pin bool) error {
	st, err := c.store.GetStop(ctx, stopID)
	if err != nil {
		return err
	}
	return c.withTrade(ctx, st.TradeID, pinEvent(pin), func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		if _, err := tx.GetStop(ctx, stopID); err != nil {
			return err
		}
		_, err := c.recomputeScope(ctx, tx, scope, func(stops []models.TradeStop, _ []models.TradeTarget) error {
			for i := range stops {
				if stops[i].TradeID != st.TradeID {
					continue
				}
				switch {
				case stops[i].ID == stopID:
					stops[i].Pinned = pin
				case pin:
					// only one pinned stop per trade
					stops[i].Pinned = false
				}
			}
			return nil
		})
		return err
	})
}

func (c *Coordinator) pinTarget(ctx context.Context, targetID int64, pin bool) error {
	tg, err := c.store.GetTarget(ctx, targetID)
	if err != nil {
		return err
	}
	return c.withTrade(ctx, tg.TradeID, pinEvent(pin), func(ctx context.Context, tx store.Tx, scope models.Scope) error {
		if _, err := tx.GetTarget(ctx, targetID); err != nil {
			return err
		}
		_, err := c.recomputeScope(ctx, tx, scope, func(_ []models.TradeStop, targets []models.TradeTarget) error {
			for i := range targets {
				if targets[i].TradeID != tg.TradeID {
					continue
				}
				switch {
				case targets[i].ID == targetID:
					targets[i].Pinned = pin
				case pin:
					targets[i].Pinned = false
				}
			}
			return nil
		})
		return err
	})
}

// withTrade locks the scope of a trade and runs fn in a transaction.
func (c *Coordinator) withTrade(ctx context.Context, tradeID string, event audit.EventType, fn func(ctx context.Context, tx store.Tx, scope models.Scope) error) error {
	trade, err := c.store.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	scope := trade.Scope()

	unlock := c.locks.lock(scope)
	defer unlock()

	err = c.store.InTx(ctx, func(tx store.Tx) error {
		// the trade may have vanished while waiting for the lock
		current, err := tx.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if current.Scope() != scope {
			return errors.NewNotFoundError("trade", tradeID)
		}
		return fn(ctx, tx, scope)
	})
	if err != nil {
		err = classify(string(event), scope, err)
	}

	ev := audit.Event{EventType: event, Broker: scope.Broker, Ticker: scope.Ticker, TradeID: tradeID, Success: err == nil}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	c.auditLog(ctx, ev)
	return err
}

func pinEvent(pin bool) audit.EventType {
	if pin {
		return audit.AnnotationPin
	}
	return audit.AnnotationUnpin
}
