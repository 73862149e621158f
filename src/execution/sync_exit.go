package execution

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/model"
	"tradeexecutor/src/utils"
)

const ReasonFullExitFilled = "FULL_EXIT_FILLED"

// pendingExitRef carries the identifiers one SELL order reconciliation needs.
type pendingExitRef struct {
	OrderID       uint
	PositionID    uint
	Ticker        string
	Qty           float64
	FilledQty     float64
	BrokerOrderID string
}

// syncExitOrderOnce reconciles one pending SELL order against the venue. Fill
// progress is applied incrementally: realized PnL folds into the risk state
// for the increment only, the position's exited quantity moves forward and
// never back, and a fully exited position closes with exactly one FULL_EXIT
// event. A failed exit order goes terminal without touching the position's
// quantities.
func (e *Engine) syncExitOrderOnce(ctx context.Context, ref *pendingExitRef) (ExecStatus, error) {
	log := logger.WithFields(map[string]interface{}{
		"module":      "execution",
		"op":          "syncExitOrderOnce",
		"order_id":    ref.OrderID,
		"position_id": ref.PositionID,
		"ticker":      ref.Ticker,
	})

	if ref.BrokerOrderID == "" {
		return StatusPending, nil
	}

	result, err := e.broker.InquireOrder(ref.BrokerOrderID, ref.Ticker, model.OrderSideSell)
	if err != nil {
		log.WithError(err).Warn("Order inquiry failed, keeping pending")
		return StatusPending, nil
	}
	if result == nil {
		return StatusPending, nil
	}

	switch result.Status {
	case model.OrderStatusFilled, model.OrderStatusPartialFilled:
		cumulative := result.FilledQty
		if result.Status == model.OrderStatusFilled && cumulative <= 0 {
			cumulative = ref.Qty
		}
		if result.Status == model.OrderStatusPartialFilled && cumulative <= ref.FilledQty+model.QtyEpsilon {
			// Nothing new since the last pass.
			return StatusPending, nil
		}

		fillPrice := result.AvgPrice
		status := StatusPending

		err := e.db.Transaction(func(tx *gorm.DB) error {
			position, err := e.positions(tx).FindByID(ctx, ref.PositionID)
			if err != nil {
				return err
			}
			if position == nil {
				log.Error("Position missing for exit order")
				return nil
			}

			if fillPrice <= 0 {
				fillPrice = position.AvgEntryPrice
			}

			increment := cumulative - ref.FilledQty
			if increment < 0 {
				increment = 0
			}

			if result.Status == model.OrderStatusFilled {
				if err := e.orders(tx).MarkFilled(ctx, ref.OrderID, fillPrice, cumulative, result.BrokerOrderID); err != nil {
					return err
				}
				status = StatusFilled
			} else {
				if err := e.orders(tx).RecordPartialFill(ctx, ref.OrderID, cumulative, result.BrokerOrderID); err != nil {
					return err
				}
			}

			newExited := position.ExitedQty + increment
			if newExited > position.Qty {
				newExited = position.Qty
			}

			if increment > model.QtyEpsilon {
				pnl := (fillPrice - position.AvgEntryPrice) * increment
				if err := e.applyRealizedPnl(ctx, tx, pnl); err != nil {
					return err
				}
			}

			if newExited+model.QtyEpsilon >= position.Qty {
				if err := e.positions(tx).SetClosed(ctx, ref.PositionID, ReasonFullExitFilled, newExited); err != nil {
					return err
				}
				_, err = e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
					PositionID:     ref.PositionID,
					EventType:      model.EventTypeFullExit,
					Action:         model.EventActionExecuted,
					ReasonCode:     ReasonFullExitFilled,
					IdempotencyKey: exitEventKey(ref.PositionID, ref.OrderID),
				})
				return err
			}

			if err := e.positions(tx).SetPartialExit(ctx, ref.PositionID, newExited); err != nil {
				return err
			}
			_, err = e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     ref.PositionID,
				EventType:      model.EventTypeExit,
				Action:         model.EventActionExecuted,
				IdempotencyKey: partialExitEventKey(ref.PositionID, ref.OrderID, cumulative),
			})
			return err
		})
		if err != nil {
			return StatusPending, err
		}

		log.WithFields(map[string]interface{}{
			"filled_qty": cumulative,
			"status":     status,
		}).Info("Exit fill applied")
		return status, nil

	case model.OrderStatusRejected, model.OrderStatusCancelled, model.OrderStatusExpired:
		reason := result.ReasonCode
		if reason == "" {
			reason = ReasonOrderRejected
		}
		err := e.db.Transaction(func(tx *gorm.DB) error {
			if err := e.orders(tx).UpdateStatus(ctx, ref.OrderID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     ref.PositionID,
				EventType:      model.EventTypeBlock,
				Action:         model.EventActionBlocked,
				ReasonCode:     reason,
				IdempotencyKey: blockEventKey(ref.PositionID, ref.OrderID),
			})
			return err
		})
		if err != nil {
			return StatusPending, err
		}
		log.WithField("reason_code", reason).Warn("Exit order failed at venue")
		return StatusBlocked, nil
	}

	return StatusPending, nil
}

// applyRealizedPnl folds one realized increment into the trade date's risk
// aggregates and persists the consequences: the daily-loss-limit flag when
// the limit is breached and the cooldown window the first time the loss
// streak crosses its threshold.
func (e *Engine) applyRealizedPnl(ctx context.Context, tx *gorm.DB, pnl float64) error {
	tradeDate := utils.TradeDate(e.now())
	riskRepo := e.riskStates(tx)

	if err := riskRepo.ApplyRealizedPnl(ctx, tradeDate, pnl); err != nil {
		return err
	}

	state, err := riskRepo.GetForDate(ctx, tradeDate)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	dailyLimit := e.riskParams.DailyLossLimit.InexactFloat64()
	if dailyLimit > 0 && !state.DailyLossLimitHit && state.DailyRealizedPnl <= -dailyLimit {
		if err := riskRepo.SetDailyLossLimitHit(ctx, tradeDate); err != nil {
			return err
		}
		e.notifier.Notify("Daily loss limit hit", map[string]interface{}{
			"trade_date":         tradeDate,
			"daily_realized_pnl": state.DailyRealizedPnl,
		})
	}

	streak := e.riskParams.LossStreakCooldown
	if streak > 0 && state.ConsecutiveLosses >= streak && state.CooldownUntil == nil {
		until := e.now().Add(time.Duration(e.riskParams.CooldownMinutes) * time.Minute)
		if err := riskRepo.SetCooldownUntil(ctx, tradeDate, until); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"module":             "execution",
			"trade_date":         tradeDate,
			"consecutive_losses": state.ConsecutiveLosses,
			"cooldown_until":     until,
		}).Warn("Loss streak cooldown entered")
	}

	return nil
}

// SyncPendingExits reconciles every SELL order still awaiting a terminal
// venue outcome. Returns the number of orders whose state changed; a
// row-level error aborts the pass and propagates.
func (e *Engine) SyncPendingExits(ctx context.Context) (int, error) {
	rows, err := e.orders(e.db).FindPendingExits(ctx, e.retry.BatchLimit)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range rows {
		row := rows[i]

		rs, err := e.syncExitOrderOnce(ctx, &pendingExitRef{
			OrderID:       row.OrderID,
			PositionID:    row.PositionID,
			Ticker:        row.Ticker,
			Qty:           row.Qty,
			FilledQty:     row.FilledQty,
			BrokerOrderID: row.BrokerOrderID,
		})
		if err != nil {
			e.Capture(ctx, "SyncPendingExits", err, map[string]interface{}{
				"order_id": row.OrderID,
			})
			return changed, err
		}
		if rs != StatusPending {
			changed++
		}
	}

	return changed, nil
}
