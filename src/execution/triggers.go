package execution

import (
	"context"
	"encoding/json"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/broker"
	"tradeexecutor/src/model"
	"tradeexecutor/src/repository"
)

// submitExitOrder sends a SELL order for the position's remaining quantity
// and records the outcome. An immediate venue fill closes (or partially
// exits) the position and applies realized PnL right away; an acknowledgement
// leaves the order for the exit reconciler after one immediate sync attempt.
// Reports whether an order was created.
func (e *Engine) submitExitOrder(
	ctx context.Context,
	row repository.ExitScanRow,
	reasonCode string,
	expectedPrice float64,
	detail map[string]interface{},
) (bool, error) {

	remaining := row.Qty - row.ExitedQty
	if remaining <= model.QtyEpsilon {
		return false, nil
	}

	log := logger.WithFields(map[string]interface{}{
		"module":      "execution",
		"op":          "submitExitOrder",
		"position_id": row.PositionID,
		"ticker":      row.Ticker,
		"reason_code": reasonCode,
		"qty":         remaining,
	})

	result, err := e.broker.SendOrder(broker.OrderRequest{
		SignalID:      row.SignalID,
		Ticker:        row.Ticker,
		Side:          model.OrderSideSell,
		Qty:           remaining,
		OrderType:     model.OrderTypeMarket,
		ExpectedPrice: expectedPrice,
	})
	if err != nil {
		return false, err
	}

	detailJSON := ""
	if len(detail) > 0 {
		if b, mErr := json.Marshal(detail); mErr == nil {
			detailJSON = string(b)
		}
	}

	var pending *pendingExitRef

	err = e.db.Transaction(func(tx *gorm.DB) error {
		order := &model.Order{
			PositionID: row.PositionID,
			SignalID:   row.SignalID,
			Ticker:     row.Ticker,
			Side:       model.OrderSideSell,
			OrderType:  model.OrderTypeMarket,
			Qty:        remaining,
			Status:     model.OrderStatusSent,
			SentAt:     e.now(),
		}
		if err := e.orders(tx).Create(ctx, order); err != nil {
			return err
		}

		switch {
		case result.Status == model.OrderStatusFilled:
			fillPrice := result.AvgPrice
			if fillPrice <= 0 {
				fillPrice = expectedPrice
			}
			fillQty := result.FilledQty
			if fillQty <= 0 {
				fillQty = remaining
			}
			if err := e.orders(tx).MarkFilled(ctx, order.ID, fillPrice, fillQty, result.BrokerOrderID); err != nil {
				return err
			}

			pnl := (fillPrice - row.AvgEntryPrice) * fillQty
			if err := e.applyRealizedPnl(ctx, tx, pnl); err != nil {
				return err
			}

			newExited := row.ExitedQty + fillQty
			if newExited > row.Qty {
				newExited = row.Qty
			}

			if newExited+model.QtyEpsilon >= row.Qty {
				if err := e.positions(tx).SetClosed(ctx, row.PositionID, reasonCode, newExited); err != nil {
					return err
				}
				_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
					PositionID:     row.PositionID,
					EventType:      model.EventTypeFullExit,
					Action:         model.EventActionExecuted,
					ReasonCode:     reasonCode,
					Detail:         detailJSON,
					IdempotencyKey: exitEventKey(row.PositionID, order.ID),
				})
				return err
			}

			if err := e.positions(tx).SetPartialExit(ctx, row.PositionID, newExited); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     row.PositionID,
				EventType:      model.EventTypeExit,
				Action:         model.EventActionExecuted,
				ReasonCode:     reasonCode,
				Detail:         detailJSON,
				IdempotencyKey: partialExitEventKey(row.PositionID, order.ID, fillQty),
			})
			return err

		case isAckStatus(result.Status):
			if err := e.orders(tx).UpdateStatus(ctx, order.ID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			pending = &pendingExitRef{
				OrderID:       order.ID,
				PositionID:    row.PositionID,
				Ticker:        row.Ticker,
				Qty:           remaining,
				BrokerOrderID: result.BrokerOrderID,
			}
			return nil

		default:
			// Venue rejected the exit. The order goes terminal but the
			// position keeps its quantities; a later scan will try again.
			reason := result.ReasonCode
			if reason == "" {
				reason = ReasonOrderRejected
			}
			if err := e.orders(tx).UpdateStatus(ctx, order.ID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     row.PositionID,
				EventType:      model.EventTypeBlock,
				Action:         model.EventActionBlocked,
				ReasonCode:     reason,
				Detail:         detailJSON,
				IdempotencyKey: blockEventKey(row.PositionID, order.ID),
			})
			return err
		}
	})
	if err != nil {
		return false, err
	}

	if pending != nil {
		if _, sErr := e.syncExitOrderOnce(ctx, pending); sErr != nil {
			log.WithError(sErr).Error("Post-submit exit sync failed")
		}
	}

	log.Info("Exit order submitted")
	e.notifier.Notify("Exit order submitted", map[string]interface{}{
		"position_id": row.PositionID,
		"ticker":      row.Ticker,
		"reason_code": reasonCode,
		"qty":         remaining,
	})
	return true, nil
}

// TriggerTrailingStopOrders scans open positions against current prices and
// submits exits where the trailing stop fires. The high watermark is raised
// first so the drawdown is always measured from the freshest peak. Positions
// with a SELL order already in flight are skipped.
func (e *Engine) TriggerTrailingStopOrders(ctx context.Context, currentPrices map[string]float64) (int, error) {
	rows, err := e.positions(e.db).FindForExitScan(ctx, e.exits.BatchLimit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		if row.PendingSellCnt > 0 {
			continue
		}

		price, ok := currentPrices[row.Ticker]
		if !ok || price <= 0 {
			continue
		}
		if row.AvgEntryPrice <= 0 {
			continue
		}

		if err := e.positions(e.db).UpdateHighWatermark(ctx, row.PositionID, price); err != nil {
			return created, err
		}
		high := row.HighWatermark
		if price > high {
			high = price
		}

		if !ShouldExitOnTrailingStop(row.AvgEntryPrice, high, price, e.exits.TrailingArmPct, e.exits.TrailingGapPct) {
			continue
		}

		ok, err := e.submitExitOrder(ctx, row, ReasonTrailingStop, price, map[string]interface{}{
			"entry_price":    row.AvgEntryPrice,
			"high_watermark": high,
			"current_price":  price,
		})
		if err != nil {
			e.Capture(ctx, "TriggerTrailingStopOrders", err, map[string]interface{}{
				"position_id": row.PositionID,
			})
			return created, err
		}
		if ok {
			created++
		}
	}

	return created, nil
}

// TriggerOppositeSignalExitOrders scans open positions against the latest
// upstream signal per ticker and exits those the signal has turned against.
func (e *Engine) TriggerOppositeSignalExitOrders(ctx context.Context) (int, error) {
	rows, err := e.positions(e.db).FindForExitScan(ctx, e.exits.BatchLimit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		if row.PendingSellCnt > 0 {
			continue
		}

		signal, err := e.signals().LatestForTicker(ctx, row.Ticker)
		if err != nil {
			return created, err
		}
		if signal == nil {
			continue
		}

		if !ShouldExitOnOppositeSignal(signal.ID, row.SignalID, signal.Decision,
			signal.TotalScore, e.exits.ExitScoreThreshold) {
			continue
		}

		price := row.AvgEntryPrice
		if resolved, ok := e.resolveExpectedPrice(row.Ticker); ok {
			price = resolved
		}
		if price <= 0 {
			continue
		}

		ok, err := e.submitExitOrder(ctx, row, ReasonOppositeSignal, price, map[string]interface{}{
			"latest_signal_id": signal.ID,
			"decision":         signal.Decision,
			"total_score":      signal.TotalScore,
		})
		if err != nil {
			e.Capture(ctx, "TriggerOppositeSignalExitOrders", err, map[string]interface{}{
				"position_id": row.PositionID,
			})
			return created, err
		}
		if ok {
			created++
		}
	}

	return created, nil
}

// TriggerTimeExitOrders closes positions held beyond the maximum holding
// window.
func (e *Engine) TriggerTimeExitOrders(ctx context.Context) (int, error) {
	rows, err := e.positions(e.db).FindForExitScan(ctx, e.exits.BatchLimit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		if row.PendingSellCnt > 0 {
			continue
		}
		if row.OpenedAt == nil {
			continue
		}

		heldMinutes := e.now().Sub(*row.OpenedAt).Minutes()
		if !ShouldExitOnTime(heldMinutes, e.exits.MaxHoldMinutes) {
			continue
		}

		price := row.AvgEntryPrice
		if resolved, ok := e.resolveExpectedPrice(row.Ticker); ok {
			price = resolved
		}
		if price <= 0 {
			continue
		}

		ok, err := e.submitExitOrder(ctx, row, ReasonTimeExit, price, map[string]interface{}{
			"held_minutes": fmt.Sprintf("%.1f", heldMinutes),
		})
		if err != nil {
			e.Capture(ctx, "TriggerTimeExitOrders", err, map[string]interface{}{
				"position_id": row.PositionID,
			})
			return created, err
		}
		if ok {
			created++
		}
	}

	return created, nil
}
