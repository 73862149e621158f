package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/broker"
	"tradeexecutor/src/model"
	"tradeexecutor/src/risk"
	"tradeexecutor/src/utils"
)

const (
	ReasonNoPrice          = "NO_PRICE"
	ReasonRiskStateMissing = "RISK_STATE_MISSING"
	ReasonOrderRejected    = "ORDER_REJECTED"
	ReasonRetryExhausted   = "RETRY_EXHAUSTED"
	ReasonRetryBlocked     = "RETRY_BLOCKED_SAME_CONDITION"
)

// pendingEntryRef carries the committed identifiers an immediate post-submit
// reconciliation pass needs.
type pendingEntryRef struct {
	OrderID       uint
	PositionID    uint
	SignalID      uint
	Ticker        string
	Qty           float64
	FilledQty     float64
	BrokerOrderID string
}

// ExecuteSignal runs the full entry flow for one BUY signal: risk-state
// lookup, price resolution, the risk gate, position and order creation, the
// venue submission and an immediate single reconciliation attempt when the
// venue only acknowledges.
//
// A BLOCKED outcome persists nothing: the unit of work rolls back, leaving
// only a notification (and, for venue rejections, nothing at all in the
// position tables).
func (e *Engine) ExecuteSignal(ctx context.Context, signalID uint, ticker string, qty float64) (ExecStatus, error) {
	log := logger.WithFields(map[string]interface{}{
		"module":    "execution",
		"op":        "ExecuteSignal",
		"signal_id": signalID,
		"ticker":    ticker,
		"qty":       qty,
	})

	if qty <= 0 {
		log.Warn("Non-positive quantity, skipping signal")
		return StatusBlocked, nil
	}

	tradeDate := utils.TradeDate(e.now())

	status := StatusBlocked
	blockReason := ""
	var decision risk.Decision
	var pending *pendingEntryRef

	err := e.db.Transaction(func(tx *gorm.DB) error {
		riskRepo := e.riskStates(tx)

		if err := riskRepo.EnsureForDate(ctx, tradeDate); err != nil {
			return err
		}
		state, err := riskRepo.GetForDate(ctx, tradeDate)
		if err != nil {
			return err
		}
		if state == nil {
			blockReason = ReasonRiskStateMissing
			return errEntryBlocked
		}

		price, ok := e.resolveExpectedPrice(ticker)
		if !ok {
			blockReason = ReasonNoPrice
			return errEntryBlocked
		}

		openCount, err := e.positions(tx).CountOpen(ctx)
		if err != nil {
			return err
		}
		exposure, err := e.positions(tx).OpenExposureForTicker(ctx, ticker)
		if err != nil {
			return err
		}

		notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
		decision = risk.CanTrade(state, notional, int(openCount),
			decimal.NewFromFloat(exposure), e.now(), e.riskParams)

		if !decision.Allowed {
			blockReason = decision.ReasonCode
			return errEntryBlocked
		}

		position := &model.Position{
			Ticker:   ticker,
			SignalID: signalID,
			Qty:      qty,
			Status:   model.PositionStatusPendingEntry,
		}
		if err := e.positions(tx).Create(ctx, position); err != nil {
			return err
		}

		order := &model.Order{
			PositionID: position.ID,
			SignalID:   signalID,
			Ticker:     ticker,
			Side:       model.OrderSideBuy,
			OrderType:  model.OrderTypeMarket,
			Qty:        qty,
			Status:     model.OrderStatusSent,
			SentAt:     e.now(),
		}
		if err := e.orders(tx).Create(ctx, order); err != nil {
			return err
		}

		result, err := e.broker.SendOrder(broker.OrderRequest{
			SignalID:      signalID,
			Ticker:        ticker,
			Side:          model.OrderSideBuy,
			Qty:           qty,
			OrderType:     model.OrderTypeMarket,
			ExpectedPrice: price,
		})
		if err != nil {
			return err
		}

		switch {
		case result.Status == model.OrderStatusFilled:
			fillPrice := result.AvgPrice
			if fillPrice <= 0 {
				fillPrice = price
			}
			fillQty := result.FilledQty
			if fillQty <= 0 {
				fillQty = qty
			}
			if err := e.orders(tx).MarkFilled(ctx, order.ID, fillPrice, fillQty, result.BrokerOrderID); err != nil {
				return err
			}
			if err := e.positions(tx).SetOpen(ctx, position.ID, fillPrice, fillPrice*fillQty); err != nil {
				return err
			}
			if _, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     position.ID,
				EventType:      model.EventTypeEntry,
				Action:         model.EventActionExecuted,
				IdempotencyKey: entryEventKey(position.ID, order.ID),
			}); err != nil {
				return err
			}
			status = StatusFilled
			return nil

		case isAckStatus(result.Status):
			if err := e.orders(tx).UpdateStatus(ctx, order.ID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			pending = &pendingEntryRef{
				OrderID:       order.ID,
				PositionID:    position.ID,
				SignalID:      signalID,
				Ticker:        ticker,
				Qty:           qty,
				BrokerOrderID: result.BrokerOrderID,
			}
			status = StatusPending
			return nil

		default:
			// Venue rejection. The block event and notification describe the
			// outcome, then the whole unit rolls back so nothing of the
			// attempt survives in the position tables.
			reason := result.ReasonCode
			if reason == "" {
				reason = ReasonOrderRejected
			}
			if _, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     position.ID,
				EventType:      model.EventTypeBlock,
				Action:         model.EventActionBlocked,
				ReasonCode:     reason,
				IdempotencyKey: blockEventKey(position.ID, order.ID),
			}); err != nil {
				return err
			}
			blockReason = reason
			return errEntryBlocked
		}
	})

	if err != nil && !errors.Is(err, errEntryBlocked) {
		log.WithError(err).Error("Entry execution failed")
		e.Capture(ctx, "ExecuteSignal", err, map[string]interface{}{
			"signal_id": signalID,
			"ticker":    ticker,
		})
		return StatusBlocked, err
	}

	if errors.Is(err, errEntryBlocked) {
		// A first crossing of the loss-streak threshold computes the cooldown
		// window inside the gate; persist it here, outside the rolled-back
		// unit of work.
		if decision.CooldownUntil != nil {
			if cErr := e.riskStates(e.db).EnsureForDate(ctx, tradeDate); cErr != nil {
				log.WithError(cErr).Error("Failed to ensure risk state for cooldown")
			}
			if cErr := e.riskStates(e.db).SetCooldownUntil(ctx, tradeDate, *decision.CooldownUntil); cErr != nil {
				log.WithError(cErr).Error("Failed to persist cooldown window")
			}
		}
		log.WithField("reason_code", blockReason).Warn("Entry blocked")
		e.notifier.Notify("Entry blocked", map[string]interface{}{
			"signal_id":   signalID,
			"ticker":      ticker,
			"reason_code": blockReason,
		})
		return StatusBlocked, nil
	}

	if status == StatusPending && pending != nil {
		// Single-shot reconciliation right after the commit; if the venue has
		// already filled, the caller sees FILLED without waiting a cycle.
		rs, sErr := e.syncEntryOrderOnce(ctx, pending)
		if sErr != nil {
			log.WithError(sErr).Error("Post-submit entry sync failed")
			return StatusPending, nil
		}
		status = rs
	}

	log.WithField("status", status).Info("Entry execution finished")
	return status, nil
}

func entryEventKey(positionID, orderID uint) string {
	return fmt.Sprintf("entry:%d:%d", positionID, orderID)
}

func addEventKey(positionID, orderID uint, cumQty float64) string {
	return fmt.Sprintf("add:%d:%d:%.9f", positionID, orderID, cumQty)
}

func blockEventKey(positionID, orderID uint) string {
	return fmt.Sprintf("block:%d:%d", positionID, orderID)
}

func retryBlockEventKey(positionID, orderID uint) string {
	return fmt.Sprintf("block-retry:%d:%d", positionID, orderID)
}

func exitEventKey(positionID, orderID uint) string {
	return fmt.Sprintf("exit:%d:%d", positionID, orderID)
}

func partialExitEventKey(positionID, orderID uint, cumQty float64) string {
	return fmt.Sprintf("exit:%d:%d:%.9f", positionID, orderID, cumQty)
}
