package execution

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/broker"
	"tradeexecutor/src/model"
	"tradeexecutor/src/repository"
)

// syncEntryOrderOnce reconciles one pending entry order against the venue.
// A transient or unknown inquiry result leaves all local state untouched and
// reports PENDING.
func (e *Engine) syncEntryOrderOnce(ctx context.Context, ref *pendingEntryRef) (ExecStatus, error) {
	log := logger.WithFields(map[string]interface{}{
		"module":      "execution",
		"op":          "syncEntryOrderOnce",
		"order_id":    ref.OrderID,
		"position_id": ref.PositionID,
		"ticker":      ref.Ticker,
	})

	if ref.BrokerOrderID == "" {
		return StatusPending, nil
	}

	result, err := e.broker.InquireOrder(ref.BrokerOrderID, ref.Ticker, model.OrderSideBuy)
	if err != nil {
		log.WithError(err).Warn("Order inquiry failed, keeping pending")
		return StatusPending, nil
	}
	if result == nil {
		return StatusPending, nil
	}

	switch result.Status {
	case model.OrderStatusFilled:
		fillQty := result.FilledQty
		if fillQty <= 0 {
			fillQty = ref.Qty
		}
		fillPrice := result.AvgPrice
		if fillPrice <= 0 {
			price, ok := e.resolveExpectedPrice(ref.Ticker)
			if !ok {
				log.Warn("Filled with no average price and no quote, keeping pending")
				return StatusPending, nil
			}
			fillPrice = price
		}
		err := e.db.Transaction(func(tx *gorm.DB) error {
			if err := e.orders(tx).MarkFilled(ctx, ref.OrderID, fillPrice, fillQty, result.BrokerOrderID); err != nil {
				return err
			}
			if err := e.positions(tx).SetOpen(ctx, ref.PositionID, fillPrice, fillPrice*fillQty); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     ref.PositionID,
				EventType:      model.EventTypeEntry,
				Action:         model.EventActionExecuted,
				IdempotencyKey: entryEventKey(ref.PositionID, ref.OrderID),
			})
			return err
		})
		if err != nil {
			return StatusPending, err
		}
		log.Info("Entry order filled on sync")
		return StatusFilled, nil

	case model.OrderStatusPartialFilled:
		cumulative := result.FilledQty
		if cumulative+model.QtyEpsilon >= ref.Qty {
			// Cumulative quantity already covers the order; promote to a
			// full fill instead of recording a partial.
			fillPrice := result.AvgPrice
			if fillPrice <= 0 {
				price, ok := e.resolveExpectedPrice(ref.Ticker)
				if !ok {
					log.Warn("Filled with no average price and no quote, keeping pending")
					return StatusPending, nil
				}
				fillPrice = price
			}
			err := e.db.Transaction(func(tx *gorm.DB) error {
				if err := e.orders(tx).MarkFilled(ctx, ref.OrderID, fillPrice, cumulative, result.BrokerOrderID); err != nil {
					return err
				}
				if err := e.positions(tx).SetOpen(ctx, ref.PositionID, fillPrice, fillPrice*cumulative); err != nil {
					return err
				}
				_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
					PositionID:     ref.PositionID,
					EventType:      model.EventTypeEntry,
					Action:         model.EventActionExecuted,
					IdempotencyKey: entryEventKey(ref.PositionID, ref.OrderID),
				})
				return err
			})
			if err != nil {
				return StatusPending, err
			}
			return StatusFilled, nil
		}

		if cumulative > ref.FilledQty+model.QtyEpsilon {
			err := e.db.Transaction(func(tx *gorm.DB) error {
				if err := e.orders(tx).RecordPartialFill(ctx, ref.OrderID, cumulative, result.BrokerOrderID); err != nil {
					return err
				}
				_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
					PositionID:     ref.PositionID,
					EventType:      model.EventTypeAdd,
					Action:         model.EventActionExecuted,
					IdempotencyKey: addEventKey(ref.PositionID, ref.OrderID, cumulative),
				})
				return err
			})
			if err != nil {
				return StatusPending, err
			}
			log.WithField("filled_qty", cumulative).Info("Entry partial fill recorded")
		}
		return StatusPending, nil

	case model.OrderStatusRejected, model.OrderStatusCancelled, model.OrderStatusExpired:
		reason := result.ReasonCode
		if reason == "" {
			reason = ReasonOrderRejected
		}
		err := e.db.Transaction(func(tx *gorm.DB) error {
			if err := e.orders(tx).UpdateStatus(ctx, ref.OrderID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			if err := e.positions(tx).SetCancelled(ctx, ref.PositionID, reason); err != nil {
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
		log.WithField("reason_code", reason).Warn("Entry order rejected on sync")
		return StatusBlocked, nil
	}

	return StatusPending, nil
}

// SyncPendingEntries reconciles every pending entry order and applies the
// retry policy to those the venue has not resolved: a stale acknowledged
// order is either retried with a replacement order or, once attempts are
// exhausted, expired with the position cancelled. Partially filled orders are
// never retried.
//
// Returns the number of orders whose state changed. A row-level error aborts
// the pass and propagates so the next cycle resumes from the unchanged rows.
func (e *Engine) SyncPendingEntries(ctx context.Context) (int, error) {
	rows, err := e.orders(e.db).FindPendingEntries(ctx, e.retry.BatchLimit)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range rows {
		row := rows[i]

		rs, err := e.syncEntryOrderOnce(ctx, &pendingEntryRef{
			OrderID:       row.OrderID,
			PositionID:    row.PositionID,
			SignalID:      row.SignalID,
			Ticker:        row.Ticker,
			Qty:           row.Qty,
			FilledQty:     row.FilledQty,
			BrokerOrderID: row.BrokerOrderID,
		})
		if err != nil {
			e.Capture(ctx, "SyncPendingEntries", err, map[string]interface{}{
				"order_id": row.OrderID,
			})
			return changed, err
		}
		if rs != StatusPending {
			changed++
			continue
		}

		retried, err := e.maybeRetryEntry(ctx, row)
		if err != nil {
			e.Capture(ctx, "SyncPendingEntries", err, map[string]interface{}{
				"order_id": row.OrderID,
			})
			return changed, err
		}
		if retried {
			changed++
		}
	}

	return changed, nil
}

// maybeRetryEntry applies the retry policy to one still-pending entry order.
// Reports whether the order's state changed.
func (e *Engine) maybeRetryEntry(ctx context.Context, row repository.PendingOrderRow) (bool, error) {
	log := logger.WithFields(map[string]interface{}{
		"module":      "execution",
		"op":          "maybeRetryEntry",
		"order_id":    row.OrderID,
		"position_id": row.PositionID,
		"attempt_no":  row.AttemptNo,
	})

	// The sync step may have just resolved the order; re-read before acting.
	currentStatus, err := e.orders(e.db).GetStatus(ctx, row.OrderID)
	if err != nil {
		return false, err
	}
	if currentStatus != model.OrderStatusSent && currentStatus != model.OrderStatusNew {
		// Terminal or partially filled. Partial fills hold real inventory
		// and are left for the reconciler to finish, never replaced.
		return false, nil
	}

	if e.now().Sub(row.SentAt) < e.retry.MinRetryInterval {
		return false, nil
	}

	if row.AttemptNo >= e.retry.MaxAttemptsPerSignal {
		err := e.db.Transaction(func(tx *gorm.DB) error {
			if err := e.orders(tx).UpdateStatus(ctx, row.OrderID, model.OrderStatusExpired, ""); err != nil {
				return err
			}
			if err := e.positions(tx).SetCancelled(ctx, row.PositionID, ReasonRetryExhausted); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     row.PositionID,
				EventType:      model.EventTypeBlock,
				Action:         model.EventActionBlocked,
				ReasonCode:     ReasonRetryExhausted,
				IdempotencyKey: retryBlockEventKey(row.PositionID, row.OrderID),
			})
			return err
		})
		if err != nil {
			return false, err
		}
		log.Warn("Entry retries exhausted")
		e.notifier.Notify("Entry retries exhausted", map[string]interface{}{
			"position_id": row.PositionID,
			"ticker":      row.Ticker,
		})
		return true, nil
	}

	price, ok := e.resolveExpectedPrice(row.Ticker)
	if !ok {
		log.Warn("No price for retry, keeping order pending")
		return false, nil
	}

	result, err := e.broker.SendOrder(broker.OrderRequest{
		SignalID:      row.SignalID,
		Ticker:        row.Ticker,
		Side:          model.OrderSideBuy,
		Qty:           row.Qty,
		OrderType:     model.OrderTypeMarket,
		ExpectedPrice: price,
	})
	if err != nil {
		return false, err
	}

	var pending *pendingEntryRef

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.orders(tx).UpdateStatus(ctx, row.OrderID, model.OrderStatusExpired, ""); err != nil {
			return err
		}

		replacement := &model.Order{
			PositionID: row.PositionID,
			SignalID:   row.SignalID,
			Ticker:     row.Ticker,
			Side:       model.OrderSideBuy,
			OrderType:  model.OrderTypeMarket,
			Qty:        row.Qty,
			Status:     model.OrderStatusSent,
			AttemptNo:  row.AttemptNo + 1,
			SentAt:     e.now(),
		}
		if err := e.orders(tx).Create(ctx, replacement); err != nil {
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
				fillQty = row.Qty
			}
			if err := e.orders(tx).MarkFilled(ctx, replacement.ID, fillPrice, fillQty, result.BrokerOrderID); err != nil {
				return err
			}
			if err := e.positions(tx).SetOpen(ctx, row.PositionID, fillPrice, fillPrice*fillQty); err != nil {
				return err
			}
			_, err := e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     row.PositionID,
				EventType:      model.EventTypeEntry,
				Action:         model.EventActionExecuted,
				IdempotencyKey: entryEventKey(row.PositionID, replacement.ID),
			})
			return err

		case isAckStatus(result.Status):
			if err := e.orders(tx).UpdateStatus(ctx, replacement.ID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			pending = &pendingEntryRef{
				OrderID:       replacement.ID,
				PositionID:    row.PositionID,
				SignalID:      row.SignalID,
				Ticker:        row.Ticker,
				Qty:           row.Qty,
				BrokerOrderID: result.BrokerOrderID,
			}
			return nil

		default:
			reason := result.ReasonCode
			if reason == "" {
				reason = ReasonOrderRejected
			}
			// A retry failing for the same reason as the last recorded block
			// signals a persistent condition, not a transient one.
			lastReason, err := e.events(tx).LatestBlockReason(ctx, row.PositionID)
			if err != nil {
				return err
			}
			if lastReason == reason {
				reason = ReasonRetryBlocked
			}
			if err := e.orders(tx).UpdateStatus(ctx, replacement.ID, result.Status, result.BrokerOrderID); err != nil {
				return err
			}
			if err := e.positions(tx).SetCancelled(ctx, row.PositionID, reason); err != nil {
				return err
			}
			_, err = e.events(tx).InsertIdempotent(ctx, &model.PositionEvent{
				PositionID:     row.PositionID,
				EventType:      model.EventTypeBlock,
				Action:         model.EventActionBlocked,
				ReasonCode:     reason,
				IdempotencyKey: blockEventKey(row.PositionID, replacement.ID),
			})
			return err
		}
	})
	if err != nil {
		return false, err
	}

	if pending != nil {
		if _, sErr := e.syncEntryOrderOnce(ctx, pending); sErr != nil {
			log.WithError(sErr).Error("Post-retry entry sync failed")
		}
	}

	log.Info("Entry order retried")
	return true, nil
}
