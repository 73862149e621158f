package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/database"
	"tradeexecutor/src/model"
)

// ErrIllegalTransition is returned when an order status update would move a
// terminal order back to a non-terminal state. It is a consistency-guard
// fault, not a business outcome: callers must abort their transaction and
// propagate it.
var ErrIllegalTransition = errors.New("illegal order status transition")

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "Create",
		"position_id": order.PositionID,
		"ticker":      order.Ticker,
		"side":        order.Side,
		"qty":         order.Qty,
		"attempt_no":  order.AttemptNo,
	}).Debug("Creating new order")

	if order.Status == "" {
		order.Status = model.OrderStatusSent
	}
	if order.AttemptNo == 0 {
		order.AttemptNo = 1
	}
	if order.SentAt.IsZero() {
		order.SentAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")
		return nil, err
	}

	return &order, nil
}

// GetStatus returns the current status of an order, or "" if it does not exist.
func (r *OrderRepository) GetStatus(ctx context.Context, id uint) (string, error) {
	var status string

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Pluck("status", &status).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "GetStatus",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order status")
		return "", err
	}

	return status, nil
}

// ExistsForSignal reports whether an entry order was already created for the
// given signal, used to keep the intake loop from re-executing a signal.
func (r *OrderRepository) ExistsForSignal(ctx context.Context, signalID uint) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("signal_id = ? AND side = ?", signalID, model.OrderSideBuy).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "ExistsForSignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to check orders for signal")
		return false, err
	}

	return count > 0, nil
}

// UpdateStatus sets a new status (and, when provided, the broker order id) on
// an order, enforcing the monotonic status lifecycle. Moving a terminal order
// back to a non-terminal status fails with ErrIllegalTransition and leaves
// the row unchanged.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	id uint,
	status string,
	brokerOrderID string,
) error {

	var order model.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "UpdateStatus",
			"id":   id,
		}).WithError(err).Error("Failed to load order for status update")
		return err
	}

	if !model.CanTransitionOrderStatus(order.Status, status) {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "UpdateStatus",
			"id":   id,
			"from": order.Status,
			"to":   status,
		}).Error("Illegal order status transition")
		return fmt.Errorf("order %d: %s -> %s: %w", id, order.Status, status, ErrIllegalTransition)
	}

	updates := map[string]interface{}{"status": status}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "UpdateStatus",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to update order status")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "UpdateStatus",
		"id":     id,
		"status": status,
	}).Info("Order status updated")

	return nil
}

// MarkFilled transitions an order to FILLED with its execution price and
// filled quantity. The same monotonic transition guard applies.
func (r *OrderRepository) MarkFilled(
	ctx context.Context,
	id uint,
	price float64,
	filledQty float64,
	brokerOrderID string,
) error {

	var order model.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "MarkFilled",
			"id":   id,
		}).WithError(err).Error("Failed to load order for fill")
		return err
	}

	if !model.CanTransitionOrderStatus(order.Status, model.OrderStatusFilled) {
		return fmt.Errorf("order %d: %s -> %s: %w", id, order.Status, model.OrderStatusFilled, ErrIllegalTransition)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      model.OrderStatusFilled,
		"price":       price,
		"filled_qty":  filledQty,
		"executed_at": now,
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "MarkFilled",
			"id":   id,
		}).WithError(err).Error("Failed to mark order filled")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "OrderRepository",
		"op":         "MarkFilled",
		"id":         id,
		"price":      price,
		"filled_qty": filledQty,
	}).Info("Order filled")

	return nil
}

// RecordPartialFill moves an order to PARTIAL_FILLED with the broker's
// cumulative filled quantity. Quantities never regress: a figure at or below
// the recorded one is ignored, which makes repeated reconciliation of the
// same broker snapshot harmless.
func (r *OrderRepository) RecordPartialFill(
	ctx context.Context,
	id uint,
	cumulativeQty float64,
	brokerOrderID string,
) error {

	updates := map[string]interface{}{
		"status":     model.OrderStatusPartialFilled,
		"filled_qty": cumulativeQty,
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND filled_qty < ? AND status IN ?", id, cumulativeQty,
			[]string{model.OrderStatusSent, model.OrderStatusNew, model.OrderStatusPartialFilled}).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "OrderRepository",
			"op":         "RecordPartialFill",
			"id":         id,
			"filled_qty": cumulativeQty,
		}).WithError(err).Error("Failed to record partial fill")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "OrderRepository",
		"op":         "RecordPartialFill",
		"id":         id,
		"filled_qty": cumulativeQty,
	}).Info("Order partial fill recorded")

	return nil
}

// PendingOrderRow is one order awaiting reconciliation together with the
// position fields the reconcilers need.
type PendingOrderRow struct {
	OrderID        uint      `gorm:"column:order_id"`
	PositionID     uint      `gorm:"column:position_id"`
	SignalID       uint      `gorm:"column:signal_id"`
	Ticker         string    `gorm:"column:ticker"`
	Qty            float64   `gorm:"column:qty"`
	FilledQty      float64   `gorm:"column:filled_qty"`
	Status         string    `gorm:"column:status"`
	BrokerOrderID  string    `gorm:"column:broker_order_id"`
	AttemptNo      int       `gorm:"column:attempt_no"`
	SentAt         time.Time `gorm:"column:sent_at"`
	PositionStatus string    `gorm:"column:position_status"`
}

// FindPendingEntries returns BUY orders still awaiting a terminal broker
// outcome for positions that have not entered yet.
func (r *OrderRepository) FindPendingEntries(ctx context.Context, limit int) ([]PendingOrderRow, error) {
	return r.findPending(ctx, model.OrderSideBuy, model.PositionStatusPendingEntry, limit)
}

// FindPendingExits returns SELL orders still awaiting a terminal broker
// outcome.
func (r *OrderRepository) FindPendingExits(ctx context.Context, limit int) ([]PendingOrderRow, error) {
	return r.findPending(ctx, model.OrderSideSell, "", limit)
}

func (r *OrderRepository) findPending(
	ctx context.Context,
	side string,
	positionStatus string,
	limit int,
) ([]PendingOrderRow, error) {

	if limit <= 0 {
		limit = 100
	}

	var rows []PendingOrderRow

	q := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select(`orders.id AS order_id, orders.position_id, orders.signal_id, orders.ticker,
			orders.qty, orders.filled_qty, orders.status, orders.broker_order_id,
			orders.attempt_no, orders.sent_at, positions.status AS position_status`).
		Joins("JOIN positions ON positions.id = orders.position_id").
		Where("orders.side = ? AND orders.status IN ?", side,
			[]string{model.OrderStatusSent, model.OrderStatusNew, model.OrderStatusPartialFilled})

	if positionStatus != "" {
		q = q.Where("positions.status = ?", positionStatus)
	}

	err := q.Order("orders.id ASC").Limit(limit).Scan(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "findPending",
			"side": side,
		}).WithError(err).Error("Failed to fetch pending orders")
		return nil, err
	}

	return rows, nil
}
