package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/database"
	"tradeexecutor/src/model"
)

// PositionRepository handles read/write operations for positions.
// All status changes go through the typed transition methods below so a
// position row is never mutated ad hoc.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position in PENDING_ENTRY state.
// The given position will be updated with the generated ID and timestamps.
func (r *PositionRepository) Create(ctx context.Context, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "Create",
		"ticker":    position.Ticker,
		"signal_id": position.SignalID,
		"qty":       position.Qty,
	}).Debug("Creating new position")

	if position.Status == "" {
		position.Status = model.PositionStatusPendingEntry
	}

	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")
		return nil, err
	}

	return &position, nil
}

// SetOpen transitions a pending position to OPEN after the entry fill,
// recording entry price and opened value. Re-applying on an already open
// position is a no-op.
func (r *PositionRepository) SetOpen(
	ctx context.Context,
	id uint,
	avgEntryPrice float64,
	openedValue float64,
) error {

	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusPendingEntry).
		Updates(map[string]interface{}{
			"status":          model.PositionStatusOpen,
			"avg_entry_price": avgEntryPrice,
			"opened_value":    openedValue,
			"high_watermark":  avgEntryPrice,
			"opened_at":       now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "SetOpen",
			"id":   id,
		}).WithError(err).Error("Failed to open position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":            "PositionRepository",
		"op":              "SetOpen",
		"position_id":     id,
		"avg_entry_price": avgEntryPrice,
	}).Info("Position opened")

	return nil
}

// SetPartialExit records exit progress on a position that is not fully
// exited yet.
func (r *PositionRepository) SetPartialExit(ctx context.Context, id uint, exitedQty float64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status IN ?", id, []string{model.PositionStatusOpen, model.PositionStatusPartialExit}).
		Updates(map[string]interface{}{
			"status":     model.PositionStatusPartialExit,
			"exited_qty": exitedQty,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "SetPartialExit",
			"id":   id,
		}).WithError(err).Error("Failed to record partial exit")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "SetPartialExit",
		"position_id": id,
		"exited_qty":  exitedQty,
	}).Info("Position partial exit recorded")

	return nil
}

// SetClosed transitions a position to CLOSED with the final exited quantity
// and exit reason.
func (r *PositionRepository) SetClosed(
	ctx context.Context,
	id uint,
	reasonCode string,
	exitedQty float64,
) error {

	now := time.Now().UTC()

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           model.PositionStatusClosed,
			"exit_reason_code": reasonCode,
			"exited_qty":       exitedQty,
			"closed_at":        now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "SetClosed",
			"id":   id,
		}).WithError(err).Error("Failed to close position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "SetClosed",
		"position_id": id,
		"reason_code": reasonCode,
	}).Info("Position closed")

	return nil
}

// SetCancelled marks a position that never (fully) entered as CANCELLED.
func (r *PositionRepository) SetCancelled(ctx context.Context, id uint, reasonCode string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           model.PositionStatusCancelled,
			"exit_reason_code": reasonCode,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "SetCancelled",
			"id":   id,
		}).WithError(err).Error("Failed to cancel position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "SetCancelled",
		"position_id": id,
		"reason_code": reasonCode,
	}).Info("Position cancelled")

	return nil
}

// UpdateHighWatermark raises the position's high watermark to the given
// price. The watermark is monotonic: lower observations never move it.
func (r *PositionRepository) UpdateHighWatermark(ctx context.Context, id uint, price float64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND high_watermark < ?", id, price).
		Update("high_watermark", price).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "PositionRepository",
			"op":    "UpdateHighWatermark",
			"id":    id,
			"price": price,
		}).WithError(err).Error("Failed to update high watermark")
		return err
	}

	return nil
}

// CountOpen returns the number of positions currently holding inventory.
func (r *PositionRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("status IN ?", []string{model.PositionStatusOpen, model.PositionStatusPartialExit}).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "CountOpen",
		}).WithError(err).Error("Failed to count open positions")
		return 0, err
	}

	return count, nil
}

// OpenExposureForTicker returns the remaining notional exposure held in one
// ticker across all open and partially exited positions.
func (r *PositionRepository) OpenExposureForTicker(ctx context.Context, ticker string) (float64, error) {
	var exposure *float64

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select("SUM((qty - exited_qty) * avg_entry_price)").
		Where("ticker = ? AND status IN ?", ticker,
			[]string{model.PositionStatusOpen, model.PositionStatusPartialExit}).
		Scan(&exposure).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "OpenExposureForTicker",
			"ticker": ticker,
		}).WithError(err).Error("Failed to compute open exposure")
		return 0, err
	}

	if exposure == nil {
		return 0, nil
	}
	return *exposure, nil
}

// ExitScanRow is one candidate row for the exit trigger scanners: an open or
// partially exited position together with the number of its SELL orders that
// are still in flight.
type ExitScanRow struct {
	PositionID     uint       `gorm:"column:position_id"`
	Ticker         string     `gorm:"column:ticker"`
	SignalID       uint       `gorm:"column:signal_id"`
	Qty            float64    `gorm:"column:qty"`
	ExitedQty      float64    `gorm:"column:exited_qty"`
	AvgEntryPrice  float64    `gorm:"column:avg_entry_price"`
	HighWatermark  float64    `gorm:"column:high_watermark"`
	OpenedAt       *time.Time `gorm:"column:opened_at"`
	PendingSellCnt int        `gorm:"column:pending_sell_cnt"`
}

// FindForExitScan returns positions eligible for the exit trigger scanners.
// The pending_sell_cnt column lets callers skip positions that already have a
// SELL order in flight.
func (r *PositionRepository) FindForExitScan(ctx context.Context, limit int) ([]ExitScanRow, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []ExitScanRow

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select(`positions.id AS position_id, positions.ticker, positions.signal_id,
			positions.qty, positions.exited_qty, positions.avg_entry_price,
			positions.high_watermark, positions.opened_at,
			(SELECT COUNT(*) FROM orders o
				WHERE o.position_id = positions.id
				AND o.side = ?
				AND o.status IN ?) AS pending_sell_cnt`,
			model.OrderSideSell,
			[]string{model.OrderStatusSent, model.OrderStatusNew, model.OrderStatusPartialFilled}).
		Where("positions.status IN ?", []string{model.PositionStatusOpen, model.PositionStatusPartialExit}).
		Order("positions.id ASC").
		Limit(limit).
		Scan(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindForExitScan",
		}).WithError(err).Error("Failed to fetch positions for exit scan")
		return nil, err
	}

	return rows, nil
}
