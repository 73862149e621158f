package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeexecutor/src/database"
	"tradeexecutor/src/model"
)

// PositionEventRepository handles the append-only position event log.
type PositionEventRepository struct {
	db *gorm.DB
}

// NewPositionEventRepository creates a new repository instance using the main read/write database.
func NewPositionEventRepository() *PositionEventRepository {
	return &PositionEventRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionEventRepository) WithDB(db *gorm.DB) *PositionEventRepository {
	return &PositionEventRepository{db: db}
}

// InsertIdempotent appends an event unless one with the same idempotency key
// already exists. Returns whether a row was actually inserted; a duplicate
// insert is a no-op, never an error.
func (r *PositionEventRepository) InsertIdempotent(
	ctx context.Context,
	event *model.PositionEvent,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":            "PositionEventRepository",
		"op":              "InsertIdempotent",
		"position_id":     event.PositionID,
		"event_type":      event.EventType,
		"reason_code":     event.ReasonCode,
		"idempotency_key": event.IdempotencyKey,
	}).Debug("Appending position event")

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(event)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "PositionEventRepository",
			"op":              "InsertIdempotent",
			"idempotency_key": event.IdempotencyKey,
		}).WithError(result.Error).Error("Failed to append position event")
		return false, result.Error
	}

	inserted := result.RowsAffected > 0
	if !inserted {
		logger.WithFields(map[string]interface{}{
			"repo":            "PositionEventRepository",
			"op":              "InsertIdempotent",
			"idempotency_key": event.IdempotencyKey,
		}).Debug("Duplicate position event skipped")
	}

	return inserted, nil
}

// LatestBlockReason returns the reason code of the most recent BLOCK event
// for the position, or "" if the position was never blocked.
func (r *PositionEventRepository) LatestBlockReason(ctx context.Context, positionID uint) (string, error) {
	var event model.PositionEvent

	err := r.db.WithContext(ctx).
		Where("position_id = ? AND event_type = ?", positionID, model.EventTypeBlock).
		Order("id DESC").
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionEventRepository",
			"op":          "LatestBlockReason",
			"position_id": positionID,
		}).WithError(err).Error("Failed to fetch latest block reason")
		return "", err
	}

	return event.ReasonCode, nil
}

// CountByType returns how many events of one type exist for a position.
func (r *PositionEventRepository) CountByType(ctx context.Context, positionID uint, eventType string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.PositionEvent{}).
		Where("position_id = ? AND event_type = ?", positionID, eventType).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionEventRepository",
			"op":          "CountByType",
			"position_id": positionID,
			"event_type":  eventType,
		}).WithError(err).Error("Failed to count position events")
		return 0, err
	}

	return count, nil
}
