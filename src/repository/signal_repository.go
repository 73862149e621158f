package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeexecutor/src/database"
	"tradeexecutor/src/externalmodel"
)

// SignalRepository handles read-only operations for scored trade signals
// stored in the read-only database.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance.
// It uses the ReadOnlyDB connection by default.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.ReadOnlyDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions (even if read-only).
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// LatestForTicker fetches the most recent signal for one ticker.
// Returns (nil, nil) if the ticker has no signals.
func (r *SignalRepository) LatestForTicker(ctx context.Context, ticker string) (*externalmodel.SignalScore, error) {
	var signal externalmodel.SignalScore

	err := r.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("id DESC").
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalRepository",
			"op":     "LatestForTicker",
			"ticker": ticker,
		}).WithError(err).Error("Failed to fetch latest signal")
		return nil, err
	}

	return &signal, nil
}

// FindBuySignalsSince returns BUY-decided signals created after the given
// moment, oldest first, for the intake loop.
func (r *SignalRepository) FindBuySignalsSince(
	ctx context.Context,
	since time.Time,
	limit int,
) ([]externalmodel.SignalScore, error) {

	if limit <= 0 {
		limit = 50
	}

	var signals []externalmodel.SignalScore

	err := r.db.WithContext(ctx).
		Where("decision = ? AND created_at > ?", externalmodel.SignalDecisionBuy, since).
		Order("id ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "SignalRepository",
			"op":    "FindBuySignalsSince",
			"since": since,
		}).WithError(err).Error("Failed to fetch buy signals")
		return nil, err
	}

	return signals, nil
}
