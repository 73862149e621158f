package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeexecutor/src/database"
	"tradeexecutor/src/model"
)

// RiskStateRepository handles the per-trade-date risk aggregates.
type RiskStateRepository struct {
	db *gorm.DB
}

// NewRiskStateRepository creates a new repository instance using the main read/write database.
func NewRiskStateRepository() *RiskStateRepository {
	return &RiskStateRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RiskStateRepository) WithDB(db *gorm.DB) *RiskStateRepository {
	return &RiskStateRepository{db: db}
}

// EnsureForDate creates the risk state row for the given trade date if it
// does not exist yet. Safe to call on every cycle.
func (r *RiskStateRepository) EnsureForDate(ctx context.Context, tradeDate string) error {
	state := model.RiskState{
		TradeDate:      tradeDate,
		TradingEnabled: true,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trade_date"}},
			DoNothing: true,
		}).
		Create(&state).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "RiskStateRepository",
			"op":         "EnsureForDate",
			"trade_date": tradeDate,
		}).WithError(err).Error("Failed to ensure risk state")
		return err
	}

	return nil
}

// GetForDate fetches the risk state for one trade date.
// Returns (nil, nil) if no row exists.
func (r *RiskStateRepository) GetForDate(ctx context.Context, tradeDate string) (*model.RiskState, error) {
	var state model.RiskState

	err := r.db.WithContext(ctx).
		Where("trade_date = ?", tradeDate).
		First(&state).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":       "RiskStateRepository",
			"op":         "GetForDate",
			"trade_date": tradeDate,
		}).WithError(err).Error("Failed to fetch risk state")
		return nil, err
	}

	return &state, nil
}

// ApplyRealizedPnl folds one realized PnL amount into the trade date's
// aggregates: daily realized PnL accumulates, the consecutive-loss streak
// grows on a loss and resets on a non-loss.
func (r *RiskStateRepository) ApplyRealizedPnl(ctx context.Context, tradeDate string, pnl float64) error {
	logger.WithFields(map[string]interface{}{
		"repo":       "RiskStateRepository",
		"op":         "ApplyRealizedPnl",
		"trade_date": tradeDate,
		"pnl":        pnl,
	}).Debug("Applying realized PnL")

	if err := r.EnsureForDate(ctx, tradeDate); err != nil {
		return err
	}

	streakExpr := gorm.Expr("CASE WHEN ? < 0 THEN consecutive_losses + 1 ELSE 0 END", pnl)

	err := r.db.WithContext(ctx).
		Model(&model.RiskState{}).
		Where("trade_date = ?", tradeDate).
		Updates(map[string]interface{}{
			"daily_realized_pnl": gorm.Expr("daily_realized_pnl + ?", pnl),
			"consecutive_losses": streakExpr,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "RiskStateRepository",
			"op":         "ApplyRealizedPnl",
			"trade_date": tradeDate,
		}).WithError(err).Error("Failed to apply realized PnL")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "RiskStateRepository",
		"op":         "ApplyRealizedPnl",
		"trade_date": tradeDate,
		"pnl":        pnl,
	}).Info("Realized PnL applied")

	return nil
}

// SetCooldownUntil persists the cooldown window computed when the loss
// streak first crosses the threshold. An already set cooldown is never
// overwritten, so the window cannot self-reset.
func (r *RiskStateRepository) SetCooldownUntil(ctx context.Context, tradeDate string, until time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.RiskState{}).
		Where("trade_date = ? AND cooldown_until IS NULL", tradeDate).
		Update("cooldown_until", until).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "RiskStateRepository",
			"op":         "SetCooldownUntil",
			"trade_date": tradeDate,
		}).WithError(err).Error("Failed to set cooldown")
		return err
	}

	return nil
}

// SetDailyLossLimitHit flags the trade date once the daily loss limit is
// breached so subsequent gate checks short-circuit.
func (r *RiskStateRepository) SetDailyLossLimitHit(ctx context.Context, tradeDate string) error {
	err := r.db.WithContext(ctx).
		Model(&model.RiskState{}).
		Where("trade_date = ?", tradeDate).
		Update("daily_loss_limit_hit", true).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "RiskStateRepository",
			"op":         "SetDailyLossLimitHit",
			"trade_date": tradeDate,
		}).WithError(err).Error("Failed to flag daily loss limit")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "RiskStateRepository",
		"op":         "SetDailyLossLimitHit",
		"trade_date": tradeDate,
	}).Warn("Daily loss limit hit")

	return nil
}
