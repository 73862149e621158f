package model

import "time"

// RiskState is the per-trading-day aggregate gating new trades. One row per
// trade date; mutated by realized-PnL application after each exit fill.
type RiskState struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TradeDate         string     `gorm:"size:10;not null;uniqueIndex" json:"trade_date"`
	TradingEnabled    bool       `gorm:"not null;default:true" json:"trading_enabled"`
	DailyRealizedPnl  float64    `json:"daily_realized_pnl"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
	DailyLossLimitHit bool       `json:"daily_loss_limit_hit"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for risk state.
func (RiskState) TableName() string {
	return "risk_states"
}
