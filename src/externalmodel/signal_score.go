package externalmodel

import "time"

const (
	SignalDecisionBuy    = "BUY"
	SignalDecisionIgnore = "IGNORE"
	SignalDecisionBlock  = "BLOCK"
)

// SignalScore is the scored trade signal produced by the upstream scoring
// pipeline. It lives in the read-only database; this service never writes it.
type SignalScore struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	NewsID        uint      `gorm:"column:news_id" json:"news_id"`
	EventTickerID uint      `gorm:"column:event_ticker_id" json:"event_ticker_id"`
	Ticker        string    `gorm:"column:ticker" json:"ticker"`
	RawScore      float64   `gorm:"column:raw_score" json:"raw_score"`
	TotalScore    float64   `gorm:"column:total_score" json:"total_score"`
	Components    string    `gorm:"column:components" json:"components"`
	PricedInFlag  string    `gorm:"column:priced_in_flag" json:"priced_in_flag"`
	Decision      string    `gorm:"column:decision" json:"decision"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (SignalScore) TableName() string {
	return "signal_scores"
}
