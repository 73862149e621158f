package model

import "time"

const (
	PositionStatusPendingEntry = "PENDING_ENTRY"
	PositionStatusOpen         = "OPEN"
	PositionStatusPartialExit  = "PARTIAL_EXIT"
	PositionStatusClosed       = "CLOSED"
	PositionStatusCancelled    = "CANCELLED"
)

// QtyEpsilon is the tolerance used when comparing broker-reported quantities
// against requested quantities. A position is closed exactly when exited_qty
// reaches qty within this epsilon.
const QtyEpsilon = 1e-9

// Position represents a tracked holding in one ticker from entry to exit.
// Rows are mutated only through PositionRepository transition operations.
type Position struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Ticker         string     `gorm:"size:20;index;not null" json:"ticker"`
	SignalID       uint       `gorm:"index" json:"signal_id"`
	Qty            float64    `json:"qty"`
	Status         string     `gorm:"size:50;not null;default:PENDING_ENTRY" json:"status"`
	AvgEntryPrice  float64    `json:"avg_entry_price"`
	OpenedValue    float64    `json:"opened_value"`
	ExitedQty      float64    `json:"exited_qty"`
	HighWatermark  float64    `json:"high_watermark"`
	ExitReasonCode string     `gorm:"size:100" json:"exit_reason_code,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// One-to-many relation: one position can have many orders and events
	Orders []Order         `gorm:"foreignKey:PositionID" json:"orders,omitempty"`
	Events []PositionEvent `gorm:"foreignKey:PositionID" json:"events,omitempty"`
}

// TableName allows you to control the exact table name for positions.
func (Position) TableName() string {
	return "positions"
}

// RemainingQty returns the quantity still held by the position.
func (p *Position) RemainingQty() float64 {
	remain := p.Qty - p.ExitedQty
	if remain < 0 {
		return 0
	}
	return remain
}

// IsFullyExited reports whether exited_qty has reached qty within epsilon.
func (p *Position) IsFullyExited() bool {
	return p.Qty-p.ExitedQty <= QtyEpsilon
}
