package model

import "time"

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeMarket = "MARKET"
)

const (
	OrderStatusSent          = "SENT"
	OrderStatusNew           = "NEW"
	OrderStatusPartialFilled = "PARTIAL_FILLED"
	OrderStatusFilled        = "FILLED"
	OrderStatusRejected      = "REJECTED"
	OrderStatusCancelled     = "CANCELLED"
	OrderStatusExpired       = "EXPIRED"
)

// Order represents one broker-directed BUY/SELL instruction and its lifecycle.
type Order struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PositionID    uint       `gorm:"index;not null" json:"position_id"`
	SignalID      uint       `gorm:"index" json:"signal_id"`
	Ticker        string     `gorm:"size:20;index;not null" json:"ticker"`
	Side          string     `gorm:"size:10;not null" json:"side"`
	OrderType     string     `gorm:"size:20;not null;default:MARKET" json:"order_type"`
	Qty           float64    `json:"qty"`
	FilledQty     float64    `json:"filled_qty"`
	Price         *float64   `json:"price,omitempty"`
	Status        string     `gorm:"size:50;not null;default:SENT" json:"status"`
	BrokerOrderID string     `gorm:"size:100;index" json:"broker_order_id,omitempty"`
	AttemptNo     int        `gorm:"not null;default:1" json:"attempt_no"`
	SentAt        time.Time  `json:"sent_at"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminalOrderStatus reports whether the given status ends an order's
// lifecycle. A terminal status may never transition back to a non-terminal
// one.
func IsTerminalOrderStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// CanTransitionOrderStatus reports whether an order may move from one status
// to another. Statuses are monotonic: once terminal, only a no-op repeat of
// the same status is tolerated.
func CanTransitionOrderStatus(from, to string) bool {
	if from == to {
		return true
	}
	return !IsTerminalOrderStatus(from)
}
