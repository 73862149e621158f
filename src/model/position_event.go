package model

import "time"

const (
	EventTypeEntry    = "ENTRY"
	EventTypeAdd      = "ADD"
	EventTypeExit     = "EXIT"
	EventTypeFullExit = "FULL_EXIT"
	EventTypeBlock    = "BLOCK"
)

const (
	EventActionExecuted = "EXECUTED"
	EventActionBlocked  = "BLOCKED"
)

// PositionEvent is the append-only audit record of a state-changing action.
// The unique idempotency key makes repeated application of the same event a
// no-op after the first, which is what allows reconciliation passes to be
// retried safely.
type PositionEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PositionID     uint      `gorm:"index;not null" json:"position_id"`
	EventType      string    `gorm:"size:50;not null" json:"event_type"`
	Action         string    `gorm:"size:50;not null" json:"action"`
	ReasonCode     string    `gorm:"size:100" json:"reason_code,omitempty"`
	Detail         string    `gorm:"type:jsonb" json:"detail,omitempty"`
	IdempotencyKey string    `gorm:"size:200;not null;uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for position events.
func (PositionEvent) TableName() string {
	return "position_events"
}
