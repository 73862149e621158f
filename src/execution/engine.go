package execution

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"tradeexecutor/src/broker"
	"tradeexecutor/src/model"
	"tradeexecutor/src/repository"
	"tradeexecutor/src/risk"
)

// ExecStatus is the outcome of one execution or reconciliation step for a
// single order.
type ExecStatus string

const (
	StatusFilled  ExecStatus = "FILLED"
	StatusPending ExecStatus = "PENDING"
	StatusBlocked ExecStatus = "BLOCKED"
)

// errEntryBlocked aborts an entry unit of work so everything rolls back, then
// gets swallowed by the caller: a blocked entry is a business outcome, not a
// failure.
var errEntryBlocked = errors.New("entry blocked")

// Notifier receives human-directed execution notices. The default
// implementation logs them; a messaging integration can replace it.
type Notifier interface {
	Notify(title string, fields map[string]interface{})
}

// Engine drives signal execution: the risk gate, entry submission, pending
// order reconciliation and the exit trigger scanners. All persistent state
// changes run inside gorm transactions on db; signalDB is the read-only
// connection holding the upstream signal scores.
type Engine struct {
	db       *gorm.DB
	signalDB *gorm.DB
	broker   broker.Broker

	riskParams risk.Params
	retry      RetryPolicy
	exits      ExitPolicy

	notifier Notifier
	now      func() time.Time
}

func NewEngine(
	db *gorm.DB,
	signalDB *gorm.DB,
	b broker.Broker,
	riskParams risk.Params,
	retry RetryPolicy,
	exits ExitPolicy,
) *Engine {
	return &Engine{
		db:         db,
		signalDB:   signalDB,
		broker:     b,
		riskParams: riskParams,
		retry:      retry,
		exits:      exits,
		notifier:   logNotifier{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier replaces the default log-based notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithClock overrides the engine clock, used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) positions(tx *gorm.DB) *repository.PositionRepository {
	return repository.NewPositionRepository().WithDB(tx)
}

func (e *Engine) orders(tx *gorm.DB) *repository.OrderRepository {
	return repository.NewOrderRepository().WithDB(tx)
}

func (e *Engine) events(tx *gorm.DB) *repository.PositionEventRepository {
	return repository.NewPositionEventRepository().WithDB(tx)
}

func (e *Engine) riskStates(tx *gorm.DB) *repository.RiskStateRepository {
	return repository.NewRiskStateRepository().WithDB(tx)
}

func (e *Engine) signals() *repository.SignalRepository {
	return repository.NewSignalRepository().WithDB(e.signalDB)
}

func isAckStatus(status string) bool {
	switch status {
	case model.OrderStatusSent, model.OrderStatusNew, model.OrderStatusPartialFilled:
		return true
	}
	return false
}
