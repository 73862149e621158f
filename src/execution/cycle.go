package execution

import (
	"context"

	logger "github.com/sirupsen/logrus"
)

// CycleReport summarizes one reconciliation/trigger cycle.
type CycleReport struct {
	EntriesSynced   int `json:"entries_synced"`
	OppositeExits   int `json:"opposite_exits"`
	TrailingExits   int `json:"trailing_exits"`
	TimeExits       int `json:"time_exits"`
	ExitsSynced     int `json:"exits_synced"`
	PricedPositions int `json:"priced_positions"`
}

// RunCycle executes one full maintenance pass: pending entries are reconciled
// first, then the three exit scanners run (opposite signal, trailing stop,
// time), and finally pending exits are reconciled. Each stage runs even when
// an earlier one reported an error; the first error is returned alongside the
// partial report.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := e.SyncPendingEntries(ctx)
	report.EntriesSynced = n
	keep(err)

	n, err = e.TriggerOppositeSignalExitOrders(ctx)
	report.OppositeExits = n
	keep(err)

	prices, err := e.CollectCurrentPrices(ctx)
	report.PricedPositions = len(prices)
	keep(err)

	n, err = e.TriggerTrailingStopOrders(ctx, prices)
	report.TrailingExits = n
	keep(err)

	n, err = e.TriggerTimeExitOrders(ctx)
	report.TimeExits = n
	keep(err)

	n, err = e.SyncPendingExits(ctx)
	report.ExitsSynced = n
	keep(err)

	logger.WithFields(map[string]interface{}{
		"module":           "execution",
		"op":               "RunCycle",
		"entries_synced":   report.EntriesSynced,
		"opposite_exits":   report.OppositeExits,
		"trailing_exits":   report.TrailingExits,
		"time_exits":       report.TimeExits,
		"exits_synced":     report.ExitsSynced,
		"priced_positions": report.PricedPositions,
	}).Info("Execution cycle finished")

	return report, firstErr
}
