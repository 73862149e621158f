package execution

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
)

// IntakeSignals picks up BUY-decided signals scored after the given moment
// and executes each one that has no entry order yet. Returns how many signals
// were executed and the creation time of the newest handled signal, which the
// caller feeds back as the next watermark. The watermark only moves past a
// signal once it has been handled without error, so a signal hit by a
// transient fault is re-read on the next pass.
func (e *Engine) IntakeSignals(ctx context.Context, since time.Time, qty float64) (int, time.Time, error) {
	signals, err := e.signals().FindBuySignalsSince(ctx, since, e.retry.BatchLimit)
	if err != nil {
		return 0, since, err
	}

	latest := since
	executed := 0

	for _, signal := range signals {
		exists, err := e.orders(e.db).ExistsForSignal(ctx, signal.ID)
		if err != nil {
			return executed, latest, err
		}
		if !exists {
			status, err := e.ExecuteSignal(ctx, signal.ID, signal.Ticker, qty)
			if err != nil {
				return executed, latest, err
			}

			logger.WithFields(map[string]interface{}{
				"module":    "execution",
				"op":        "IntakeSignals",
				"signal_id": signal.ID,
				"ticker":    signal.Ticker,
				"status":    status,
			}).Info("Signal executed")
			executed++
		}

		if signal.CreatedAt.After(latest) {
			latest = signal.CreatedAt
		}
	}

	return executed, latest, nil
}
