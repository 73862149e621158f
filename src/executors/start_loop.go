package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/broker"
	"tradeexecutor/src/database"
	"tradeexecutor/src/execution"
	"tradeexecutor/src/risk"
)

// StartLoop runs the executor: on every tick it picks up newly scored BUY
// signals and runs the full execution cycle (entry reconciliation, the exit
// trigger scanners and exit reconciliation). It returns when the context is
// cancelled or a broker/database fault makes continuing pointless.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	venue, err := broker.Build()
	if err != nil {
		logger.WithError(err).Error("Failed to build broker")
		return err
	}

	health := venue.HealthCheck()
	if health.Status == broker.HealthCritical {
		logger.WithFields(map[string]interface{}{
			"status":      health.Status,
			"reason_code": health.ReasonCode,
		}).Error("Broker health critical, refusing to start")
		return errBrokerUnhealthy
	}

	execConfig := execution.GetConfig()
	engine := execution.NewEngine(
		database.MainDB,
		database.ReadOnlyDB,
		venue,
		risk.GetConfig().Params(),
		execConfig.RetryPolicy(),
		execConfig.ExitPolicy(),
	)

	ticker := time.NewTicker(config.LoopPeriod)
	defer ticker.Stop()

	// Start the signal watermark a little in the past so signals scored just
	// before boot are not lost across a restart. Already executed signals are
	// skipped by the per-signal order check.
	watermark := time.Now().UTC().Add(-config.SignalLookback)

	logger.WithFields(map[string]interface{}{
		"loop_period":       config.LoopPeriod,
		"default_order_qty": config.DefaultOrderQty,
	}).Info("Executor loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Executor loop stopped")
			return nil

		case <-ticker.C:
			executed, latest, err := engine.IntakeSignals(ctx, watermark, config.DefaultOrderQty)
			if err != nil {
				logger.WithError(err).Error("Signal intake failed")
			}
			watermark = latest

			report, err := engine.RunCycle(ctx)
			if err != nil {
				logger.WithError(err).Error("Execution cycle reported an error")
			}

			logger.WithFields(map[string]interface{}{
				"signals_executed": executed,
				"entries_synced":   report.EntriesSynced,
				"exits_synced":     report.ExitsSynced,
			}).Info("loop tick")
		}
	}
}
