package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradeexecutor/src/database"
	"tradeexecutor/src/executors"
)

type Executor struct {
}

func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	logrus.Info("Starting trade executor loop")

	if err := executors.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Executor loop failed")
		return err
	}

	return nil
}
