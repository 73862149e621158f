package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func TestPositionRepositorySetOpenOnlyFromPending(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	position := &model.Position{Ticker: "005930", SignalID: 1, Qty: 10}
	require.NoError(t, repo.Create(ctx, position))
	require.Equal(t, model.PositionStatusPendingEntry, position.Status)

	require.NoError(t, repo.SetOpen(ctx, position.ID, 83500, 835000))

	reloaded, err := repo.FindByID(ctx, position.ID)
	require.NoError(t, err)
	require.Equal(t, model.PositionStatusOpen, reloaded.Status)
	require.Equal(t, 83500.0, reloaded.AvgEntryPrice)
	require.Equal(t, 83500.0, reloaded.HighWatermark)
	require.NotNil(t, reloaded.OpenedAt)

	// Re-opening an already open position is a no-op.
	require.NoError(t, repo.SetOpen(ctx, position.ID, 99999, 1))
	reloaded, err = repo.FindByID(ctx, position.ID)
	require.NoError(t, err)
	require.Equal(t, 83500.0, reloaded.AvgEntryPrice)
}

func TestPositionRepositoryHighWatermarkMonotonic(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	position := &model.Position{Ticker: "005930", SignalID: 1, Qty: 10}
	require.NoError(t, repo.Create(ctx, position))
	require.NoError(t, repo.SetOpen(ctx, position.ID, 100, 1000))

	require.NoError(t, repo.UpdateHighWatermark(ctx, position.ID, 105))
	require.NoError(t, repo.UpdateHighWatermark(ctx, position.ID, 103))

	reloaded, err := repo.FindByID(ctx, position.ID)
	require.NoError(t, err)
	require.Equal(t, 105.0, reloaded.HighWatermark)
}

func TestPositionRepositoryCountOpenAndExposure(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	seed := func(ticker, status string, qty, exited, entry float64) {
		require.NoError(t, db.Create(&model.Position{
			Ticker: ticker, SignalID: 1, Qty: qty, ExitedQty: exited,
			AvgEntryPrice: entry, Status: status,
		}).Error)
	}

	seed("005930", model.PositionStatusOpen, 10, 0, 100)
	seed("005930", model.PositionStatusPartialExit, 10, 4, 100)
	seed("005930", model.PositionStatusClosed, 10, 10, 100)
	seed("000660", model.PositionStatusOpen, 2, 0, 50)
	seed("005930", model.PositionStatusPendingEntry, 5, 0, 0)

	count, err := repo.CountOpen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	// 10*100 remaining plus 6*100 remaining; closed and pending rows do not
	// contribute.
	exposure, err := repo.OpenExposureForTicker(ctx, "005930")
	require.NoError(t, err)
	require.InDelta(t, 1600.0, exposure, 1e-9)

	exposure, err = repo.OpenExposureForTicker(ctx, "035720")
	require.NoError(t, err)
	require.Zero(t, exposure)
}

func TestPositionRepositoryFindForExitScan(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository().WithDB(db)
	orders := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	openedAt := time.Now().UTC().Add(-time.Hour)

	quiet := &model.Position{
		Ticker: "005930", SignalID: 1, Qty: 10, Status: model.PositionStatusOpen,
		AvgEntryPrice: 100, HighWatermark: 101, OpenedAt: &openedAt,
	}
	require.NoError(t, db.Create(quiet).Error)

	busy := &model.Position{
		Ticker: "000660", SignalID: 2, Qty: 5, Status: model.PositionStatusPartialExit,
		ExitedQty: 1, AvgEntryPrice: 50, HighWatermark: 55, OpenedAt: &openedAt,
	}
	require.NoError(t, db.Create(busy).Error)

	require.NoError(t, orders.Create(ctx, &model.Order{
		PositionID: busy.ID, Ticker: "000660", Side: model.OrderSideSell,
		Qty: 4, Status: model.OrderStatusSent, SentAt: time.Now().UTC(),
	}))

	rows, err := repo.FindForExitScan(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[uint]ExitScanRow{}
	for _, row := range rows {
		byID[row.PositionID] = row
	}

	require.Equal(t, 0, byID[quiet.ID].PendingSellCnt)
	require.Equal(t, 1, byID[busy.ID].PendingSellCnt)
	require.Equal(t, 1.0, byID[busy.ID].ExitedQty)
}
