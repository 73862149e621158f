package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func createOrder(t *testing.T, repo *OrderRepository, status string) *model.Order {
	t.Helper()

	order := &model.Order{
		PositionID: 1,
		SignalID:   1,
		Ticker:     "005930",
		Side:       model.OrderSideBuy,
		OrderType:  model.OrderTypeMarket,
		Qty:        10,
		Status:     status,
		SentAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestOrderRepositoryUpdateStatusLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	order := createOrder(t, repo, model.OrderStatusSent)

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, model.OrderStatusNew, "B-1"))
	require.NoError(t, repo.UpdateStatus(ctx, order.ID, model.OrderStatusFilled, ""))

	// Repeating the same terminal status is tolerated as a no-op.
	require.NoError(t, repo.UpdateStatus(ctx, order.ID, model.OrderStatusFilled, ""))

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusFilled, reloaded.Status)
	require.Equal(t, "B-1", reloaded.BrokerOrderID)
}

func TestOrderRepositoryIllegalTransitionLeavesRowUnchanged(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	order := createOrder(t, repo, model.OrderStatusSent)
	require.NoError(t, repo.MarkFilled(ctx, order.ID, 83500, 10, "B-2"))

	err := repo.UpdateStatus(ctx, order.ID, model.OrderStatusSent, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	err = repo.UpdateStatus(ctx, order.ID, model.OrderStatusCancelled, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusFilled, reloaded.Status)
	require.Equal(t, 10.0, reloaded.FilledQty)
	require.NotNil(t, reloaded.Price)
	require.Equal(t, 83500.0, *reloaded.Price)
}

func TestOrderRepositoryPartialFillNeverRegresses(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	order := createOrder(t, repo, model.OrderStatusSent)

	require.NoError(t, repo.RecordPartialFill(ctx, order.ID, 4, "B-3"))
	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPartialFilled, reloaded.Status)
	require.Equal(t, 4.0, reloaded.FilledQty)

	// A stale snapshot with a lower cumulative quantity is ignored.
	require.NoError(t, repo.RecordPartialFill(ctx, order.ID, 2, ""))
	reloaded, err = repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, reloaded.FilledQty)

	require.NoError(t, repo.RecordPartialFill(ctx, order.ID, 7, ""))
	reloaded, err = repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 7.0, reloaded.FilledQty)
}

func TestOrderRepositoryFindPendingEntries(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository().WithDB(db)
	positions := NewPositionRepository().WithDB(db)
	ctx := context.Background()

	pending := &model.Position{Ticker: "005930", SignalID: 1, Qty: 10, Status: model.PositionStatusPendingEntry}
	require.NoError(t, positions.Create(ctx, pending))
	open := &model.Position{Ticker: "000660", SignalID: 2, Qty: 5, Status: model.PositionStatusOpen}
	require.NoError(t, positions.Create(ctx, open))

	require.NoError(t, repo.Create(ctx, &model.Order{
		PositionID: pending.ID, SignalID: 1, Ticker: "005930",
		Side: model.OrderSideBuy, Qty: 10, Status: model.OrderStatusNew, SentAt: time.Now().UTC(),
	}))
	require.NoError(t, repo.Create(ctx, &model.Order{
		PositionID: open.ID, SignalID: 2, Ticker: "000660",
		Side: model.OrderSideBuy, Qty: 5, Status: model.OrderStatusFilled, SentAt: time.Now().UTC(),
	}))
	require.NoError(t, repo.Create(ctx, &model.Order{
		PositionID: open.ID, SignalID: 2, Ticker: "000660",
		Side: model.OrderSideSell, Qty: 5, Status: model.OrderStatusSent, SentAt: time.Now().UTC(),
	}))

	entries, err := repo.FindPendingEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, pending.ID, entries[0].PositionID)
	require.Equal(t, model.PositionStatusPendingEntry, entries[0].PositionStatus)

	exits, err := repo.FindPendingExits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, exits, 1)
	require.Equal(t, open.ID, exits[0].PositionID)
	require.Equal(t, 5.0, exits[0].Qty)
}

func TestOrderRepositoryExistsForSignal(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewOrderRepository().WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "orders" WHERE signal_id = $1 AND side = $2`)).
		WithArgs(uint(7), model.OrderSideBuy).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsForSignal(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, exists)
}
