package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func TestRiskStateEnsureForDateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRiskStateRepository().WithDB(db)
	ctx := context.Background()

	require.NoError(t, repo.EnsureForDate(ctx, "2026-08-30"))
	require.NoError(t, repo.EnsureForDate(ctx, "2026-08-30"))

	var count int64
	require.NoError(t, db.Model(&model.RiskState{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	state, err := repo.GetForDate(ctx, "2026-08-30")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.True(t, state.TradingEnabled)
}

func TestRiskStateGetForDateMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewRiskStateRepository().WithDB(db)

	state, err := repo.GetForDate(context.Background(), "1999-01-01")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestRiskStateApplyRealizedPnlStreak(t *testing.T) {
	db := newTestDB(t)
	repo := NewRiskStateRepository().WithDB(db)
	ctx := context.Background()
	tradeDate := "2026-08-30"

	require.NoError(t, repo.ApplyRealizedPnl(ctx, tradeDate, -100))
	require.NoError(t, repo.ApplyRealizedPnl(ctx, tradeDate, -50))

	state, err := repo.GetForDate(ctx, tradeDate)
	require.NoError(t, err)
	require.InDelta(t, -150.0, state.DailyRealizedPnl, 1e-9)
	require.Equal(t, 2, state.ConsecutiveLosses)

	// A winning exit resets the streak but keeps accumulating PnL.
	require.NoError(t, repo.ApplyRealizedPnl(ctx, tradeDate, 30))

	state, err = repo.GetForDate(ctx, tradeDate)
	require.NoError(t, err)
	require.InDelta(t, -120.0, state.DailyRealizedPnl, 1e-9)
	require.Equal(t, 0, state.ConsecutiveLosses)

	// Break-even counts as a non-loss.
	require.NoError(t, repo.ApplyRealizedPnl(ctx, tradeDate, -10))
	require.NoError(t, repo.ApplyRealizedPnl(ctx, tradeDate, 0))

	state, err = repo.GetForDate(ctx, tradeDate)
	require.NoError(t, err)
	require.Equal(t, 0, state.ConsecutiveLosses)
}

func TestRiskStateCooldownNeverOverwritten(t *testing.T) {
	db := newTestDB(t)
	repo := NewRiskStateRepository().WithDB(db)
	ctx := context.Background()
	tradeDate := "2026-08-30"

	require.NoError(t, repo.EnsureForDate(ctx, tradeDate))

	first := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetCooldownUntil(ctx, tradeDate, first))

	later := first.Add(2 * time.Hour)
	require.NoError(t, repo.SetCooldownUntil(ctx, tradeDate, later))

	state, err := repo.GetForDate(ctx, tradeDate)
	require.NoError(t, err)
	require.NotNil(t, state.CooldownUntil)
	require.WithinDuration(t, first, *state.CooldownUntil, time.Second)
}

func TestRiskStateDailyLossLimitHitFlag(t *testing.T) {
	db := newTestDB(t)
	repo := NewRiskStateRepository().WithDB(db)
	ctx := context.Background()
	tradeDate := "2026-08-30"

	require.NoError(t, repo.EnsureForDate(ctx, tradeDate))
	require.NoError(t, repo.SetDailyLossLimitHit(ctx, tradeDate))

	state, err := repo.GetForDate(ctx, tradeDate)
	require.NoError(t, err)
	require.True(t, state.DailyLossLimitHit)
}
