package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultParams() Params {
	return Params{
		MaxLossPerTrade:        d("100000"),
		DailyLossLimit:         d("500"),
		MaxExposurePerSymbol:   d("1000000"),
		MaxConcurrentPositions: 3,
		LossStreakCooldown:     3,
		CooldownMinutes:        60,
		AssumedStopLossPct:     d("0.1"),
	}
}

func enabledState() *model.RiskState {
	return &model.RiskState{
		TradeDate:      "2026-08-30",
		TradingEnabled: true,
	}
}

func TestCanTradeAllows(t *testing.T) {
	decision := CanTrade(enabledState(), d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.True(t, decision.Allowed)
	require.Empty(t, decision.ReasonCode)
	require.Nil(t, decision.CooldownUntil)
}

func TestCanTradeKillSwitchWinsOverEverything(t *testing.T) {
	params := defaultParams()
	params.KillSwitch = true

	state := enabledState()
	state.TradingEnabled = false
	state.DailyLossLimitHit = true

	decision := CanTrade(state, d("10000"), 99, d("9999999"), time.Now(), params)

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonKillSwitchOn, decision.ReasonCode)
}

func TestCanTradeDisabled(t *testing.T) {
	state := enabledState()
	state.TradingEnabled = false

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonDisabled, decision.ReasonCode)
}

func TestCanTradeNilStateBlocksAsDisabled(t *testing.T) {
	decision := CanTrade(nil, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonDisabled, decision.ReasonCode)
}

func TestCanTradeDailyLimitHitFlag(t *testing.T) {
	state := enabledState()
	state.DailyLossLimitHit = true

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonDailyLimitHit, decision.ReasonCode)
}

func TestCanTradeDailyLimitOnRealizedPnl(t *testing.T) {
	state := enabledState()
	state.DailyRealizedPnl = -600

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonDailyLimit, decision.ReasonCode)
}

func TestCanTradeDailyLimitExactBoundaryBlocks(t *testing.T) {
	state := enabledState()
	state.DailyRealizedPnl = -500

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonDailyLimit, decision.ReasonCode)
}

func TestCanTradeCooldownFirstCrossingComputesWindow(t *testing.T) {
	state := enabledState()
	state.ConsecutiveLosses = 3

	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	decision := CanTrade(state, d("10000"), 0, decimal.Zero, now, defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonCooldown, decision.ReasonCode)
	require.NotNil(t, decision.CooldownUntil)
	require.Equal(t, now.Add(60*time.Minute), *decision.CooldownUntil)
}

func TestCanTradeCooldownActiveWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)

	state := enabledState()
	state.ConsecutiveLosses = 4
	state.CooldownUntil = &until

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, now, defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonCooldown, decision.ReasonCode)
	require.Nil(t, decision.CooldownUntil)
}

func TestCanTradeCooldownExpiredWindowAllows(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	until := now.Add(-time.Minute)

	state := enabledState()
	state.ConsecutiveLosses = 4
	state.CooldownUntil = &until

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, now, defaultParams())

	require.True(t, decision.Allowed)
}

func TestCanTradeMaxPositions(t *testing.T) {
	decision := CanTrade(enabledState(), d("10000"), 3, decimal.Zero, time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonMaxPositions, decision.ReasonCode)
}

func TestCanTradeMaxExposureProjected(t *testing.T) {
	decision := CanTrade(enabledState(), d("100"), 0, d("999950"), time.Now(), defaultParams())

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonMaxExposure, decision.ReasonCode)
}

func TestCanTradeMaxLossPerTrade(t *testing.T) {
	// 2,000,000 notional with a 10% assumed stop estimates a 200,000 loss.
	params := defaultParams()
	params.MaxExposurePerSymbol = d("10000000")

	decision := CanTrade(enabledState(), d("2000000"), 0, decimal.Zero, time.Now(), params)

	require.False(t, decision.Allowed)
	require.Equal(t, ReasonMaxLossPerTrade, decision.ReasonCode)
}

func TestCanTradeZeroLimitsDisableChecks(t *testing.T) {
	params := Params{}

	state := enabledState()
	state.DailyRealizedPnl = -1000000
	state.ConsecutiveLosses = 50

	decision := CanTrade(state, d("99999999"), 100, d("99999999"), time.Now(), params)

	require.True(t, decision.Allowed)
}

func TestCanTradePriorityOrder(t *testing.T) {
	// Daily limit flag outranks the streak cooldown even when both apply.
	state := enabledState()
	state.DailyLossLimitHit = true
	state.ConsecutiveLosses = 10

	decision := CanTrade(state, d("10000"), 0, decimal.Zero, time.Now(), defaultParams())

	require.Equal(t, ReasonDailyLimitHit, decision.ReasonCode)
}
