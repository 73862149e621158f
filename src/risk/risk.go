package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// ----- reason codes -----

const (
	ReasonKillSwitchOn    = "KILL_SWITCH_ON"
	ReasonDisabled        = "RISK_DISABLED"
	ReasonDailyLimitHit   = "RISK_DAILY_LIMIT_HIT"
	ReasonDailyLimit      = "RISK_DAILY_LIMIT"
	ReasonCooldown        = "RISK_COOLDOWN"
	ReasonMaxPositions    = "RISK_MAX_POSITIONS"
	ReasonMaxExposure     = "RISK_MAX_EXPOSURE"
	ReasonMaxLossPerTrade = "RISK_MAX_LOSS_PER_TRADE"
)

// ----- gate inputs -----

// Params holds the account risk limits. A limit set to zero or below
// disables its check. The kill switch is carried here explicitly so the gate
// stays a pure function with no hidden process-wide state.
type Params struct {
	KillSwitch             bool
	MaxLossPerTrade        decimal.Decimal
	DailyLossLimit         decimal.Decimal
	MaxExposurePerSymbol   decimal.Decimal
	MaxConcurrentPositions int
	LossStreakCooldown     int
	CooldownMinutes        int
	AssumedStopLossPct     decimal.Decimal
}

// Decision is the gate's verdict on one proposed trade. When the loss-streak
// cooldown is entered for the first time, CooldownUntil carries the computed
// window end so the caller can persist it.
type Decision struct {
	Allowed       bool
	ReasonCode    string
	CooldownUntil *time.Time
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func blocked(reason string) Decision {
	return Decision{Allowed: false, ReasonCode: reason}
}

// CanTrade evaluates whether a proposed trade may proceed given the day's
// risk state and limits. Checks run in fixed priority order and the first
// failure wins. The function performs no I/O.
func CanTrade(
	state *model.RiskState,
	proposedNotional decimal.Decimal,
	currentOpenPositions int,
	currentSymbolExposure decimal.Decimal,
	now time.Time,
	params Params,
) Decision {

	if params.KillSwitch {
		return blocked(ReasonKillSwitchOn)
	}

	if state == nil || !state.TradingEnabled {
		return blocked(ReasonDisabled)
	}

	if state.DailyLossLimitHit {
		return blocked(ReasonDailyLimitHit)
	}

	if params.DailyLossLimit.GreaterThan(decimal.Zero) {
		pnl := decimal.NewFromFloat(state.DailyRealizedPnl)
		if pnl.LessThanOrEqual(params.DailyLossLimit.Neg()) {
			return blocked(ReasonDailyLimit)
		}
	}

	if params.LossStreakCooldown > 0 && state.ConsecutiveLosses >= params.LossStreakCooldown {
		if state.CooldownUntil == nil {
			// First crossing of the streak threshold: the window starts now.
			until := now.Add(time.Duration(params.CooldownMinutes) * time.Minute)
			d := blocked(ReasonCooldown)
			d.CooldownUntil = &until
			return d
		}
		if now.Before(*state.CooldownUntil) {
			return blocked(ReasonCooldown)
		}
	}

	if params.MaxConcurrentPositions > 0 && currentOpenPositions >= params.MaxConcurrentPositions {
		return blocked(ReasonMaxPositions)
	}

	if params.MaxExposurePerSymbol.GreaterThan(decimal.Zero) {
		projected := currentSymbolExposure.Add(proposedNotional)
		if projected.GreaterThan(params.MaxExposurePerSymbol) {
			return blocked(ReasonMaxExposure)
		}
	}

	if params.MaxLossPerTrade.GreaterThan(decimal.Zero) {
		estimatedLoss := proposedNotional.Mul(params.AssumedStopLossPct)
		if estimatedLoss.GreaterThan(params.MaxLossPerTrade) {
			return blocked(ReasonMaxLossPerTrade)
		}
	}

	return allowed()
}
