package execution

import (
	"strings"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/externalmodel"
)

const (
	ReasonTrailingStop   = "TRAILING_STOP"
	ReasonOppositeSignal = "OPPOSITE_SIGNAL"
	ReasonTimeExit       = "TIME_EXIT"
)

// ShouldExitOnTrailingStop reports whether the trailing stop fires: the stop
// only arms once the gain from entry reaches armPct, then fires when the
// drawdown from the high watermark reaches gapPct.
func ShouldExitOnTrailingStop(entryPrice, highWatermark, currentPrice, armPct, gapPct float64) bool {
	if entryPrice <= 0 || highWatermark <= 0 || currentPrice <= 0 {
		return false
	}

	entry := decimal.NewFromFloat(entryPrice)
	high := decimal.NewFromFloat(highWatermark)
	price := decimal.NewFromFloat(currentPrice)

	gainFromEntry := high.Sub(entry).Div(entry)
	if gainFromEntry.LessThan(decimal.NewFromFloat(armPct)) {
		return false
	}

	drawdownFromHigh := high.Sub(price).Div(high)
	return drawdownFromHigh.GreaterThanOrEqual(decimal.NewFromFloat(gapPct))
}

// ShouldExitOnOppositeSignal reports whether the latest signal for a ticker
// warrants closing the position: an IGNORE or BLOCK decision, or a score
// below the exit threshold. The position's own originating BUY signal never
// triggers an exit against itself.
func ShouldExitOnOppositeSignal(
	latestSignalID uint,
	entrySignalID uint,
	decision string,
	totalScore float64,
	scoreThreshold float64,
) bool {
	d := strings.ToUpper(strings.TrimSpace(decision))

	if latestSignalID == entrySignalID && d == externalmodel.SignalDecisionBuy {
		return false
	}

	if d == externalmodel.SignalDecisionIgnore || d == externalmodel.SignalDecisionBlock {
		return true
	}

	return totalScore < scoreThreshold
}

// ShouldExitOnTime reports whether a position has been held at or beyond the
// maximum holding window.
func ShouldExitOnTime(heldMinutes float64, maxHoldMinutes int) bool {
	if maxHoldMinutes <= 0 {
		return false
	}
	return heldMinutes >= float64(maxHoldMinutes)
}
