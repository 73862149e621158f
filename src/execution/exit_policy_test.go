package execution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldExitOnTrailingStop(t *testing.T) {
	armPct := 0.005
	gapPct := 0.003

	t.Run("not armed before gain threshold", func(t *testing.T) {
		// High watermark only 0.3% above entry; the stop never arms.
		require.False(t, ShouldExitOnTrailingStop(100, 100.3, 99, armPct, gapPct))
	})

	t.Run("armed but drawdown too small", func(t *testing.T) {
		require.False(t, ShouldExitOnTrailingStop(100, 101, 100.9, armPct, gapPct))
	})

	t.Run("armed and drawdown at gap fires", func(t *testing.T) {
		// High 101, price 100.697: drawdown 0.3% exactly.
		require.True(t, ShouldExitOnTrailingStop(100, 101, 100.697, armPct, gapPct))
	})

	t.Run("armed and deep drawdown fires", func(t *testing.T) {
		require.True(t, ShouldExitOnTrailingStop(100, 102, 100.5, armPct, gapPct))
	})

	t.Run("degenerate prices never fire", func(t *testing.T) {
		require.False(t, ShouldExitOnTrailingStop(0, 101, 100, armPct, gapPct))
		require.False(t, ShouldExitOnTrailingStop(100, 0, 100, armPct, gapPct))
		require.False(t, ShouldExitOnTrailingStop(100, 101, 0, armPct, gapPct))
	})
}

func TestShouldExitOnOppositeSignal(t *testing.T) {
	threshold := 70.0

	t.Run("own entry BUY signal is exempt even below threshold", func(t *testing.T) {
		require.False(t, ShouldExitOnOppositeSignal(42, 42, "BUY", 10, threshold))
	})

	t.Run("ignore decision exits", func(t *testing.T) {
		require.True(t, ShouldExitOnOppositeSignal(43, 42, "IGNORE", 90, threshold))
	})

	t.Run("block decision exits", func(t *testing.T) {
		require.True(t, ShouldExitOnOppositeSignal(43, 42, "BLOCK", 90, threshold))
	})

	t.Run("newer BUY below threshold exits", func(t *testing.T) {
		require.True(t, ShouldExitOnOppositeSignal(43, 42, "BUY", 69.9, threshold))
	})

	t.Run("newer BUY at threshold holds", func(t *testing.T) {
		require.False(t, ShouldExitOnOppositeSignal(43, 42, "BUY", 70, threshold))
	})

	t.Run("decision is case and whitespace tolerant", func(t *testing.T) {
		require.True(t, ShouldExitOnOppositeSignal(43, 42, " ignore ", 90, threshold))
	})
}

func TestShouldExitOnTime(t *testing.T) {
	require.False(t, ShouldExitOnTime(14.9, 15))
	require.True(t, ShouldExitOnTime(15, 15))
	require.True(t, ShouldExitOnTime(60, 15))
	require.False(t, ShouldExitOnTime(1000, 0))
}
