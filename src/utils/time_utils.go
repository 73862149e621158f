package utils

import "time"

// TradeDate returns the trade-date key used for per-day risk state rows.
func TradeDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	default:
		return t
	}
}
