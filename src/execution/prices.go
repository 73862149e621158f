package execution

import (
	"context"

	logger "github.com/sirupsen/logrus"
)

// resolveExpectedPrice asks the venue for the last traded price of a ticker.
// Returns ok=false when no price is resolvable, in which case the caller must
// not size or submit an order.
func (e *Engine) resolveExpectedPrice(ticker string) (float64, bool) {
	price, ok := e.broker.GetLastPrice(ticker)
	if !ok || price <= 0 {
		logger.WithFields(map[string]interface{}{
			"module": "execution",
			"ticker": ticker,
		}).Warn("No price resolvable for ticker")
		return 0, false
	}
	return price, true
}

// CollectCurrentPrices resolves one last price per distinct ticker currently
// held, for the trailing-stop scanner. A ticker without a live quote falls
// back to its position's average entry price so the scanner still sees the
// ticker.
func (e *Engine) CollectCurrentPrices(ctx context.Context) (map[string]float64, error) {
	rows, err := e.positions(e.db).FindForExitScan(ctx, e.exits.BatchLimit)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(rows))
	for _, row := range rows {
		if _, seen := prices[row.Ticker]; seen {
			continue
		}
		if price, ok := e.resolveExpectedPrice(row.Ticker); ok {
			prices[row.Ticker] = price
		} else if row.AvgEntryPrice > 0 {
			prices[row.Ticker] = row.AvgEntryPrice
		}
	}

	return prices, nil
}
