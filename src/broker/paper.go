package broker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
)

// PaperBroker is the simulated venue: market orders fill fully at the
// caller's expected price, quotes are deterministic per ticker so loops and
// tests behave reproducibly.
type PaperBroker struct {
	mu     sync.Mutex
	orders map[string]OrderResult
}

func NewPaperBroker() *PaperBroker {
	return &PaperBroker{orders: make(map[string]OrderResult)}
}

func (b *PaperBroker) SendOrder(req OrderRequest) (*OrderResult, error) {
	price := req.ExpectedPrice
	if price <= 0 {
		px, _ := b.GetLastPrice(req.Ticker)
		price = px
	}

	result := OrderResult{
		Status:        model.OrderStatusFilled,
		FilledQty:     req.Qty,
		AvgPrice:      price,
		BrokerOrderID: fmt.Sprintf("PAPER-%s", uuid.NewString()),
	}

	b.mu.Lock()
	b.orders[result.BrokerOrderID] = result
	b.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"broker":          "paper",
		"ticker":          req.Ticker,
		"side":            req.Side,
		"qty":             req.Qty,
		"avg_price":       price,
		"broker_order_id": result.BrokerOrderID,
	}).Info("Paper order filled")

	return &result, nil
}

func (b *PaperBroker) InquireOrder(brokerOrderID, ticker, side string) (*OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, ok := b.orders[brokerOrderID]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// GetLastPrice returns a deterministic pseudo quote derived from the ticker,
// good enough for demo loops and integration tests.
func (b *PaperBroker) GetLastPrice(ticker string) (float64, bool) {
	if ticker == "" {
		return 0, false
	}

	sum := 0
	for _, c := range ticker {
		sum += int(c)
	}
	return float64(80000 + sum%4000), true
}

func (b *PaperBroker) HealthCheck() Health {
	return Health{
		Status: HealthOK,
		Checks: map[string]interface{}{"broker": "paper"},
	}
}
