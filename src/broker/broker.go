package broker

// Uniform order/price/health capability over simulated or live venues. The
// adapter never mutates local state; components call it and apply the result
// inside their own unit of work.

const (
	HealthOK       = "OK"
	HealthWarn     = "WARN"
	HealthCritical = "CRITICAL"
)

// OrderRequest is one BUY/SELL instruction directed at the venue.
type OrderRequest struct {
	SignalID      uint
	Ticker        string
	Side          string
	Qty           float64
	OrderType     string
	ExpectedPrice float64
}

// OrderResult is the venue's view of an order. Statuses reuse the order
// model constants (SENT/NEW/PARTIAL_FILLED/FILLED/REJECTED); FilledQty is
// cumulative.
type OrderResult struct {
	Status        string
	FilledQty     float64
	AvgPrice      float64
	ReasonCode    string
	BrokerOrderID string
}

// Health is the venue connectivity/credential report.
type Health struct {
	Status     string                 `json:"status"`
	ReasonCode string                 `json:"reason_code,omitempty"`
	Checks     map[string]interface{} `json:"checks"`
}

// Broker is the capability set every venue variant implements.
//
// InquireOrder returns (nil, nil) when the venue does not know the order yet;
// callers must treat that as "unknown, do not mutate". GetLastPrice returns
// ok=false when no price is resolvable.
type Broker interface {
	SendOrder(req OrderRequest) (*OrderResult, error)
	InquireOrder(brokerOrderID, ticker, side string) (*OrderResult, error)
	GetLastPrice(ticker string) (float64, bool)
	HealthCheck() Health
}
