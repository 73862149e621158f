package broker

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultKISWSBaseURL = "ws://ops.koreainvestment.com:21000"
	reconnectBackoff    = 5 * time.Second
)

// PriceStream keeps a last-price cache fed by the venue's real-time quote
// websocket. It is a quote fallback only: reconciliation always trusts the
// REST order inquiry, never stream state.
type PriceStream struct {
	wsURL   string
	appKey  string
	tickers []string

	mu        sync.RWMutex
	prices    map[string]float64
	connected bool
}

func NewPriceStream(wsURL, appKey string, tickers []string) *PriceStream {
	if strings.TrimSpace(wsURL) == "" {
		wsURL = defaultKISWSBaseURL
	}
	return &PriceStream{
		wsURL:   strings.TrimRight(wsURL, "/"),
		appKey:  appKey,
		tickers: tickers,
		prices:  make(map[string]float64),
	}
}

// Run dials the venue and consumes quote messages until the context is
// cancelled, reconnecting with a flat backoff on any failure.
func (s *PriceStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.runOnce(ctx); err != nil {
			logger.WithError(err).Warn("Price stream disconnected, will reconnect")
		}

		s.setConnected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (s *PriceStream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.wsURL+"/tryitout/H0STCNT0", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, ticker := range s.tickers {
		sub := map[string]interface{}{
			"header": map[string]string{
				"approval_key": s.appKey,
				"custtype":     "P",
				"tr_type":      "1",
				"content-type": "utf-8",
			},
			"body": map[string]interface{}{
				"input": map[string]string{
					"tr_id":  "H0STCNT0",
					"tr_key": ticker,
				},
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	s.setConnected(true)
	logger.WithField("tickers", len(s.tickers)).Info("Price stream connected")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.consume(string(payload))
	}
}

// consume parses one realtime frame. Quote frames are pipe delimited:
// encrypted|tr_id|count|body, with the body caret delimited as
// ticker^time^price^... Control frames (JSON) are ignored.
func (s *PriceStream) consume(frame string) {
	if strings.HasPrefix(frame, "{") {
		return
	}

	parts := strings.Split(frame, "|")
	if len(parts) < 4 || parts[1] != "H0STCNT0" {
		return
	}

	fields := strings.Split(parts[3], "^")
	if len(fields) < 3 {
		return
	}

	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || price <= 0 {
		return
	}

	s.mu.Lock()
	s.prices[fields[0]] = price
	s.mu.Unlock()
}

// LastPrice returns the most recent streamed price for a ticker.
func (s *PriceStream) LastPrice(ticker string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[ticker]
	return price, ok && price > 0
}

// Connected reports whether the stream currently has a live connection.
func (s *PriceStream) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *PriceStream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
