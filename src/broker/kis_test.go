package broker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func newKISTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *KISClient) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewKISClient("app-key", "app-secret", "12345678", "01", "paper", srv.URL)
	return srv, client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestKISSendOrderAcknowledged(t *testing.T) {
	_, client := newKISTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/tokenP":
			writeJSON(t, w, map[string]interface{}{"access_token": "tok", "expires_in": 86400})
		case "/uapi/domestic-stock/v1/trading/order-cash":
			require.Equal(t, "VTTC0802U", r.Header.Get("tr_id"))
			require.Equal(t, "Bearer tok", r.Header.Get("authorization"))
			writeJSON(t, w, map[string]interface{}{
				"rt_cd": "0",
				"output": map[string]string{"ODNO": "0000117057", "ORD_TMD": "121052"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	result, err := client.SendOrder(OrderRequest{
		Ticker:        "005930",
		Side:          model.OrderSideBuy,
		Qty:           1,
		OrderType:     model.OrderTypeMarket,
		ExpectedPrice: 83000,
	})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusSent, result.Status)
	require.Equal(t, "0000117057", result.BrokerOrderID)
}

func TestKISSendOrderRejected(t *testing.T) {
	_, client := newKISTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/tokenP":
			writeJSON(t, w, map[string]interface{}{"access_token": "tok", "expires_in": 86400})
		case "/uapi/domestic-stock/v1/trading/order-cash":
			require.Equal(t, "VTTC0801U", r.Header.Get("tr_id"))
			writeJSON(t, w, map[string]interface{}{
				"rt_cd": "1", "msg_cd": "40310000", "msg1": "주문가능금액을 초과했습니다",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	result, err := client.SendOrder(OrderRequest{
		Ticker: "005930",
		Side:   model.OrderSideSell,
		Qty:    1,
	})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusRejected, result.Status)
	require.Equal(t, "ORDER_REJECTED_40310000", result.ReasonCode)
}

func TestKISInquireOrderMapsStatuses(t *testing.T) {
	rows := []map[string]string{}
	_, client := newKISTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/tokenP":
			writeJSON(t, w, map[string]interface{}{"access_token": "tok", "expires_in": 86400})
		case "/uapi/domestic-stock/v1/trading/inquire-daily-ccld":
			writeJSON(t, w, map[string]interface{}{"rt_cd": "0", "output1": rows})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	t.Run("unknown order reports nil", func(t *testing.T) {
		result, err := client.InquireOrder("missing", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.Nil(t, result)
	})

	t.Run("partial fill", func(t *testing.T) {
		rows = []map[string]string{{
			"odno": "117", "ord_qty": "10", "tot_ccld_qty": "4", "avg_prvs": "83500",
			"cncl_yn": "N", "rjct_yn": "N",
		}}
		result, err := client.InquireOrder("117", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, model.OrderStatusPartialFilled, result.Status)
		require.Equal(t, 4.0, result.FilledQty)
		require.Equal(t, 83500.0, result.AvgPrice)
	})

	t.Run("full fill", func(t *testing.T) {
		rows = []map[string]string{{
			"odno": "117", "ord_qty": "10", "tot_ccld_qty": "10", "avg_prvs": "83500",
			"cncl_yn": "N", "rjct_yn": "N",
		}}
		result, err := client.InquireOrder("117", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusFilled, result.Status)
	})

	t.Run("no fills yet", func(t *testing.T) {
		rows = []map[string]string{{
			"odno": "117", "ord_qty": "10", "tot_ccld_qty": "0", "avg_prvs": "0",
			"cncl_yn": "N", "rjct_yn": "N",
		}}
		result, err := client.InquireOrder("117", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusNew, result.Status)
	})

	t.Run("cancelled", func(t *testing.T) {
		rows = []map[string]string{{
			"odno": "117", "ord_qty": "10", "tot_ccld_qty": "0", "avg_prvs": "0",
			"cncl_yn": "Y", "rjct_yn": "N",
		}}
		result, err := client.InquireOrder("117", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusCancelled, result.Status)
	})

	t.Run("rejected", func(t *testing.T) {
		rows = []map[string]string{{
			"odno": "117", "ord_qty": "10", "tot_ccld_qty": "0", "avg_prvs": "0",
			"cncl_yn": "N", "rjct_yn": "Y",
		}}
		result, err := client.InquireOrder("117", "005930", model.OrderSideBuy)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusRejected, result.Status)
	})
}

func TestKISGetLastPrice(t *testing.T) {
	_, client := newKISTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/tokenP":
			writeJSON(t, w, map[string]interface{}{"access_token": "tok", "expires_in": 86400})
		case "/uapi/domestic-stock/v1/quotations/inquire-price":
			require.Equal(t, "005930", r.URL.Query().Get("FID_INPUT_ISCD"))
			writeJSON(t, w, map[string]interface{}{
				"rt_cd": "0", "output": map[string]string{"stck_prpr": "83500"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	price, ok := client.GetLastPrice("005930")
	require.True(t, ok)
	require.Equal(t, 83500.0, price)
}

func TestKISHealthCheck(t *testing.T) {
	client := NewKISClient("", "", "", "01", "paper", "")
	health := client.HealthCheck()
	require.Equal(t, HealthCritical, health.Status)
	require.Equal(t, "MISSING_CREDENTIALS", health.ReasonCode)

	client = NewKISClient("k", "s", "", "01", "paper", "")
	health = client.HealthCheck()
	require.Equal(t, HealthWarn, health.Status)
	require.Equal(t, "MISSING_ACCOUNT", health.ReasonCode)

	client = NewKISClient("k", "s", "12345678", "01", "live", "")
	health = client.HealthCheck()
	require.Equal(t, HealthOK, health.Status)
	require.Equal(t, kisLiveBaseURL, health.Checks["base_url"])
}
