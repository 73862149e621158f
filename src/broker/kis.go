package broker

// REST client for the Korea Investment & Securities (KIS) open API.
// RESTY ONLY + INTERNAL RETRY

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
)

const (
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	kisPaperBaseURL = "https://openapivts.koreainvestment.com:29443"
	kisLiveBaseURL  = "https://openapi.koreainvestment.com:9443"
)

// tr_id codes differ between the paper venue and the live venue.
type kisTrIDs struct {
	buy     string
	sell    string
	inquire string
}

var (
	kisPaperTrIDs = kisTrIDs{buy: "VTTC0802U", sell: "VTTC0801U", inquire: "VTTC8001R"}
	kisLiveTrIDs  = kisTrIDs{buy: "TTTC0802U", sell: "TTTC0801U", inquire: "TTTC8001R"}
)

type kisTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type kisOrderResponse struct {
	RtCd   string `json:"rt_cd"`
	MsgCd  string `json:"msg_cd"`
	Msg1   string `json:"msg1"`
	Output struct {
		OrderNo  string `json:"ODNO"`
		OrderTmd string `json:"ORD_TMD"`
	} `json:"output"`
}

type kisPriceResponse struct {
	RtCd   string `json:"rt_cd"`
	Msg1   string `json:"msg1"`
	Output struct {
		CurrentPrice string `json:"stck_prpr"`
	} `json:"output"`
}

type kisInquireResponse struct {
	RtCd    string `json:"rt_cd"`
	Msg1    string `json:"msg1"`
	Output1 []struct {
		OrderNo      string `json:"odno"`
		OrderQty     string `json:"ord_qty"`
		TotalCcldQty string `json:"tot_ccld_qty"`
		AvgPrice     string `json:"avg_prvs"`
		CancelYN     string `json:"cncl_yn"`
		RejectYN     string `json:"rjct_yn"`
	} `json:"output1"`
}

// -----------------------------
// CLIENT
// -----------------------------

// KISClient talks to the KIS domestic-stock REST API. One client serves one
// account; tokens are fetched lazily and cached until shortly before expiry.
type KISClient struct {
	appKey      string
	appSecret   string
	accountNo   string
	productCode string
	mode        string
	baseURL     string
	trIDs       kisTrIDs
	http        *resty.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	stream *PriceStream
}

func NewKISClient(appKey, appSecret, accountNo, productCode, mode, baseURL string) *KISClient {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "paper"
	}

	trIDs := kisPaperTrIDs
	if mode == "live" {
		trIDs = kisLiveTrIDs
	}

	if strings.TrimSpace(baseURL) == "" {
		if mode == "live" {
			baseURL = kisLiveBaseURL
		} else {
			baseURL = kisPaperBaseURL
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &KISClient{
		appKey:      appKey,
		appSecret:   appSecret,
		accountNo:   accountNo,
		productCode: productCode,
		mode:        mode,
		baseURL:     baseURL,
		trIDs:       trIDs,
		http:        httpClient,
	}
}

// WithPriceStream attaches a websocket last-price cache used as a quote
// fallback when the REST endpoint fails.
func (c *KISClient) WithPriceStream(stream *PriceStream) *KISClient {
	c.stream = stream
	return c
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return true
	}
	code := r.StatusCode()
	return code == 429 || code >= 500
}

func (c *KISClient) token() (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var out kisTokenResponse
	resp, err := c.http.R().
		SetBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.appKey,
			"appsecret":  c.appSecret,
		}).
		SetResult(&out).
		Post("/oauth2/tokenP")

	if err != nil {
		return "", fmt.Errorf("kis token request: %w", err)
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", fmt.Errorf("kis token request failed: http %d: %s", resp.StatusCode(), resp.String())
	}

	c.accessToken = out.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)

	logger.WithField("mode", c.mode).Info("KIS access token refreshed")

	return c.accessToken, nil
}

func (c *KISClient) authHeaders(trID, token string) map[string]string {
	return map[string]string{
		"content-type":  "application/json; charset=utf-8",
		"authorization": "Bearer " + token,
		"appkey":        c.appKey,
		"appsecret":     c.appSecret,
		"tr_id":         trID,
		"custtype":      "P",
	}
}

func (c *KISClient) SendOrder(req OrderRequest) (*OrderResult, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	trID := c.trIDs.buy
	if req.Side == model.OrderSideSell {
		trID = c.trIDs.sell
	}

	body := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": c.productCode,
		"PDNO":         req.Ticker,
		"ORD_DVSN":     "01", // market order
		"ORD_QTY":      strconv.FormatFloat(req.Qty, 'f', 0, 64),
		"ORD_UNPR":     "0",
	}

	var out kisOrderResponse
	resp, err := c.http.R().
		SetHeaders(c.authHeaders(trID, token)).
		SetBody(body).
		SetResult(&out).
		Post("/uapi/domestic-stock/v1/trading/order-cash")

	if err != nil {
		return nil, fmt.Errorf("kis order request: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"broker": "kis",
		"ticker": req.Ticker,
		"side":   req.Side,
		"qty":    req.Qty,
		"rt_cd":  out.RtCd,
		"msg_cd": out.MsgCd,
	}).Info("KIS order submitted")

	if resp.IsError() || out.RtCd != "0" {
		return &OrderResult{
			Status:     model.OrderStatusRejected,
			ReasonCode: rejectReason(out.MsgCd),
		}, nil
	}

	// KIS acknowledges with an order number; fills arrive asynchronously and
	// are picked up by reconciliation.
	return &OrderResult{
		Status:        model.OrderStatusSent,
		BrokerOrderID: out.Output.OrderNo,
	}, nil
}

func rejectReason(msgCd string) string {
	if msgCd == "" {
		return "ORDER_REJECTED"
	}
	return "ORDER_REJECTED_" + msgCd
}

func (c *KISClient) InquireOrder(brokerOrderID, ticker, side string) (*OrderResult, error) {
	if brokerOrderID == "" {
		return nil, nil
	}

	token, err := c.token()
	if err != nil {
		return nil, err
	}

	today := time.Now().Format("20060102")

	var out kisInquireResponse
	resp, err := c.http.R().
		SetHeaders(c.authHeaders(c.trIDs.inquire, token)).
		SetQueryParams(map[string]string{
			"CANO":            c.accountNo,
			"ACNT_PRDT_CD":    c.productCode,
			"INQR_STRT_DT":    today,
			"INQR_END_DT":     today,
			"SLL_BUY_DVSN_CD": "00",
			"PDNO":            ticker,
			"ODNO":            brokerOrderID,
			"CCLD_DVSN":       "00",
			"INQR_DVSN":       "00",
			"INQR_DVSN_1":     "",
			"INQR_DVSN_3":     "00",
			"CTX_AREA_FK100":  "",
			"CTX_AREA_NK100":  "",
		}).
		SetResult(&out).
		Get("/uapi/domestic-stock/v1/trading/inquire-daily-ccld")

	if err != nil {
		return nil, fmt.Errorf("kis inquire request: %w", err)
	}
	if resp.IsError() || out.RtCd != "0" {
		// Transient inquiry failure: unknown, do not mutate.
		logger.WithFields(map[string]interface{}{
			"broker":          "kis",
			"broker_order_id": brokerOrderID,
			"http":            resp.StatusCode(),
			"msg":             out.Msg1,
		}).Warn("KIS order inquiry unavailable")
		return nil, nil
	}

	for _, row := range out.Output1 {
		if row.OrderNo != brokerOrderID {
			continue
		}

		ordQty, _ := strconv.ParseFloat(row.OrderQty, 64)
		filled, _ := strconv.ParseFloat(row.TotalCcldQty, 64)
		avgPrice, _ := strconv.ParseFloat(row.AvgPrice, 64)

		result := &OrderResult{
			FilledQty:     filled,
			AvgPrice:      avgPrice,
			BrokerOrderID: brokerOrderID,
		}

		switch {
		case row.CancelYN == "Y":
			result.Status = model.OrderStatusCancelled
			result.ReasonCode = "ORDER_CANCELLED"
		case row.RejectYN == "Y":
			result.Status = model.OrderStatusRejected
			result.ReasonCode = "ORDER_REJECTED"
		case filled <= 0:
			result.Status = model.OrderStatusNew
		case filled+model.QtyEpsilon < ordQty:
			result.Status = model.OrderStatusPartialFilled
		default:
			result.Status = model.OrderStatusFilled
		}

		return result, nil
	}

	// Order not visible on the venue yet.
	return nil, nil
}

func (c *KISClient) GetLastPrice(ticker string) (float64, bool) {
	token, err := c.token()
	if err != nil {
		logger.WithError(err).Warn("KIS price lookup failed to obtain token")
		return c.streamFallback(ticker)
	}

	var out kisPriceResponse
	resp, err := c.http.R().
		SetHeaders(c.authHeaders("FHKST01010100", token)).
		SetQueryParams(map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         ticker,
		}).
		SetResult(&out).
		Get("/uapi/domestic-stock/v1/quotations/inquire-price")

	if err != nil || resp.IsError() || out.RtCd != "0" {
		return c.streamFallback(ticker)
	}

	price, err := strconv.ParseFloat(out.Output.CurrentPrice, 64)
	if err != nil || price <= 0 {
		return c.streamFallback(ticker)
	}

	return price, true
}

func (c *KISClient) streamFallback(ticker string) (float64, bool) {
	if c.stream == nil {
		return 0, false
	}
	return c.stream.LastPrice(ticker)
}

func (c *KISClient) HealthCheck() Health {
	hasKeys := c.appKey != "" && c.appSecret != ""
	hasAccount := c.accountNo != ""

	status := HealthOK
	reason := ""
	switch {
	case !hasKeys:
		status = HealthCritical
		reason = "MISSING_CREDENTIALS"
	case !hasAccount:
		status = HealthWarn
		reason = "MISSING_ACCOUNT"
	}

	checks := map[string]interface{}{
		"broker":         "kis",
		"mode":           c.mode,
		"base_url":       c.baseURL,
		"has_app_key":    c.appKey != "",
		"has_app_secret": c.appSecret != "",
		"has_account_no": hasAccount,
		"product_code":   c.productCode,
	}
	if c.stream != nil {
		checks["price_stream"] = c.stream.Connected()
	}

	return Health{Status: status, ReasonCode: reason, Checks: checks}
}

var _ Broker = (*KISClient)(nil)
