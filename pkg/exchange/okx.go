package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	placeRetryInterval    = time.Second
	placeMaxRetries       = 2
)

type OKXConfig struct {
	RestURL       string `yaml:"rest_url"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`
	// DemoTrading routes requests to the exchange's paper environment.
	DemoTrading bool `yaml:"demo_trading"`
}

// OKXGateway implements Gateway over the exchange REST API.
type OKXGateway struct {
	cfg    *OKXConfig
	client *http.Client
	now    func() time.Time
}

func NewOKXGateway(cfg *OKXConfig) *OKXGateway {
	return &OKXGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultRequestTimeout},
		now:    time.Now,
	}
}

func (g *OKXGateway) PlaceLimitBuy(ctx context.Context, instID string, price, size decimal.Decimal) (string, error) {
	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    "buy",
		"ordType": "limit",
		"px":      price.String(),
		"sz":      size.String(),
	}

	var ordID string
	err := g.retryTransient(func() error {
		data, err := g.post(ctx, "/api/v5/trade/order", body)
		if err != nil {
			return err
		}
		var placed []placeOrderData
		if err := json.Unmarshal(data, &placed); err != nil {
			return networkError(err)
		}
		if len(placed) == 0 || placed[0].OrdID == "" {
			return newError(KindRejected, "", "no order id in response")
		}
		ordID = placed[0].OrdID
		return nil
	})
	if err != nil {
		return "", err
	}
	return ordID, nil
}

func (g *OKXGateway) CancelOrder(ctx context.Context, instID, ordID string) error {
	body := map[string]string{
		"instId": instID,
		"ordId":  ordID,
	}
	_, err := g.post(ctx, "/api/v5/trade/cancel-order", body)
	return err
}

func (g *OKXGateway) GetOrderStatus(ctx context.Context, instID, ordID string) (*OrderStatus, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("ordId", ordID)

	data, err := g.get(ctx, "/api/v5/trade/order", q)
	if err != nil {
		return nil, err
	}
	var details []orderDetailData
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, networkError(err)
	}
	if len(details) == 0 {
		return nil, newError(KindNotFound, "", "order not in response")
	}
	status, err := details[0].toStatus()
	if err != nil {
		return nil, networkError(err)
	}
	return status, nil
}

func (g *OKXGateway) PlaceMarketSell(ctx context.Context, instID, ordID string, size decimal.Decimal) (string, decimal.Decimal, error) {
	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    "sell",
		"ordType": "market",
		"sz":      size.String(),
		"tgtCcy":  "base_ccy",
	}

	var sellOrdID string
	err := g.retryTransient(func() error {
		data, err := g.post(ctx, "/api/v5/trade/order", body)
		if err != nil {
			return err
		}
		var placed []placeOrderData
		if err := json.Unmarshal(data, &placed); err != nil {
			return networkError(err)
		}
		if len(placed) == 0 || placed[0].OrdID == "" {
			return newError(KindRejected, "", "no order id in response")
		}
		sellOrdID = placed[0].OrdID
		return nil
	})
	if err != nil {
		return "", decimal.Zero, err
	}

	// Market orders fill immediately; read back the observed sell price. A
	// failed readback still returns the sell order id so the price can be
	// backfilled from the exchange later.
	var status *OrderStatus
	err = g.retryTransient(func() error {
		var err error
		status, err = g.GetOrderStatus(ctx, instID, sellOrdID)
		return err
	})
	if err != nil {
		zap.S().Warnw("sell placed but price readback failed",
			"inst_id", instID, "sell_ord_id", sellOrdID, "err", err)
		return sellOrdID, decimal.Zero, nil
	}
	return sellOrdID, status.FillPrice, nil
}

func (g *OKXGateway) HourOpen(ctx context.Context, instID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", "1H")
	q.Set("limit", "1")

	data, err := g.get(ctx, "/api/v5/market/candles", q)
	if err != nil {
		return decimal.Zero, err
	}
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return decimal.Zero, networkError(err)
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return decimal.Zero, newError(KindNotFound, "", "no candle in response")
	}

	// Verify the candle belongs to the current hour; a stale candle would
	// anchor the limit ratio on the wrong reference.
	candleTS := parseMillis(rows[0][0])
	hourStart := g.now().Truncate(time.Hour)
	if d := candleTS.Sub(hourStart); d < -time.Minute || d > time.Minute {
		return decimal.Zero, newError(KindNotFound, "",
			fmt.Sprintf("candle ts %s outside current hour %s", candleTS, hourStart))
	}
	open := parseDecimal(rows[0][1])
	if !open.IsPositive() {
		return decimal.Zero, newError(KindNotFound, "", "candle open not positive")
	}
	return open, nil
}

// retryTransient retries an operation on network failures only, with the same
// pacing the trading loop can tolerate: a short constant interval, bounded.
func (g *OKXGateway) retryTransient(op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		switch KindOf(err) {
		case KindNetwork, KindRateLimited:
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(placeRetryInterval), placeMaxRetries))
}

func (g *OKXGateway) post(ctx context.Context, path string, body map[string]string) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, networkError(err)
	}
	return g.do(ctx, http.MethodPost, path, raw)
}

func (g *OKXGateway) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
}

func (g *OKXGateway) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.RestURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, networkError(err)
	}
	g.sign(req, method, path, body)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newError(KindRateLimited, fmt.Sprint(resp.StatusCode), "throttled")
	}
	if resp.StatusCode >= 500 {
		return nil, newError(KindNetwork, fmt.Sprint(resp.StatusCode), "server error")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	var rr restResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, networkError(err)
	}
	if rr.Code != "0" {
		return nil, mapRestError(rr.Code, rr.Msg)
	}

	// Order endpoints carry a per-item result code as well.
	var items []placeOrderData
	if json.Unmarshal(rr.Data, &items) == nil && len(items) > 0 &&
		items[0].SCode != "" && items[0].SCode != "0" {
		return nil, mapRestError(items[0].SCode, items[0].SMsg)
	}

	return rr.Data, nil
}

func (g *OKXGateway) sign(req *http.Request, method, path string, body []byte) {
	ts := g.now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(g.cfg.APISecret))
	mac.Write([]byte(ts + method + path))
	mac.Write(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", g.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", g.cfg.APIPassphrase)
	if g.cfg.DemoTrading {
		req.Header.Set("x-simulated-trading", "1")
	}
}

// mapRestError maps exchange error codes onto the engine's taxonomy.
func mapRestError(code, msg string) *Error {
	switch code {
	case "50011", "50013":
		return newError(KindRateLimited, code, msg)
	case "51008":
		return newError(KindInsufficientBalance, code, msg)
	case "51400", "51401", "51402", "51410":
		return newError(KindAlreadyTerminal, code, msg)
	case "51000", "51603":
		return newError(KindNotFound, code, msg)
	}
	return newError(KindRejected, code, msg)
}
