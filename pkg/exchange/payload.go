package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

// Exchange-defined JSON shapes. Decoding stops at this file; everything past
// the gateway boundary uses typed results.

type restResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type placeOrderData struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type orderDetailData struct {
	OrdID     string `json:"ordId"`
	State     string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	FillPx    string `json:"fillPx"`
	AvgPx     string `json:"avgPx"`
	FillTime  string `json:"fillTime"`
}

type wsRequest struct {
	Op   string      `json:"op"`
	Args []wsChannel `json:"args"`
}

type wsChannel struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsMessage struct {
	Event string          `json:"event"`
	Msg   string          `json:"msg"`
	Arg   wsChannel       `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	TS     string `json:"ts"`
}

// mapOrderState maps the exchange state enumeration onto the engine's one.
func mapOrderState(s string) (model.OrderState, error) {
	switch s {
	case "live":
		return model.OrderStatePlaced, nil
	case "partially_filled":
		return model.OrderStatePartiallyFilled, nil
	case "filled":
		return model.OrderStateFilled, nil
	case "canceled", "mmp_canceled":
		return model.OrderStateCanceled, nil
	}
	return "", fmt.Errorf("unknown exchange order state %q", s)
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (d *orderDetailData) toStatus() (*OrderStatus, error) {
	state, err := mapOrderState(d.State)
	if err != nil {
		return nil, err
	}
	st := &OrderStatus{
		State:     state,
		FillSize:  parseDecimal(d.AccFillSz),
		FillPrice: parseDecimal(d.FillPx),
		FillTime:  parseMillis(d.FillTime),
	}
	if st.FillPrice.IsZero() {
		st.FillPrice = parseDecimal(d.AvgPx)
	}
	return st, nil
}

// parseTickerEvents extracts price ticks from one tickers-channel message.
func parseTickerEvents(msg *wsMessage) []Event {
	var tickers []tickerData
	if err := json.Unmarshal(msg.Data, &tickers); err != nil {
		return nil
	}
	events := make([]Event, 0, len(tickers))
	for _, t := range tickers {
		last := parseDecimal(t.Last)
		if t.InstID == "" || !last.IsPositive() {
			continue
		}
		ts := parseMillis(t.TS)
		if ts.IsZero() {
			ts = time.Now()
		}
		events = append(events, PriceTick{InstID: t.InstID, Last: last, TS: ts})
	}
	return events
}

// parseCandleEvents extracts bar closes from one candle-channel message.
// Candle rows are arrays: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm];
// confirm == "1" means the bar finalized.
func parseCandleEvents(msg *wsMessage) []Event {
	var rows [][]string
	if err := json.Unmarshal(msg.Data, &rows); err != nil {
		return nil
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		if len(row) < 9 || msg.Arg.InstID == "" {
			continue
		}
		ts := parseMillis(row[0])
		if ts.IsZero() {
			ts = time.Now()
		}
		events = append(events, BarClose{
			InstID:    msg.Arg.InstID,
			Confirmed: row[8] == "1",
			Close:     parseDecimal(row[4]),
			TS:        ts,
		})
	}
	return events
}
