package exchange

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

func wsMsg(t *testing.T, raw string) *wsMessage {
	t.Helper()
	var msg wsMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	return &msg
}

func TestParseTickerEvents(t *testing.T) {
	msg := wsMsg(t, `{
		"arg": {"channel": "tickers", "instId": "BTC-USDT"},
		"data": [{"instId": "BTC-USDT", "last": "42133.5", "ts": "1740823200000"}]
	}`)

	events := parseTickerEvents(msg)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	tick, ok := events[0].(PriceTick)
	if !ok {
		t.Fatalf("event type = %T", events[0])
	}
	if tick.InstID != "BTC-USDT" {
		t.Errorf("inst_id = %s", tick.InstID)
	}
	if !tick.Last.Equal(decimal.RequireFromString("42133.5")) {
		t.Errorf("last = %s", tick.Last)
	}
	if tick.TS.UnixMilli() != 1740823200000 {
		t.Errorf("ts = %v", tick.TS)
	}
}

func TestParseTickerEventsSkipsJunk(t *testing.T) {
	msg := wsMsg(t, `{
		"arg": {"channel": "tickers", "instId": "BTC-USDT"},
		"data": [
			{"instId": "", "last": "1"},
			{"instId": "BTC-USDT", "last": "0"},
			{"instId": "BTC-USDT", "last": "not-a-number"}
		]
	}`)
	if events := parseTickerEvents(msg); len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestParseCandleEvents(t *testing.T) {
	msg := wsMsg(t, `{
		"arg": {"channel": "candle1H", "instId": "ETH-USDT"},
		"data": [
			["1740819600000","2200","2210","2190","2205","1000","2.2e6","2.2e6","1"],
			["1740823200000","2205","2206","2200","2203","10","22030","22030","0"]
		]
	}`)

	events := parseCandleEvents(msg)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	confirmed := events[0].(BarClose)
	if !confirmed.Confirmed {
		t.Error("first bar should be confirmed")
	}
	if !confirmed.Close.Equal(decimal.RequireFromString("2205")) {
		t.Errorf("close = %s", confirmed.Close)
	}
	if confirmed.InstID != "ETH-USDT" {
		t.Errorf("inst_id = %s", confirmed.InstID)
	}
	if events[1].(BarClose).Confirmed {
		t.Error("in-progress bar must not be confirmed")
	}
}

func TestMapOrderState(t *testing.T) {
	cases := map[string]model.OrderState{
		"live":             model.OrderStatePlaced,
		"partially_filled": model.OrderStatePartiallyFilled,
		"filled":           model.OrderStateFilled,
		"canceled":         model.OrderStateCanceled,
		"mmp_canceled":     model.OrderStateCanceled,
	}
	for in, want := range cases {
		got, err := mapOrderState(in)
		if err != nil || got != want {
			t.Errorf("mapOrderState(%q) = %s, %v, want %s", in, got, err, want)
		}
	}
	if _, err := mapOrderState("???"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestOrderDetailToStatus(t *testing.T) {
	d := orderDetailData{
		OrdID:     "o1",
		State:     "partially_filled",
		AccFillSz: "7",
		FillPx:    "",
		AvgPx:     "95.5",
		FillTime:  "1740823200000",
	}
	st, err := d.toStatus()
	if err != nil {
		t.Fatal(err)
	}
	if st.State != model.OrderStatePartiallyFilled {
		t.Errorf("state = %s", st.State)
	}
	if !st.FillSize.Equal(decimal.RequireFromString("7")) {
		t.Errorf("fill size = %s", st.FillSize)
	}
	// avgPx backfills an empty fillPx.
	if !st.FillPrice.Equal(decimal.RequireFromString("95.5")) {
		t.Errorf("fill price = %s", st.FillPrice)
	}
	if st.FillTime.IsZero() {
		t.Error("fill time should be set")
	}

	d.State = "live"
	d.AccFillSz = ""
	st, err = d.toStatus()
	if err != nil {
		t.Fatal(err)
	}
	if !st.FillSize.IsZero() {
		t.Errorf("unfilled order fill size = %s", st.FillSize)
	}
}
