package exchange

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

type fixedPrices struct {
	last   map[string]string
	window map[string][]string
}

func (f fixedPrices) Last(instID string) (decimal.Decimal, bool) {
	s, ok := f.last[instID]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.RequireFromString(s), true
}

func (f fixedPrices) RecentPrices(instID string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(f.window[instID]))
	for _, s := range f.window[instID] {
		out = append(out, decimal.RequireFromString(s))
	}
	return out
}

func TestSimGatewayBuyFillsAtBetterPrice(t *testing.T) {
	ctx := context.Background()
	g := NewSimGateway(fixedPrices{last: map[string]string{"BTC-USDT": "94"}})

	ordID, err := g.PlaceLimitBuy(ctx, "BTC-USDT", decimal.RequireFromString("95"), decimal.RequireFromString("1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ordID, SimOrderIDPrefix) {
		t.Errorf("ord_id = %s, want %s prefix", ordID, SimOrderIDPrefix)
	}

	st, err := g.GetOrderStatus(ctx, "BTC-USDT", ordID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != model.OrderStateFilled {
		t.Errorf("state = %s, want filled", st.State)
	}
	// Last tick below the limit gives the better price.
	if !st.FillPrice.Equal(decimal.RequireFromString("94")) {
		t.Errorf("fill price = %s, want 94", st.FillPrice)
	}
}

func TestSimGatewayCancelFilledIsTerminal(t *testing.T) {
	ctx := context.Background()
	g := NewSimGateway(fixedPrices{last: map[string]string{"BTC-USDT": "94"}})

	ordID, err := g.PlaceLimitBuy(ctx, "BTC-USDT", decimal.RequireFromString("95"), decimal.RequireFromString("1"))
	if err != nil {
		t.Fatal(err)
	}

	err = g.CancelOrder(ctx, "BTC-USDT", ordID)
	if !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("cancel filled = %v, want already-terminal", err)
	}

	err = g.CancelOrder(ctx, "BTC-USDT", "SIM-unknown")
	if !IsKind(err, KindNotFound) {
		t.Errorf("cancel unknown = %v, want not-found", err)
	}
}

func TestSimGatewaySell(t *testing.T) {
	ctx := context.Background()
	g := NewSimGateway(fixedPrices{last: map[string]string{"BTC-USDT": "96"}})

	sellOrdID, price, err := g.PlaceMarketSell(ctx, "BTC-USDT", "SIM-x", decimal.RequireFromString("1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sellOrdID, SimOrderIDPrefix) {
		t.Errorf("sell ord_id = %s, want %s prefix", sellOrdID, SimOrderIDPrefix)
	}
	if !price.Equal(decimal.RequireFromString("96")) {
		t.Errorf("sell price = %s, want 96", price)
	}

	_, _, err = g.PlaceMarketSell(ctx, "XXX-USDT", "SIM-x", decimal.RequireFromString("1"))
	if !IsKind(err, KindRejected) {
		t.Errorf("sell without price = %v, want rejected", err)
	}
}

func TestSimGatewaySellUsesRecentLow(t *testing.T) {
	ctx := context.Background()
	g := NewSimGateway(fixedPrices{
		last:   map[string]string{"BTC-USDT": "96"},
		window: map[string][]string{"BTC-USDT": {"97", "95.5", "96.2"}},
	})

	_, price, err := g.PlaceMarketSell(ctx, "BTC-USDT", "SIM-x", decimal.RequireFromString("1"))
	if err != nil {
		t.Fatal(err)
	}
	// The lowest tick in the window beats the last price.
	if !price.Equal(decimal.RequireFromString("95.5")) {
		t.Errorf("sell price = %s, want 95.5", price)
	}
}
