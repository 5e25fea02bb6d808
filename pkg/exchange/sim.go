package exchange

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

// SimOrderIDPrefix marks synthesized order ids so downstream tooling can tell
// simulated rows from real ones.
const SimOrderIDPrefix = "SIM-"

// PriceSource provides last observed prices plus a short recent-tick window;
// the engine's price book implements it.
type PriceSource interface {
	Last(instID string) (decimal.Decimal, bool)
	RecentPrices(instID string) []decimal.Decimal
}

// SimGateway implements Gateway without touching the exchange. Buys fill
// immediately at min(limit price, last tick); sells fill at the lowest price
// in the recent window so simulated runs do not flatter the strategy.
type SimGateway struct {
	prices PriceSource

	mu     sync.Mutex
	orders map[string]*OrderStatus
}

func NewSimGateway(prices PriceSource) *SimGateway {
	return &SimGateway{
		prices: prices,
		orders: make(map[string]*OrderStatus),
	}
}

func (g *SimGateway) PlaceLimitBuy(_ context.Context, instID string, price, size decimal.Decimal) (string, error) {
	fillPrice := price
	if last, ok := g.prices.Last(instID); ok && last.IsPositive() && last.LessThan(price) {
		fillPrice = last
	}

	ordID := SimOrderIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	g.mu.Lock()
	g.orders[ordID] = &OrderStatus{
		State:     model.OrderStateFilled,
		FillSize:  size,
		FillPrice: fillPrice,
		FillTime:  time.Now(),
	}
	g.mu.Unlock()

	zap.S().Infow("[sim] buy limit", "inst_id", instID, "price", fillPrice, "size", size, "ord_id", ordID)
	return ordID, nil
}

func (g *SimGateway) CancelOrder(_ context.Context, instID, ordID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.orders[ordID]
	if !ok {
		return newError(KindNotFound, "", "unknown sim order")
	}
	if st.State == model.OrderStateFilled || st.State == model.OrderStatePartiallyFilled {
		return newError(KindAlreadyTerminal, "", "sim order already filled")
	}
	st.State = model.OrderStateCanceled
	return nil
}

func (g *SimGateway) GetOrderStatus(_ context.Context, instID, ordID string) (*OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.orders[ordID]
	if !ok {
		return nil, newError(KindNotFound, "", "unknown sim order")
	}
	cp := *st
	return &cp, nil
}

func (g *SimGateway) PlaceMarketSell(_ context.Context, instID, ordID string, size decimal.Decimal) (string, decimal.Decimal, error) {
	price, ok := g.prices.Last(instID)
	if !ok || !price.IsPositive() {
		return "", decimal.Zero, newError(KindRejected, "", "no price for sim sell")
	}
	for _, p := range g.prices.RecentPrices(instID) {
		if p.IsPositive() && p.LessThan(price) {
			price = p
		}
	}
	sellOrdID := SimOrderIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	zap.S().Infow("[sim] sell market", "inst_id", instID, "price", price, "size", size,
		"ord_id", ordID, "sell_ord_id", sellOrdID)
	return sellOrdID, price, nil
}

func (g *SimGateway) HourOpen(_ context.Context, instID string) (decimal.Decimal, error) {
	if last, ok := g.prices.Last(instID); ok && last.IsPositive() {
		return last, nil
	}
	return decimal.Zero, newError(KindNotFound, "", "no price for sim reference")
}
