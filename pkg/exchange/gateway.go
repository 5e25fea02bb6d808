package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

// OrderStatus is the gateway's view of one order on the exchange. FillSize
// and FillPrice are observed values; a zero FillSize means "not filled".
type OrderStatus struct {
	State     model.OrderState
	FillSize  decimal.Decimal
	FillPrice decimal.Decimal
	FillTime  time.Time
}

// Gateway is the single point of contact with the exchange order API. All
// operations are safe to call from multiple goroutines.
type Gateway interface {
	// PlaceLimitBuy submits one limit buy and returns the exchange order id.
	PlaceLimitBuy(ctx context.Context, instID string, price, size decimal.Decimal) (string, error)

	// CancelOrder cancels a live order. Canceling an already-filled order
	// returns a KindAlreadyTerminal error, which callers treat as benign.
	CancelOrder(ctx context.Context, instID, ordID string) error

	// GetOrderStatus is an idempotent read of the order's exchange state.
	GetOrderStatus(ctx context.Context, instID, ordID string) (*OrderStatus, error)

	// PlaceMarketSell liquidates size of the position bought by ordID. It
	// returns the sell order id and the observed sell price; a zero price
	// with a nil error means the sell landed but the price readback failed,
	// and the id is the handle for backfilling it.
	PlaceMarketSell(ctx context.Context, instID, ordID string, size decimal.Decimal) (string, decimal.Decimal, error)

	// HourOpen fetches the current hour's open price, the reference price
	// for limit-ratio calculations.
	HourOpen(ctx context.Context, instID string) (decimal.Decimal, error)
}
