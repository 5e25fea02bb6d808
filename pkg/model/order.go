package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of an order as persisted in the orders table.
type OrderState string

const (
	// OrderStatePlaced means the buy is live on the exchange and its fill is unknown.
	OrderStatePlaced          OrderState = "placed"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateCanceled        OrderState = "canceled"
	OrderStateSold            OrderState = "sold"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

var (
	ErrTerminalState     = errors.New("order already in terminal state")
	ErrNotSellable       = errors.New("order not sellable")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// Order is one row of the orders table. The lookup key used by the engine is
// (inst_id, ord_id, strategy_tag) so that strategy processes sharing one
// account never see each other's orders.
type Order struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	InstID      string `gorm:"column:inst_id;index:idx_orders_inst_ord_tag"`
	StrategyTag string `gorm:"column:strategy_tag;index:idx_orders_inst_ord_tag;index:idx_orders_tag_create"`
	OrdID       string `gorm:"column:ord_id;index:idx_orders_inst_ord_tag"`

	Side  OrderSide
	Type  OrderType
	State OrderState `gorm:"index"`

	// Requested values at placement time.
	Price decimal.Decimal `gorm:"type:numeric"`
	Size  decimal.Decimal `gorm:"type:numeric"`

	// Observed values from the exchange; never assumed from the request.
	FillPrice decimal.Decimal `gorm:"type:numeric"`
	FillSize  decimal.Decimal `gorm:"type:numeric"`

	// SellOrdID identifies the market sell on the exchange; it lets a zero
	// SellPrice be backfilled when the fill readback failed.
	SellOrdID string          `gorm:"column:sell_ord_id"`
	SellPrice decimal.Decimal `gorm:"type:numeric"`

	CreateTime time.Time `gorm:"index:idx_orders_tag_create"`
	// SellTime is the planned liquidation time, the close of the next hourly bar.
	SellTime time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order reached a final state. Terminal states
// are never re-entered.
func (o *Order) IsTerminal() bool {
	return o.State == OrderStateCanceled || o.State == OrderStateSold
}

// IsUnsold reports whether the order still represents a live or owned
// position under its strategy tag.
func (o *Order) IsUnsold() bool {
	switch o.State {
	case OrderStatePlaced, OrderStatePartiallyFilled, OrderStateFilled:
		return true
	}
	return false
}

// Sellable reports whether a market sell may be issued for this order. A fill
// size of exactly zero means "not filled", not an error.
func (o *Order) Sellable() bool {
	if o.State != OrderStateFilled && o.State != OrderStatePartiallyFilled {
		return false
	}
	return o.FillSize.IsPositive()
}

// ApplyFill records the observed fill values from the exchange.
func (o *Order) ApplyFill(state OrderState, fillPrice, fillSize decimal.Decimal) error {
	if o.IsTerminal() {
		return ErrTerminalState
	}
	if state != OrderStateFilled && state != OrderStatePartiallyFilled {
		return ErrInvalidTransition
	}
	if !fillSize.IsPositive() {
		return ErrInvalidTransition
	}
	o.State = state
	o.FillPrice = fillPrice
	o.FillSize = fillSize
	return nil
}

// MarkCanceled transitions an unfilled order to canceled.
func (o *Order) MarkCanceled() error {
	if o.IsTerminal() {
		return ErrTerminalState
	}
	o.State = OrderStateCanceled
	return nil
}

// MarkSold transitions a filled order to sold with the sell order id and the
// observed sell price.
func (o *Order) MarkSold(sellOrdID string, sellPrice decimal.Decimal) error {
	if o.State == OrderStateSold {
		return ErrTerminalState
	}
	if !o.Sellable() {
		return ErrNotSellable
	}
	o.State = OrderStateSold
	o.SellOrdID = sellOrdID
	o.SellPrice = sellPrice
	return nil
}
