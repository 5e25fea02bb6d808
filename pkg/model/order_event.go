package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventKind string

const (
	EventKindPlaced     OrderEventKind = "placed"
	EventKindFilled     OrderEventKind = "filled"
	EventKindPartFilled OrderEventKind = "part_filled"
	EventKindCanceled   OrderEventKind = "canceled"
	EventKindSold       OrderEventKind = "sold"
	EventKindSellFailed OrderEventKind = "sell_failed"
)

// OrderEvent is an audit record of one lifecycle transition. Events are
// published to the audit stream and persisted by the worker; they are not on
// the trading decision path.
type OrderEvent struct {
	EventID     string `gorm:"primaryKey"`
	InstID      string `gorm:"column:inst_id;index"`
	StrategyTag string `gorm:"column:strategy_tag"`
	OrdID       string `gorm:"column:ord_id;index"`

	Kind  OrderEventKind
	Price decimal.Decimal `gorm:"type:numeric"`
	Size  decimal.Decimal `gorm:"type:numeric"`

	Timestamp time.Time
	CreatedAt time.Time
}

func (OrderEvent) TableName() string {
	return "order_events"
}

func NewOrderEvent(o *Order, kind OrderEventKind, ts time.Time) *OrderEvent {
	ev := &OrderEvent{
		EventID:     NewEventID(o.OrdID, kind),
		InstID:      o.InstID,
		StrategyTag: o.StrategyTag,
		OrdID:       o.OrdID,
		Kind:        kind,
		Price:       o.Price,
		Size:        o.Size,
		Timestamp:   ts,
	}
	switch kind {
	case EventKindFilled, EventKindPartFilled:
		ev.Price = o.FillPrice
		ev.Size = o.FillSize
	case EventKindSold:
		ev.Price = o.SellPrice
		ev.Size = o.FillSize
	case EventKindSellFailed:
		ev.Size = o.FillSize
	}
	return ev
}

// NewEventID derives a deterministic id so duplicate deliveries collapse to
// one row on the consumer side.
func NewEventID(ordID string, kind OrderEventKind) string {
	return fmt.Sprintf("%s-%s", ordID, kind)
}
