package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is one item on a stream channel: PriceTick, BarClose or Disconnected.
type Event interface {
	// Key routes the event; events for one instrument are handled in order.
	Key() string
}

// PriceTick is a last-price update, delivered at arbitrary frequency.
type PriceTick struct {
	InstID string
	Last   decimal.Decimal
	TS     time.Time
}

func (t PriceTick) Key() string { return t.InstID }

// BarClose signals that a fixed-period candle finalized. Only confirmed bars
// trigger the sell path.
type BarClose struct {
	InstID    string
	Confirmed bool
	Close     decimal.Decimal
	TS        time.Time
}

func (b BarClose) Key() string { return b.InstID }

// Disconnected reports that a stream connection dropped. The stream reconnects
// and resubscribes on its own; missed events are not replayed, the timeout and
// reconcile passes compensate.
type Disconnected struct {
	Channel string
	Err     error
}

func (d Disconnected) Key() string { return "stream:" + d.Channel }
