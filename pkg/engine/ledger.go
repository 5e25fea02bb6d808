package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

// Entry is the in-memory projection of one active order. The ledger is
// authoritative only for liveness; the durable store is authoritative for
// truth.
type Entry struct {
	InstID string
	OrdID  string
	State  model.OrderState

	Price decimal.Decimal
	Size  decimal.Decimal

	PlacedAt time.Time
	SellAt   time.Time

	SellAttempts    int
	LastSellAttempt time.Time

	// sellInFlight is set while a sell for this entry is being executed so a
	// duplicate bar-close cannot start a second one in this process.
	sellInFlight bool

	// timeoutTimer is the one-shot fill check owned by this order.
	timeoutTimer *time.Timer
}

// Ledger holds at most one entry per instrument under this process's strategy
// tag, guarded by a single exclusive lock. It is never shared across
// processes.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]*Entry),
	}
}

// Get returns a copy of the entry for an instrument.
func (l *Ledger) Get(instID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[instID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (l *Ledger) Has(instID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[instID]
	return ok
}

func (l *Ledger) Put(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.entries[e.InstID]; ok && old.timeoutTimer != nil && old.OrdID != e.OrdID {
		old.timeoutTimer.Stop()
	}
	l.entries[e.InstID] = e
}

// RemoveIfOrder drops the entry only when it still tracks ordID, so a stale
// completion cannot evict a newer order for the same instrument.
func (l *Ledger) RemoveIfOrder(instID, ordID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[instID]
	if !ok || e.OrdID != ordID {
		return false
	}
	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
	}
	delete(l.entries, instID)
	return true
}

// Update runs fn on the live entry under the lock. It returns false when the
// instrument no longer tracks ordID.
func (l *Ledger) Update(instID, ordID string, fn func(*Entry)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[instID]
	if !ok || e.OrdID != ordID {
		return false
	}
	fn(e)
	return true
}

// beginSell marks the entry as having a sell in flight. It returns the entry
// snapshot and false when the entry is missing or a sell is already running.
func (l *Ledger) beginSell(instID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[instID]
	if !ok || e.sellInFlight {
		return Entry{}, false
	}
	e.sellInFlight = true
	return *e, true
}

func (l *Ledger) endSell(instID, ordID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[instID]; ok && e.OrdID == ordID {
		e.sellInFlight = false
	}
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns copies of all entries for the reconciler.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}
