package engine

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

const tickWindowSize = 16

type Tick struct {
	Price decimal.Decimal
	TS    time.Time
}

// PriceBook caches last prices, a short recent-tick window per instrument and
// the per-hour reference prices the limit ratios anchor on.
type PriceBook struct {
	mu      sync.RWMutex
	last    map[string]decimal.Decimal
	recent  map[string]*deque.Deque[Tick]
	refs    map[string]decimal.Decimal
	refHour map[string]time.Time
}

func NewPriceBook() *PriceBook {
	return &PriceBook{
		last:    make(map[string]decimal.Decimal),
		recent:  make(map[string]*deque.Deque[Tick]),
		refs:    make(map[string]decimal.Decimal),
		refHour: make(map[string]time.Time),
	}
}

// Observe records a tick. It returns true when the tick is the first of a new
// hour for this instrument, which makes it the rolling reference price.
func (b *PriceBook) Observe(instID string, price decimal.Decimal, ts time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last[instID] = price

	q, ok := b.recent[instID]
	if !ok {
		q = &deque.Deque[Tick]{}
		b.recent[instID] = q
	}
	q.PushBack(Tick{Price: price, TS: ts})
	for q.Len() > tickWindowSize {
		q.PopFront()
	}

	hour := ts.Truncate(time.Hour)
	if b.refHour[instID].Equal(hour) {
		return false
	}
	b.refs[instID] = price
	b.refHour[instID] = hour
	return true
}

func (b *PriceBook) Last(instID string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.last[instID]
	return p, ok
}

// RecentPrices returns the window's prices oldest first. The sim gateway
// fills market sells at the lowest of these.
func (b *PriceBook) RecentPrices(instID string) []decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.recent[instID]
	if !ok {
		return nil
	}
	out := make([]decimal.Decimal, 0, q.Len())
	for i := 0; i < q.Len(); i++ {
		out = append(out, q.At(i).Price)
	}
	return out
}

func (b *PriceBook) Reference(instID string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.refs[instID]
	return p, ok
}

// SetReference pins a fetched hourly open as the reference price.
func (b *PriceBook) SetReference(instID string, price decimal.Decimal, hour time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs[instID] = price
	b.refHour[instID] = hour.Truncate(time.Hour)
}

func (b *PriceBook) DropReference(instID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refs, instID)
	delete(b.refHour, instID)
}
