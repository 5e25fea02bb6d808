package engine

import (
	"testing"
	"time"

	"github.com/xucheng2024/hour-trade/pkg/model"
)

func TestLedgerPutAndGet(t *testing.T) {
	l := NewLedger()

	if l.Has("BTC-USDT") {
		t.Fatal("empty ledger should not have entries")
	}

	l.Put(&Entry{InstID: "BTC-USDT", OrdID: "o1", State: model.OrderStatePlaced})
	if !l.Has("BTC-USDT") {
		t.Fatal("entry missing after Put")
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}

	e, ok := l.Get("BTC-USDT")
	if !ok || e.OrdID != "o1" {
		t.Fatalf("Get = %+v, %v", e, ok)
	}

	if !l.RemoveIfOrder("BTC-USDT", "o1") {
		t.Fatal("expected removal for tracked order")
	}
	if l.Has("BTC-USDT") {
		t.Fatal("entry present after removal")
	}
}

func TestLedgerRemoveIfOrder(t *testing.T) {
	l := NewLedger()
	l.Put(&Entry{InstID: "ETH-USDT", OrdID: "o1"})

	if l.RemoveIfOrder("ETH-USDT", "o2") {
		t.Fatal("removed entry tracked by a different order")
	}
	if !l.Has("ETH-USDT") {
		t.Fatal("entry evicted by stale completion")
	}
	if !l.RemoveIfOrder("ETH-USDT", "o1") {
		t.Fatal("expected removal for matching order")
	}
}

func TestLedgerUpdate(t *testing.T) {
	l := NewLedger()
	l.Put(&Entry{InstID: "ETH-USDT", OrdID: "o1", State: model.OrderStatePlaced})

	ok := l.Update("ETH-USDT", "o1", func(e *Entry) {
		e.State = model.OrderStateFilled
	})
	if !ok {
		t.Fatal("Update returned false for live entry")
	}
	e, _ := l.Get("ETH-USDT")
	if e.State != model.OrderStateFilled {
		t.Errorf("state = %s, want filled", e.State)
	}

	if l.Update("ETH-USDT", "other", func(*Entry) {}) {
		t.Error("Update matched wrong order id")
	}
}

func TestLedgerSellInFlight(t *testing.T) {
	l := NewLedger()
	l.Put(&Entry{InstID: "SOL-USDT", OrdID: "o1", State: model.OrderStateFilled})

	e, ok := l.beginSell("SOL-USDT")
	if !ok {
		t.Fatal("first beginSell should succeed")
	}
	if _, ok := l.beginSell("SOL-USDT"); ok {
		t.Fatal("second beginSell should be rejected while in flight")
	}
	l.endSell("SOL-USDT", e.OrdID)
	if _, ok := l.beginSell("SOL-USDT"); !ok {
		t.Fatal("beginSell should succeed after endSell")
	}
}

func TestLedgerPutStopsReplacedTimer(t *testing.T) {
	l := NewLedger()
	fired := make(chan struct{}, 1)
	timer := time.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	l.Put(&Entry{InstID: "BTC-USDT", OrdID: "o1", timeoutTimer: timer})
	l.Put(&Entry{InstID: "BTC-USDT", OrdID: "o2"})

	select {
	case <-fired:
		t.Fatal("replaced entry's timer still fired")
	case <-time.After(50 * time.Millisecond):
	}
}
