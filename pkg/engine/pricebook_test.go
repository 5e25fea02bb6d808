package engine

import (
	"fmt"
	"testing"
	"time"
)

func TestPriceBookObserveRollsReference(t *testing.T) {
	b := NewPriceBook()
	h10 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if !b.Observe("BTC-USDT", dec("100"), h10.Add(5*time.Second)) {
		t.Fatal("first tick of the hour should set the reference")
	}
	if b.Observe("BTC-USDT", dec("99"), h10.Add(30*time.Second)) {
		t.Fatal("second tick of the same hour must not roll the reference")
	}

	ref, ok := b.Reference("BTC-USDT")
	if !ok || !ref.Equal(dec("100")) {
		t.Fatalf("reference = %s, %v, want 100", ref, ok)
	}

	// First tick of 11:00 becomes the new reference.
	if !b.Observe("BTC-USDT", dec("97"), h10.Add(time.Hour)) {
		t.Fatal("first tick of new hour should roll the reference")
	}
	ref, _ = b.Reference("BTC-USDT")
	if !ref.Equal(dec("97")) {
		t.Errorf("reference = %s, want 97", ref)
	}
}

func TestPriceBookLastAndWindow(t *testing.T) {
	b := NewPriceBook()
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < tickWindowSize+5; i++ {
		b.Observe("ETH-USDT", dec(fmt.Sprintf("%d", 100+i)), ts.Add(time.Duration(i)*time.Second))
	}

	last, ok := b.Last("ETH-USDT")
	if !ok || !last.Equal(dec("120")) {
		t.Fatalf("last = %s, %v, want 120", last, ok)
	}

	recent := b.RecentPrices("ETH-USDT")
	if len(recent) != tickWindowSize {
		t.Fatalf("window = %d ticks, want %d", len(recent), tickWindowSize)
	}
	if !recent[0].Equal(dec("105")) {
		t.Errorf("oldest tick = %s, want 105", recent[0])
	}
	if !recent[len(recent)-1].Equal(dec("120")) {
		t.Errorf("newest tick = %s, want 120", recent[len(recent)-1])
	}
}

func TestPriceBookSetReference(t *testing.T) {
	b := NewPriceBook()
	hour := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b.SetReference("SOL-USDT", dec("42"), hour)

	ref, ok := b.Reference("SOL-USDT")
	if !ok || !ref.Equal(dec("42")) {
		t.Fatalf("reference = %s, %v, want 42", ref, ok)
	}

	// Ticks within the pinned hour keep the fetched reference.
	if b.Observe("SOL-USDT", dec("41"), hour.Add(10*time.Minute)) {
		t.Fatal("tick inside the pinned hour must not roll the reference")
	}

	b.DropReference("SOL-USDT")
	if _, ok := b.Reference("SOL-USDT"); ok {
		t.Fatal("reference survived DropReference")
	}
}
