package engine

import (
	"context"
	"testing"
	"time"
)

func TestMemoryIntentStoreAcquireRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIntentStore()

	ok, err := s.Acquire(ctx, "BTC-USDT", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, _ = s.Acquire(ctx, "BTC-USDT", time.Minute)
	if ok {
		t.Fatal("second acquire must fail while the marker is live")
	}

	// Other instruments are independent.
	if ok, _ := s.Acquire(ctx, "ETH-USDT", time.Minute); !ok {
		t.Fatal("acquire for a different instrument should succeed")
	}

	if err := s.Release(ctx, "BTC-USDT"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Acquire(ctx, "BTC-USDT", time.Minute); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestMemoryIntentStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIntentStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if ok, _ := s.Acquire(ctx, "BTC-USDT", time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	// A marker past its ttl no longer blocks: a lost confirmation cannot
	// permanently block an instrument.
	now = now.Add(2 * time.Minute)
	if ok, _ := s.Acquire(ctx, "BTC-USDT", time.Minute); !ok {
		t.Fatal("expired marker should not block acquire")
	}
}

func TestMemoryIntentStorePurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIntentStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Acquire(ctx, "BTC-USDT", time.Minute) // nolint
	now = now.Add(30 * time.Second)
	s.Acquire(ctx, "ETH-USDT", time.Minute) // nolint

	now = now.Add(45 * time.Second)
	purged, err := s.PurgeExpired(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if ok, _ := s.Acquire(ctx, "ETH-USDT", time.Minute); ok {
		t.Fatal("fresh marker should survive the purge")
	}
}
