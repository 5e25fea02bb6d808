package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntentStore holds pending-intent markers: "a buy for this instrument is in
// flight, do not place another". Markers self-expire after a bounded interval
// so a lost confirmation cannot permanently block an instrument.
type IntentStore interface {
	// Acquire sets the marker if absent. It returns false when a buy is
	// already in flight.
	Acquire(ctx context.Context, instID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, instID string) error
	// PurgeExpired removes markers older than ttl and returns how many.
	PurgeExpired(ctx context.Context, ttl time.Duration) (int, error)
}

// RedisIntentStore keys markers by strategy tag and relies on key expiry for
// the self-expiring contract. The payload is the acquisition timestamp so the
// reconciler can purge leftovers even when expiry did not run.
type RedisIntentStore struct {
	client *redis.Client
	tag    string
}

func NewRedisIntentStore(client *redis.Client, tag string) *RedisIntentStore {
	return &RedisIntentStore{client: client, tag: tag}
}

func (s *RedisIntentStore) key(instID string) string {
	return fmt.Sprintf("hour-trade:intent:%s:%s", s.tag, instID)
}

func (s *RedisIntentStore) Acquire(ctx context.Context, instID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(instID), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (s *RedisIntentStore) Release(ctx context.Context, instID string) error {
	return s.client.Del(ctx, s.key(instID)).Err()
}

func (s *RedisIntentStore) PurgeExpired(ctx context.Context, ttl time.Duration) (int, error) {
	pattern := fmt.Sprintf("hour-trade:intent:%s:*", s.tag)
	cutoff := time.Now().Add(-ttl)
	purged := 0

	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, val)
		if err != nil || ts.Before(cutoff) {
			if s.client.Del(ctx, key).Err() == nil {
				purged++
			}
		}
	}
	return purged, iter.Err()
}

// MemoryIntentStore is the in-process fallback used in tests and when no
// Redis is configured.
type MemoryIntentStore struct {
	mu      sync.Mutex
	markers map[string]time.Time
	now     func() time.Time
}

func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{
		markers: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryIntentStore) Acquire(_ context.Context, instID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.markers[instID]; ok && s.now().Sub(at) < ttl {
		return false, nil
	}
	s.markers[instID] = s.now()
	return true, nil
}

func (s *MemoryIntentStore) Release(_ context.Context, instID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, instID)
	return nil
}

func (s *MemoryIntentStore) PurgeExpired(_ context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	purged := 0
	for instID, at := range s.markers {
		if at.Before(cutoff) {
			delete(s.markers, instID)
			purged++
		}
	}
	return purged, nil
}
