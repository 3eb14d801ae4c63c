// Package idempotency caches inbound payment creations by merchant
// order id so a replayed request returns the original response instead
// of reserving a second requisite. Redis is optional: without it the
// store degrades to always-claim and the duplicate is still rejected by
// the ledger's orderId uniqueness check.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "order"

// Store is the redis-backed order-replay cache.
type Store struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewStore builds a Store. A nil client disables caching.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{redis: client, ttl: ttl}
}

// Claim marks the order id as in flight. Returns false when another
// request already claimed it.
func (s *Store) Claim(ctx context.Context, merchantID uuid.UUID, orderID string) (bool, error) {
	if s == nil || s.redis == nil {
		return true, nil
	}
	ok, err := s.redis.SetNX(ctx, orderKey(merchantID, orderID), "pending", s.ttl).Result()
	if err != nil {
		zap.L().Warn("order claim failed, proceeding without cache", zap.Error(err))
		return true, nil
	}
	return ok, nil
}

// Release drops a claim after a failed creation so the merchant can
// retry with the same order id.
func (s *Store) Release(ctx context.Context, merchantID uuid.UUID, orderID string) {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, orderKey(merchantID, orderID)).Err(); err != nil {
		zap.L().Warn("order claim release failed", zap.Error(err))
	}
}

// CacheResponse stores the serialized creation response for replay.
func (s *Store) CacheResponse(ctx context.Context, merchantID uuid.UUID, orderID string, body []byte) {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, orderKey(merchantID, orderID), body, s.ttl).Err(); err != nil {
		zap.L().Warn("order response cache set failed", zap.Error(err))
	}
}

// CachedResponse returns the previously cached response, if any.
func (s *Store) CachedResponse(ctx context.Context, merchantID uuid.UUID, orderID string) ([]byte, bool) {
	if s == nil || s.redis == nil {
		return nil, false
	}
	val, err := s.redis.Get(ctx, orderKey(merchantID, orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("order response cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	if string(val) == "pending" {
		return nil, false
	}
	return val, true
}

func orderKey(merchantID uuid.UUID, orderID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, merchantID, orderID)
}
