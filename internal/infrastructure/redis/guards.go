package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBidGuard keeps the short-lived anti-mistake state: the per
// (auction, bidder) cooldown and the idempotency-key markers. Both entries
// carry a TTL and are advisory; the transactional commit stays
// authoritative if Redis forgets.
type RedisBidGuard struct {
	client     *redis.Client
	cooldown   time.Duration
	requestTTL time.Duration
}

func NewRedisBidGuard(client *redis.Client, cooldown, requestTTL time.Duration) *RedisBidGuard {
	return &RedisBidGuard{
		client:     client,
		cooldown:   cooldown,
		requestTTL: requestTTL,
	}
}

func cooldownKey(auctionID, bidderID string) string {
	return fmt.Sprintf("bid_cooldown:%s:%s", auctionID, bidderID)
}

func requestKey(idempotencyKey string) string {
	return fmt.Sprintf("bid_request:%s", idempotencyKey)
}

func (g *RedisBidGuard) InCooldown(ctx context.Context, auctionID, bidderID string) (bool, error) {
	n, err := g.client.Exists(ctx, cooldownKey(auctionID, bidderID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisBidGuard) StartCooldown(ctx context.Context, auctionID, bidderID string) error {
	if g.cooldown <= 0 {
		return nil
	}
	return g.client.Set(ctx, cooldownKey(auctionID, bidderID), "1", g.cooldown).Err()
}

func (g *RedisBidGuard) SeenRequest(ctx context.Context, idempotencyKey string) (bool, error) {
	n, err := g.client.Exists(ctx, requestKey(idempotencyKey)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisBidGuard) MarkRequest(ctx context.Context, idempotencyKey string) error {
	return g.client.Set(ctx, requestKey(idempotencyKey), "1", g.requestTTL).Err()
}
