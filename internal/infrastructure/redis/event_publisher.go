package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"auction-core/internal/domain"
)

const eventsChannel = "auction_events"

// RedisEventPublisher emits post-commit auction events over pub/sub. This
// covers both the live-post fan-out consumed by the stream service and the
// accepted-bid feed consumed by external fraud scoring. Delivery is
// at-most-once: a subscriber that is down misses the event.
type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (p *RedisEventPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, eventsChannel, payload).Err()
}
