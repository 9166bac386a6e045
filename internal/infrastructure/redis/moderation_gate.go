package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const blacklistKey = "moderation_blacklist"

// RedisModerationGate is the read-only blacklist check. The set itself is
// owned and maintained by the moderation system; this core only consults it.
type RedisModerationGate struct {
	client *redis.Client
}

func NewRedisModerationGate(client *redis.Client) *RedisModerationGate {
	return &RedisModerationGate{client: client}
}

func (g *RedisModerationGate) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	return g.client.SIsMember(ctx, blacklistKey, userID).Result()
}
