package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"auction-core/internal/domain"
)

// RedisConfirmationStore stores the single-use tokens that gate high-risk
// actions. One live token per (auction, bidder, action); re-arming
// overwrites it. Consume is an atomic compare-and-delete so a token can
// never be spent twice.
type RedisConfirmationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisConfirmationStore(client *redis.Client, ttl time.Duration) *RedisConfirmationStore {
	return &RedisConfirmationStore{client: client, ttl: ttl}
}

func confirmationKey(auctionID, bidderID string, action domain.BidAction) string {
	return fmt.Sprintf("confirm:%s:%s:%s", auctionID, bidderID, action)
}

func (s *RedisConfirmationStore) Mint(ctx context.Context, auctionID, bidderID string, action domain.BidAction) (*domain.ConfirmationToken, error) {
	token := uuid.NewString()
	key := confirmationKey(auctionID, bidderID, action)

	if err := s.client.Set(ctx, key, token, s.ttl).Err(); err != nil {
		return nil, err
	}

	return &domain.ConfirmationToken{
		Token:     token,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Action:    action,
		ExpiresAt: time.Now().Add(s.ttl),
	}, nil
}

func (s *RedisConfirmationStore) Consume(ctx context.Context, auctionID, bidderID string, action domain.BidAction, token string) (bool, error) {
	luaScript := `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `

	key := confirmationKey(auctionID, bidderID, action)
	result, err := s.client.Eval(ctx, luaScript, []string{key}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}
