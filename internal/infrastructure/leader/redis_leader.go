package leader

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-core/pkg/logger"
)

const leaderKey = "finalizer_leader"

// RedisLeaderElection elects the instance that runs the finalization scan.
// Leadership is a SETNX key with a TTL, renewed by a heartbeat at a third
// of the TTL. Losing the key means losing leadership; the finalizer's
// guarded claim keeps a brief overlap of two leaders harmless.
type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if acquired {
		go r.maintainLeadership(instanceID)
	}

	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	luaScript := `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `

	_, err := r.client.Eval(ctx, luaScript, []string{leaderKey}, instanceID).Result()
	return err
}

func (r *RedisLeaderElection) maintainLeadership(instanceID string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		luaScript := `
            if redis.call("GET", KEYS[1]) == ARGV[1] then
                return redis.call("PEXPIRE", KEYS[1], ARGV[2])
            else
                return 0
            end
        `

		result, err := r.client.Eval(ctx, luaScript, []string{leaderKey},
			instanceID, r.ttl.Milliseconds()).Result()

		cancel()

		if err != nil || result.(int64) == 0 {
			r.log.Info("Lost finalizer leadership", "instance_id", instanceID)
			return
		}
	}
}
