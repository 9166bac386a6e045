package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events")

	for {
		select {
		case msg := <-ch:
			var event domain.AuctionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(&event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func (r *RedisEventSubscriber) SubscribeToNotifications(ctx context.Context, updates domain.UpdateHandler, notices domain.NoticeHandler) error {
	pubsub := r.client.Subscribe(ctx, updatesChannel, noticesChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	r.log.Info("Subscribed to notification channels")

	for {
		select {
		case msg := <-ch:
			switch msg.Channel {
			case updatesChannel:
				var update domain.AuctionUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					r.log.Error("Failed to parse auction update", "payload", msg.Payload, "error", err)
					continue
				}
				if err := updates(&update); err != nil {
					r.log.Error("Failed to relay auction update", "auction_id", update.AuctionID, "error", err)
				}

			case noticesChannel:
				var notice domain.UserNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					r.log.Error("Failed to parse user notice", "payload", msg.Payload, "error", err)
					continue
				}
				if err := notices(&notice); err != nil {
					r.log.Error("Failed to relay user notice", "user_id", notice.UserID, "error", err)
				}
			}

		case <-ctx.Done():
			r.log.Info("Notification subscriber stopped")
			return ctx.Err()
		}
	}
}
