package domain

import (
	"context"
	"encoding/json"
)

// AuctionUpdate carries the rendered post state of one auction to every
// watcher, regardless of which stream instance holds their connection.
type AuctionUpdate struct {
	AuctionID string          `json:"auction_id"`
	State     json.RawMessage `json:"state"`
}

// UserNotice is a message addressed to a single user (outbid, auction won,
// auction finished). Delivery is best effort.
type UserNotice struct {
	UserID  string          `json:"user_id"`
	Message json.RawMessage `json:"message"`
}

type UpdateHandler func(update *AuctionUpdate) error

type NoticeHandler func(notice *UserNotice) error

// NotificationSubscriber is the stream-side counterpart of
// NotificationChannel: it consumes the broker-carried updates and notices
// published by the bidding and finalization side.
type NotificationSubscriber interface {
	SubscribeToNotifications(ctx context.Context, updates UpdateHandler, notices NoticeHandler) error
}
