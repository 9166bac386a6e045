package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"auction-core/internal/domain"
)

const (
	updatesChannel = "auction_updates"
	noticesChannel = "user_notices"
)

// RedisNotifier implements the notification port over pub/sub. The bidding
// and finalization side has no websocket connections of its own; publishing
// here lets any stream instance deliver to whichever sockets it holds.
// Delivery is at-most-once, same as the event feed.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) PostUpdate(ctx context.Context, auctionID string, view *domain.AuctionView) error {
	state, err := json.Marshal(renderState(view))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(&domain.AuctionUpdate{
		AuctionID: auctionID,
		State:     state,
	})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, updatesChannel, payload).Err()
}

func (n *RedisNotifier) NotifyUser(ctx context.Context, userID string, message interface{}) error {
	msg, err := json.Marshal(message)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(&domain.UserNotice{
		UserID:  userID,
		Message: msg,
	})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, noticesChannel, payload).Err()
}

func renderState(view *domain.AuctionView) map[string]interface{} {
	topBids := make([]map[string]interface{}, 0, len(view.TopBids))
	for _, b := range view.TopBids {
		topBids = append(topBids, map[string]interface{}{
			"bidder_id": b.BidderID,
			"amount":    b.Amount,
		})
	}

	state := map[string]interface{}{
		"status":           view.Auction.Status.String(),
		"current_price":    view.CurrentPrice,
		"minimum_next_bid": view.MinimumNextBid,
		"top_bids":         topBids,
	}
	if !view.Auction.EndAt.IsZero() {
		state["end_at"] = view.Auction.EndAt
	}
	return state
}
