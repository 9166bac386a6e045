package services

import (
	"context"
	"fmt"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

// EventListener relays auction events from the broker to the websocket
// watchers of the stream service.
type EventListener struct {
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager, log logger.Logger) *EventListener {
	return &EventListener{
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, el.handleAuctionEvent)
}

// StartNotifications relays rendered auction updates and user-directed
// notices. These travel over their own channels so targeted messages never
// hit the broadcast path.
func (el *EventListener) StartNotifications(ctx context.Context, subscriber domain.NotificationSubscriber) error {
	el.log.Info("Starting notification relay")
	return subscriber.SubscribeToNotifications(ctx, el.handleAuctionUpdate, el.handleUserNotice)
}

func (el *EventListener) handleAuctionUpdate(update *domain.AuctionUpdate) error {
	return el.connectionManager.BroadcastToAuction(update.AuctionID, map[string]interface{}{
		"type":    "auction_update",
		"auction": update.State,
	})
}

func (el *EventListener) handleUserNotice(notice *domain.UserNotice) error {
	return el.connectionManager.NotifyUser(notice.UserID, notice.Message)
}

func (el *EventListener) handleAuctionEvent(event *domain.AuctionEvent) error {
	el.log.Info("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.EventBidAccepted:
		return el.handleBidAccepted(event)
	case domain.EventAuctionExtended:
		return el.handleAuctionExtended(event)
	case domain.EventAuctionEnded, domain.EventBoughtOut:
		return el.handleAuctionClosed(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidAccepted(event *domain.AuctionEvent) error {
	payload := map[string]interface{}{
		"type":          "bid_update",
		"current_price": event.Amount,
		"bidder_id":     event.BidderID,
		"timestamp":     event.Timestamp,
	}
	if event.NewEndAt != nil {
		payload["end_at"] = event.NewEndAt
	}
	return el.connectionManager.BroadcastToAuction(event.AuctionID, payload)
}

func (el *EventListener) handleAuctionExtended(event *domain.AuctionEvent) error {
	return el.connectionManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":      "auction_extended",
		"end_at":    event.NewEndAt,
		"timestamp": event.Timestamp,
	})
}

func (el *EventListener) handleAuctionClosed(event *domain.AuctionEvent) error {
	if err := el.connectionManager.BroadcastToAuction(event.AuctionID, map[string]interface{}{
		"type":      string(event.Type),
		"winner_id": event.BidderID,
		"amount":    event.Amount,
		"timestamp": event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast close event", "auction_id", event.AuctionID, "error", err)
		return err
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to close connections for auction", "auction_id",
			event.AuctionID, "error", err)
		return err
	}
	return nil
}
