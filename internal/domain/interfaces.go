package domain

import (
	"context"
	"time"
)

// Repository interfaces

// AuctionStore is the transactional persistence port. BeginExclusive opens a
// transaction holding a row-level exclusive lock on one auction; every
// mutation of that auction happens through the returned AuctionTx so the
// lock totally orders concurrent writers.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	TopBids(ctx context.Context, auctionID string, n int) ([]*TopBid, error)
	// ListExpired returns ids of ACTIVE auctions whose deadline has passed.
	// FROZEN auctions are excluded by construction.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	BeginExclusive(ctx context.Context, auctionID string) (AuctionTx, error)
}

// AuctionTx is a single-auction unit of work under the exclusive lock.
type AuctionTx interface {
	// Auction returns the locked row as loaded at BeginExclusive.
	Auction() *Auction
	TopBids(ctx context.Context, n int) ([]*TopBid, error)
	InsertBid(ctx context.Context, bid *Bid) error
	UpdateAuction(ctx context.Context, auction *Auction) error
	// Finalize performs the guarded terminal update: it succeeds only if the
	// row is still ACTIVE, returning false when another writer already
	// resolved the auction.
	Finalize(ctx context.Context, status AuctionStatus, winnerID *string, now time.Time) (bool, error)
	// RemoveBid soft-removes one bid of the locked auction.
	RemoveBid(ctx context.Context, bidID, removedBy, reason string) (bool, error)
	Commit() error
	Rollback() error
}

// Guard interfaces. Both are consulted, never authoritative (the
// transactional commit is): a lost entry costs one extra round-trip, not
// correctness.

// BidGuard holds the short-lived anti-mistake state keyed per
// (auction, bidder): the cooldown and the duplicate-submission marker.
type BidGuard interface {
	// InCooldown reports whether the bidder had a bid accepted on this
	// auction within the cooldown window.
	InCooldown(ctx context.Context, auctionID, bidderID string) (bool, error)
	// StartCooldown records an accepted bid. Called after commit.
	StartCooldown(ctx context.Context, auctionID, bidderID string) error
	// SeenRequest reports whether the idempotency key was already committed.
	SeenRequest(ctx context.Context, idempotencyKey string) (bool, error)
	// MarkRequest records the idempotency key after a successful commit.
	MarkRequest(ctx context.Context, idempotencyKey string) error
}

// ConfirmationStore mints and consumes the single-use tokens gating
// high-risk actions.
type ConfirmationStore interface {
	Mint(ctx context.Context, auctionID, bidderID string, action BidAction) (*ConfirmationToken, error)
	// Consume atomically deletes the stored token if it matches. It returns
	// false when the token is absent, expired, or does not match.
	Consume(ctx context.Context, auctionID, bidderID string, action BidAction, token string) (bool, error)
}

// ModerationGate is the read-only check owned by the moderation system.
type ModerationGate interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

// Notification interfaces. Both are fire-and-forget: errors are reported to
// the caller for logging but never roll back the triggering transaction.

type NotificationChannel interface {
	// PostUpdate pushes the rendered auction state to everyone watching it.
	PostUpdate(ctx context.Context, auctionID string, view *AuctionView) error
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

// Event interfaces

// EventPublisher emits post-commit auction events, including the accepted-bid
// feed consumed by external fraud scoring. At-most-once, non-blocking.
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventHandler func(event *AuctionEvent) error

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
