package domain

import (
	"time"
)

type Auction struct {
	ID               string
	SellerID         string
	Description      string
	StartPrice       int64
	BuyoutPrice      *int64
	MinStep          int64
	DurationHours    int
	EndAt            time.Time
	AntiSniperWindow time.Duration
	AntiSniperExtend time.Duration
	MaxExtensions    int
	ExtensionCount   int
	Status           AuctionStatus
	WinnerID         *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type AuctionStatus int

const (
	AuctionDraft AuctionStatus = iota
	AuctionActive
	AuctionFrozen
	AuctionEnded
	AuctionBoughtOut
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionDraft:
		return "draft"
	case AuctionActive:
		return "active"
	case AuctionFrozen:
		return "frozen"
	case AuctionEnded:
		return "ended"
	case AuctionBoughtOut:
		return "bought_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further status change is possible.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionEnded || s == AuctionBoughtOut
}

// allowedTransitions is the complete status machine. Anything not listed
// here is rejected, including transitions out of terminal states.
var allowedTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionDraft:  {AuctionActive},
	AuctionActive: {AuctionFrozen, AuctionEnded, AuctionBoughtOut},
	AuctionFrozen: {AuctionActive},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to AuctionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies an allowed status change or returns a StateError
// carrying the auction's current status.
func (a *Auction) Transition(to AuctionStatus, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return &StateError{AuctionID: a.ID, Status: a.Status}
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

type Bid struct {
	ID              string
	AuctionID       string
	BidderID        string
	Amount          int64
	IsRemoved       bool
	RemovedReason   *string
	RemovedByUserID *string
	CreatedAt       time.Time
}

// TopBid is one row of the top-bids view: non-removed bids ordered by
// amount descending, then earliest first.
type TopBid struct {
	BidID     string
	BidderID  string
	Amount    int64
	CreatedAt time.Time
}

// BidAction is the closed set of things a bidder can do to an auction.
type BidAction int

const (
	RaiseX1 BidAction = iota
	RaiseX3
	RaiseX5
	Buyout
)

func (a BidAction) String() string {
	switch a {
	case RaiseX1:
		return "raise_x1"
	case RaiseX3:
		return "raise_x3"
	case RaiseX5:
		return "raise_x5"
	case Buyout:
		return "buyout"
	default:
		return "unknown"
	}
}

// Multiplier returns the min-step multiplier for raise actions, 0 otherwise.
func (a BidAction) Multiplier() int64 {
	switch a {
	case RaiseX1:
		return 1
	case RaiseX3:
		return 3
	case RaiseX5:
		return 5
	default:
		return 0
	}
}

// NeedsConfirmation reports whether the action requires the two-step
// confirmation token flow before it commits.
func (a BidAction) NeedsConfirmation() bool {
	return a == RaiseX3 || a == RaiseX5 || a == Buyout
}

// ParseBidAction maps the wire representation to a BidAction.
func ParseBidAction(raw string) (BidAction, bool) {
	switch raw {
	case "raise_x1":
		return RaiseX1, true
	case "raise_x3":
		return RaiseX3, true
	case "raise_x5":
		return RaiseX5, true
	case "buyout":
		return Buyout, true
	default:
		return 0, false
	}
}

// ConfirmationToken is the single-use credential minted on the first call of
// a high-risk action and required on the second.
type ConfirmationToken struct {
	Token     string
	AuctionID string
	BidderID  string
	Action    BidAction
	ExpiresAt time.Time
}

// AuctionView is the derived read model used for rendering posts and for
// winner determination: the auction plus its top 3 non-removed bids.
type AuctionView struct {
	Auction        *Auction
	TopBids        []*TopBid
	CurrentPrice   int64
	MinimumNextBid int64
}

type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	AuctionID string           `json:"auction_id"`
	BidID     string           `json:"bid_id,omitempty"`
	BidderID  string           `json:"bidder_id,omitempty"`
	Amount    int64            `json:"amount,omitempty"`
	NewEndAt  *time.Time       `json:"new_end_at,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type AuctionEventType string

const (
	EventBidAccepted     AuctionEventType = "bid_accepted"
	EventAuctionExtended AuctionEventType = "auction_extended"
	EventAuctionEnded    AuctionEventType = "auction_ended"
	EventBoughtOut       AuctionEventType = "bought_out"
)
