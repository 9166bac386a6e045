package domain

import (
	"errors"
	"fmt"
	"time"
)

// RejectReason is the machine-readable code attached to a ValidationError.
// It is stable and suitable for direct display mapping on the client.
type RejectReason string

const (
	ReasonBadAction   RejectReason = "bad_action"
	ReasonSelfOverbid RejectReason = "self_overbid"
	ReasonCooldown    RejectReason = "cooldown_active"
	ReasonDuplicate   RejectReason = "duplicate_submission"
	ReasonBlacklisted RejectReason = "bidder_blacklisted"
	ReasonSellerBid   RejectReason = "seller_cannot_bid"
	ReasonNoBuyout    RejectReason = "buyout_disabled"
	ReasonBadPricing  RejectReason = "bad_pricing"
	ReasonBadDuration RejectReason = "bad_duration"
	ReasonBidNotFound RejectReason = "bid_not_found"
)

type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Detail)
}

func NewValidationError(reason RejectReason, detail string) *ValidationError {
	return &ValidationError{Reason: reason, Detail: detail}
}

// StateError reports that an auction is not in a status that permits the
// requested operation. Status carries what the auction actually was.
type StateError struct {
	AuctionID string
	Status    AuctionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("auction %s is %s", e.AuctionID, e.Status)
}

// ConfirmationRequiredError is the first half of the two-step flow: the call
// did not commit, and Token must be presented on the retry.
type ConfirmationRequiredError struct {
	Token *ConfirmationToken
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("confirmation required for %s, token expires at %s",
		e.Token.Action, e.Token.ExpiresAt.Format(time.RFC3339))
}

// ConfirmationExpiredError reports a presented token that is no longer
// valid: expired, already consumed, or superseded.
type ConfirmationExpiredError struct {
	AuctionID string
	BidderID  string
	Action    BidAction
}

func (e *ConfirmationExpiredError) Error() string {
	return fmt.Sprintf("confirmation for %s on auction %s expired", e.Action, e.AuctionID)
}

var ErrAuctionNotFound = errors.New("auction not found")

// ErrConflict marks lock-contention and serialization failures from the
// store. Services retry these a bounded number of times before surfacing.
var ErrConflict = errors.New("persistence conflict")

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
