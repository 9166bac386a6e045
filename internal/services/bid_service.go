package services

import (
	"context"
	"errors"
	"time"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
	"auction-core/pkg/utils"
)

// maxCommitAttempts bounds the transparent retry on lock-contention and
// serialization failures before the conflict surfaces to the caller.
const maxCommitAttempts = 3

type SubmitBidRequest struct {
	AuctionID         string
	BidderID          string
	Action            domain.BidAction
	ConfirmationToken string
	// IdempotencyKey covers the original client-side trigger so a retried
	// delivery of an already-committed request is not processed twice.
	IdempotencyKey string
}

type SubmitBuyoutRequest struct {
	AuctionID         string
	BidderID          string
	ConfirmationToken string
	IdempotencyKey    string
}

type BidResult struct {
	Bid            *domain.Bid
	NewPrice       int64
	EndAt          time.Time
	Extended       bool
	BoughtOut      bool
	OutbidBidderID string
}

// BidService is the bid acceptance protocol: it validates and commits a
// single bid against one auction under the store's exclusive row lock, and
// owns the buyout path. Post-commit notifications are best-effort and never
// roll anything back.
type BidService struct {
	store    domain.AuctionStore
	guard    domain.BidGuard
	confirms domain.ConfirmationStore
	gate     domain.ModerationGate
	notifier domain.NotificationChannel
	events   domain.EventPublisher
	log      logger.Logger
	now      func() time.Time
}

func NewBidService(
	store domain.AuctionStore,
	guard domain.BidGuard,
	confirms domain.ConfirmationStore,
	gate domain.ModerationGate,
	notifier domain.NotificationChannel,
	events domain.EventPublisher,
	log logger.Logger,
) *BidService {
	return &BidService{
		store:    store,
		guard:    guard,
		confirms: confirms,
		gate:     gate,
		notifier: notifier,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Used in tests.
func (s *BidService) SetClock(now func() time.Time) {
	s.now = now
}

// SubmitBid handles RAISE_X1/X3/X5. X3 and X5 are two-step: without a valid
// confirmation token the call commits nothing and returns
// ConfirmationRequiredError carrying a fresh token.
func (s *BidService) SubmitBid(ctx context.Context, req SubmitBidRequest) (*BidResult, error) {
	if req.Action.Multiplier() == 0 {
		return nil, domain.NewValidationError(domain.ReasonBadAction, req.Action.String())
	}
	return s.withConflictRetry(ctx, func() (*BidResult, error) {
		return s.processAction(ctx, req.AuctionID, req.BidderID, req.Action,
			req.ConfirmationToken, req.IdempotencyKey)
	})
}

// SubmitBuyout terminates the auction immediately at the buyout price.
// Always two-step.
func (s *BidService) SubmitBuyout(ctx context.Context, req SubmitBuyoutRequest) (*BidResult, error) {
	return s.withConflictRetry(ctx, func() (*BidResult, error) {
		return s.processAction(ctx, req.AuctionID, req.BidderID, domain.Buyout,
			req.ConfirmationToken, req.IdempotencyKey)
	})
}

func (s *BidService) withConflictRetry(ctx context.Context, attempt func() (*BidResult, error)) (*BidResult, error) {
	var lastErr error
	for i := 0; i < maxCommitAttempts; i++ {
		result, err := attempt()
		if err == nil || !domain.IsConflict(err) {
			return result, err
		}
		lastErr = err
		s.log.Warn("Retrying bid after persistence conflict", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 25 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (s *BidService) processAction(
	ctx context.Context,
	auctionID, bidderID string,
	action domain.BidAction,
	confirmationToken, idempotencyKey string,
) (*BidResult, error) {
	now := s.now()

	tx, err := s.store.BeginExclusive(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("Rollback failed", "auction_id", auctionID, "error", rbErr)
			}
		}
	}()

	auction := tx.Auction()

	if auction.Status != domain.AuctionActive {
		return nil, &domain.StateError{AuctionID: auction.ID, Status: auction.Status}
	}

	// A bid landing after the deadline but before the scheduler tick
	// finalizes the auction in place so the post never shows a live auction
	// past its end time. The bidder still gets a StateError.
	if !auction.EndAt.After(now) {
		if err := s.finalizeExpired(ctx, tx, auction, now); err != nil {
			return nil, err
		}
		committed = true
		return nil, &domain.StateError{AuctionID: auction.ID, Status: domain.AuctionEnded}
	}

	if auction.SellerID == bidderID {
		return nil, domain.NewValidationError(domain.ReasonSellerBid, "")
	}

	blacklisted, err := s.gate.IsBlacklisted(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, domain.NewValidationError(domain.ReasonBlacklisted, "")
	}

	top, err := tx.TopBids(ctx, 1)
	if err != nil {
		return nil, err
	}
	currentPrice := auction.StartPrice
	leaderID := ""
	if len(top) > 0 {
		currentPrice = top[0].Amount
		leaderID = top[0].BidderID
	}

	if leaderID == bidderID {
		return nil, domain.NewValidationError(domain.ReasonSelfOverbid, "already leading")
	}

	inCooldown, err := s.guard.InCooldown(ctx, auctionID, bidderID)
	if err != nil {
		return nil, err
	}
	if inCooldown {
		return nil, domain.NewValidationError(domain.ReasonCooldown, "")
	}

	if action == domain.Buyout && auction.BuyoutPrice == nil {
		return nil, domain.NewValidationError(domain.ReasonNoBuyout, "")
	}

	if action.NeedsConfirmation() {
		if confirmationToken == "" {
			token, mintErr := s.confirms.Mint(ctx, auctionID, bidderID, action)
			if mintErr != nil {
				return nil, mintErr
			}
			return nil, &domain.ConfirmationRequiredError{Token: token}
		}
		ok, consumeErr := s.confirms.Consume(ctx, auctionID, bidderID, action, confirmationToken)
		if consumeErr != nil {
			return nil, consumeErr
		}
		if !ok {
			return nil, &domain.ConfirmationExpiredError{
				AuctionID: auctionID,
				BidderID:  bidderID,
				Action:    action,
			}
		}
	}

	if idempotencyKey != "" {
		seen, seenErr := s.guard.SeenRequest(ctx, idempotencyKey)
		if seenErr != nil {
			return nil, seenErr
		}
		if seen {
			return nil, domain.NewValidationError(domain.ReasonDuplicate, "")
		}
	}

	boughtOut := action == domain.Buyout
	var amount int64
	if boughtOut {
		amount = *auction.BuyoutPrice
	} else {
		amount = currentPrice + auction.MinStep*action.Multiplier()
		// A raise that reaches the stated instant-win price is clamped to it
		// and finishes the auction as a buyout.
		if auction.BuyoutPrice != nil && amount >= *auction.BuyoutPrice {
			amount = *auction.BuyoutPrice
			boughtOut = true
		}
	}

	bid := &domain.Bid{
		ID:        utils.GenerateID("bid"),
		AuctionID: auction.ID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := tx.InsertBid(ctx, bid); err != nil {
		return nil, err
	}

	extended := false
	if boughtOut {
		claimed, finErr := tx.Finalize(ctx, domain.AuctionBoughtOut, &bidderID, now)
		if finErr != nil {
			return nil, finErr
		}
		if !claimed {
			return nil, &domain.StateError{AuctionID: auction.ID, Status: auction.Status}
		}
		auction.Status = domain.AuctionBoughtOut
		auction.WinnerID = &bidderID
	} else {
		extended = ExtendDeadline(auction, now)
		auction.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, auction); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	if err := s.guard.StartCooldown(ctx, auctionID, bidderID); err != nil {
		s.log.Warn("Failed to start bid cooldown", "auction_id", auctionID, "error", err)
	}
	if idempotencyKey != "" {
		if err := s.guard.MarkRequest(ctx, idempotencyKey); err != nil {
			s.log.Warn("Failed to mark idempotency key", "key", idempotencyKey, "error", err)
		}
	}

	result := &BidResult{
		Bid:            bid,
		NewPrice:       amount,
		EndAt:          auction.EndAt,
		Extended:       extended,
		BoughtOut:      boughtOut,
		OutbidBidderID: leaderID,
	}
	s.dispatchAccepted(ctx, auction, result, now)
	return result, nil
}

// finalizeExpired resolves an auction whose deadline passed before the
// scheduler got to it. Runs inside the caller's transaction and commits it.
func (s *BidService) finalizeExpired(ctx context.Context, tx domain.AuctionTx, auction *domain.Auction, now time.Time) error {
	top, err := tx.TopBids(ctx, 1)
	if err != nil {
		return err
	}
	var winnerID *string
	if len(top) > 0 {
		winnerID = &top[0].BidderID
	}
	claimed, err := tx.Finalize(ctx, domain.AuctionEnded, winnerID, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if claimed {
		s.dispatchEnded(ctx, auction.ID, auction.SellerID, winnerID, now)
	}
	return nil
}

// dispatchAccepted runs outside the lock: a slow or failed notification
// never holds up the next bidder.
func (s *BidService) dispatchAccepted(ctx context.Context, auction *domain.Auction, result *BidResult, now time.Time) {
	if view, err := LoadAuctionView(ctx, s.store, auction.ID); err != nil {
		s.log.Error("Failed to load auction view for post update", "auction_id", auction.ID, "error", err)
	} else if err := s.notifier.PostUpdate(ctx, auction.ID, view); err != nil {
		s.log.Error("Failed to push post update", "auction_id", auction.ID, "error", err)
	}

	if result.OutbidBidderID != "" && result.OutbidBidderID != result.Bid.BidderID {
		msg := map[string]interface{}{
			"type":       "outbid",
			"auction_id": auction.ID,
			"new_price":  result.NewPrice,
		}
		if err := s.notifier.NotifyUser(ctx, result.OutbidBidderID, msg); err != nil {
			s.log.Error("Failed to notify outbid user", "user_id", result.OutbidBidderID, "error", err)
		}
	}

	event := &domain.AuctionEvent{
		Type:      domain.EventBidAccepted,
		AuctionID: auction.ID,
		BidID:     result.Bid.ID,
		BidderID:  result.Bid.BidderID,
		Amount:    result.NewPrice,
		Timestamp: now,
	}
	if result.Extended {
		endAt := result.EndAt
		event.NewEndAt = &endAt
	}
	if err := s.events.PublishAuctionEvent(ctx, event); err != nil {
		s.log.Error("Failed to publish bid event", "auction_id", auction.ID, "error", err)
	}

	if result.Extended {
		endAt := result.EndAt
		if err := s.events.PublishAuctionEvent(ctx, &domain.AuctionEvent{
			Type:      domain.EventAuctionExtended,
			AuctionID: auction.ID,
			NewEndAt:  &endAt,
			Timestamp: now,
		}); err != nil {
			s.log.Error("Failed to publish extension event", "auction_id", auction.ID, "error", err)
		}
	}

	if result.BoughtOut {
		s.notifyFinish(ctx, auction.ID, auction.SellerID, &result.Bid.BidderID, "bought_out")
		if err := s.events.PublishAuctionEvent(ctx, &domain.AuctionEvent{
			Type:      domain.EventBoughtOut,
			AuctionID: auction.ID,
			BidderID:  result.Bid.BidderID,
			Amount:    result.NewPrice,
			Timestamp: now,
		}); err != nil {
			s.log.Error("Failed to publish buyout event", "auction_id", auction.ID, "error", err)
		}
	}
}

func (s *BidService) dispatchEnded(ctx context.Context, auctionID, sellerID string, winnerID *string, now time.Time) {
	s.notifyFinish(ctx, auctionID, sellerID, winnerID, "ended")
	if err := s.events.PublishAuctionEvent(ctx, &domain.AuctionEvent{
		Type:      domain.EventAuctionEnded,
		AuctionID: auctionID,
		Timestamp: now,
	}); err != nil {
		s.log.Error("Failed to publish auction ended event", "auction_id", auctionID, "error", err)
	}
}

func (s *BidService) notifyFinish(ctx context.Context, auctionID, sellerID string, winnerID *string, outcome string) {
	seller := map[string]interface{}{
		"type":       "auction_finished",
		"outcome":    outcome,
		"auction_id": auctionID,
	}
	if err := s.notifier.NotifyUser(ctx, sellerID, seller); err != nil {
		s.log.Error("Failed to notify seller", "user_id", sellerID, "error", err)
	}
	if winnerID != nil {
		won := map[string]interface{}{
			"type":       "auction_won",
			"outcome":    outcome,
			"auction_id": auctionID,
		}
		if err := s.notifier.NotifyUser(ctx, *winnerID, won); err != nil {
			s.log.Error("Failed to notify winner", "user_id", *winnerID, "error", err)
		}
	}
}

// AsConfirmationRequired unwraps the two-step flow-control error returned
// from the first call of a high-risk action. Callers should treat it as
// flow control, not failure.
func AsConfirmationRequired(err error) (*domain.ConfirmationRequiredError, bool) {
	var cr *domain.ConfirmationRequiredError
	if errors.As(err, &cr) {
		return cr, true
	}
	return nil, false
}
