package services

import (
	"context"
	"fmt"
	"time"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
	"auction-core/pkg/utils"
)

var allowedDurations = map[int]bool{6: true, 12: true, 18: true, 24: true}

type CreateAuctionParams struct {
	SellerID      string
	Description   string
	StartPrice    int64
	BuyoutPrice   *int64
	MinStep       int64
	DurationHours int
}

type AntiSniperConfig struct {
	Window        time.Duration
	Extension     time.Duration
	MaxExtensions int
}

// AuctionManager owns the lifecycle around the bidding core: draft creation,
// publish, the moderation-driven freeze/unfreeze and bid-removal entry
// points, and the read view.
type AuctionManager struct {
	store      domain.AuctionStore
	notifier   domain.NotificationChannel
	antiSniper AntiSniperConfig
	log        logger.Logger
	now        func() time.Time
}

func NewAuctionManager(
	store domain.AuctionStore,
	notifier domain.NotificationChannel,
	antiSniper AntiSniperConfig,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		store:      store,
		notifier:   notifier,
		antiSniper: antiSniper,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the manager clock. Used in tests.
func (m *AuctionManager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *AuctionManager) CreateAuction(ctx context.Context, params CreateAuctionParams) (*domain.Auction, error) {
	if params.StartPrice < 1 {
		return nil, domain.NewValidationError(domain.ReasonBadPricing, "start price must be at least 1")
	}
	if params.MinStep < 1 {
		return nil, domain.NewValidationError(domain.ReasonBadPricing, "min step must be at least 1")
	}
	if params.BuyoutPrice != nil && *params.BuyoutPrice < params.StartPrice {
		return nil, domain.NewValidationError(domain.ReasonBadPricing, "buyout below start price")
	}
	if !allowedDurations[params.DurationHours] {
		return nil, domain.NewValidationError(domain.ReasonBadDuration,
			fmt.Sprintf("%dh not offered", params.DurationHours))
	}

	now := m.now()
	auction := &domain.Auction{
		ID:               utils.GenerateID("auction"),
		SellerID:         params.SellerID,
		Description:      params.Description,
		StartPrice:       params.StartPrice,
		BuyoutPrice:      params.BuyoutPrice,
		MinStep:          params.MinStep,
		DurationHours:    params.DurationHours,
		AntiSniperWindow: m.antiSniper.Window,
		AntiSniperExtend: m.antiSniper.Extension,
		MaxExtensions:    m.antiSniper.MaxExtensions,
		Status:           domain.AuctionDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.store.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	m.log.Info("Auction created", "auction_id", auction.ID, "seller_id", auction.SellerID)
	return auction, nil
}

// Publish activates a draft. The deadline rounds up to the next full hour
// past the configured duration so posts show clean finish times.
func (m *AuctionManager) Publish(ctx context.Context, auctionID string) (*domain.Auction, error) {
	tx, err := m.store.BeginExclusive(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.log.Error("Rollback failed", "auction_id", auctionID, "error", rbErr)
			}
		}
	}()

	auction := tx.Auction()
	now := m.now()
	if err := auction.Transition(domain.AuctionActive, now); err != nil {
		return nil, err
	}
	auction.EndAt = CeilToNextHour(now.Add(time.Duration(auction.DurationHours) * time.Hour))

	if err := tx.UpdateAuction(ctx, auction); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	m.log.Info("Auction published", "auction_id", auction.ID, "end_at", auction.EndAt)
	m.pushUpdate(ctx, auction.ID)
	return auction, nil
}

// Freeze takes an active auction out of bidding and out of the finalization
// scan. The decision is the moderation collaborator's; this core only
// enforces the transition.
func (m *AuctionManager) Freeze(ctx context.Context, auctionID string) error {
	return m.transition(ctx, auctionID, domain.AuctionFrozen)
}

// Unfreeze returns a frozen auction to bidding. Any clock compensation for
// the frozen period is applied by the moderation flow before this call.
func (m *AuctionManager) Unfreeze(ctx context.Context, auctionID string) error {
	return m.transition(ctx, auctionID, domain.AuctionActive)
}

func (m *AuctionManager) transition(ctx context.Context, auctionID string, to domain.AuctionStatus) error {
	tx, err := m.store.BeginExclusive(ctx, auctionID)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.log.Error("Rollback failed", "auction_id", auctionID, "error", rbErr)
			}
		}
	}()

	auction := tx.Auction()
	if err := auction.Transition(to, m.now()); err != nil {
		return err
	}
	if err := tx.UpdateAuction(ctx, auction); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	m.log.Info("Auction status changed", "auction_id", auctionID, "status", to.String())
	m.pushUpdate(ctx, auctionID)
	return nil
}

// RemoveBid soft-removes a bid on behalf of moderation. The bid row stays;
// top-bid and winner computation exclude it from here on.
func (m *AuctionManager) RemoveBid(ctx context.Context, auctionID, bidID, removedBy, reason string) error {
	tx, err := m.store.BeginExclusive(ctx, auctionID)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.log.Error("Rollback failed", "auction_id", auctionID, "error", rbErr)
			}
		}
	}()

	removed, err := tx.RemoveBid(ctx, bidID, removedBy, reason)
	if err != nil {
		return err
	}
	if !removed {
		return domain.NewValidationError(domain.ReasonBidNotFound, bidID)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	m.log.Info("Bid removed", "auction_id", auctionID, "bid_id", bidID, "removed_by", removedBy)
	m.pushUpdate(ctx, auctionID)
	return nil
}

func (m *AuctionManager) GetView(ctx context.Context, auctionID string) (*domain.AuctionView, error) {
	return LoadAuctionView(ctx, m.store, auctionID)
}

func (m *AuctionManager) pushUpdate(ctx context.Context, auctionID string) {
	view, err := LoadAuctionView(ctx, m.store, auctionID)
	if err != nil {
		m.log.Error("Failed to load view for post update", "auction_id", auctionID, "error", err)
		return
	}
	if err := m.notifier.PostUpdate(ctx, auctionID, view); err != nil {
		m.log.Error("Failed to push post update", "auction_id", auctionID, "error", err)
	}
}

// CeilToNextHour rounds up to the next full hour; an exact hour is
// returned unchanged.
func CeilToNextHour(t time.Time) time.Time {
	rounded := t.Truncate(time.Hour)
	if rounded.Equal(t) {
		return rounded
	}
	return rounded.Add(time.Hour)
}
