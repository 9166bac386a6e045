package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

// Finalizer is the recurring background process that detects expired active
// auctions and resolves each exactly once. Concurrent instances are safe:
// the guarded claim in the store lets at most one of them win per auction,
// and the leader gate keeps redundant instances from scanning at all.
type Finalizer struct {
	store    domain.AuctionStore
	notifier domain.NotificationChannel
	events   domain.EventPublisher
	leader   domain.LeaderElection
	log      logger.Logger

	instanceID string
	interval   time.Duration
	cron       *cron.Cron
	now        func() time.Time

	mu       sync.Mutex
	stopping bool
}

func NewFinalizer(
	store domain.AuctionStore,
	notifier domain.NotificationChannel,
	events domain.EventPublisher,
	leader domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) *Finalizer {
	return &Finalizer{
		store:      store,
		notifier:   notifier,
		events:     events,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		cron:       cron.New(cron.WithSeconds()),
		now:        time.Now,
		log:        log,
	}
}

// SetClock overrides the finalizer clock. Used in tests.
func (f *Finalizer) SetClock(now func() time.Time) {
	f.now = now
}

func (f *Finalizer) Start(ctx context.Context) error {
	f.log.Info("Starting finalization scheduler", "interval", f.interval)

	_, err := f.cron.AddFunc(fmt.Sprintf("@every %ds", int(f.interval.Seconds())), func() {
		f.Tick(ctx)
	})
	if err != nil {
		return err
	}

	f.cron.Start()
	return nil
}

// Stop requests shutdown and blocks until any in-flight tick has drained.
// No new claims start after Stop is called.
func (f *Finalizer) Stop() error {
	f.log.Info("Stopping finalization scheduler")
	f.mu.Lock()
	f.stopping = true
	f.mu.Unlock()
	<-f.cron.Stop().Done()
	return nil
}

// Tick runs one scan pass. Exported so tests and operators can drive the
// scheduler without the cron loop.
func (f *Finalizer) Tick(ctx context.Context) {
	if f.leader != nil {
		isLeader, err := f.leader.IsLeader(ctx, f.instanceID)
		if err != nil {
			f.log.Error("Leader check failed", "error", err)
			return
		}
		if !isLeader {
			return
		}
	}

	now := f.now()
	expired, err := f.store.ListExpired(ctx, now)
	if err != nil {
		f.log.Error("Failed to scan for expired auctions", "error", err)
		return
	}

	for _, auctionID := range expired {
		if f.shuttingDown() {
			f.log.Info("Shutdown requested, not claiming further auctions")
			return
		}
		if err := f.FinalizeOne(ctx, auctionID); err != nil {
			// One auction's failure never blocks the rest; its status is
			// still ACTIVE so the next tick retries it.
			f.log.Error("Failed to finalize auction", "auction_id", auctionID, "error", err)
		}
	}
}

// FinalizeOne claims and resolves a single expired auction in its own
// transaction. A lost claim (already ENDED or bought out) is an idempotent
// no-op: no error, no notifications, no winner reassignment.
func (f *Finalizer) FinalizeOne(ctx context.Context, auctionID string) error {
	now := f.now()

	tx, err := f.store.BeginExclusive(ctx, auctionID)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				f.log.Error("Rollback failed", "auction_id", auctionID, "error", rbErr)
			}
		}
	}()

	auction := tx.Auction()
	if auction.Status != domain.AuctionActive || auction.EndAt.After(now) {
		// Resolved by a concurrent scheduler, a buyout, or frozen/extended
		// since the scan.
		return nil
	}

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
	committed = true

	if !claimed {
		return nil
	}

	f.log.Info("Auction finalized", "auction_id", auctionID, "has_winner", winnerID != nil)
	f.dispatchEnded(ctx, auction, winnerID, now)
	return nil
}

// dispatchEnded runs after the terminal commit. Failures are logged and
// never re-open the auction.
func (f *Finalizer) dispatchEnded(ctx context.Context, auction *domain.Auction, winnerID *string, now time.Time) {
	if view, err := LoadAuctionView(ctx, f.store, auction.ID); err != nil {
		f.log.Error("Failed to load view for final post update", "auction_id", auction.ID, "error", err)
	} else if err := f.notifier.PostUpdate(ctx, auction.ID, view); err != nil {
		f.log.Error("Failed to push final post update", "auction_id", auction.ID, "error", err)
	}

	seller := map[string]interface{}{
		"type":       "auction_finished",
		"outcome":    "ended",
		"auction_id": auction.ID,
	}
	if err := f.notifier.NotifyUser(ctx, auction.SellerID, seller); err != nil {
		f.log.Error("Failed to notify seller", "user_id", auction.SellerID, "error", err)
	}
	if winnerID != nil {
		won := map[string]interface{}{
			"type":       "auction_won",
			"outcome":    "ended",
			"auction_id": auction.ID,
		}
		if err := f.notifier.NotifyUser(ctx, *winnerID, won); err != nil {
			f.log.Error("Failed to notify winner", "user_id", *winnerID, "error", err)
		}
	}

	if err := f.events.PublishAuctionEvent(ctx, &domain.AuctionEvent{
		Type:      domain.EventAuctionEnded,
		AuctionID: auction.ID,
		Timestamp: now,
	}); err != nil {
		f.log.Error("Failed to publish auction ended event", "auction_id", auction.ID, "error", err)
	}
}

func (f *Finalizer) shuttingDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopping
}
