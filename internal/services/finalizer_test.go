package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type finalizerEnv struct {
	store    *memStore
	notifier *fakeNotifier
	events   *fakePublisher
	leader   *fakeLeader
	fin      *Finalizer
}

func newFinalizerEnv(t *testing.T) *finalizerEnv {
	t.Helper()
	env := &finalizerEnv{
		store:    newMemStore(),
		notifier: newFakeNotifier(),
		events:   &fakePublisher{},
		leader:   &fakeLeader{leader: true},
	}
	env.fin = NewFinalizer(env.store, env.notifier, env.events, env.leader,
		"instance_1", 10*time.Second, logger.NewNop())
	env.fin.SetClock(func() time.Time { return testNow })
	return env
}

func (env *finalizerEnv) seedExpired(id string, bids ...*domain.Bid) {
	a := activeAuction()
	a.ID = id
	a.EndAt = testNow.Add(-time.Minute)
	env.store.auctions[id] = a
	for _, b := range bids {
		b.AuctionID = id
		env.store.bids[id] = append(env.store.bids[id], b)
	}
}

func TestFinalizeAssignsHighestBidder(t *testing.T) {
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1",
		&domain.Bid{ID: "bid_1", BidderID: "bidder_a", Amount: 110, CreatedAt: testNow.Add(-3 * time.Minute)},
		&domain.Bid{ID: "bid_2", BidderID: "bidder_b", Amount: 120, CreatedAt: testNow.Add(-2 * time.Minute)},
	)

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "bidder_b", *stored.WinnerID)

	require.Len(t, env.events.ofType(domain.EventAuctionEnded), 1)
	assert.NotEmpty(t, env.notifier.messagesFor("seller_1"))
	assert.NotEmpty(t, env.notifier.messagesFor("bidder_b"))
	assert.Empty(t, env.notifier.messagesFor("bidder_a"))
}

func TestFinalizeWithoutBidsEndsWithNoWinner(t *testing.T) {
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1")

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, stored.Status)
	assert.Nil(t, stored.WinnerID)
	assert.NotEmpty(t, env.notifier.messagesFor("seller_1"))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1",
		&domain.Bid{ID: "bid_1", BidderID: "bidder_a", Amount: 110, CreatedAt: testNow.Add(-time.Minute)},
	)

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))
	endedEvents := len(env.events.ofType(domain.EventAuctionEnded))
	winnerMsgs := len(env.notifier.messagesFor("bidder_a"))

	// Second pass finds the auction already resolved and does nothing.
	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	assert.Len(t, env.events.ofType(domain.EventAuctionEnded), endedEvents)
	assert.Len(t, env.notifier.messagesFor("bidder_a"), winnerMsgs)
}

func TestFinalizeExcludesRemovedBids(t *testing.T) {
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1",
		&domain.Bid{ID: "bid_1", BidderID: "bidder_a", Amount: 130, IsRemoved: true, CreatedAt: testNow.Add(-3 * time.Minute)},
		&domain.Bid{ID: "bid_2", BidderID: "bidder_b", Amount: 110, CreatedAt: testNow.Add(-2 * time.Minute)},
	)

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "bidder_b", *stored.WinnerID)
}

func TestFinalizeSkipsFrozenAuction(t *testing.T) {
	env := newFinalizerEnv(t)
	a := activeAuction()
	a.EndAt = testNow.Add(-time.Minute)
	a.Status = domain.AuctionFrozen
	env.store.auctions[a.ID] = a

	env.fin.Tick(context.Background())

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionFrozen, stored.Status)
	assert.Empty(t, env.events.ofType(domain.EventAuctionEnded))
}

func TestFinalizeSkipsFutureDeadline(t *testing.T) {
	env := newFinalizerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, stored.Status)
}

func TestTickDoesNothingWhenNotLeader(t *testing.T) {
	env := newFinalizerEnv(t)
	env.leader.leader = false
	env.seedExpired("auction_1")

	env.fin.Tick(context.Background())

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, stored.Status)
}

func TestTickIsolatesPerAuctionFailures(t *testing.T) {
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1")
	env.seedExpired("auction_2")
	env.store.beginErr["auction_1"] = errors.New("connection reset")

	env.fin.Tick(context.Background())

	first, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, first.Status)

	second, err := env.store.GetAuction(context.Background(), "auction_2")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, second.Status)
}

func TestBuyoutWinsRaceAgainstScheduler(t *testing.T) {
	// The scheduler loses its claim when a buyout resolved the auction
	// between the scan and the claim. No winner reassignment happens.
	env := newFinalizerEnv(t)
	env.seedExpired("auction_1")
	buyer := "bidder_a"
	env.store.auctions["auction_1"].Status = domain.AuctionBoughtOut
	env.store.auctions["auction_1"].WinnerID = &buyer

	require.NoError(t, env.fin.FinalizeOne(context.Background(), "auction_1"))

	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionBoughtOut, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "bidder_a", *stored.WinnerID)
	assert.Empty(t, env.events.ofType(domain.EventAuctionEnded))
}
