package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type managerEnv struct {
	store    *memStore
	notifier *fakeNotifier
	mgr      *AuctionManager
}

func newManagerEnv(t *testing.T) *managerEnv {
	t.Helper()
	env := &managerEnv{
		store:    newMemStore(),
		notifier: newFakeNotifier(),
	}
	env.mgr = NewAuctionManager(env.store, env.notifier, AntiSniperConfig{
		Window:        2 * time.Minute,
		Extension:     3 * time.Minute,
		MaxExtensions: 3,
	}, logger.NewNop())
	env.mgr.SetClock(func() time.Time { return testNow })
	return env
}

func validParams() CreateAuctionParams {
	return CreateAuctionParams{
		SellerID:      "seller_1",
		Description:   "vintage synthesizer",
		StartPrice:    100,
		MinStep:       10,
		DurationHours: 6,
	}
}

func TestCreateAuctionStartsAsDraft(t *testing.T) {
	env := newManagerEnv(t)

	auction, err := env.mgr.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, domain.AuctionDraft, auction.Status)
	assert.Equal(t, 2*time.Minute, auction.AntiSniperWindow)
	assert.True(t, auction.EndAt.IsZero())

	stored, err := env.store.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionDraft, stored.Status)
}

func TestCreateAuctionValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateAuctionParams)
		reason domain.RejectReason
	}{
		{"zero start price", func(p *CreateAuctionParams) { p.StartPrice = 0 }, domain.ReasonBadPricing},
		{"zero min step", func(p *CreateAuctionParams) { p.MinStep = 0 }, domain.ReasonBadPricing},
		{"buyout below start", func(p *CreateAuctionParams) { p.BuyoutPrice = i64(50) }, domain.ReasonBadPricing},
		{"odd duration", func(p *CreateAuctionParams) { p.DurationHours = 7 }, domain.ReasonBadDuration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newManagerEnv(t)
			params := validParams()
			tc.mutate(&params)

			_, err := env.mgr.CreateAuction(context.Background(), params)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.reason, ve.Reason)
		})
	}
}

func TestPublishActivatesAndSetsDeadline(t *testing.T) {
	env := newManagerEnv(t)
	created, err := env.mgr.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)

	published, err := env.mgr.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.AuctionActive, published.Status)
	// testNow is 12:00:00 exactly, so the deadline is a clean 18:00.
	assert.Equal(t, testNow.Add(6*time.Hour), published.EndAt)
	assert.Contains(t, env.notifier.updates, created.ID)
}

func TestPublishRoundsDeadlineUpToFullHour(t *testing.T) {
	env := newManagerEnv(t)
	created, err := env.mgr.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)

	env.mgr.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 25, 13, 0, time.UTC)
	})

	published, err := env.mgr.Publish(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC), published.EndAt)
}

func TestPublishTwiceRejected(t *testing.T) {
	env := newManagerEnv(t)
	created, err := env.mgr.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)

	_, err = env.mgr.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = env.mgr.Publish(context.Background(), created.ID)
	var se *domain.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.AuctionActive, se.Status)
}

func TestFreezeAndUnfreeze(t *testing.T) {
	env := newManagerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()

	require.NoError(t, env.mgr.Freeze(context.Background(), "auction_1"))
	stored, err := env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionFrozen, stored.Status)

	require.NoError(t, env.mgr.Unfreeze(context.Background(), "auction_1"))
	stored, err = env.store.GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, stored.Status)
}

func TestFreezeDraftRejected(t *testing.T) {
	env := newManagerEnv(t)
	a := activeAuction()
	a.Status = domain.AuctionDraft
	env.store.auctions["auction_1"] = a

	err := env.mgr.Freeze(context.Background(), "auction_1")
	var se *domain.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.AuctionDraft, se.Status)
}

func TestRemoveBidMarksAndKeepsRow(t *testing.T) {
	env := newManagerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()
	env.store.bids["auction_1"] = []*domain.Bid{
		{ID: "bid_1", AuctionID: "auction_1", BidderID: "bidder_a", Amount: 110, CreatedAt: testNow},
	}

	err := env.mgr.RemoveBid(context.Background(), "auction_1", "bid_1", "moderator_1", "fraud signal")
	require.NoError(t, err)

	require.Len(t, env.store.bids["auction_1"], 1)
	removed := env.store.bids["auction_1"][0]
	assert.True(t, removed.IsRemoved)
	require.NotNil(t, removed.RemovedByUserID)
	assert.Equal(t, "moderator_1", *removed.RemovedByUserID)

	top, err := env.store.TopBids(context.Background(), "auction_1", 3)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestRemoveBidUnknownID(t *testing.T) {
	env := newManagerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()

	err := env.mgr.RemoveBid(context.Background(), "auction_1", "bid_404", "moderator_1", "")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ReasonBidNotFound, ve.Reason)
}

func TestGetViewComputesPrices(t *testing.T) {
	env := newManagerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()
	env.store.bids["auction_1"] = []*domain.Bid{
		{ID: "bid_1", AuctionID: "auction_1", BidderID: "bidder_a", Amount: 110, CreatedAt: testNow.Add(-2 * time.Minute)},
		{ID: "bid_2", AuctionID: "auction_1", BidderID: "bidder_b", Amount: 120, CreatedAt: testNow.Add(-time.Minute)},
	}

	view, err := env.mgr.GetView(context.Background(), "auction_1")
	require.NoError(t, err)

	assert.Equal(t, int64(120), view.CurrentPrice)
	assert.Equal(t, int64(130), view.MinimumNextBid)
	require.Len(t, view.TopBids, 2)
	assert.Equal(t, "bidder_b", view.TopBids[0].BidderID)
}

func TestGetViewWithoutBidsUsesStartPrice(t *testing.T) {
	env := newManagerEnv(t)
	env.store.auctions["auction_1"] = activeAuction()

	view, err := env.mgr.GetView(context.Background(), "auction_1")
	require.NoError(t, err)

	assert.Equal(t, int64(100), view.CurrentPrice)
	assert.Equal(t, int64(110), view.MinimumNextBid)
}

func TestCeilToNextHour(t *testing.T) {
	exact := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, exact, CeilToNextHour(exact))

	assert.Equal(t,
		time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC),
		CeilToNextHour(time.Date(2025, 6, 1, 18, 0, 0, 1, time.UTC)))

	assert.Equal(t,
		time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC),
		CeilToNextHour(time.Date(2025, 6, 1, 18, 59, 59, 0, time.UTC)))
}
