package services

import (
	"context"

	"auction-core/internal/domain"
)

// LoadAuctionView assembles the read model used for rendering posts: the
// auction with its top 3 non-removed bids and the derived prices.
func LoadAuctionView(ctx context.Context, store domain.AuctionStore, auctionID string) (*domain.AuctionView, error) {
	auction, err := store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	top, err := store.TopBids(ctx, auctionID, 3)
	if err != nil {
		return nil, err
	}

	currentPrice := auction.StartPrice
	if len(top) > 0 {
		currentPrice = top[0].Amount
	}

	return &domain.AuctionView{
		Auction:        auction,
		TopBids:        top,
		CurrentPrice:   currentPrice,
		MinimumNextBid: currentPrice + auction.MinStep,
	}, nil
}
