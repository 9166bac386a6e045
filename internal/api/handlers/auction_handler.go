package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"auction-core/internal/domain"
	"auction-core/internal/services"
	"auction-core/pkg/logger"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	log            logger.Logger
}

type CreateAuctionRequest struct {
	SellerID      string `json:"seller_id"`
	Description   string `json:"description"`
	StartPrice    int64  `json:"start_price"`
	BuyoutPrice   *int64 `json:"buyout_price,omitempty"`
	MinStep       int64  `json:"min_step"`
	DurationHours int    `json:"duration_hours"`
}

type AuctionResponse struct {
	AuctionID     string     `json:"auction_id"`
	SellerID      string     `json:"seller_id"`
	Description   string     `json:"description"`
	StartPrice    int64      `json:"start_price"`
	BuyoutPrice   *int64     `json:"buyout_price,omitempty"`
	MinStep       int64      `json:"min_step"`
	DurationHours int        `json:"duration_hours"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Status        string     `json:"status"`
	WinnerID      *string    `json:"winner_id,omitempty"`
}

type RemoveBidRequest struct {
	RemovedBy string `json:"removed_by"`
	Reason    string `json:"reason"`
}

type TopBidResponse struct {
	BidID     string    `json:"bid_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type AuctionViewResponse struct {
	Auction        AuctionResponse  `json:"auction"`
	TopBids        []TopBidResponse `json:"top_bids"`
	CurrentPrice   int64            `json:"current_price"`
	MinimumNextBid int64            `json:"minimum_next_bid"`
}

func NewAuctionHandler(auctionManager *services.AuctionManager, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		log:            log,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if req.SellerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "seller_id required"})
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), services.CreateAuctionParams{
		SellerID:      req.SellerID,
		Description:   req.Description,
		StartPrice:    req.StartPrice,
		BuyoutPrice:   req.BuyoutPrice,
		MinStep:       req.MinStep,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		h.log.Error("Failed to create auction", "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) PublishAuction(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.auctionManager.Publish(c.Request().Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to publish auction", "auction_id", auctionID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) FreezeAuction(c echo.Context) error {
	auctionID := c.Param("id")

	if err := h.auctionManager.Freeze(c.Request().Context(), auctionID); err != nil {
		h.log.Error("Failed to freeze auction", "auction_id", auctionID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "frozen"})
}

func (h *AuctionHandler) UnfreezeAuction(c echo.Context) error {
	auctionID := c.Param("id")

	if err := h.auctionManager.Unfreeze(c.Request().Context(), auctionID); err != nil {
		h.log.Error("Failed to unfreeze auction", "auction_id", auctionID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "active"})
}

func (h *AuctionHandler) RemoveBid(c echo.Context) error {
	auctionID := c.Param("id")
	bidID := c.Param("bidID")

	var req RemoveBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.RemovedBy == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "removed_by required"})
	}

	if err := h.auctionManager.RemoveBid(c.Request().Context(), auctionID, bidID,
		req.RemovedBy, req.Reason); err != nil {
		h.log.Error("Failed to remove bid", "auction_id", auctionID, "bid_id", bidID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID := c.Param("id")

	view, err := h.auctionManager.GetView(c.Request().Context(), auctionID)
	if err != nil {
		return writeError(c, err)
	}

	resp := AuctionViewResponse{
		Auction:        toAuctionResponse(view.Auction),
		TopBids:        make([]TopBidResponse, 0, len(view.TopBids)),
		CurrentPrice:   view.CurrentPrice,
		MinimumNextBid: view.MinimumNextBid,
	}
	for _, tb := range view.TopBids {
		resp.TopBids = append(resp.TopBids, TopBidResponse{
			BidID:     tb.BidID,
			BidderID:  tb.BidderID,
			Amount:    tb.Amount,
			CreatedAt: tb.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:     a.ID,
		SellerID:      a.SellerID,
		Description:   a.Description,
		StartPrice:    a.StartPrice,
		BuyoutPrice:   a.BuyoutPrice,
		MinStep:       a.MinStep,
		DurationHours: a.DurationHours,
		Status:        a.Status.String(),
		WinnerID:      a.WinnerID,
	}
	if !a.EndAt.IsZero() {
		endAt := a.EndAt
		resp.EndAt = &endAt
	}
	return resp
}
