package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"auction-core/internal/domain"
	"auction-core/internal/services"
	"auction-core/pkg/logger"
)

type BidHandler struct {
	bidService *services.BidService
	log        logger.Logger
}

type PlaceBidRequest struct {
	BidderID          string `json:"bidder_id"`
	Action            string `json:"action"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

type BuyoutRequest struct {
	BidderID          string `json:"bidder_id"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

type BidResponse struct {
	BidID     string    `json:"bid_id"`
	NewPrice  int64     `json:"new_price"`
	EndAt     time.Time `json:"end_at"`
	Extended  bool      `json:"extended"`
	BoughtOut bool      `json:"bought_out"`
}

func NewBidHandler(bidService *services.BidService, log logger.Logger) *BidHandler {
	return &BidHandler{
		bidService: bidService,
		log:        log,
	}
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	auctionID := c.Param("id")

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.BidderID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bidder_id required"})
	}

	action, ok := domain.ParseBidAction(req.Action)
	if !ok || action == domain.Buyout {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown action"})
	}

	result, err := h.bidService.SubmitBid(c.Request().Context(), services.SubmitBidRequest{
		AuctionID:         auctionID,
		BidderID:          req.BidderID,
		Action:            action,
		ConfirmationToken: req.ConfirmationToken,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.log.Info("Bid not accepted", "auction_id", auctionID,
			"bidder_id", req.BidderID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, toBidResponse(result))
}

func (h *BidHandler) Buyout(c echo.Context) error {
	auctionID := c.Param("id")

	var req BuyoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.BidderID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bidder_id required"})
	}

	result, err := h.bidService.SubmitBuyout(c.Request().Context(), services.SubmitBuyoutRequest{
		AuctionID:         auctionID,
		BidderID:          req.BidderID,
		ConfirmationToken: req.ConfirmationToken,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.log.Info("Buyout not accepted", "auction_id", auctionID,
			"bidder_id", req.BidderID, "error", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, toBidResponse(result))
}

func toBidResponse(result *services.BidResult) BidResponse {
	return BidResponse{
		BidID:     result.Bid.ID,
		NewPrice:  result.NewPrice,
		EndAt:     result.EndAt,
		Extended:  result.Extended,
		BoughtOut: result.BoughtOut,
	}
}
