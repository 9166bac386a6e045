package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"auction-core/internal/domain"
)

// writeError maps domain errors onto the HTTP surface. Reject reasons stay
// machine-readable so clients can map them to display strings directly.
func writeError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error":  "rejected",
			"reason": string(ve.Reason),
			"detail": ve.Detail,
		})
	}

	var se *domain.StateError
	if errors.As(err, &se) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  "invalid_state",
			"status": se.Status.String(),
		})
	}

	var cre *domain.ConfirmationRequiredError
	if errors.As(err, &cre) {
		return c.JSON(http.StatusPreconditionRequired, map[string]interface{}{
			"error":              "confirmation_required",
			"confirmation_token": cre.Token.Token,
			"expires_at":         cre.Token.ExpiresAt.Format(time.RFC3339),
		})
	}

	var cee *domain.ConfirmationExpiredError
	if errors.As(err, &cee) {
		return c.JSON(http.StatusGone, map[string]string{
			"error": "confirmation_expired",
		})
	}

	if errors.Is(err, domain.ErrAuctionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "auction not found"})
	}

	if domain.IsConflict(err) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "conflict, retry later",
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
