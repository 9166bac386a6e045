package services

import (
	"time"

	"auction-core/internal/domain"
)

// ExtendDeadline applies the anti-sniper policy to an auction that just
// accepted a bid. When the bid lands inside the pre-expiry window and the
// extension cap has not been reached, the deadline moves by the configured
// extension and the counter increments. The new deadline is computed from
// the current end time, not from now, so repeated late bids cannot compound
// past the cap. Returns whether an extension was applied.
//
// Pure over the auction value; callers invoke it inside the same
// transaction that commits the bid.
func ExtendDeadline(a *domain.Auction, now time.Time) bool {
	if a.AntiSniperWindow <= 0 || a.AntiSniperExtend <= 0 {
		return false
	}
	if a.ExtensionCount >= a.MaxExtensions {
		return false
	}
	if a.EndAt.Sub(now) > a.AntiSniperWindow {
		return false
	}
	a.EndAt = a.EndAt.Add(a.AntiSniperExtend)
	a.ExtensionCount++
	return true
}
