// Package lifecycle owns the reservation state machine:
//
//	pending   -> confirmed  (payment verified)
//	pending   -> expired    (ExpiryWindow elapsed without confirmation)
//	pending   -> cancelled
//	confirmed -> cancelled
//
// Expiry is a predicate over (status, createdAt, now). Readers apply it lazily, so a
// pending reservation past its window is treated as expired whether or not the
// sweep has persisted that yet.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

// ExpiryWindow is how long a pending reservation holds its slot awaiting payment.
const ExpiryWindow = 15 * time.Minute

func IsExpired(r model.Reservation, now time.Time) bool {
	return r.Status == model.StatusPending && now.Sub(r.CreatedAt) > ExpiryWindow
}

// ExpiresAt is the last instant at which r still holds its slot. Zero for non-pending.
func ExpiresAt(r model.Reservation) time.Time {
	if r.Status != model.StatusPending {
		return time.Time{}
	}
	return r.CreatedAt.Add(ExpiryWindow)
}

// Effective is the status r has at now once lazy expiry is applied.
func Effective(r model.Reservation, now time.Time) model.Status {
	if IsExpired(r, now) {
		return model.StatusExpired
	}
	return r.Status
}

// Blocks reports whether r occupies its interval at now.
func Blocks(r model.Reservation, now time.Time) bool {
	switch Effective(r, now) {
	case model.StatusPending, model.StatusConfirmed:
		return true
	default:
		return false
	}
}

// Apply returns r with its effective status materialised, reporting whether anything changed.
func Apply(r model.Reservation, now time.Time) (model.Reservation, bool) {
	if !IsExpired(r, now) {
		return r, false
	}
	at := now
	r.Status = model.StatusExpired
	r.ExpiredAt = &at
	r.UpdatedAt = now
	return r, true
}

func allowed(from, to model.Status) bool {
	switch from {
	case model.StatusPending:
		return to == model.StatusConfirmed || to == model.StatusCancelled || to == model.StatusExpired
	case model.StatusConfirmed:
		return to == model.StatusCancelled
	default:
		return false
	}
}

// Next validates moving r to `to` at now and returns the updated reservation.
// The check runs against the effective status: confirming or cancelling a pending
// reservation whose window has lapsed fails with ErrInvalidTransition.
func Next(r model.Reservation, to model.Status, now time.Time) (model.Reservation, error) {
	from := Effective(r, now)
	if !allowed(from, to) {
		return r, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}
	at := now
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case model.StatusConfirmed:
		r.ConfirmedAt = &at
	case model.StatusCancelled:
		r.CancelledAt = &at
	case model.StatusExpired:
		r.ExpiredAt = &at
	}
	return r, nil
}
