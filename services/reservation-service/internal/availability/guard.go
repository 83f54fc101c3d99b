package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/lifecycle"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

// ReservationLister is the slice of the reservation store availability reads from.
type ReservationLister interface {
	ListReservations(ctx context.Context, fieldID string, date time.Time, statuses []model.Status) ([]model.Reservation, error)
}

// Conflicts returns the first reservation still blocking at now whose interval overlaps proposed.
func Conflicts(proposed model.Interval, existing []model.Reservation, now time.Time) (model.Reservation, bool) {
	for _, r := range existing {
		if !lifecycle.Blocks(r, now) {
			continue
		}
		if Overlaps(proposed, r.Interval) {
			return r, true
		}
	}
	return model.Reservation{}, false
}

// Guard re-checks a proposed interval against the live reservation set.
type Guard struct {
	store ReservationLister
	now   func() time.Time
}

func NewGuard(store ReservationLister, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, now: now}
}

// CheckConflict reports whether proposed overlaps a pending or confirmed reservation on
// fieldID/date. Lapsed pending reservations are ignored.
func (g *Guard) CheckConflict(ctx context.Context, fieldID string, date time.Time, proposed model.Interval) (bool, error) {
	existing, err := g.store.ListReservations(ctx, fieldID, date, model.BlockingStatuses)
	if err != nil {
		return false, err
	}
	_, conflict := Conflicts(proposed, existing, g.now())
	return conflict, nil
}
