package storage

import (
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// recordChange copies the details that travel with a transition onto r.
func recordChange(r *model.Reservation, c model.StatusChange) {
	switch c.To {
	case model.StatusConfirmed:
		if c.PaymentReference != "" {
			r.PaymentReference = c.PaymentReference
		}
	case model.StatusCancelled:
		r.CancelReason = c.Reason
		r.CancelledBy = c.Actor
	}
}
