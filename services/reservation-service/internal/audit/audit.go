// Package audit keeps the activity log of reservation transitions: who moved which
// reservation from what status to what, and when.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

const (
	ActionCreated   = "created"
	ActionConfirmed = "confirmed"
	ActionCancelled = "cancelled"
	ActionExpired   = "expired"

	// ActorCustomer books and may cancel; ActorSystem expires lapsed holds.
	ActorCustomer = "customer"
	ActorSystem   = "system"

	DefaultLimit = 50
	MaxLimit     = 200
)

type Entry struct {
	ID            int64
	ReservationID string
	FieldID       string
	Action        string
	Actor         string
	FromStatus    model.Status
	ToStatus      model.Status
	Detail        string
	OccurredAt    time.Time
}

// Filter narrows the activity log. From is inclusive, To exclusive.
type Filter struct {
	Action        string
	Actor         string
	ReservationID string
	From          time.Time
	To            time.Time
	Limit         int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return min(f.Limit, MaxLimit)
}

func (f Filter) matches(e Entry) bool {
	switch {
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.Actor != "" && e.Actor != f.Actor:
		return false
	case f.ReservationID != "" && e.ReservationID != f.ReservationID:
		return false
	case !f.From.IsZero() && e.OccurredAt.Before(f.From):
		return false
	case !f.To.IsZero() && !e.OccurredAt.Before(f.To):
		return false
	}
	return true
}

func ParseAction(raw string) (string, error) {
	switch a := strings.ToLower(strings.TrimSpace(raw)); a {
	case ActionCreated, ActionConfirmed, ActionCancelled, ActionExpired:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", model.ErrInvalidInput, raw)
	}
}

// ForTransition describes r, now in its new status, having left from. from is empty
// for a new reservation.
func ForTransition(r model.Reservation, from model.Status, actor string) Entry {
	e := Entry{
		ReservationID: r.ID,
		FieldID:       r.FieldID,
		Actor:         actor,
		FromStatus:    from,
		ToStatus:      r.Status,
		OccurredAt:    r.UpdatedAt,
	}
	switch r.Status {
	case model.StatusConfirmed:
		e.Action, e.Detail = ActionConfirmed, r.PaymentReference
	case model.StatusCancelled:
		e.Action, e.Detail = ActionCancelled, r.CancelReason
	case model.StatusExpired:
		e.Action = ActionExpired
	default:
		e.Action = ActionCreated
	}
	return e
}
