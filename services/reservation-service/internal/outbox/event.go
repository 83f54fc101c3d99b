package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateReservation = "reservation"

	ReservationCreated   = "reservation.created.v1"
	ReservationConfirmed = "reservation.confirmed.v1"
	ReservationCancelled = "reservation.cancelled.v1"
	ReservationExpired   = "reservation.expired.v1"
)

// TypeForStatus maps a reservation's new status to the event announcing it.
func TypeForStatus(s model.Status) string {
	switch s {
	case model.StatusConfirmed:
		return ReservationConfirmed
	case model.StatusCancelled:
		return ReservationCancelled
	case model.StatusExpired:
		return ReservationExpired
	default:
		return ReservationCreated
	}
}

type ReservationPayload struct {
	ReservationID    string `json:"reservation_id"`
	FieldID          string `json:"field_id"`
	Date             string `json:"date"`
	StartMinute      int    `json:"start_minute"`
	EndMinute        int    `json:"end_minute"`
	Status           string `json:"status"`
	TotalPrice       int64  `json:"total_price"`
	CustomerName     string `json:"customer_name"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerEmail    string `json:"customer_email,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	CancelReason     string `json:"cancel_reason,omitempty"`
	CancelledBy      string `json:"cancelled_by,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}

// ReservationEvent builds the event for r's current status.
func ReservationEvent(r model.Reservation) (Event, error) {
	payload, err := json.Marshal(ReservationPayload{
		ReservationID:    r.ID,
		FieldID:          r.FieldID,
		Date:             model.FormatDate(r.Date),
		StartMinute:      r.Interval.Start,
		EndMinute:        r.Interval.End,
		Status:           string(r.Status),
		TotalPrice:       r.TotalPrice,
		CustomerName:     r.Customer.Name,
		CustomerPhone:    r.Customer.Phone,
		CustomerEmail:    r.Customer.Email,
		PaymentReference: r.PaymentReference,
		CancelReason:     r.CancelReason,
		CancelledBy:      r.CancelledBy,
		OccurredAt:       r.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateReservation,
		AggregateID:   r.ID,
		EventType:     TypeForStatus(r.Status),
		Payload:       payload,
	}, nil
}
