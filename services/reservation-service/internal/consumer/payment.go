package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	TopicPaymentVerified = "payment.verified.v1"

	// ActorPaymentEvent is recorded as the confirming actor.
	ActorPaymentEvent = "payment-event"
)

type PaymentVerified struct {
	ReservationID    string `json:"reservation_id"`
	PaymentReference string `json:"payment_reference"`
}

type Confirmer interface {
	Confirm(ctx context.Context, id, paymentReference, actor string) (model.Reservation, error)
}

// PaymentVerifiedHandler confirms the reservation named by a payment.verified event.
// Events for unknown, lapsed or already settled reservations are logged and dropped;
// malformed events fail permanently.
func PaymentVerifiedHandler(svc Confirmer, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt PaymentVerified
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", TopicPaymentVerified, err))
		}
		if evt.ReservationID == "" {
			return Permanent(fmt.Errorf("decode %s: reservation_id is required", TopicPaymentVerified))
		}

		_, err := svc.Confirm(ctx, evt.ReservationID, evt.PaymentReference, ActorPaymentEvent)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidTransition):
			logger.Warn("payment not applied", "reservation_id", evt.ReservationID, "err", err)
			return nil
		default:
			return err
		}
	}
}
