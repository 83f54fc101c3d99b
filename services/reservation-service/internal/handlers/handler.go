package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/libs/httpx"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/booking"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/lifecycle"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

type ReservationHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewReservationHandler(svc *booking.Service, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, logger: logger}
}

// Routes holds the middleware applied to individual route groups.
type Routes struct {
	Admin httpx.Middleware // authentication for /api/v1/reservations*
	Book  httpx.Middleware // rate limiting for booking submission
}

func (h *ReservationHandler) Register(mux *http.ServeMux, routes Routes) {
	mux.Handle("/api/v1/public/fields", httpx.Methods(h.ListFields, http.MethodGet))
	mux.Handle("/api/v1/public/slots", httpx.Methods(h.Slots, http.MethodGet))
	mux.Handle("/api/v1/public/booked", httpx.Methods(h.Booked, http.MethodGet))
	mux.Handle("/api/v1/public/book", httpx.Chain(httpx.Methods(h.Book, http.MethodPost), routes.Book))
	mux.Handle("/api/v1/public/reservation", httpx.Methods(h.Get, http.MethodGet))
	mux.Handle("/api/v1/public/cancel", httpx.Methods(h.CustomerCancel, http.MethodPost))

	mux.Handle("/api/v1/reservations", httpx.Chain(httpx.Methods(h.List, http.MethodGet), routes.Admin))
	mux.Handle("/api/v1/reservations/confirm", httpx.Chain(httpx.Methods(h.Confirm, http.MethodPost), routes.Admin))
	mux.Handle("/api/v1/reservations/cancel", httpx.Chain(httpx.Methods(h.AdminCancel, http.MethodPost), routes.Admin))
	mux.Handle("/api/v1/reservations/logs", httpx.Chain(httpx.Methods(h.ActivityLogs, http.MethodGet), routes.Admin))
}

// writeServiceError maps domain errors onto HTTP statuses; anything else is a 500.
func (h *ReservationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrSlotUnavailable), errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, model.ErrOutOfHorizon), errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrInvalidDuration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, r, status, "internal error")
		return
	}
	httpx.WriteError(w, r, status, err.Error())
}

type fieldItem struct {
	FieldID      string `json:"field_id"`
	Name         string `json:"name"`
	Sport        string `json:"sport,omitempty"`
	PricePerHour int64  `json:"price_per_hour"`
	OpenTime     string `json:"open_time,omitempty"`
	CloseTime    string `json:"close_time,omitempty"`
}

type slotItem struct {
	Time            string  `json:"time"`
	Available       bool    `json:"available"`
	PriceMultiplier float64 `json:"price_multiplier"`
	Price           int64   `json:"price"`
}

type slotsResponse struct {
	FieldID   string     `json:"field_id"`
	Date      string     `json:"date"`
	OpenTime  string     `json:"open_time,omitempty"`
	CloseTime string     `json:"close_time,omitempty"`
	Slots     []slotItem `json:"slots"`
}

type intervalItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type reservationItem struct {
	ReservationID    string `json:"reservation_id"`
	FieldID          string `json:"field_id"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	DurationHours    int    `json:"duration_hours"`
	CustomerName     string `json:"customer_name"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerEmail    string `json:"customer_email,omitempty"`
	Notes            string `json:"notes,omitempty"`
	TotalPrice       int64  `json:"total_price"`
	Status           string `json:"status"`
	PaymentReference string `json:"payment_reference,omitempty"`
	CancelReason     string `json:"cancel_reason,omitempty"`
	CancelledBy      string `json:"cancelled_by,omitempty"`
	CreatedAt        string `json:"created_at"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	ConfirmedAt      string `json:"confirmed_at,omitempty"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	ExpiredAt        string `json:"expired_at,omitempty"`
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toReservationItem(res model.Reservation) reservationItem {
	expires := lifecycle.ExpiresAt(res)
	return reservationItem{
		ReservationID:    res.ID,
		FieldID:          res.FieldID,
		Date:             model.FormatDate(res.Date),
		StartTime:        availability.FormatClock(res.Interval.Start),
		EndTime:          availability.FormatClock(res.Interval.End),
		DurationHours:    (res.Interval.End - res.Interval.Start) / 60,
		CustomerName:     res.Customer.Name,
		CustomerPhone:    res.Customer.Phone,
		CustomerEmail:    res.Customer.Email,
		Notes:            res.Notes,
		TotalPrice:       res.TotalPrice,
		Status:           string(res.Status),
		PaymentReference: res.PaymentReference,
		CancelReason:     res.CancelReason,
		CancelledBy:      res.CancelledBy,
		CreatedAt:        formatTime(&res.CreatedAt),
		ExpiresAt:        formatTime(&expires),
		ConfirmedAt:      formatTime(res.ConfirmedAt),
		CancelledAt:      formatTime(res.CancelledAt),
		ExpiredAt:        formatTime(res.ExpiredAt),
	}
}
