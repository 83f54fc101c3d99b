package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/fieldreserve/libs/httpx"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/booking"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

func (h *ReservationHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.svc.Fields(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]fieldItem, 0, len(fields))
	for _, f := range fields {
		items = append(items, fieldItem{
			FieldID:      f.ID,
			Name:         f.Name,
			Sport:        f.Sport,
			PricePerHour: f.PricePerHour,
			OpenTime:     f.OpenTime,
			CloseTime:    f.CloseTime,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"fields": items})
}

// fieldDay reads the field_id and date query parameters shared by the schedule endpoints.
func (h *ReservationHandler) fieldDay(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	fieldID := strings.TrimSpace(r.URL.Query().Get("field_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if fieldID == "" || date == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "field_id and date are required")
		return "", "", false
	}
	return fieldID, date, true
}

func (h *ReservationHandler) Slots(w http.ResponseWriter, r *http.Request) {
	fieldID, rawDate, ok := h.fieldDay(w, r)
	if !ok {
		return
	}
	date, err := model.ParseDate(rawDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	day, err := h.svc.Availability(r.Context(), fieldID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := slotsResponse{
		FieldID:   day.Field.ID,
		Date:      model.FormatDate(day.Date),
		OpenTime:  day.Field.OpenTime,
		CloseTime: day.Field.CloseTime,
		Slots:     make([]slotItem, 0, len(day.Slots)),
	}
	for _, s := range day.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			Time:            s.Time(),
			Available:       s.Available,
			PriceMultiplier: s.Multiplier.Float(),
			Price:           s.Price,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ReservationHandler) Booked(w http.ResponseWriter, r *http.Request) {
	fieldID, rawDate, ok := h.fieldDay(w, r)
	if !ok {
		return
	}
	date, err := model.ParseDate(rawDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	booked, err := h.svc.BookedIntervals(r.Context(), fieldID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]intervalItem, 0, len(booked))
	for _, iv := range booked {
		items = append(items, intervalItem{
			StartTime: availability.FormatClock(iv.Start),
			EndTime:   availability.FormatClock(iv.End),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"field_id": fieldID,
		"date":     model.FormatDate(date),
		"booked":   items,
	})
}

type bookRequest struct {
	FieldID       string `json:"field_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	DurationHours int    `json:"duration_hours"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	Notes         string `json:"notes"`
}

func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.svc.Submit(r.Context(), booking.Request{
		FieldID:       strings.TrimSpace(req.FieldID),
		Date:          req.Date,
		StartTime:     strings.TrimSpace(req.StartTime),
		DurationHours: req.DurationHours,
		Customer: model.Customer{
			Name:  req.CustomerName,
			Phone: req.CustomerPhone,
			Email: req.CustomerEmail,
		},
		Notes: req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toReservationItem(res))
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "id is required")
		return
	}
	res, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationItem(res))
}

type customerCancelRequest struct {
	ReservationID string `json:"reservation_id"`
	CustomerPhone string `json:"customer_phone"`
	Reason        string `json:"reason"`
}

func (h *ReservationHandler) CustomerCancel(w http.ResponseWriter, r *http.Request) {
	var req customerCancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ReservationID) == "" || strings.TrimSpace(req.CustomerPhone) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "reservation_id and customer_phone are required")
		return
	}
	res, err := h.svc.CancelByCustomer(r.Context(), strings.TrimSpace(req.ReservationID), req.CustomerPhone, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationItem(res))
}
