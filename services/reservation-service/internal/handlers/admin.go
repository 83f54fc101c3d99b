package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/libs/auth"
	"github.com/md-rashed-zaman/fieldreserve/libs/httpx"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

const maxListLimit = 200

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ReservationFilter{
		FieldID: strings.TrimSpace(q.Get("field_id")),
		Query:   strings.TrimSpace(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err := model.ParseDate(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter.Date = &date
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "all" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]reservationItem, 0, len(list))
	for _, res := range list {
		items = append(items, toReservationItem(res))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"reservations": items})
}

type confirmRequest struct {
	ReservationID    string `json:"reservation_id"`
	PaymentReference string `json:"payment_reference"`
}

func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "reservation_id is required")
		return
	}
	res, err := h.svc.Confirm(r.Context(), strings.TrimSpace(req.ReservationID), req.PaymentReference, adminActor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationItem(res))
}

type adminCancelRequest struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

func (h *ReservationHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	var req adminCancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "reservation_id is required")
		return
	}
	res, err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.ReservationID), req.Reason, adminActor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationItem(res))
}

// adminActor names the authenticated admin as recorded in the activity log.
func adminActor(r *http.Request) string {
	if actor, ok := auth.ActorFromContext(r.Context()); ok && actor.ID != "" {
		return "admin:" + actor.ID
	}
	return "admin"
}

type activityItem struct {
	ID            int64  `json:"id"`
	ReservationID string `json:"reservation_id"`
	FieldID       string `json:"field_id"`
	Action        string `json:"action"`
	Actor         string `json:"actor"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status"`
	Detail        string `json:"detail,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// ActivityLogs serves the transition history. from and to are inclusive calendar
// days in the field time zone.
func (h *ReservationHandler) ActivityLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Actor:         strings.TrimSpace(q.Get("actor")),
		ReservationID: strings.TrimSpace(q.Get("reservation_id")),
	}
	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		action, err := audit.ParseAction(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter.Action = action
	}
	loc := h.svc.Location()
	for _, bound := range []struct {
		param string
		dst   *time.Time
		days  int
	}{{"from", &filter.From, 0}, {"to", &filter.To, 1}} {
		raw := strings.TrimSpace(q.Get(bound.param))
		if raw == "" {
			continue
		}
		d, err := model.ParseDate(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		y, m, day := d.AddDate(0, 0, bound.days).Date()
		*bound.dst = time.Date(y, m, day, 0, 0, 0, 0, loc)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		httpx.WriteError(w, r, http.StatusBadRequest, "from must not be after to")
		return
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, audit.MaxLimit)
	}

	entries, err := h.svc.Activity(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]activityItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, activityItem{
			ID:            e.ID,
			ReservationID: e.ReservationID,
			FieldID:       e.FieldID,
			Action:        e.Action,
			Actor:         e.Actor,
			FromStatus:    string(e.FromStatus),
			ToStatus:      string(e.ToStatus),
			Detail:        e.Detail,
			OccurredAt:    formatTime(&e.OccurredAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"logs": items})
}
