package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/lifecycle"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/outbox"
)

// DefaultFields matches the rows seeded by the SQL migrations.
func DefaultFields() []model.Field {
	return []model.Field{
		{ID: "futsal-a", Name: "Futsal A", Sport: "futsal", PricePerHour: 150000, OpenTime: "08:00", CloseTime: "22:00", Active: true},
		{ID: "futsal-b", Name: "Futsal B", Sport: "futsal", PricePerHour: 120000, OpenTime: "06:00", CloseTime: "23:00", Active: true},
		{ID: "badminton-1", Name: "Badminton 1", Sport: "badminton", PricePerHour: 60000, OpenTime: "07:00", CloseTime: "21:00", Active: true},
	}
}

// MemoryStore is a process-local field directory, reservation store and activity log.
// One mutex serialises every write, which gives the same admission guarantee as the
// Postgres advisory lock plus exclusion constraint.
type MemoryStore struct {
	mu       sync.RWMutex
	fields   map[string]model.Field
	byID     map[string]*model.Reservation
	byDay    map[string][]*model.Reservation
	events   []outbox.Event
	activity *audit.Memory
}

func NewMemoryStore(fields ...model.Field) *MemoryStore {
	s := &MemoryStore{
		fields:   make(map[string]model.Field),
		byID:     make(map[string]*model.Reservation),
		byDay:    make(map[string][]*model.Reservation),
		activity: audit.NewMemory(),
	}
	for _, f := range fields {
		s.fields[f.ID] = f
	}
	return s
}

func (s *MemoryStore) GetField(ctx context.Context, id string) (model.Field, error) {
	if err := ctx.Err(); err != nil {
		return model.Field{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[id]
	if !ok {
		return model.Field{}, fmt.Errorf("field %q: %w", id, model.ErrNotFound)
	}
	return f, nil
}

func (s *MemoryStore) ListFields(ctx context.Context) ([]model.Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListReservations(ctx context.Context, fieldID string, date time.Time, statuses []model.Status) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Reservation
	for _, r := range s.byDay[model.DayKey(fieldID, date)] {
		if hasStatus(statuses, r.Status) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Start < out[j].Interval.Start })
	return out, nil
}

func (s *MemoryStore) CreateReservation(ctx context.Context, d model.Draft, now time.Time) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	if !s.hasField(d.FieldID) {
		return model.Reservation{}, fmt.Errorf("field %q: %w", d.FieldID, model.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.DayKey(d.FieldID, d.Date)
	for _, r := range s.byDay[key] {
		if _, err := s.expireLocked(r, now); err != nil {
			return model.Reservation{}, err
		}
	}
	for _, r := range s.byDay[key] {
		if lifecycle.Blocks(*r, now) && availability.Overlaps(r.Interval, d.Interval) {
			return model.Reservation{}, fmt.Errorf("%s [%d,%d): %w", key, d.Interval.Start, d.Interval.End, model.ErrSlotUnavailable)
		}
	}

	res := &model.Reservation{
		ID:         uuid.NewString(),
		FieldID:    d.FieldID,
		Date:       d.Date,
		Interval:   d.Interval,
		Customer:   d.Customer,
		Notes:      d.Notes,
		TotalPrice: d.TotalPrice,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.emitLocked(*res, "", audit.ActorCustomer); err != nil {
		return model.Reservation{}, err
	}
	s.byID[res.ID] = res
	s.byDay[key] = append(s.byDay[key], res)
	return *res, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, change model.StatusChange, now time.Time) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %q: %w", id, model.ErrNotFound)
	}
	lapsed, err := s.expireLocked(cur, now)
	if err != nil {
		return model.Reservation{}, err
	}
	if lapsed {
		if change.To == model.StatusExpired {
			return *cur, nil
		}
		return *cur, fmt.Errorf("%w: reservation %s expired before %s", model.ErrInvalidTransition, id, change.To)
	}

	next, err := lifecycle.Next(*cur, change.To, now)
	if err != nil {
		return model.Reservation{}, err
	}
	recordChange(&next, change)
	if err := s.emitLocked(next, cur.Status, change.Actor); err != nil {
		return model.Reservation{}, err
	}
	*cur = next
	return next, nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %q: %w", id, model.ErrNotFound)
	}
	return *r, nil
}

func (s *MemoryStore) SearchReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []model.Reservation
	for _, r := range s.byID {
		if f.FieldID != "" && r.FieldID != f.FieldID {
			continue
		}
		if f.Date != nil && !r.Date.Equal(*f.Date) {
			continue
		}
		if f.Status != "" && statusAt(*r, f.AsOf) != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(r.Customer.Name), q) &&
			!strings.Contains(strings.ToLower(r.Customer.Phone), q) &&
			!strings.Contains(strings.ToLower(r.ID), q) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if out[i].Interval.Start != out[j].Interval.Start {
			return out[i].Interval.Start < out[j].Interval.Start
		}
		return out[i].FieldID < out[j].FieldID
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ExpirePending(ctx context.Context, now time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*model.Reservation
	for _, r := range s.byID {
		if lifecycle.IsExpired(*r, now) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	for i, r := range stale {
		if _, err := s.expireLocked(r, now); err != nil {
			return i, err
		}
	}
	return len(stale), nil
}

// Events returns a copy of every event recorded so far.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) hasField(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fields[id]
	return ok
}

// ListActivity returns the activity log entries matching f, newest first.
func (s *MemoryStore) ListActivity(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.activity.ListActivity(ctx, f)
}

func (s *MemoryStore) expireLocked(r *model.Reservation, now time.Time) (bool, error) {
	expired, changed := lifecycle.Apply(*r, now)
	if !changed {
		return false, nil
	}
	if err := s.emitLocked(expired, r.Status, audit.ActorSystem); err != nil {
		return false, err
	}
	*r = expired
	return true, nil
}

// emitLocked records r's transition before the caller applies it, so a failure
// leaves the store unchanged.
func (s *MemoryStore) emitLocked(r model.Reservation, from model.Status, actor string) error {
	evt, err := outbox.ReservationEvent(r)
	if err != nil {
		return fmt.Errorf("reservation %s event: %w", r.ID, err)
	}
	s.events = append(s.events, evt)
	s.activity.Append(audit.ForTransition(r, from, actor))
	return nil
}

func statusAt(r model.Reservation, asOf time.Time) model.Status {
	if asOf.IsZero() {
		return r.Status
	}
	return lifecycle.Effective(r, asOf)
}

func hasStatus(statuses []model.Status, s model.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
