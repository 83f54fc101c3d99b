package storage

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/outbox"
)

var (
	t0  = time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	day = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
)

func draft(start, end int) model.Draft {
	return model.Draft{
		FieldID:    "futsal-a",
		Date:       day,
		Interval:   model.Interval{Start: start, End: end},
		Customer:   model.Customer{Name: "Sari", Phone: "081234"},
		TotalPrice: 150000,
	}
}

func TestMemoryStore_CreateRejectsOverlap(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	if _, err := s.CreateReservation(ctx, draft(600, 720), t0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateReservation(ctx, draft(660, 780), t0); !errors.Is(err, model.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if _, err := s.CreateReservation(ctx, draft(720, 780), t0); err != nil {
		t.Fatalf("adjacent interval should be admitted: %v", err)
	}
	other := draft(600, 720)
	other.Date = day.AddDate(0, 0, 1)
	if _, err := s.CreateReservation(ctx, other, t0); err != nil {
		t.Fatalf("other day should be admitted: %v", err)
	}
}

func TestMemoryStore_CreateUnknownField(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	d := draft(600, 660)
	d.FieldID = "nope"
	if _, err := s.CreateReservation(context.Background(), d, t0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_CreateReclaimsLapsedSlot(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	first, err := s.CreateReservation(ctx, draft(600, 660), t0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateReservation(ctx, draft(600, 660), t0.Add(16*time.Minute)); err != nil {
		t.Fatalf("lapsed slot should be reclaimable: %v", err)
	}
	got, _ := s.GetReservation(ctx, first.ID)
	if got.Status != model.StatusExpired || got.ExpiredAt == nil {
		t.Fatalf("expected lapsed reservation to be persisted as expired, got %s", got.Status)
	}
}

func TestMemoryStore_ConcurrentAdmission(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	const n = 32
	var ok, conflict atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.CreateReservation(context.Background(), draft(540, 600), t0)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrSlotUnavailable):
				conflict.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if ok.Load() != 1 || conflict.Load() != n-1 {
		t.Fatalf("expected exactly one admission, got ok=%d conflict=%d", ok.Load(), conflict.Load())
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	r, _ := s.CreateReservation(ctx, draft(600, 660), t0)

	got, err := s.UpdateStatus(ctx, r.ID, model.StatusChange{To: model.StatusConfirmed, PaymentReference: "TRX-9"}, t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != model.StatusConfirmed || got.PaymentReference != "TRX-9" {
		t.Fatalf("unexpected reservation %+v", got)
	}
	if _, err := s.UpdateStatus(ctx, r.ID, model.StatusChange{To: model.StatusConfirmed}, t0.Add(6*time.Minute)); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double confirm, got %v", err)
	}
	got, err = s.UpdateStatus(ctx, r.ID, model.StatusChange{To: model.StatusCancelled, Reason: "rain", Actor: "admin-1"}, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.CancelReason != "rain" || got.CancelledBy != "admin-1" || got.CancelledAt == nil {
		t.Fatalf("unexpected cancellation %+v", got)
	}
	if _, err := s.UpdateStatus(ctx, "missing", model.StatusChange{To: model.StatusCancelled}, t0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ConfirmAfterExpiry(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	r, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	got, err := s.UpdateStatus(ctx, r.ID, model.StatusChange{To: model.StatusConfirmed}, t0.Add(20*time.Minute))
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got.Status != model.StatusExpired {
		t.Fatalf("expected lapsed reservation persisted as expired, got %s", got.Status)
	}
	stored, _ := s.GetReservation(ctx, r.ID)
	if stored.Status != model.StatusExpired {
		t.Fatalf("expected stored status expired, got %s", stored.Status)
	}
}

func TestMemoryStore_ExpirePending(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	old, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	fresh, _ := s.CreateReservation(ctx, draft(700, 760), t0.Add(10*time.Minute))
	confirmed, _ := s.CreateReservation(ctx, draft(800, 860), t0)
	if _, err := s.UpdateStatus(ctx, confirmed.ID, model.StatusChange{To: model.StatusConfirmed}, t0.Add(time.Minute)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	n, err := s.ExpirePending(ctx, t0.Add(20*time.Minute), 10)
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	for id, want := range map[string]model.Status{old.ID: model.StatusExpired, fresh.ID: model.StatusPending, confirmed.ID: model.StatusConfirmed} {
		got, _ := s.GetReservation(ctx, id)
		if got.Status != want {
			t.Fatalf("reservation %s: expected %s, got %s", id, want, got.Status)
		}
	}
	if n, _ := s.ExpirePending(ctx, t0.Add(20*time.Minute), 10); n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d", n)
	}
}

func TestMemoryStore_Search(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	a, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	b := draft(700, 760)
	b.Customer = model.Customer{Name: "Andi Wijaya", Phone: "089999"}
	rb, _ := s.CreateReservation(ctx, b, t0)
	_, _ = s.UpdateStatus(ctx, a.ID, model.StatusChange{To: model.StatusConfirmed}, t0)

	got, _ := s.SearchReservations(ctx, model.ReservationFilter{Query: "wijaya"})
	if len(got) != 1 || got[0].ID != rb.ID {
		t.Fatalf("expected name search to match, got %+v", got)
	}
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{Query: "0899"})
	if len(got) != 1 {
		t.Fatalf("expected phone search to match, got %d", len(got))
	}
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{Query: a.ID[:8]})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected id search to match, got %+v", got)
	}
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusConfirmed})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected status filter to match, got %+v", got)
	}
	d := day
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{FieldID: "futsal-a", Date: &d, Limit: 1})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected first reservation of the day, got %+v", got)
	}
}

func TestMemoryStore_SearchEffectiveStatus(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	lapsed, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	next := draft(600, 660)
	next.Date = day.AddDate(0, 0, 1)
	paid, _ := s.CreateReservation(ctx, next, t0)
	_, _ = s.UpdateStatus(ctx, paid.ID, model.StatusChange{To: model.StatusConfirmed}, t0)
	asOf := t0.Add(20 * time.Minute)

	got, _ := s.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusExpired, AsOf: asOf, Limit: 1})
	if len(got) != 1 || got[0].ID != lapsed.ID {
		t.Fatalf("expected the lapsed row to match expired, got %+v", got)
	}
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusPending, AsOf: asOf, Limit: 1})
	if len(got) != 0 {
		t.Fatalf("expected no pending rows, got %+v", got)
	}
	got, _ = s.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusPending, Limit: 1})
	if len(got) != 1 || got[0].Status != model.StatusPending {
		t.Fatalf("without AsOf the stored status applies, got %+v", got)
	}
}

func TestMemoryStore_Events(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	r, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	_, _ = s.UpdateStatus(ctx, r.ID, model.StatusChange{To: model.StatusCancelled}, t0.Add(time.Minute))

	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != outbox.ReservationCreated || events[1].EventType != outbox.ReservationCancelled {
		t.Fatalf("unexpected events %s, %s", events[0].EventType, events[1].EventType)
	}
}

func TestMemoryStore_ActivityLog(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	ctx := context.Background()
	paid, _ := s.CreateReservation(ctx, draft(600, 660), t0)
	if _, err := s.UpdateStatus(ctx, paid.ID, model.StatusChange{To: model.StatusConfirmed, PaymentReference: "TRX-5", Actor: "admin:a1"}, t0.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	lapsed, _ := s.CreateReservation(ctx, draft(700, 760), t0)
	if n, err := s.ExpirePending(ctx, t0.Add(20*time.Minute), 10); err != nil || n != 1 {
		t.Fatalf("ExpirePending: %d %v", n, err)
	}

	entries, err := s.ListActivity(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(entries) != 4 || len(s.Events()) != 4 {
		t.Fatalf("expected one entry and one event per transition, got %d entries, %d events", len(entries), len(s.Events()))
	}
	if e := entries[0]; e.ReservationID != lapsed.ID || e.Action != audit.ActionExpired || e.Actor != audit.ActorSystem || e.FromStatus != model.StatusPending {
		t.Fatalf("unexpected newest entry %+v", e)
	}
	confirmed, _ := s.ListActivity(ctx, audit.Filter{Actor: "admin:a1"})
	if len(confirmed) != 1 || confirmed[0].Action != audit.ActionConfirmed || confirmed[0].Detail != "TRX-5" {
		t.Fatalf("unexpected admin entries %+v", confirmed)
	}
	created, _ := s.ListActivity(ctx, audit.Filter{Action: audit.ActionCreated, Actor: audit.ActorCustomer})
	if len(created) != 2 {
		t.Fatalf("expected 2 created entries, got %d", len(created))
	}

	if _, err := s.UpdateStatus(ctx, paid.ID, model.StatusChange{To: model.StatusExpired}, t0.Add(time.Hour)); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if after, _ := s.ListActivity(ctx, audit.Filter{}); len(after) != 4 || len(s.Events()) != 4 {
		t.Fatal("a refused transition must not be recorded")
	}
}

func TestAdmissionError(t *testing.T) {
	d := draft(600, 660)
	if err := admissionError(d, &pgconn.PgError{Code: "23P01"}); !errors.Is(err, model.ErrSlotUnavailable) {
		t.Fatalf("expected exclusion violation to map to ErrSlotUnavailable, got %v", err)
	}
	if err := admissionError(d, model.ErrSlotUnavailable); !errors.Is(err, model.ErrSlotUnavailable) || !strings.Contains(err.Error(), "futsal-a/2026-10-16") {
		t.Fatalf("expected a located ErrSlotUnavailable, got %v", err)
	}
	unique := &pgconn.PgError{Code: "23505"}
	if err := admissionError(d, unique); errors.Is(err, model.ErrSlotUnavailable) || !errors.Is(err, unique) {
		t.Fatalf("expected other errors to pass through, got %v", err)
	}
}

func TestMemoryStore_Fields(t *testing.T) {
	s := NewMemoryStore(DefaultFields()...)
	fields, err := s.ListFields(context.Background())
	if err != nil || len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d (%v)", len(fields), err)
	}
	if fields[0].ID != "badminton-1" {
		t.Fatalf("expected fields ordered by name, got %s first", fields[0].ID)
	}
	if _, err := s.GetField(context.Background(), "futsal-z"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrations(t *testing.T) {
	names, err := fs.Glob(Migrations(), "*.sql")
	if err != nil || len(names) != 3 {
		t.Fatalf("expected 3 migrations, got %v (%v)", names, err)
	}
	raw, err := fs.ReadFile(Migrations(), "0001_init.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "EXCLUDE USING gist") {
		t.Fatal("expected the overlap exclusion constraint in the schema")
	}
	seed, _ := fs.ReadFile(Migrations(), "0002_seed_fields.sql")
	for _, f := range DefaultFields() {
		if !strings.Contains(string(seed), "'"+f.ID+"'") {
			t.Fatalf("seed migration is missing field %s", f.ID)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(errors.New("x")) || IsConflict(errors.New("x")) {
		t.Fatal("plain errors are neither not-found nor conflicts")
	}
}
