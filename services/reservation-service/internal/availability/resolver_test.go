package availability

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

type fakeLister struct {
	rows  []model.Reservation
	err   error
	calls int
}

func (f *fakeLister) ListReservations(_ context.Context, fieldID string, date time.Time, statuses []model.Status) ([]model.Reservation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Reservation
	for _, r := range f.rows {
		if r.FieldID != fieldID || !r.Date.Equal(date) {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

var (
	jakarta = time.FixedZone("WIB", 7*60*60)
	now     = time.Date(2026, 10, 15, 6, 30, 0, 0, time.UTC) // 13:30 in Jakarta
	today   = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	field   = model.Field{ID: "f1", Name: "Court 1", PricePerHour: 100000, OpenTime: "08:00", CloseTime: "22:00", Active: true}
)

func newResolver(store ReservationLister) *Resolver {
	return NewResolver(store, ResolverConfig{Location: jakarta, Now: func() time.Time { return now }})
}

func reservation(start, end string, status model.Status, createdAt time.Time) model.Reservation {
	s, _ := ParseClock(start)
	e, _ := ParseClock(end)
	return model.Reservation{ID: start + string(status), FieldID: "f1", Date: today, Interval: model.Interval{Start: s, End: e}, Status: status, CreatedAt: createdAt}
}

func slotAt(t *testing.T, slots []Slot, clock string) (Slot, bool) {
	t.Helper()
	for _, s := range slots {
		if s.Time() == clock {
			return s, true
		}
	}
	return Slot{}, false
}

func TestResolve_EmptyDay(t *testing.T) {
	slots, err := newResolver(&fakeLister{}).Resolve(context.Background(), field, today)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %d", len(slots))
	}
	if _, ok := slotAt(t, slots, "07:00"); ok {
		t.Fatal("07:00 must not be offered before opening")
	}
	s8, _ := slotAt(t, slots, "08:00")
	if s8.Multiplier != Normal || !s8.Available || s8.Price != 100000 {
		t.Fatalf("unexpected 08:00 slot %+v", s8)
	}
	s17, _ := slotAt(t, slots, "17:00")
	if s17.Multiplier != Peak || s17.Price != 120000 {
		t.Fatalf("unexpected 17:00 slot %+v", s17)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start <= slots[i-1].Start {
			t.Fatal("slots must be ordered by start")
		}
	}
}

func TestResolve_ConfirmedBlocksHalfOpen(t *testing.T) {
	store := &fakeLister{rows: []model.Reservation{reservation("10:00", "12:00", model.StatusConfirmed, now.Add(-time.Hour))}}
	slots, err := newResolver(store).Resolve(context.Background(), field, today)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for clock, want := range map[string]bool{"09:00": true, "10:00": false, "11:00": false, "12:00": true} {
		s, _ := slotAt(t, slots, clock)
		if s.Available != want {
			t.Fatalf("slot %s: expected available=%v", clock, want)
		}
	}
}

func TestResolve_PendingExpiryBoundary(t *testing.T) {
	fresh := &fakeLister{rows: []model.Reservation{reservation("14:00", "15:00", model.StatusPending, now.Add(-(14*time.Minute + 59*time.Second)))}}
	slots, err := newResolver(fresh).Resolve(context.Background(), field, today)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s, _ := slotAt(t, slots, "14:00"); s.Available {
		t.Fatal("pending reservation inside its window must block")
	}

	stale := &fakeLister{rows: []model.Reservation{reservation("14:00", "15:00", model.StatusPending, now.Add(-(15*time.Minute + time.Second)))}}
	slots, err = newResolver(stale).Resolve(context.Background(), field, today)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s, _ := slotAt(t, slots, "14:00"); !s.Available {
		t.Fatal("lapsed pending reservation must not block")
	}
}

func TestResolve_Horizon(t *testing.T) {
	r := newResolver(&fakeLister{})
	for _, days := range []int{-1, 7, 8} {
		_, err := r.Resolve(context.Background(), field, today.AddDate(0, 0, days))
		if !errors.Is(err, model.ErrOutOfHorizon) {
			t.Fatalf("today%+d: expected ErrOutOfHorizon, got %v", days, err)
		}
	}
	if _, err := r.Resolve(context.Background(), field, today.AddDate(0, 0, 6)); err != nil {
		t.Fatalf("today+6: %v", err)
	}
}

func TestCheckHorizon_UsesLocation(t *testing.T) {
	// 18:00 UTC on the 15th is already the 16th in Jakarta.
	late := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)
	if err := CheckHorizon(today, late, jakarta, 7); !errors.Is(err, model.ErrOutOfHorizon) {
		t.Fatalf("expected the 15th to be in the past, got %v", err)
	}
	if err := CheckHorizon(today, late, time.UTC, 7); err != nil {
		t.Fatalf("expected the 15th to be today in UTC, got %v", err)
	}
}

func TestResolve_NoHoursOrInactive(t *testing.T) {
	store := &fakeLister{}
	r := newResolver(store)
	for _, f := range []model.Field{{ID: "f1", Active: true}, {ID: "f1", OpenTime: "08:00", CloseTime: "22:00"}} {
		slots, err := r.Resolve(context.Background(), f, today)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(slots) != 0 {
			t.Fatalf("expected no slots, got %d", len(slots))
		}
	}
	if store.calls != 0 {
		t.Fatal("store should not be consulted for a field without bookable hours")
	}
}

func TestResolve_MalformedHours(t *testing.T) {
	f := field
	f.OpenTime, f.CloseTime = "22:00", "08:00"
	if _, err := newResolver(&fakeLister{}).Resolve(context.Background(), f, today); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestResolve_StoreError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := newResolver(&fakeLister{err: boom}).Resolve(context.Background(), field, today); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	store := &fakeLister{rows: []model.Reservation{reservation("18:00", "20:00", model.StatusPending, now)}}
	r := newResolver(store)
	a, _ := r.Resolve(context.Background(), field, today)
	b, _ := r.Resolve(context.Background(), field, today)
	if len(a) != len(b) {
		t.Fatal("expected identical results")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGuard_CheckConflict(t *testing.T) {
	store := &fakeLister{rows: []model.Reservation{
		reservation("10:00", "12:00", model.StatusConfirmed, now.Add(-time.Hour)),
		reservation("14:00", "15:00", model.StatusPending, now.Add(-time.Hour)),
		reservation("16:00", "17:00", model.StatusCancelled, now.Add(-time.Hour)),
	}}
	g := NewGuard(store, func() time.Time { return now })
	cases := []struct {
		start, end string
		want       bool
	}{
		{"09:00", "10:00", false},
		{"11:00", "13:00", true},
		{"12:00", "13:00", false},
		{"14:00", "15:00", false},
		{"16:00", "17:00", false},
	}
	for _, tc := range cases {
		s, _ := ParseClock(tc.start)
		e, _ := ParseClock(tc.end)
		got, err := g.CheckConflict(context.Background(), "f1", today, model.Interval{Start: s, End: e})
		if err != nil {
			t.Fatalf("CheckConflict: %v", err)
		}
		if got != tc.want {
			t.Fatalf("%s-%s: expected conflict=%v", tc.start, tc.end, tc.want)
		}
	}
}

// Admitting random proposals one at a time through Conflicts never yields an
// overlapping pair among the admitted set.
func TestConflicts_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var admitted []model.Reservation
		for i := 0; i < 30; i++ {
			start := rng.Intn(20) * 60
			iv := model.Interval{Start: start, End: start + (1+rng.Intn(4))*60}
			if _, clash := Conflicts(iv, admitted, now); clash {
				continue
			}
			admitted = append(admitted, model.Reservation{Interval: iv, Status: model.StatusPending, CreatedAt: now})
		}
		for i := range admitted {
			for j := i + 1; j < len(admitted); j++ {
				if Overlaps(admitted[i].Interval, admitted[j].Interval) {
					t.Fatalf("round %d: admitted overlapping %v and %v", round, admitted[i].Interval, admitted[j].Interval)
				}
			}
		}
	}
}
