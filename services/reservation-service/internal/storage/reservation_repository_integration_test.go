//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/libs/db"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/outbox"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./...
func openTestRepository(t *testing.T) (*ReservationRepository, *audit.Repository, *db.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Migrate(ctx, Migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE reservation_activity, reservations, outbox_events, inbox_events`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	activity := audit.NewRepository(pool)
	return NewReservationRepository(pool, outbox.NewRepository(pool), activity), activity, pool
}

func TestReservationRepository_ConcurrentAdmission(t *testing.T) {
	repo, _, _ := openTestRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var won, lost atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateReservation(ctx, draft(540, 600), t0)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, model.ErrSlotUnavailable):
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 1 || lost.Load() != 15 {
		t.Fatalf("expected exactly one admission, got %d won, %d lost", won.Load(), lost.Load())
	}
	rows, err := repo.ListReservations(ctx, "futsal-a", day, model.BlockingStatuses)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one stored reservation, got %d (%v)", len(rows), err)
	}
}

func TestReservationRepository_ReclaimsLapsedSlot(t *testing.T) {
	repo, activity, _ := openTestRepository(t)
	ctx := context.Background()
	first, err := repo.CreateReservation(ctx, draft(600, 720), t0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateReservation(ctx, draft(660, 720), t0.Add(14*time.Minute)); !errors.Is(err, model.ErrSlotUnavailable) {
		t.Fatalf("expected the live hold to block, got %v", err)
	}

	second, err := repo.CreateReservation(ctx, draft(660, 720), t0.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("expected the lapsed hold to be reclaimed: %v", err)
	}
	got, err := repo.GetReservation(ctx, first.ID)
	if err != nil || got.Status != model.StatusExpired {
		t.Fatalf("expected the first reservation persisted as expired, got %+v (%v)", got, err)
	}
	entries, err := activity.ListActivity(ctx, audit.Filter{ReservationID: first.ID, Action: audit.ActionExpired})
	if err != nil || len(entries) != 1 || entries[0].Actor != audit.ActorSystem {
		t.Fatalf("expected an expiry entry by the system, got %+v (%v)", entries, err)
	}
	if second.Status != model.StatusPending {
		t.Fatalf("expected a pending reservation, got %s", second.Status)
	}
}

func TestReservationRepository_ExclusionConstraint(t *testing.T) {
	repo, _, pool := openTestRepository(t)
	ctx := context.Background()
	if _, err := repo.CreateReservation(ctx, draft(600, 720), t0); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Bypasses the advisory lock and the re-check; only the constraint stands in the way.
	_, err := pool.Exec(ctx, `
		INSERT INTO reservations
			(id, field_id, date, start_minute, end_minute, customer_name, customer_phone, total_price, status, created_at, updated_at)
		VALUES (gen_random_uuid(), 'futsal-a', $1, 660, 780, 'Budi', '0812', 150000, 'pending', $2, $2)
	`, day, t0)
	if !IsConflict(err) {
		t.Fatalf("expected an exclusion violation, got %v", err)
	}
	if !errors.Is(admissionError(draft(660, 780), err), model.ErrSlotUnavailable) {
		t.Fatal("expected the violation to surface as ErrSlotUnavailable")
	}
}

func TestReservationRepository_SearchEffectiveStatus(t *testing.T) {
	repo, _, _ := openTestRepository(t)
	ctx := context.Background()
	lapsed, _ := repo.CreateReservation(ctx, draft(600, 660), t0)
	next := draft(600, 660)
	next.Date = day.AddDate(0, 0, 1)
	paid, _ := repo.CreateReservation(ctx, next, t0)
	if _, err := repo.UpdateStatus(ctx, paid.ID, model.StatusChange{To: model.StatusConfirmed, Actor: "admin:a1"}, t0); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	asOf := t0.Add(20 * time.Minute)

	got, err := repo.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusExpired, AsOf: asOf, Limit: 1})
	if err != nil || len(got) != 1 || got[0].ID != lapsed.ID {
		t.Fatalf("expected the lapsed row, got %+v (%v)", got, err)
	}
	got, _ = repo.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusPending, AsOf: asOf, Limit: 1})
	if len(got) != 0 {
		t.Fatalf("expected no pending rows, got %+v", got)
	}
	got, _ = repo.SearchReservations(ctx, model.ReservationFilter{Status: model.StatusPending, AsOf: t0, Limit: 1})
	if len(got) != 1 || got[0].ID != lapsed.ID {
		t.Fatalf("expected the live hold before the window, got %+v", got)
	}
}
