package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/fieldreserve/libs/db"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/lifecycle"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/outbox"
)

type ReservationRepository struct {
	pool     *db.Pool
	outbox   *outbox.Repository
	activity *audit.Repository
}

func NewReservationRepository(pool *db.Pool, outboxRepo *outbox.Repository, activity *audit.Repository) *ReservationRepository {
	return &ReservationRepository{pool: pool, outbox: outboxRepo, activity: activity}
}

const reservationColumns = `id::text, field_id, date, start_minute, end_minute,
	customer_name, customer_phone, customer_email, notes, total_price, status,
	payment_reference, cancel_reason, cancelled_by,
	created_at, updated_at, confirmed_at, cancelled_at, expired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var r model.Reservation
	var status string
	err := row.Scan(
		&r.ID,
		&r.FieldID,
		&r.Date,
		&r.Interval.Start,
		&r.Interval.End,
		&r.Customer.Name,
		&r.Customer.Phone,
		&r.Customer.Email,
		&r.Notes,
		&r.TotalPrice,
		&status,
		&r.PaymentReference,
		&r.CancelReason,
		&r.CancelledBy,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.ConfirmedAt,
		&r.CancelledAt,
		&r.ExpiredAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	r.Status = model.Status(status)
	return r, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListReservations returns the stored rows for fieldID/date in the given statuses, by start.
// Rows are returned as stored; callers apply lazy expiry.
func (r *ReservationRepository) ListReservations(ctx context.Context, fieldID string, date time.Time, statuses []model.Status) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE field_id = $1 AND date = $2 AND status = ANY($3)
		ORDER BY start_minute ASC
	`, fieldID, date, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// CreateReservation admits d as a pending reservation. Admission for a field/day is
// serialised by an advisory transaction lock; inside it, lapsed pending rows of that day
// are persisted as expired, the interval is re-checked, and the row is inserted. The
// exclusion constraint rejects anything that still slips through.
func (r *ReservationRepository) CreateReservation(ctx context.Context, d model.Draft, now time.Time) (model.Reservation, error) {
	res := model.Reservation{
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

	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, model.DayKey(d.FieldID, d.Date)); err != nil {
			return err
		}
		if err := r.expireDay(ctx, tx, d.FieldID, d.Date, now); err != nil {
			return err
		}

		var clash bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE field_id = $1 AND date = $2
					AND status IN ('pending', 'confirmed')
					AND start_minute < $4 AND end_minute > $3
			)
		`, d.FieldID, d.Date, d.Interval.Start, d.Interval.End).Scan(&clash)
		if err != nil {
			return err
		}
		if clash {
			return model.ErrSlotUnavailable
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations
				(id, field_id, date, start_minute, end_minute, customer_name, customer_phone, customer_email,
				 notes, total_price, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		`, res.ID, res.FieldID, res.Date, res.Interval.Start, res.Interval.End, res.Customer.Name, res.Customer.Phone,
			res.Customer.Email, res.Notes, res.TotalPrice, string(res.Status), now)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, res, "", audit.ActorCustomer)
	})
	if err != nil {
		return model.Reservation{}, admissionError(d, err)
	}
	return res, nil
}

// admissionError reports a lost admission race, whether caught by the re-check or by
// the exclusion constraint, as ErrSlotUnavailable.
func admissionError(d model.Draft, err error) error {
	if errors.Is(err, model.ErrSlotUnavailable) || IsConflict(err) {
		return fmt.Errorf("%s [%d,%d): %w", model.DayKey(d.FieldID, d.Date),
			d.Interval.Start, d.Interval.End, model.ErrSlotUnavailable)
	}
	return err
}

func (r *ReservationRepository) expireDay(ctx context.Context, tx pgx.Tx, fieldID string, date, now time.Time) error {
	rows, err := tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE field_id = $1 AND date = $2 AND status = 'pending' AND created_at < $3
		FOR UPDATE
	`, fieldID, date, now.Add(-lifecycle.ExpiryWindow))
	if err != nil {
		return err
	}
	stale, err := collectReservations(rows)
	if err != nil {
		return err
	}
	for _, res := range stale {
		if err := r.expire(ctx, tx, res, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReservationRepository) expire(ctx context.Context, tx pgx.Tx, res model.Reservation, now time.Time) error {
	expired, changed := lifecycle.Apply(res, now)
	if !changed {
		return nil
	}
	if err := saveStatus(ctx, tx, expired); err != nil {
		return err
	}
	return r.emit(ctx, tx, expired, res.Status, audit.ActorSystem)
}

// UpdateStatus moves reservation id to change.To under a row lock. A pending row whose
// window has lapsed is persisted as expired and any other transition is refused.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, change model.StatusChange, now time.Time) (model.Reservation, error) {
	var out model.Reservation
	var lapsed bool
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanReservation(tx.QueryRow(ctx, `
			SELECT `+reservationColumns+`
			FROM reservations
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			if IsNotFound(err) {
				return fmt.Errorf("reservation %q: %w", id, model.ErrNotFound)
			}
			return err
		}

		if lifecycle.IsExpired(cur, now) {
			if err := r.expire(ctx, tx, cur, now); err != nil {
				return err
			}
			out, _ = lifecycle.Apply(cur, now)
			lapsed = change.To != model.StatusExpired
			return nil
		}

		next, err := lifecycle.Next(cur, change.To, now)
		if err != nil {
			return err
		}
		recordChange(&next, change)
		if err := saveStatus(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return r.emit(ctx, tx, next, cur.Status, change.Actor)
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if lapsed {
		return out, fmt.Errorf("%w: reservation %s expired before %s", model.ErrInvalidTransition, id, change.To)
	}
	return out, nil
}

func saveStatus(ctx context.Context, tx pgx.Tx, res model.Reservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2,
			payment_reference = $3,
			cancel_reason = $4,
			cancelled_by = $5,
			updated_at = $6,
			confirmed_at = $7,
			cancelled_at = $8,
			expired_at = $9
		WHERE id = $1
	`, res.ID, string(res.Status), res.PaymentReference, res.CancelReason, res.CancelledBy, res.UpdatedAt,
		res.ConfirmedAt, res.CancelledAt, res.ExpiredAt)
	return err
}

// emit records res's transition from the given status in the outbox and the activity log.
func (r *ReservationRepository) emit(ctx context.Context, tx pgx.Tx, res model.Reservation, from model.Status, actor string) error {
	evt, err := outbox.ReservationEvent(res)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return r.activity.Insert(ctx, tx, audit.ForTransition(res, from, actor))
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Reservation{}, fmt.Errorf("reservation %q: %w", id, model.ErrNotFound)
		}
		return model.Reservation{}, err
	}
	return res, nil
}

// SearchReservations lists reservations for the admin view, newest day first. Filtering on
// status matches the stored status unless f.AsOf is set. Rows are returned as stored.
func (r *ReservationRepository) SearchReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.FieldID != "" {
		add("field_id = ?", f.FieldID)
	}
	if f.Date != nil {
		add("date = ?", *f.Date)
	}
	if f.Status != "" {
		cutoff := f.AsOf.Add(-lifecycle.ExpiryWindow)
		switch {
		case f.AsOf.IsZero():
			add("status = ?", string(f.Status))
		case f.Status == model.StatusPending:
			add("status = 'pending' AND created_at >= ?", cutoff)
		case f.Status == model.StatusExpired:
			add("(status = 'expired' OR (status = 'pending' AND created_at < ?))", cutoff)
		default:
			add("status = ?", string(f.Status))
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(customer_name ILIKE ? OR customer_phone ILIKE ? OR id::text ILIKE ?)", "%"+q+"%")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	sql := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	sql += ` ORDER BY date DESC, start_minute ASC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ExpirePending persists expiry for up to limit lapsed pending reservations. Rows
// locked by a concurrent admission or transition are skipped.
func (r *ReservationRepository) ExpirePending(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	var n int
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+reservationColumns+`
			FROM reservations
			WHERE status = 'pending' AND created_at < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, now.Add(-lifecycle.ExpiryWindow), limit)
		if err != nil {
			return err
		}
		stale, err := collectReservations(rows)
		if err != nil {
			return err
		}
		for _, res := range stale {
			if err := r.expire(ctx, tx, res, now); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}
