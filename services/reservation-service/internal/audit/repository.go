package audit

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/fieldreserve/libs/db"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes e inside tx, alongside the transition it describes.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservation_activity
			(reservation_id, field_id, action, actor, from_status, to_status, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ReservationID, e.FieldID, e.Action, e.Actor, string(e.FromStatus), string(e.ToStatus), e.Detail, e.OccurredAt)
	return err
}

// ListActivity returns matching entries, newest first.
func (r *Repository) ListActivity(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.Actor != "" {
		add("actor = ?", f.Actor)
	}
	if f.ReservationID != "" {
		add("reservation_id::text = ?", f.ReservationID)
	}
	if !f.From.IsZero() {
		add("occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < ?", f.To)
	}

	sql := `SELECT id, reservation_id::text, field_id, action, actor, from_status, to_status, detail, occurred_at
		FROM reservation_activity`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	sql += ` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var from, to string
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.FieldID, &e.Action, &e.Actor, &from, &to, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.FromStatus, e.ToStatus = model.Status(from), model.Status(to)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
