package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/fieldreserve/libs/db"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

type FieldRepository struct {
	pool *db.Pool
}

func NewFieldRepository(pool *db.Pool) *FieldRepository {
	return &FieldRepository{pool: pool}
}

const fieldColumns = `id, name, sport, price_per_hour, COALESCE(open_time, ''), COALESCE(close_time, ''), active`

func (r *FieldRepository) GetField(ctx context.Context, id string) (model.Field, error) {
	var f model.Field
	err := r.pool.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Sport, &f.PricePerHour, &f.OpenTime, &f.CloseTime, &f.Active)
	if err != nil {
		if IsNotFound(err) {
			return model.Field{}, fmt.Errorf("field %q: %w", id, model.ErrNotFound)
		}
		return model.Field{}, err
	}
	return f, nil
}

func (r *FieldRepository) ListFields(ctx context.Context) ([]model.Field, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fieldColumns+` FROM fields ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []model.Field
	for rows.Next() {
		var f model.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.Sport, &f.PricePerHour, &f.OpenTime, &f.CloseTime, &f.Active); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return fields, nil
}
