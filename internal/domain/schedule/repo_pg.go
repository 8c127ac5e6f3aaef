package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) GetConfig(ctx context.Context, locationID uuid.UUID) (*Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		SELECT id, location_id, working_hours, max_per_slot, booking_window_days, created_at, updated_at
		FROM schedule_config
		WHERE location_id = $1
	`, locationID).Scan(
		&cfg.ID,
		&cfg.LocationID,
		&cfg.WorkingHours,
		&cfg.MaxPerSlot,
		&cfg.BookingWindowDays,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *RepoPG) SaveConfig(ctx context.Context, cfg *Config) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO schedule_config (id, location_id, working_hours, max_per_slot, booking_window_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (location_id) DO UPDATE
		SET working_hours = EXCLUDED.working_hours,
		    max_per_slot = EXCLUDED.max_per_slot,
		    booking_window_days = EXCLUDED.booking_window_days,
		    updated_at = now()
		RETURNING id, created_at, updated_at
	`, cfg.ID, cfg.LocationID, cfg.WorkingHours, cfg.MaxPerSlot, cfg.BookingWindowDays).
		Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func scanBlock(row pgx.Row) (*BlockedDate, error) {
	var b BlockedDate
	err := row.Scan(
		&b.ID,
		&b.LocationID,
		&b.Date,
		&b.Kind,
		&b.Times,
		&b.Reason,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *RepoPG) CreateBlock(ctx context.Context, b *BlockedDate) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO blocked_dates (id, location_id, date, kind, times, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, location_id, date, kind, times, reason, created_at
	`, b.ID, b.LocationID, b.Date, b.Kind, b.Times, b.Reason)

	created, err := scanBlock(row)
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

func (r *RepoPG) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blocked_dates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *RepoPG) ListBlocks(ctx context.Context, locationID uuid.UUID, from, to string) ([]BlockedDate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, location_id, date, kind, times, reason, created_at
		FROM blocked_dates
		WHERE (location_id = $1 OR location_id IS NULL)
		  AND date >= $2 AND date <= $3
		ORDER BY date
	`, locationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedDate
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *RepoPG) ListAllBlocks(ctx context.Context, limit, offset int) ([]BlockedDate, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM blocked_dates`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, location_id, date, kind, times, reason, created_at
		FROM blocked_dates
		ORDER BY date DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []BlockedDate
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *b)
	}
	return result, total, rows.Err()
}
