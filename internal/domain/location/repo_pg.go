package location

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

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.City,
		&l.Address,
		&l.Phone,
		&l.Active,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *RepoPG) Create(ctx context.Context, l *Location) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO locations (id, name, city, address, phone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, name, city, address, phone, active, created_at, updated_at
	`, l.ID, l.Name, l.City, l.Address, l.Phone, l.Active)

	created, err := scanLocation(row)
	if err != nil {
		return err
	}
	*l = *created
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, city, address, phone, active, created_at, updated_at
		FROM locations
		WHERE id = $1
	`, id)
	return scanLocation(row)
}

func (r *RepoPG) Update(ctx context.Context, l *Location) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE locations
		SET name = $2, city = $3, address = $4, phone = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, name, city, address, phone, active, created_at, updated_at
	`, l.ID, l.Name, l.City, l.Address, l.Phone, l.Active)

	updated, err := scanLocation(row)
	if err != nil {
		return err
	}
	*l = *updated
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Location, int, error) {
	where := ""
	if activeOnly {
		where = "WHERE active"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM locations `+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, city, address, phone, active, created_at, updated_at
		FROM locations `+where+`
		ORDER BY city, name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}
