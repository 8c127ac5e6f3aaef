package appointment

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apptColumns = `id, identity_number, full_name, email, phone, location_id,
	to_char(date, 'YYYY-MM-DD'), "time", status, reschedule_count, created_at, updated_at`

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.IdentityNumber,
		&a.FullName,
		&a.Email,
		&a.Phone,
		&a.LocationID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.RescheduleCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// slotLockKey derives a stable advisory-lock key for one slot.
func slotLockKey(locationID uuid.UUID, date, timeLabel string) int64 {
	h := fnv.New64a()
	h.Write(locationID[:])
	h.Write([]byte(date))
	h.Write([]byte(timeLabel))
	return int64(h.Sum64())
}

func (r *RepoPG) CreateWithCapacity(ctx context.Context, a *Appointment, maxPerSlot int, actor string) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Serialize commits for the same slot. Under READ COMMITTED two
	// transactions would each see the pre-insert count and both pass the
	// capacity check; the advisory lock holds until commit or rollback, so
	// the second commit counts the first one's row.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`,
		slotLockKey(a.LocationID, a.Date, a.Time)); err != nil {
		return err
	}

	// The insert only fires while the slot's non-cancelled count is below
	// capacity.
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, identity_number, full_name, email, phone, location_id, date, "time", status, reschedule_count, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, now(), now()
		WHERE (
			SELECT count(*) FROM appointments
			WHERE location_id = $6 AND date = $7::date AND "time" = $8
			  AND status <> 'cancelled'
		) < $11
		RETURNING `+apptColumns,
		a.ID, a.IdentityNumber, a.FullName, a.Email, a.Phone,
		a.LocationID, a.Date, a.Time, StatusPending, a.RescheduleCount, maxPerSlot)

	created, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrCapacityExceeded
		}
		if isUniqueViolation(err) {
			return ErrActiveExists
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_status_changes (id, appointment_id, from_status, to_status, actor, changed_at)
		VALUES ($1, $2, NULL, $3, $4, now())
	`, uuid.New(), created.ID, StatusPending, actor); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*a = *created
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+` FROM appointments WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *RepoPG) GetActiveByIdentity(ctx context.Context, identity string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+` FROM appointments
		WHERE identity_number = $1
		  AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`, identity, activeStatusStrings())
	return scanAppointment(row)
}

func (r *RepoPG) ListByIdentity(ctx context.Context, identity string) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+` FROM appointments
		WHERE identity_number = $1
		ORDER BY created_at DESC
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *RepoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(cond string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", cond, n)
		args = append(args, v)
	}
	if f.LocationID != nil {
		add("location_id", *f.LocationID)
	}
	if f.Date != "" {
		add("date", f.Date)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.Identity != "" {
		add("identity_number", NormalizeIdentity(f.Identity))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT `+apptColumns+` FROM appointments %s
		ORDER BY date, "time", created_at
		LIMIT $%d OFFSET $%d
	`, where, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result, err := collectAppointments(rows)
	return result, total, err
}

func (r *RepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actor string, note *string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStatusConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_status_changes (id, appointment_id, from_status, to_status, actor, note, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), id, from, to, actor, note, at); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *RepoPG) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, from_status, to_status, actor, note, changed_at
		FROM appointment_status_changes
		WHERE appointment_id = $1
		ORDER BY changed_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.AppointmentID, &sc.FromStatus, &sc.ToStatus, &sc.Actor, &sc.Note, &sc.ChangedAt); err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (r *RepoPG) CancellationTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sc.changed_at
		FROM appointment_status_changes sc
		JOIN appointments a ON a.id = sc.appointment_id
		WHERE a.identity_number = $1
		  AND sc.to_status = 'cancelled'
		  AND sc.changed_at >= $2
		  AND (sc.note IS NULL OR sc.note NOT IN ($3, $4))
		ORDER BY sc.changed_at DESC
	`, identity, since, NoteRescheduled, NoteNoShow)
	if err != nil {
		return nil, err
	}
	return collectTimes(rows)
}

// NoShowTimes reports the strike time of a no-show as the appointment's own
// scheduled date.
func (r *RepoPG) NoShowTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.date
		FROM appointment_status_changes sc
		JOIN appointments a ON a.id = sc.appointment_id
		WHERE a.identity_number = $1
		  AND sc.to_status = 'cancelled'
		  AND sc.note = $2
		  AND a.date >= $3::date
		ORDER BY a.date DESC
	`, identity, NoteNoShow, since.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return collectTimes(rows)
}

func (r *RepoPG) RescheduleTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sc.changed_at
		FROM appointment_status_changes sc
		JOIN appointments a ON a.id = sc.appointment_id
		WHERE a.identity_number = $1
		  AND sc.to_status = 'cancelled'
		  AND sc.note = $2
		  AND sc.changed_at >= $3
		ORDER BY sc.changed_at DESC
	`, identity, NoteRescheduled, since)
	if err != nil {
		return nil, err
	}
	return collectTimes(rows)
}

func collectTimes(rows pgx.Rows) ([]time.Time, error) {
	defer rows.Close()
	var result []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		result = append(result, ts)
	}
	return result, rows.Err()
}

func (r *RepoPG) CountActive(ctx context.Context, locationID uuid.UUID, from, to string) (map[string]map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), "time", count(*)
		FROM appointments
		WHERE location_id = $1
		  AND date >= $2::date AND date <= $3::date
		  AND status <> 'cancelled'
		GROUP BY date, "time"
	`, locationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var date, label string
		var n int
		if err := rows.Scan(&date, &label, &n); err != nil {
			return nil, err
		}
		if counts[date] == nil {
			counts[date] = make(map[string]int)
		}
		counts[date][label] = n
	}
	return counts, rows.Err()
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var result []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}
