package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no appointment matches the lookup.
	ErrNotFound = errors.New("appointment not found")
	// ErrCapacityExceeded is returned when the guarded insert finds the
	// slot already at capacity.
	ErrCapacityExceeded = errors.New("slot capacity exceeded")
	// ErrActiveExists is returned when the identity already holds an
	// active appointment. The partial unique index is the backstop for
	// the policy-level check.
	ErrActiveExists = errors.New("identity already has an active appointment")
	// ErrStatusConflict is returned when a status update loses the race:
	// the row is no longer in the expected from-status.
	ErrStatusConflict = errors.New("appointment status changed concurrently")
)

// ListFilter narrows staff appointment listings.
type ListFilter struct {
	LocationID *uuid.UUID
	Date       string
	Status     Status
	Identity   string
	Limit      int
	Offset     int
}

type Repository interface {
	// CreateWithCapacity inserts the appointment only if the slot's
	// non-cancelled count is still below maxPerSlot, and writes the
	// initial status-change row in the same transaction.
	CreateWithCapacity(ctx context.Context, a *Appointment, maxPerSlot int, actor string) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetActiveByIdentity(ctx context.Context, identity string) (*Appointment, error)
	ListByIdentity(ctx context.Context, identity string) ([]*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]*Appointment, int, error)

	// UpdateStatus moves the appointment from one status to another with a
	// compare-and-set on the current status, appending a history row at
	// the given effective time.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actor string, note *string, at time.Time) error
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusChange, error)

	// CancellationTimes returns when the identity's appointments were
	// cancelled, newest first, at or after since. Cancellations noted as
	// reschedules or no-shows are excluded.
	CancellationTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error)

	// NoShowTimes returns the scheduled dates of the identity's appointments
	// that were retired as no-shows, newest first, for dates at or after
	// since.
	NoShowTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error)

	// RescheduleTimes returns when the identity's appointments were
	// cancelled as the first half of a reschedule, newest first, at or
	// after since.
	RescheduleTimes(ctx context.Context, identity string, since time.Time) ([]time.Time, error)

	// CountActive returns non-cancelled booking counts per date and time
	// label for the location in the inclusive date range.
	CountActive(ctx context.Context, locationID uuid.UUID, from, to string) (map[string]map[string]int, error)
}
