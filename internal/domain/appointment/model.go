package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	// StatusPending is the state right after a successful booking commit.
	StatusPending Status = "pending"
	// StatusConfirmed means staff verified the booking.
	StatusConfirmed Status = "confirmed"
	// StatusAwaitingIssuance means the citizen showed up and the document
	// is in production.
	StatusAwaitingIssuance Status = "awaiting-issuance"
	// StatusCINReady means the document is ready for pickup.
	StatusCINReady Status = "cin-ready"
	// StatusCINDelivered means the citizen collected the document.
	StatusCINDelivered Status = "cin-delivered"
	// StatusCompleted closes an appointment that needed no issuance.
	StatusCompleted Status = "completed"
	// StatusCancelled is reachable from any non-terminal state.
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the states that count against the one-active-appointment
// rule and occupy slot capacity.
var ActiveStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusAwaitingIssuance,
	StatusCINReady,
}

// transitions maps each state to the states staff may move it to. Cancellation
// is handled separately: every non-terminal state may be cancelled.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusAwaitingIssuance, StatusCompleted},
	// cin-ready may step back to awaiting-issuance when a document has to
	// be re-produced.
	StatusAwaitingIssuance: {StatusCINReady},
	StatusCINReady:         {StatusCINDelivered, StatusAwaitingIssuance},
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAwaitingIssuance,
		StatusCINReady, StatusCINDelivered, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status occupies capacity and blocks new
// bookings for the same identity.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusCINDelivered:
		return true
	}
	return false
}

// CanTransition reports whether staff may move an appointment from one
// status to another.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NoteRescheduled marks a cancellation that happened as the first half of a
// reschedule. These cancellations do not count toward the lockout rule.
const NoteRescheduled = "rescheduled"

// NoteNoShow marks the automatic cancellation of an appointment the citizen
// missed. The miss counts as a no-show strike, not a cancellation strike.
const NoteNoShow = "no-show"

// NormalizeIdentity canonicalizes a national identity document number so the
// same citizen always maps to the same key.
func NormalizeIdentity(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	IdentityNumber  string    `db:"identity_number" json:"identity_number"`
	FullName        string    `db:"full_name" json:"full_name"`
	Email           string    `db:"email" json:"email"`
	Phone           *string   `db:"phone" json:"phone,omitempty"`
	LocationID      uuid.UUID `db:"location_id" json:"location_id"`
	Date            string    `db:"date" json:"date"`
	Time            string    `db:"time" json:"time"`
	Status          Status    `db:"status" json:"status"`
	RescheduleCount int       `db:"reschedule_count" json:"reschedule_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StatusChange maps to the appointment_status_changes table: one row per
// transition, including the initial creation ({null -> pending}).
type StatusChange struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	FromStatus    *Status   `db:"from_status" json:"from_status,omitempty"`
	ToStatus      Status    `db:"to_status" json:"to_status"`
	Actor         string    `db:"actor" json:"actor"`
	Note          *string   `db:"note" json:"note,omitempty"`
	ChangedAt     time.Time `db:"changed_at" json:"changed_at"`
}
