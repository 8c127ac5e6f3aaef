package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/cinportal/cinportal/internal/domain/appointment"
)

var (
	// ErrSlotUnavailable means the requested slot is blocked, past its
	// cutoff, or at capacity. Retrying the same slot will not help; the
	// citizen should pick another one.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrInvalidOrExpiredCode means the cancellation confirmation code did
	// not match, expired, or was already used.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired confirmation code")
	// ErrStoreUnavailable wraps infrastructure failures so callers can
	// distinguish them from policy rejections.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNoActiveAppointment means the identity has nothing to cancel.
	ErrNoActiveAppointment = errors.New("no active appointment for identity")
)

// DecisionKind classifies the outcome of the abuse policy evaluation.
type DecisionKind string

const (
	DecisionAllowed            DecisionKind = "allowed"
	DecisionBlockedTemporarily DecisionKind = "blocked-temporarily"
	DecisionActiveExists       DecisionKind = "active-appointment-exists"
	DecisionRescheduleLimit    DecisionKind = "reschedule-limit-reached"
)

// PolicyDecision is the typed outcome of evaluating an identity against the
// anti-abuse rules.
type PolicyDecision struct {
	Kind      DecisionKind             `json:"kind"`
	Reason    string                   `json:"reason,omitempty"`
	UnblockAt *time.Time               `json:"unblock_at,omitempty"`
	Existing  *appointment.Appointment `json:"existing,omitempty"`
}

// Allowed reports whether booking may proceed.
func (d PolicyDecision) Allowed() bool {
	return d.Kind == DecisionAllowed
}

// PolicyError carries a rejecting decision as an error value.
type PolicyError struct {
	Decision PolicyDecision
}

func (e *PolicyError) Error() string {
	if e.Decision.Reason != "" {
		return fmt.Sprintf("booking rejected: %s (%s)", e.Decision.Kind, e.Decision.Reason)
	}
	return fmt.Sprintf("booking rejected: %s", e.Decision.Kind)
}

// ValidationError reports a malformed booking request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
