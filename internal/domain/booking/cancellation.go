package booking

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/cinportal/cinportal/internal/domain/appointment"
	"github.com/cinportal/cinportal/internal/platform/notification"
	redisclient "github.com/cinportal/cinportal/internal/platform/redis"
)

// CodeStore keeps hashed single-use confirmation codes with a TTL.
// Implemented by the Redis code store.
type CodeStore interface {
	Put(ctx context.Context, appointmentID uuid.UUID, codeHash string, ttl time.Duration) error
	Consume(ctx context.Context, appointmentID uuid.UUID, codeHash string) (bool, error)
}

// generateCode produces a 6-digit numeric confirmation code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// cancellationTarget resolves the appointment a cancellation refers to, by
// id when the caller has one, by identity otherwise. Either way the
// appointment must still be active.
func (s *Service) cancellationTarget(ctx context.Context, appointmentID uuid.UUID, identity string) (*appointment.Appointment, error) {
	if appointmentID != uuid.Nil {
		a, err := s.appts.GetByID(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, appointment.ErrNotFound) {
				return nil, ErrNoActiveAppointment
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !a.Status.IsActive() {
			return nil, ErrNoActiveAppointment
		}
		return a, nil
	}

	identity = appointment.NormalizeIdentity(identity)
	a, err := s.appts.GetActiveByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			return nil, ErrNoActiveAppointment
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return a, nil
}

// RequestCancellation starts the two-step cancellation: a confirmation code
// is generated, stored hashed under the appointment with a TTL, and sent to
// the citizen. Nothing about the appointment changes until the code is
// confirmed; an abandoned request leaves no trace once the code expires.
func (s *Service) RequestCancellation(ctx context.Context, appointmentID uuid.UUID, identity string) error {
	active, err := s.cancellationTarget(ctx, appointmentID, identity)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	if err := s.codes.Put(ctx, active.ID, hashCode(code), s.codeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.dispatcher != nil {
		recipient := active.Email
		if active.Phone != nil {
			recipient = *active.Phone
		}
		data := map[string]string{
			"code":        code,
			"date":        active.Date,
			"ttl_minutes": fmt.Sprintf("%d", int(s.codeTTL.Minutes())),
		}
		if _, err := s.dispatcher.SendFromTemplate(ctx, notification.TemplateCancelCode, data, recipient); err != nil {
			return fmt.Errorf("send confirmation code: %w", err)
		}
	}
	return nil
}

// ConfirmCancellation completes the two-step cancellation. The stored hash
// is consumed atomically so a code works exactly once, and the cancellation
// takes effect at confirmation time, not at request time.
func (s *Service) ConfirmCancellation(ctx context.Context, appointmentID uuid.UUID, identity, code string) (*appointment.Appointment, error) {
	active, err := s.cancellationTarget(ctx, appointmentID, identity)
	if err != nil {
		return nil, err
	}

	ok, err := s.codes.Consume(ctx, active.ID, hashCode(code))
	if err != nil {
		if errors.Is(err, redisclient.ErrCodeNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrInvalidOrExpiredCode
	}

	now := s.now()
	if err := s.appts.UpdateStatus(ctx, active.ID, active.Status, appointment.StatusCancelled, "citizen", nil, now); err != nil {
		if errors.Is(err, appointment.ErrStatusConflict) {
			// Staff moved the appointment while the code was in
			// flight. The code is already burned; make the citizen
			// start over against the current state.
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.sched.Invalidate(active.LocationID)
	s.notify(ctx, notification.TemplateCancelled, active)

	return s.appts.GetByID(ctx, active.ID)
}
