package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cinportal/cinportal/internal/platform/notification"
)

// Service carries the staff-facing appointment operations: listings, detail
// views with history, and status transitions. Citizen booking and
// cancellation live in the booking package.
type Service struct {
	repo       Repository
	dispatcher *notification.Dispatcher
	// invalidate drops cached availability for a location after a change
	// that frees or occupies capacity.
	invalidate func(locationID uuid.UUID)
	now        func() time.Time
}

func NewService(repo Repository, dispatcher *notification.Dispatcher, invalidate func(uuid.UUID)) *Service {
	if invalidate == nil {
		invalidate = func(uuid.UUID) {}
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		invalidate: invalidate,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]StatusChange, error) {
	return s.repo.ListHistory(ctx, id)
}

// Transition moves an appointment to a new status on behalf of a staff
// member. The repo performs a compare-and-set on the current status, so a
// concurrent change surfaces as ErrStatusConflict instead of silently
// overwriting.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, actor string, note *string) (*Appointment, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("invalid status %q", to)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("cannot transition from %s to %s", a.Status, to)
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, a.Status, to, actor, note, now); err != nil {
		return nil, err
	}

	if to == StatusCancelled {
		s.invalidate(a.LocationID)
	}
	s.notifyTransition(ctx, a, to)

	return s.repo.GetByID(ctx, id)
}

func (s *Service) notifyTransition(ctx context.Context, a *Appointment, to Status) {
	if s.dispatcher == nil {
		return
	}

	var template string
	var recipient string
	switch to {
	case StatusCINReady:
		template = notification.TemplateDocumentReady
		recipient = a.Email
		if a.Phone != nil {
			recipient = *a.Phone
		}
	case StatusCancelled:
		template = notification.TemplateCancelled
		recipient = a.Email
	default:
		return
	}

	data := map[string]string{
		"location":  a.LocationID.String(),
		"date":      a.Date,
		"time":      a.Time,
		"reference": a.ID.String(),
	}
	if _, err := s.dispatcher.SendFromTemplate(ctx, template, data, recipient); err != nil {
		// Notification failure never fails the transition.
		log.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("template", template).
			Msg("notification dispatch failed")
	}
}
