package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cinportal/cinportal/internal/domain/appointment"
	"github.com/cinportal/cinportal/internal/domain/schedule"
	"github.com/cinportal/cinportal/internal/platform/notification"
	redisclient "github.com/cinportal/cinportal/internal/platform/redis"
)

var (
	timeLabelRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	identityRe  = regexp.MustCompile(`^[A-Z]{1,2}[0-9]{4,8}$`)
)

const dateLayout = "2006-01-02"

// Request is a citizen booking request.
type Request struct {
	IdentityNumber string    `json:"identity_number"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	LocationID     uuid.UUID `json:"location_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
}

// Service owns the citizen-facing booking lifecycle: the commit transaction,
// the lockout pre-check, the two-step cancellation, and staff reschedules.
type Service struct {
	appts      appointment.Repository
	sched      *schedule.Service
	locker     redisclient.SlotLocker
	codes      CodeStore
	guard      *Guard
	dispatcher *notification.Dispatcher
	cfg        PolicyConfig
	codeTTL    time.Duration
	now        func() time.Time
}

func NewService(
	appts appointment.Repository,
	sched *schedule.Service,
	locker redisclient.SlotLocker,
	codes CodeStore,
	guard *Guard,
	dispatcher *notification.Dispatcher,
	cfg PolicyConfig,
	codeTTL time.Duration,
) *Service {
	if locker == nil {
		locker = redisclient.NoopSlotLocker{}
	}
	return &Service{
		appts:      appts,
		sched:      sched,
		locker:     locker,
		codes:      codes,
		guard:      guard,
		dispatcher: dispatcher,
		cfg:        cfg,
		codeTTL:    codeTTL,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func validate(req *Request) error {
	req.IdentityNumber = appointment.NormalizeIdentity(req.IdentityNumber)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)

	if !identityRe.MatchString(req.IdentityNumber) {
		return &ValidationError{Field: "identity_number", Message: "invalid national identity number"}
	}
	if req.FullName == "" {
		return &ValidationError{Field: "full_name", Message: "full name is required"}
	}
	if !strings.Contains(req.Email, "@") {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	if req.LocationID == uuid.Nil {
		return &ValidationError{Field: "location_id", Message: "location is required"}
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return &ValidationError{Field: "date", Message: "want YYYY-MM-DD"}
	}
	if !timeLabelRe.MatchString(req.Time) {
		return &ValidationError{Field: "time", Message: "want zero-padded HH:MM"}
	}
	return nil
}

// history assembles the identity's policy-relevant history from the store.
// A no-show is an appointment left in an active state past its scheduled
// day; its strike time is the scheduled date itself.
func (s *Service) history(ctx context.Context, identity string, now time.Time) (IdentityHistory, error) {
	var h IdentityHistory

	active, err := s.appts.GetActiveByIdentity(ctx, identity)
	if err != nil && !errors.Is(err, appointment.ErrNotFound) {
		return h, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	h.Active = active

	since := now.AddDate(0, 0, -s.cfg.LockoutWindowDays)
	h.Cancellations, err = s.appts.CancellationTimes(ctx, identity, since)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	h.NoShows, err = s.appts.NoShowTimes(ctx, identity, since)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	h.Reschedules, err = s.appts.RescheduleTimes(ctx, identity, since)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// A missed appointment the identity still holds is a no-show strike
	// too; it only reaches NoShowTimes once retireNoShow cancels it.
	all, err := s.appts.ListByIdentity(ctx, identity)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	today := now.Format(dateLayout)
	for _, a := range all {
		if !a.Status.IsActive() || a.Date >= today {
			continue
		}
		day, err := time.Parse(dateLayout, a.Date)
		if err != nil {
			continue
		}
		h.NoShows = append(h.NoShows, day)
	}
	return h, nil
}

// retireNoShow cancels a missed appointment the identity still holds so the
// replacement can become their single active one. The miss already counts
// as a no-show strike; the note keeps it out of the cancellation strikes.
func (s *Service) retireNoShow(ctx context.Context, stale *appointment.Appointment, now time.Time) error {
	if stale == nil || stale.Date >= now.Format(dateLayout) {
		return nil
	}
	note := appointment.NoteNoShow
	err := s.appts.UpdateStatus(ctx, stale.ID, stale.Status, appointment.StatusCancelled, "system", &note, now)
	if err != nil && !errors.Is(err, appointment.ErrStatusConflict) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LockoutStatus answers the public pre-booking check: is this identity
// temporarily blocked, and until when.
func (s *Service) LockoutStatus(ctx context.Context, identity string) (PolicyDecision, error) {
	identity = appointment.NormalizeIdentity(identity)
	now := s.now()
	h, err := s.history(ctx, identity, now)
	if err != nil {
		return PolicyDecision{}, err
	}
	return s.guard.CheckLockout(h, now), nil
}

// Commit books a slot for a citizen. The policy guard runs first; then the
// slot lock narrows the race window, the availability snapshot is re-read
// under the lock, and the capacity-guarded insert decides the winner. A
// capacity failure earns exactly one re-read before the request is rejected.
func (s *Service) Commit(ctx context.Context, req Request) (*appointment.Appointment, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}
	now := s.now()

	h, err := s.history(ctx, req.IdentityNumber, now)
	if err != nil {
		return nil, err
	}
	if d := s.guard.Evaluate(h, now); !d.Allowed() {
		return nil, &PolicyError{Decision: d}
	}
	if err := s.retireNoShow(ctx, h.Active, now); err != nil {
		return nil, err
	}

	created, err := s.commitLocked(ctx, req, 0)
	if err != nil {
		return nil, err
	}

	s.sched.Invalidate(req.LocationID)
	s.notify(ctx, notification.TemplateBookingConfirmed, created)
	return created, nil
}

// commitLocked runs the insert under the slot lock. A held lock means
// another commit for the same slot is in flight; the database capacity
// guard stays correct without the lock, so lock contention and Redis
// failures degrade to running unlocked.
func (s *Service) commitLocked(ctx context.Context, req Request, rescheduleCount int) (*appointment.Appointment, error) {
	var created *appointment.Appointment
	run := func(ctx context.Context) error {
		a, err := s.tryInsert(ctx, req, rescheduleCount)
		if err != nil {
			return err
		}
		created = a
		return nil
	}

	err := s.locker.WithSlotLock(ctx, req.LocationID, req.Date, req.Time, run)
	if err != nil && errors.Is(err, redisclient.ErrLockNotAcquired) {
		log.Debug().
			Str("location_id", req.LocationID.String()).
			Str("date", req.Date).
			Str("time", req.Time).
			Msg("slot lock contended, falling back to store constraint")
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) tryInsert(ctx context.Context, req Request, rescheduleCount int) (*appointment.Appointment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		snap, err := s.sched.TakeSnapshot(ctx, req.LocationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !schedule.SlotAvailable(snap, req.LocationID, req.Date, req.Time, snap.Taken) {
			return nil, ErrSlotUnavailable
		}

		a := &appointment.Appointment{
			IdentityNumber:  req.IdentityNumber,
			FullName:        req.FullName,
			Email:           req.Email,
			Phone:           req.Phone,
			LocationID:      req.LocationID,
			Date:            req.Date,
			Time:            req.Time,
			RescheduleCount: rescheduleCount,
		}
		err = s.appts.CreateWithCapacity(ctx, a, snap.Config.MaxPerSlot, "citizen")
		switch {
		case err == nil:
			return a, nil
		case errors.Is(err, appointment.ErrCapacityExceeded):
			// Lost the race; one fresh snapshot before giving up.
			continue
		case errors.Is(err, appointment.ErrActiveExists):
			return nil, &PolicyError{Decision: PolicyDecision{
				Kind:   DecisionActiveExists,
				Reason: "identity already holds an active appointment",
			}}
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil, ErrSlotUnavailable
}

// SlotChange names the target slot of a reschedule. The citizen's details
// carry over from the existing appointment.
type SlotChange struct {
	LocationID uuid.UUID `json:"location_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
}

// Reschedule moves the identity's active appointment to a new slot on
// behalf of staff. The old appointment is cancelled with a reschedule note
// so the lockout rule does not count it, and the replacement inherits an
// incremented reschedule count.
func (s *Service) Reschedule(ctx context.Context, identity string, slot SlotChange, actor string) (*appointment.Appointment, error) {
	identity = appointment.NormalizeIdentity(identity)
	now := s.now()

	h, err := s.history(ctx, identity, now)
	if err != nil {
		return nil, err
	}
	if h.Active == nil {
		return nil, ErrNoActiveAppointment
	}
	if d := s.guard.EvaluateReschedule(h, now); !d.Allowed() {
		return nil, &PolicyError{Decision: d}
	}

	old := h.Active
	req := Request{
		IdentityNumber: identity,
		FullName:       old.FullName,
		Email:          old.Email,
		Phone:          old.Phone,
		LocationID:     slot.LocationID,
		Date:           slot.Date,
		Time:           slot.Time,
	}
	if err := validate(&req); err != nil {
		return nil, err
	}
	note := appointment.NoteRescheduled
	if err := s.appts.UpdateStatus(ctx, old.ID, old.Status, appointment.StatusCancelled, actor, &note, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	created, err := s.commitLocked(ctx, req, old.RescheduleCount+1)
	if err != nil {
		// Put the old appointment back so the citizen does not lose
		// their slot over a failed move.
		if rbErr := s.appts.UpdateStatus(ctx, old.ID, appointment.StatusCancelled, old.Status, actor, &note, now); rbErr != nil {
			log.Error().Err(rbErr).
				Str("appointment_id", old.ID.String()).
				Msg("reschedule rollback failed")
		}
		return nil, err
	}

	s.sched.Invalidate(old.LocationID)
	s.sched.Invalidate(created.LocationID)
	s.notify(ctx, notification.TemplateRescheduled, created)
	return created, nil
}

func (s *Service) notify(ctx context.Context, template string, a *appointment.Appointment) {
	if s.dispatcher == nil {
		return
	}
	data := map[string]string{
		"location":  a.LocationID.String(),
		"date":      a.Date,
		"time":      a.Time,
		"reference": a.ID.String(),
	}
	if _, err := s.dispatcher.SendFromTemplate(ctx, template, data, a.Email); err != nil {
		log.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("template", template).
			Msg("notification dispatch failed")
	}
}
