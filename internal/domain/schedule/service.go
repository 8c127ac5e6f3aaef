package schedule

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/cinportal/cinportal/internal/platform/cache"
)

var timeLabelRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Defaults are the portal-wide fallbacks applied when a location has no
// stored schedule config.
type Defaults struct {
	WorkingHours      []string
	MaxPerSlot        int
	BookingWindowDays int
	MaxCandidateDates int
}

type Service struct {
	repo     Repository
	counter  BookingCounter
	cache    *cache.SnapshotCache
	defaults Defaults
	now      func() time.Time
}

func NewService(repo Repository, counter BookingCounter, snapCache *cache.SnapshotCache, defaults Defaults) *Service {
	return &Service{
		repo:     repo,
		counter:  counter,
		cache:    snapCache,
		defaults: defaults,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) cacheScope(locationID uuid.UUID) string {
	return "avail:" + locationID.String()
}

// TakeSnapshot reads everything availability depends on for the location in
// one pass. The booking commit path calls this directly and never touches
// the display cache.
func (s *Service) TakeSnapshot(ctx context.Context, locationID uuid.UUID) (*Snapshot, error) {
	now := s.now()

	cfg, err := s.repo.GetConfig(ctx, locationID)
	if err == ErrConfigNotFound {
		cfg = &Config{
			LocationID:        locationID,
			WorkingHours:      s.defaults.WorkingHours,
			MaxPerSlot:        s.defaults.MaxPerSlot,
			BookingWindowDays: s.defaults.BookingWindowDays,
		}
	} else if err != nil {
		return nil, err
	}

	window := clampWindow(cfg.BookingWindowDays)
	from := now.Format(dateLayout)
	to := now.AddDate(0, 0, window-1).Format(dateLayout)

	blocked, err := s.repo.ListBlocks(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}
	counts, err := s.counter.CountActive(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Config: cfg, Blocked: blocked, Counts: counts, Taken: now}, nil
}

// Dates returns the candidate booking dates for the location, served from
// the display cache when fresh.
func (s *Service) Dates(ctx context.Context, locationID uuid.UUID) ([]CandidateDate, error) {
	key := cache.Key(s.cacheScope(locationID), "dates")
	if v, ok := s.cache.Get(key); ok {
		return v.([]CandidateDate), nil
	}

	snap, err := s.TakeSnapshot(ctx, locationID)
	if err != nil {
		return nil, err
	}
	dates := CandidateDates(snap, locationID, snap.Taken, s.defaults.MaxCandidateDates)
	s.cache.Set(key, dates)
	return dates, nil
}

// Slots returns the slot grid for one date, served from the display cache
// when fresh.
func (s *Service) Slots(ctx context.Context, locationID uuid.UUID, date string) ([]TimeSlot, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}

	key := cache.Key(s.cacheScope(locationID), "slots:"+date)
	if v, ok := s.cache.Get(key); ok {
		return v.([]TimeSlot), nil
	}

	snap, err := s.TakeSnapshot(ctx, locationID)
	if err != nil {
		return nil, err
	}
	slots := ResolveSlots(snap, locationID, date, snap.Taken)
	s.cache.Set(key, slots)
	return slots, nil
}

// Invalidate drops every cached availability view for the location. Called
// after a booking commit, a cancellation, and any staff schedule change.
func (s *Service) Invalidate(locationID uuid.UUID) {
	s.cache.Invalidate(s.cacheScope(locationID))
}

func (s *Service) GetConfig(ctx context.Context, locationID uuid.UUID) (*Config, error) {
	return s.repo.GetConfig(ctx, locationID)
}

func (s *Service) SaveConfig(ctx context.Context, cfg *Config) error {
	if len(cfg.WorkingHours) == 0 {
		return fmt.Errorf("working_hours must not be empty")
	}
	for _, label := range cfg.WorkingHours {
		if !timeLabelRe.MatchString(label) {
			return fmt.Errorf("invalid time label %q: want zero-padded HH:MM", label)
		}
	}
	if cfg.MaxPerSlot < 1 {
		return fmt.Errorf("max_per_slot must be at least 1")
	}
	if cfg.BookingWindowDays < minBookingWindowDays || cfg.BookingWindowDays > maxBookingWindowDays {
		return fmt.Errorf("booking_window_days must be between %d and %d", minBookingWindowDays, maxBookingWindowDays)
	}
	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	s.Invalidate(cfg.LocationID)
	return nil
}

func (s *Service) CreateBlock(ctx context.Context, b *BlockedDate) error {
	if _, err := time.Parse(dateLayout, b.Date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", b.Date)
	}
	switch b.Kind {
	case BlockFullDay:
		b.Times = nil
	case BlockSpecificTimes:
		if len(b.Times) == 0 {
			return fmt.Errorf("specific-times block requires at least one time")
		}
		for _, label := range b.Times {
			if !timeLabelRe.MatchString(label) {
				return fmt.Errorf("invalid time label %q: want zero-padded HH:MM", label)
			}
		}
	default:
		return fmt.Errorf("invalid block kind %q", b.Kind)
	}

	if err := s.repo.CreateBlock(ctx, b); err != nil {
		return err
	}
	if b.LocationID != nil {
		s.Invalidate(*b.LocationID)
	} else {
		s.cache.InvalidateAll()
	}
	return nil
}

func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		return err
	}
	// The deleted rule's scope is gone; drop everything.
	s.cache.InvalidateAll()
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, limit, offset int) ([]BlockedDate, int, error) {
	return s.repo.ListAllBlocks(ctx, limit, offset)
}
