package booking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cinportal/cinportal/internal/domain/appointment"
	"github.com/cinportal/cinportal/internal/domain/schedule"
	"github.com/cinportal/cinportal/internal/platform/cache"
	"github.com/cinportal/cinportal/internal/platform/notification"
	redisclient "github.com/cinportal/cinportal/internal/platform/redis"
)

// memStore is an in-memory appointment.Repository. A single mutex guards
// everything so the capacity check and insert are atomic, mirroring the
// guarded INSERT of the Postgres repo.
type memStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*appointment.Appointment
	history      []appointment.StatusChange
}

func newMemStore() *memStore {
	return &memStore{appointments: make(map[uuid.UUID]*appointment.Appointment)}
}

func (m *memStore) CreateWithCapacity(_ context.Context, a *appointment.Appointment, maxPerSlot int, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.appointments {
		if e.LocationID == a.LocationID && e.Date == a.Date && e.Time == a.Time && e.Status != appointment.StatusCancelled {
			count++
		}
	}
	if count >= maxPerSlot {
		return appointment.ErrCapacityExceeded
	}
	for _, e := range m.appointments {
		if e.IdentityNumber == a.IdentityNumber && e.Status.IsActive() {
			return appointment.ErrActiveExists
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = appointment.StatusPending
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appointments[a.ID] = &cp
	m.history = append(m.history, appointment.StatusChange{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		ToStatus:      appointment.StatusPending,
		Actor:         actor,
		ChangedAt:     a.CreatedAt,
	})
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetActiveByIdentity(_ context.Context, identity string) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.IdentityNumber == identity && a.Status.IsActive() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, appointment.ErrNotFound
}

func (m *memStore) ListByIdentity(_ context.Context, identity string) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.appointments {
		if a.IdentityNumber == identity {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, f appointment.ListFilter) ([]*appointment.Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.appointments {
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status, actor string, note *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return appointment.ErrNotFound
	}
	if a.Status != from {
		return appointment.ErrStatusConflict
	}
	a.Status = to
	a.UpdatedAt = at
	fromCopy := from
	m.history = append(m.history, appointment.StatusChange{
		ID:            uuid.New(),
		AppointmentID: id,
		FromStatus:    &fromCopy,
		ToStatus:      to,
		Actor:         actor,
		Note:          note,
		ChangedAt:     at,
	})
	return nil
}

func (m *memStore) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]appointment.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []appointment.StatusChange
	for _, sc := range m.history {
		if sc.AppointmentID == appointmentID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (m *memStore) CancellationTimes(_ context.Context, identity string, since time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, sc := range m.history {
		if sc.ToStatus != appointment.StatusCancelled {
			continue
		}
		if sc.Note != nil && (*sc.Note == appointment.NoteRescheduled || *sc.Note == appointment.NoteNoShow) {
			continue
		}
		a, ok := m.appointments[sc.AppointmentID]
		if !ok || a.IdentityNumber != identity {
			continue
		}
		if sc.ChangedAt.Before(since) {
			continue
		}
		out = append(out, sc.ChangedAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (m *memStore) NoShowTimes(_ context.Context, identity string, since time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, sc := range m.history {
		if sc.ToStatus != appointment.StatusCancelled || sc.Note == nil || *sc.Note != appointment.NoteNoShow {
			continue
		}
		a, ok := m.appointments[sc.AppointmentID]
		if !ok || a.IdentityNumber != identity || a.Date < since.Format("2006-01-02") {
			continue
		}
		if day, err := time.Parse("2006-01-02", a.Date); err == nil {
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (m *memStore) RescheduleTimes(_ context.Context, identity string, since time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, sc := range m.history {
		if sc.ToStatus != appointment.StatusCancelled || sc.Note == nil || *sc.Note != appointment.NoteRescheduled {
			continue
		}
		a, ok := m.appointments[sc.AppointmentID]
		if !ok || a.IdentityNumber != identity {
			continue
		}
		if sc.ChangedAt.Before(since) {
			continue
		}
		out = append(out, sc.ChangedAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (m *memStore) CountActive(_ context.Context, locationID uuid.UUID, from, to string) (map[string]map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]map[string]int)
	for _, a := range m.appointments {
		if a.LocationID != locationID || a.Status == appointment.StatusCancelled {
			continue
		}
		if a.Date < from || a.Date > to {
			continue
		}
		if counts[a.Date] == nil {
			counts[a.Date] = make(map[string]int)
		}
		counts[a.Date][a.Time]++
	}
	return counts, nil
}

// memScheduleRepo backs the schedule service with static config.
type memScheduleRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*schedule.Config
	blocks  []schedule.BlockedDate
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{configs: make(map[uuid.UUID]*schedule.Config)}
}

func (m *memScheduleRepo) GetConfig(_ context.Context, locationID uuid.UUID) (*schedule.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[locationID]
	if !ok {
		return nil, schedule.ErrConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (m *memScheduleRepo) SaveConfig(_ context.Context, cfg *schedule.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[cfg.LocationID] = &cp
	return nil
}

func (m *memScheduleRepo) CreateBlock(_ context.Context, b *schedule.BlockedDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.blocks = append(m.blocks, *b)
	return nil
}

func (m *memScheduleRepo) DeleteBlock(_ context.Context, id uuid.UUID) error {
	return schedule.ErrBlockNotFound
}

func (m *memScheduleRepo) ListBlocks(_ context.Context, locationID uuid.UUID, from, to string) ([]schedule.BlockedDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schedule.BlockedDate
	for _, b := range m.blocks {
		if b.LocationID != nil && *b.LocationID != locationID {
			continue
		}
		if b.Date < from || b.Date > to {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memScheduleRepo) ListAllBlocks(_ context.Context, limit, offset int) ([]schedule.BlockedDate, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schedule.BlockedDate(nil), m.blocks...), len(m.blocks), nil
}

// memCodes is an in-memory CodeStore with expiry driven by the harness clock.
type memCodes struct {
	mu      sync.Mutex
	hashes  map[uuid.UUID]string
	expires map[uuid.UUID]time.Time
	now     func() time.Time
}

func newMemCodes(now func() time.Time) *memCodes {
	return &memCodes{
		hashes:  make(map[uuid.UUID]string),
		expires: make(map[uuid.UUID]time.Time),
		now:     now,
	}
}

func (m *memCodes) Put(_ context.Context, appointmentID uuid.UUID, codeHash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[appointmentID] = codeHash
	m.expires[appointmentID] = m.now().Add(ttl)
	return nil
}

func (m *memCodes) Consume(_ context.Context, appointmentID uuid.UUID, codeHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.hashes[appointmentID]
	if !ok || m.now().After(m.expires[appointmentID]) {
		delete(m.hashes, appointmentID)
		delete(m.expires, appointmentID)
		return false, redisclient.ErrCodeNotFound
	}
	if stored != codeHash {
		return false, nil
	}
	delete(m.hashes, appointmentID)
	delete(m.expires, appointmentID)
	return true, nil
}

// harness wires a booking service over in-memory collaborators with a
// controllable clock.
type harness struct {
	store     *memStore
	schedRepo *memScheduleRepo
	codes     *memCodes
	svc       *Service
	email     *notification.MockEmailSender
	whatsapp  *notification.MockWhatsAppSender
	locID     uuid.UUID
	clock     time.Time
	mu        sync.Mutex
}

// blockDay adds a full-day block for the harness location.
func (h *harness) blockDay(date string) {
	h.schedRepo.mu.Lock()
	defer h.schedRepo.mu.Unlock()
	h.schedRepo.blocks = append(h.schedRepo.blocks, schedule.BlockedDate{
		ID:   uuid.New(),
		Date: date,
		Kind: schedule.BlockFullDay,
	})
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(d)
}

func newHarness(t *testing.T, maxPerSlot int) *harness {
	t.Helper()

	h := &harness{
		store: newMemStore(),
		locID: uuid.New(),
		clock: time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC),
	}
	h.codes = newMemCodes(h.now)

	schedRepo := newMemScheduleRepo()
	h.schedRepo = schedRepo
	schedRepo.configs[h.locID] = &schedule.Config{
		ID:                uuid.New(),
		LocationID:        h.locID,
		WorkingHours:      []string{"09:00", "09:30", "10:00"},
		MaxPerSlot:        maxPerSlot,
		BookingWindowDays: 30,
	}
	sched := schedule.NewService(schedRepo, h.store, cache.New(0), schedule.Defaults{
		WorkingHours:      []string{"09:00", "09:30", "10:00"},
		MaxPerSlot:        maxPerSlot,
		BookingWindowDays: 30,
		MaxCandidateDates: 14,
	}).WithClock(h.now)

	h.email = &notification.MockEmailSender{}
	h.whatsapp = &notification.MockWhatsAppSender{}
	dispatcher := notification.NewDispatcher(h.email, h.whatsapp, notification.NewTemplateEngine(), 0)

	cfg := PolicyConfig{LockoutWindowDays: 7, LockoutThreshold: 3, RescheduleLimit: 2}
	h.svc = NewService(
		h.store, sched, redisclient.NoopSlotLocker{}, h.codes,
		NewGuard(cfg), dispatcher, cfg, 15*time.Minute,
	).WithClock(h.now)

	return h
}

func (h *harness) request(identity string) Request {
	return Request{
		IdentityNumber: identity,
		FullName:       "Test Citizen",
		Email:          "citizen@example.com",
		LocationID:     h.locID,
		Date:           "2026-09-01",
		Time:           "09:00",
	}
}
