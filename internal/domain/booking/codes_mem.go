package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/cinportal/cinportal/internal/platform/redis"
)

// InMemoryCodeStore is a process-local CodeStore used when Redis is not
// configured. Codes do not survive a restart and are not shared across
// instances, which is acceptable for development and single-node setups.
type InMemoryCodeStore struct {
	mu      sync.Mutex
	hashes  map[uuid.UUID]string
	expires map[uuid.UUID]time.Time
}

func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{
		hashes:  make(map[uuid.UUID]string),
		expires: make(map[uuid.UUID]time.Time),
	}
}

func (s *InMemoryCodeStore) Put(_ context.Context, appointmentID uuid.UUID, codeHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[appointmentID] = codeHash
	s.expires[appointmentID] = time.Now().Add(ttl)
	return nil
}

func (s *InMemoryCodeStore) Consume(_ context.Context, appointmentID uuid.UUID, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.hashes[appointmentID]
	if !ok || time.Now().After(s.expires[appointmentID]) {
		delete(s.hashes, appointmentID)
		delete(s.expires, appointmentID)
		return false, redisclient.ErrCodeNotFound
	}
	if stored != codeHash {
		return false, nil
	}
	delete(s.hashes, appointmentID)
	delete(s.expires, appointmentID)
	return true, nil
}
