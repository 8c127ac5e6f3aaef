package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when another process holds the slot lock.
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// SlotLocker guards the booking commit critical section for one slot. A slot
// is identified by its (location, date, time) triple. The lock is an
// optimisation to reduce write conflicts; the database capacity constraint
// remains the correctness guarantee, so a Redis outage must not block
// bookings.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, locationID uuid.UUID, date, timeLabel string, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSlotLocker creates a locker that uses a per-slot Redis key.
func NewSlotLocker(client *redis.Client, ttl time.Duration) SlotLocker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, locationID uuid.UUID, date, timeLabel string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:slot:%s:%s:%s", locationID.String(), date, timeLabel)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// NoopSlotLocker runs the critical section without any distributed lock.
// Used when Redis is not configured; the database constraint still prevents
// overbooking.
type NoopSlotLocker struct{}

func (NoopSlotLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
