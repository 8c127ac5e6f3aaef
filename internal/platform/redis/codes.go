package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCodeNotFound is returned when no confirmation code is stored for an
// appointment, either because none was requested or because it expired.
var ErrCodeNotFound = errors.New("confirmation code not found")

// CodeStore keeps hashed cancellation confirmation codes with a TTL.
// Codes are single-use: Consume deletes the stored hash on match.
type CodeStore struct {
	client *redis.Client
}

func NewCodeStore(client *redis.Client) *CodeStore {
	return &CodeStore{client: client}
}

func codeKey(appointmentID uuid.UUID) string {
	return fmt.Sprintf("cancel:code:%s", appointmentID.String())
}

// Put stores the hashed code for an appointment, replacing any previous one.
func (s *CodeStore) Put(ctx context.Context, appointmentID uuid.UUID, codeHash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, codeKey(appointmentID), codeHash, ttl).Err(); err != nil {
		return fmt.Errorf("store confirmation code: %w", err)
	}
	return nil
}

// Consume atomically compares the stored hash against codeHash and deletes it
// on match. Returns ErrCodeNotFound when nothing is stored and (false, nil)
// when the code does not match.
func (s *CodeStore) Consume(ctx context.Context, appointmentID uuid.UUID, codeHash string) (bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{codeKey(appointmentID)}, codeHash).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrCodeNotFound
		}
		return false, fmt.Errorf("consume confirmation code: %w", err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, ErrCodeNotFound
	default:
		return false, nil
	}
}

var consumeScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == false then
  return -1
end
if val == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)
