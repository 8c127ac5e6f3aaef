package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrConfigNotFound is returned when a location has no schedule config.
	ErrConfigNotFound = errors.New("schedule config not found")
	// ErrBlockNotFound is returned when no blocked date matches the ID.
	ErrBlockNotFound = errors.New("blocked date not found")
)

type Repository interface {
	GetConfig(ctx context.Context, locationID uuid.UUID) (*Config, error)
	SaveConfig(ctx context.Context, cfg *Config) error

	CreateBlock(ctx context.Context, b *BlockedDate) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error
	// ListBlocks returns the rules that can affect the location in the
	// inclusive date range: location-scoped rules plus global ones.
	ListBlocks(ctx context.Context, locationID uuid.UUID, from, to string) ([]BlockedDate, error)
	ListAllBlocks(ctx context.Context, limit, offset int) ([]BlockedDate, int, error)
}

// BookingCounter supplies per-slot booking counts from the appointment
// store. Cancelled appointments are excluded so a cancellation frees its
// slot immediately.
type BookingCounter interface {
	CountActive(ctx context.Context, locationID uuid.UUID, from, to string) (map[string]map[string]int, error)
}
