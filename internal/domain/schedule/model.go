package schedule

import (
	"time"

	"github.com/google/uuid"
)

// BlockKind distinguishes how a blocked date restricts booking.
type BlockKind string

const (
	// BlockFullDay removes every slot of the day.
	BlockFullDay BlockKind = "full-day"
	// BlockSpecificTimes removes only the listed time labels.
	BlockSpecificTimes BlockKind = "specific-times"
)

// Config maps to the schedule_config table: the per-location booking
// parameters for one location.
type Config struct {
	ID                uuid.UUID `db:"id" json:"id"`
	LocationID        uuid.UUID `db:"location_id" json:"location_id"`
	WorkingHours      []string  `db:"working_hours" json:"working_hours"`
	MaxPerSlot        int       `db:"max_per_slot" json:"max_per_slot"`
	BookingWindowDays int       `db:"booking_window_days" json:"booking_window_days"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// BlockedDate maps to the blocked_dates table. A nil LocationID applies the
// block to every location. Times is empty for full-day blocks.
type BlockedDate struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	LocationID *uuid.UUID `db:"location_id" json:"location_id,omitempty"`
	Date       string     `db:"date" json:"date"`
	Kind       BlockKind  `db:"kind" json:"kind"`
	Times      []string   `db:"times" json:"times,omitempty"`
	Reason     *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// TimeSlot is the availability view for a single time label on a date.
type TimeSlot struct {
	Time      string `json:"time"`
	Booked    int    `json:"booked"`
	Capacity  int    `json:"capacity"`
	Available bool   `json:"available"`
	Blocked   bool   `json:"blocked"`
}

// DaySlots groups the slots of one date.
type DaySlots struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// Snapshot is a consistent read of everything availability depends on for
// one location: the schedule config, the block rules in range, and the
// per-date non-cancelled booking counts. Calendar and slot views derived
// from the same snapshot never disagree with each other.
type Snapshot struct {
	Config  *Config
	Blocked []BlockedDate
	// Counts maps "YYYY-MM-DD" to time label to non-cancelled bookings.
	Counts map[string]map[string]int
	Taken  time.Time
}
