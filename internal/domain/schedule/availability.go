package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ResolveSlots computes the availability of every working-hours label for
// one date, in the order the schedule config lists them. Each configured
// label yields exactly one slot so the caller can always render a full
// grid. A slot is available when it is not blocked, has not passed the
// same-day cutoff, and its non-cancelled booking count is below capacity.
func ResolveSlots(snap *Snapshot, locationID uuid.UUID, date string, now time.Time) []TimeSlot {
	decision := EvaluateBlocks(snap.Blocked, locationID, date)
	counts := snap.Counts[date]

	sameDay := date == now.Format(dateLayout)
	cutoff := now.Format(timeLayout)

	slots := make([]TimeSlot, 0, len(snap.Config.WorkingHours))
	for _, label := range snap.Config.WorkingHours {
		booked := counts[label]
		blocked := decision.Blocks(label)
		// Time labels are zero-padded HH:MM so lexical order is
		// chronological order.
		past := sameDay && label <= cutoff

		available := !blocked && !past && booked < snap.Config.MaxPerSlot
		// Unavailable slots surface no occupancy.
		if blocked || past {
			booked = 0
		}

		slots = append(slots, TimeSlot{
			Time:      label,
			Booked:    booked,
			Capacity:  snap.Config.MaxPerSlot,
			Available: available,
			Blocked:   blocked,
		})
	}
	return slots
}

// SlotAvailable reports whether one specific (date, time) pair is bookable.
// The booking transaction re-validates with this after taking the slot lock.
func SlotAvailable(snap *Snapshot, locationID uuid.UUID, date, timeLabel string, now time.Time) bool {
	for _, s := range ResolveSlots(snap, locationID, date, now) {
		if s.Time == timeLabel {
			return s.Available
		}
	}
	return false
}

// HasAvailability reports whether any slot of the date is bookable.
func HasAvailability(snap *Snapshot, locationID uuid.UUID, date string, now time.Time) bool {
	for _, s := range ResolveSlots(snap, locationID, date, now) {
		if s.Available {
			return true
		}
	}
	return false
}
