package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	minBookingWindowDays = 1
	maxBookingWindowDays = 365
)

// CandidateDate is one entry of the booking calendar.
type CandidateDate struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// clampWindow keeps the booking window inside [1, 365] days regardless of
// what the stored config says.
func clampWindow(days int) int {
	if days < minBookingWindowDays {
		return minBookingWindowDays
	}
	if days > maxBookingWindowDays {
		return maxBookingWindowDays
	}
	return days
}

// CandidateDates walks from today through the window's last day inclusive
// and returns the first maxCandidates dates that still have at least one
// bookable slot.
// The walk and the per-date slot views both derive from the same snapshot,
// so a date listed here always shows at least one available slot when the
// citizen drills into it immediately after.
func CandidateDates(snap *Snapshot, locationID uuid.UUID, now time.Time, maxCandidates int) []CandidateDate {
	window := clampWindow(snap.Config.BookingWindowDays)

	var out []CandidateDate
	for i := 0; i <= window && len(out) < maxCandidates; i++ {
		date := now.AddDate(0, 0, i).Format(dateLayout)
		if HasAvailability(snap, locationID, date, now) {
			out = append(out, CandidateDate{Date: date, Available: true})
		}
	}
	return out
}
