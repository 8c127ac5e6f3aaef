package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var testHours = []string{"09:00", "09:30", "10:00", "10:30", "11:00"}

func testSnapshot(maxPerSlot, windowDays int) *Snapshot {
	return &Snapshot{
		Config: &Config{
			WorkingHours:      testHours,
			MaxPerSlot:        maxPerSlot,
			BookingWindowDays: windowDays,
		},
		Counts: make(map[string]map[string]int),
	}
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

func TestResolveSlotsOneSlotPerLabel(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	slots := ResolveSlots(snap, locID, "2026-09-01", now)
	if len(slots) != len(testHours) {
		t.Fatalf("expected %d slots, got %d", len(testHours), len(slots))
	}
	for i, s := range slots {
		if s.Time != testHours[i] {
			t.Errorf("slot %d: expected label %s, got %s", i, testHours[i], s.Time)
		}
		if !s.Available {
			t.Errorf("slot %s: expected available on empty day", s.Time)
		}
	}
}

func TestResolveSlotsCapacity(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	snap.Counts["2026-09-01"] = map[string]int{
		"09:00": 3,
		"09:30": 2,
	}

	slots := ResolveSlots(snap, locID, "2026-09-01", now)
	if slots[0].Available {
		t.Error("09:00 at capacity should be unavailable")
	}
	if !slots[1].Available {
		t.Error("09:30 below capacity should be available")
	}
	if slots[1].Booked != 2 || slots[1].Capacity != 3 {
		t.Errorf("09:30: expected booked=2 capacity=3, got booked=%d capacity=%d", slots[1].Booked, slots[1].Capacity)
	}
}

func TestResolveSlotsFullDayDominates(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	// A specific-times rule and a full-day rule overlap on the same date.
	snap.Blocked = []BlockedDate{
		{Date: "2026-09-01", Kind: BlockSpecificTimes, Times: []string{"09:00"}},
		{Date: "2026-09-01", Kind: BlockFullDay},
	}

	for _, s := range ResolveSlots(snap, locID, "2026-09-01", now) {
		if s.Available {
			t.Errorf("slot %s: full-day block should close the entire day", s.Time)
		}
		if !s.Blocked {
			t.Errorf("slot %s: expected blocked flag", s.Time)
		}
	}
}

func TestResolveSlotsSpecificTimesUnion(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	snap.Blocked = []BlockedDate{
		{Date: "2026-09-01", Kind: BlockSpecificTimes, Times: []string{"09:00", "09:30"}},
		{Date: "2026-09-01", Kind: BlockSpecificTimes, Times: []string{"09:30", "10:00"}},
	}

	slots := ResolveSlots(snap, locID, "2026-09-01", now)
	wantBlocked := map[string]bool{"09:00": true, "09:30": true, "10:00": true}
	for _, s := range slots {
		if wantBlocked[s.Time] && s.Available {
			t.Errorf("slot %s: expected blocked by union of rules", s.Time)
		}
		if !wantBlocked[s.Time] && !s.Available {
			t.Errorf("slot %s: expected available", s.Time)
		}
	}
}

func TestResolveSlotsLocationScope(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	otherID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	snap.Blocked = []BlockedDate{
		{Date: "2026-09-01", Kind: BlockFullDay, LocationID: &otherID},
	}

	for _, s := range ResolveSlots(snap, locID, "2026-09-01", now) {
		if !s.Available {
			t.Errorf("slot %s: block scoped to another location should not apply", s.Time)
		}
	}

	// A global rule (nil location) applies everywhere.
	snap.Blocked = []BlockedDate{{Date: "2026-09-01", Kind: BlockFullDay}}
	for _, s := range ResolveSlots(snap, locID, "2026-09-01", now) {
		if s.Available {
			t.Errorf("slot %s: global block should apply to every location", s.Time)
		}
	}
}

func TestResolveSlotsSameDayCutoff(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()

	// 09:45 on the queried day: 09:00 and 09:30 are gone, 10:00 onward stay.
	now := mustTime(t, "2026-09-01 09:45")
	slots := ResolveSlots(snap, locID, "2026-09-01", now)

	for _, s := range slots {
		want := s.Time > "09:45"
		if s.Available != want {
			t.Errorf("slot %s at 09:45: available=%v, want %v", s.Time, s.Available, want)
		}
	}
}

func TestResolveSlotsCutoffExactMatch(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()

	// A slot whose label equals the current time is already past.
	now := mustTime(t, "2026-09-01 10:00")
	if SlotAvailable(snap, locID, "2026-09-01", "10:00", now) {
		t.Error("slot at exactly the current time should be unavailable")
	}
	if !SlotAvailable(snap, locID, "2026-09-01", "10:30", now) {
		t.Error("later slot should remain available")
	}
}

func TestResolveSlotsCutoffOnlyAppliesToday(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()

	now := mustTime(t, "2026-09-01 23:00")
	for _, s := range ResolveSlots(snap, locID, "2026-09-02", now) {
		if !s.Available {
			t.Errorf("slot %s tomorrow: cutoff must not apply to future dates", s.Time)
		}
	}
}

func TestResolveSlotsUnavailableCarryZeroCount(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()

	snap.Counts["2026-09-01"] = map[string]int{
		"09:00": 2,
		"10:00": 1,
	}
	snap.Blocked = []BlockedDate{
		{Date: "2026-09-01", Kind: BlockSpecificTimes, Times: []string{"10:00"}},
	}

	// 09:20 on the queried day: 09:00 is past, 10:00 is blocked. Neither
	// reports its bookings.
	now := mustTime(t, "2026-09-01 09:20")
	for _, s := range ResolveSlots(snap, locID, "2026-09-01", now) {
		if s.Time == "09:00" || s.Time == "10:00" {
			if s.Available {
				t.Errorf("slot %s should be unavailable", s.Time)
			}
			if s.Booked != 0 {
				t.Errorf("slot %s: unavailable slot should report 0 booked, got %d", s.Time, s.Booked)
			}
		}
	}
}

func TestSlotAvailableUnknownLabel(t *testing.T) {
	snap := testSnapshot(3, 30)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	if SlotAvailable(snap, locID, "2026-09-01", "09:15", now) {
		t.Error("a label outside working hours is never bookable")
	}
}

func TestCandidateDatesCap(t *testing.T) {
	snap := testSnapshot(3, 60)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	dates := CandidateDates(snap, locID, now, 14)
	if len(dates) != 14 {
		t.Fatalf("expected candidate list capped at 14, got %d", len(dates))
	}
	if dates[0].Date != "2026-08-28" {
		t.Errorf("expected calendar to start today, got %s", dates[0].Date)
	}
}

func TestCandidateDatesSkipBlocked(t *testing.T) {
	snap := testSnapshot(3, 10)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	snap.Blocked = []BlockedDate{
		{Date: "2026-08-29", Kind: BlockFullDay},
		{Date: "2026-08-30", Kind: BlockFullDay},
	}

	dates := CandidateDates(snap, locID, now, 14)
	for _, d := range dates {
		if d.Date == "2026-08-29" || d.Date == "2026-08-30" {
			t.Errorf("fully blocked date %s must not be a candidate", d.Date)
		}
	}
	if len(dates) != 9 {
		t.Errorf("expected 9 candidates in the 11 days of a 10-day window with 2 blocked days, got %d", len(dates))
	}
}

func TestCandidateDatesIncludeWindowLastDay(t *testing.T) {
	snap := testSnapshot(3, 5)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	dates := CandidateDates(snap, locID, now, 14)
	if len(dates) != 6 {
		t.Fatalf("expected 6 candidates for a 5-day window, got %d", len(dates))
	}
	if last := dates[len(dates)-1].Date; last != "2026-09-02" {
		t.Errorf("expected the window's last day 2026-09-02, got %s", last)
	}
}

func TestCandidateDatesWindowClamp(t *testing.T) {
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 23:59")

	// Window below 1 clamps to 1: today and tomorrow are walked, and every
	// slot of today is past the cutoff.
	snap := testSnapshot(3, 0)
	got := CandidateDates(snap, locID, now, 14)
	if len(got) != 1 || got[0].Date != "2026-08-29" {
		t.Errorf("expected only tomorrow late at night with a 1-day window, got %v", got)
	}

	// Window above 365 clamps to 365.
	snap = testSnapshot(3, 10000)
	early := mustTime(t, "2026-08-28 00:00")
	dates := CandidateDates(snap, locID, early, 100000)
	if len(dates) != 366 {
		t.Errorf("expected 366 candidates with an oversized window, got %d", len(dates))
	}
}

func TestCandidateDatesConsistentWithSlots(t *testing.T) {
	snap := testSnapshot(1, 5)
	locID := uuid.New()
	now := mustTime(t, "2026-08-28 08:00")

	// Fill every slot of one day so it drops out of the calendar.
	snap.Counts["2026-08-29"] = map[string]int{}
	for _, h := range testHours {
		snap.Counts["2026-08-29"][h] = 1
	}

	dates := CandidateDates(snap, locID, now, 14)
	for _, d := range dates {
		if d.Date == "2026-08-29" {
			t.Error("fully booked date must not be a candidate")
		}
		// Every listed date shows at least one available slot from the
		// same snapshot.
		found := false
		for _, s := range ResolveSlots(snap, locID, d.Date, now) {
			if s.Available {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("candidate date %s has no available slot", d.Date)
		}
	}
}
