package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cinportal/cinportal/internal/domain/appointment"
)

func TestCommitHappyPath(t *testing.T) {
	h := newHarness(t, 3)

	a, err := h.svc.Commit(context.Background(), h.request("AB123456"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if a.Status != appointment.StatusPending {
		t.Errorf("expected pending, got %s", a.Status)
	}
	if a.IdentityNumber != "AB123456" {
		t.Errorf("unexpected identity %q", a.IdentityNumber)
	}
	if len(h.email.Calls()) != 1 {
		t.Errorf("expected 1 confirmation email, got %d", len(h.email.Calls()))
	}
}

func TestCommitNormalizesIdentity(t *testing.T) {
	h := newHarness(t, 3)

	a, err := h.svc.Commit(context.Background(), h.request("  ab123456 "))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if a.IdentityNumber != "AB123456" {
		t.Errorf("expected normalized identity, got %q", a.IdentityNumber)
	}
}

func TestCommitValidation(t *testing.T) {
	h := newHarness(t, 3)

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"bad identity", func(r *Request) { r.IdentityNumber = "!!!" }},
		{"empty name", func(r *Request) { r.FullName = " " }},
		{"bad email", func(r *Request) { r.Email = "not-an-email" }},
		{"bad date", func(r *Request) { r.Date = "01/09/2026" }},
		{"bad time", func(r *Request) { r.Time = "9:00" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := h.request("AB123456")
			tc.mutate(&req)
			_, err := h.svc.Commit(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCommitSecondActiveRejected(t *testing.T) {
	h := newHarness(t, 3)

	if _, err := h.svc.Commit(context.Background(), h.request("AB123456")); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	req := h.request("AB123456")
	req.Time = "09:30"
	_, err := h.svc.Commit(context.Background(), req)
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Kind != DecisionActiveExists {
		t.Errorf("expected active-appointment-exists, got %v", err)
	}
	if pe != nil && pe.Decision.Existing == nil {
		t.Error("decision should carry the existing appointment")
	}
}

func TestCommitSlotFull(t *testing.T) {
	h := newHarness(t, 1)

	if _, err := h.svc.Commit(context.Background(), h.request("AB123456")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := h.svc.Commit(context.Background(), h.request("CD654321"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCommitBlockedDate(t *testing.T) {
	h := newHarness(t, 3)

	req := h.request("AB123456")
	h.blockDay(req.Date)

	_, err := h.svc.Commit(context.Background(), req)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable on blocked day, got %v", err)
	}
}

func TestCommitPastCutoff(t *testing.T) {
	h := newHarness(t, 3)

	req := h.request("AB123456")
	req.Date = "2026-08-28" // the harness clock's current day, 08:00
	req.Time = "09:00"

	// Move the clock past the slot.
	h.advance(2 * time.Hour)

	_, err := h.svc.Commit(context.Background(), req)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable past the cutoff, got %v", err)
	}
}

func TestCommitLockout(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	// Book and cancel three times in quick succession.
	for i := 0; i < 3; i++ {
		a, err := h.svc.Commit(context.Background(), h.request(identity))
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		if err := h.store.UpdateStatus(context.Background(), a.ID, a.Status, appointment.StatusCancelled, "citizen", nil, h.now()); err != nil {
			t.Fatalf("cancel %d: %v", i, err)
		}
		h.advance(time.Minute)
	}

	_, err := h.svc.Commit(context.Background(), h.request(identity))
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Kind != DecisionBlockedTemporarily {
		t.Fatalf("expected blocked-temporarily after 3 cancellations, got %v", err)
	}
	if pe.Decision.UnblockAt == nil {
		t.Error("expected unblock time on the decision")
	}

	d, err := h.svc.LockoutStatus(context.Background(), identity)
	if err != nil {
		t.Fatalf("lockout status: %v", err)
	}
	if d.Kind != DecisionBlockedTemporarily {
		t.Errorf("lockout check should agree with the commit path, got %s", d.Kind)
	}
}

func TestCommitConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, 1)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := h.request(fmt.Sprintf("AB%06d", 100000+i))
			_, err := h.svc.Commit(context.Background(), req)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner for a capacity-1 slot, got %d", wins)
	}
	if losses != racers-1 {
		t.Errorf("expected %d losers, got %d", racers-1, losses)
	}
}

func TestCommitAfterMissedAppointment(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	missed := h.request(identity)
	missed.Date = "2026-08-29"
	old, err := h.svc.Commit(context.Background(), missed)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Let the appointment day pass without the citizen showing up.
	h.advance(48 * time.Hour)

	next := h.request(identity)
	next.Date = "2026-09-02"
	if _, err := h.svc.Commit(context.Background(), next); err != nil {
		t.Fatalf("rebooking after a miss should succeed, got %v", err)
	}

	got, err := h.store.GetByID(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if got.Status != appointment.StatusCancelled {
		t.Errorf("missed appointment should be retired, got %s", got.Status)
	}

	// A single miss is one strike, below the threshold.
	d, err := h.svc.LockoutStatus(context.Background(), identity)
	if err != nil {
		t.Fatalf("lockout status: %v", err)
	}
	if d.Kind != DecisionAllowed {
		t.Errorf("one no-show must not block, got %s", d.Kind)
	}
}

func TestRepeatedNoShowsLockOut(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	// Miss three appointments in a row.
	for _, date := range []string{"2026-08-29", "2026-08-31", "2026-09-02"} {
		req := h.request(identity)
		req.Date = date
		if _, err := h.svc.Commit(context.Background(), req); err != nil {
			t.Fatalf("commit %s: %v", date, err)
		}
		h.advance(48 * time.Hour)
	}

	req := h.request(identity)
	req.Date = "2026-09-04"
	_, err := h.svc.Commit(context.Background(), req)
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Kind != DecisionBlockedTemporarily {
		t.Fatalf("expected blocked-temporarily after 3 no-shows, got %v", err)
	}
	// Each strike is anchored to the missed appointment's date, so the block
	// lifts one window after the first miss.
	want := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)
	if pe.Decision.UnblockAt == nil || !pe.Decision.UnblockAt.Equal(want) {
		t.Errorf("unblock at %v, want %s", pe.Decision.UnblockAt, want)
	}
}

func TestRescheduleMovesAppointment(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	old, err := h.svc.Commit(context.Background(), h.request(identity))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	moved, err := h.svc.Reschedule(context.Background(), identity, SlotChange{
		LocationID: h.locID, Date: "2026-09-02", Time: "10:00",
	}, "agent-1")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Date != "2026-09-02" || moved.Time != "10:00" {
		t.Errorf("unexpected new slot %s %s", moved.Date, moved.Time)
	}
	if moved.RescheduleCount != 1 {
		t.Errorf("expected reschedule count 1, got %d", moved.RescheduleCount)
	}

	got, err := h.store.GetByID(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if got.Status != appointment.StatusCancelled {
		t.Errorf("old appointment should be cancelled, got %s", got.Status)
	}

	// Reschedule cancellations never count toward the lockout.
	d, err := h.svc.LockoutStatus(context.Background(), identity)
	if err != nil {
		t.Fatalf("lockout status: %v", err)
	}
	if d.Kind != DecisionAllowed {
		t.Errorf("reschedule must not add strikes, got %s", d.Kind)
	}
}

func TestRescheduleLimitEnforced(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	if _, err := h.svc.Commit(context.Background(), h.request(identity)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	slots := []SlotChange{
		{LocationID: h.locID, Date: "2026-09-02", Time: "09:00"},
		{LocationID: h.locID, Date: "2026-09-03", Time: "09:00"},
	}
	for i, slot := range slots {
		if _, err := h.svc.Reschedule(context.Background(), identity, slot, "agent-1"); err != nil {
			t.Fatalf("reschedule %d: %v", i, err)
		}
	}

	_, err := h.svc.Reschedule(context.Background(), identity, SlotChange{
		LocationID: h.locID, Date: "2026-09-04", Time: "09:00",
	}, "agent-1")
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Kind != DecisionRescheduleLimit {
		t.Errorf("expected reschedule-limit-reached after 2 moves, got %v", err)
	}
}

func TestRescheduleLimitWindowRollsOff(t *testing.T) {
	h := newHarness(t, 3)
	identity := "AB123456"

	if _, err := h.svc.Commit(context.Background(), h.request(identity)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	slots := []SlotChange{
		{LocationID: h.locID, Date: "2026-09-02", Time: "09:00"},
		{LocationID: h.locID, Date: "2026-09-03", Time: "09:00"},
	}
	for i, slot := range slots {
		if _, err := h.svc.Reschedule(context.Background(), identity, slot, "agent-1"); err != nil {
			t.Fatalf("reschedule %d: %v", i, err)
		}
	}

	// Once the two moves age out of the rolling window the limit resets.
	h.advance(8 * 24 * time.Hour)

	moved, err := h.svc.Reschedule(context.Background(), identity, SlotChange{
		LocationID: h.locID, Date: "2026-09-08", Time: "09:00",
	}, "agent-1")
	if err != nil {
		t.Fatalf("reschedule after window rolled off: %v", err)
	}
	if moved.Date != "2026-09-08" {
		t.Errorf("unexpected new date %s", moved.Date)
	}
}

func TestRescheduleRollbackOnFailure(t *testing.T) {
	h := newHarness(t, 1)
	identity := "AB123456"

	a, err := h.svc.Commit(context.Background(), h.request(identity))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Another citizen occupies the target slot.
	other := h.request("CD654321")
	other.Time = "09:30"
	if _, err := h.svc.Commit(context.Background(), other); err != nil {
		t.Fatalf("other commit: %v", err)
	}

	_, err = h.svc.Reschedule(context.Background(), identity, SlotChange{
		LocationID: h.locID, Date: "2026-09-01", Time: "09:30",
	}, "agent-1")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	got, err := h.store.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != appointment.StatusPending {
		t.Errorf("failed reschedule should restore the original, got %s", got.Status)
	}
}

func TestRescheduleWithoutActive(t *testing.T) {
	h := newHarness(t, 3)

	_, err := h.svc.Reschedule(context.Background(), "AB123456", SlotChange{
		LocationID: h.locID, Date: "2026-09-02", Time: "09:00",
	}, "agent-1")
	if !errors.Is(err, ErrNoActiveAppointment) {
		t.Errorf("expected ErrNoActiveAppointment, got %v", err)
	}
}
