package booking

import (
	"fmt"
	"sort"
	"time"

	"github.com/cinportal/cinportal/internal/domain/appointment"
)

// PolicyConfig holds the portal-wide anti-abuse constants.
type PolicyConfig struct {
	// LockoutWindowDays is the rolling window in which strikes are counted.
	LockoutWindowDays int
	// LockoutThreshold is the number of strikes that triggers a temporary
	// block.
	LockoutThreshold int
	// RescheduleLimit caps how many reschedules the identity may use inside
	// the rolling window.
	RescheduleLimit int
}

// IdentityHistory is everything the policy guard needs to know about one
// identity, assembled by the booking service from the appointment store.
type IdentityHistory struct {
	// Active is the identity's current active appointment, nil if none.
	Active *appointment.Appointment
	// Cancellations are the times the identity's appointments were
	// cancelled, restricted to the lockout window.
	Cancellations []time.Time
	// NoShows are the dates of appointments the identity left active past
	// their scheduled day.
	NoShows []time.Time
	// Reschedules are the times the identity's appointments were cancelled
	// as the first half of a reschedule.
	Reschedules []time.Time
}

// Guard evaluates booking requests against the anti-abuse rules. It is a
// pure decision function over the supplied history; it never touches the
// store itself.
type Guard struct {
	cfg PolicyConfig
}

func NewGuard(cfg PolicyConfig) *Guard {
	return &Guard{cfg: cfg}
}

// strikes merges cancellations and no-shows inside the rolling window,
// newest first.
func (g *Guard) strikes(h IdentityHistory, now time.Time) []time.Time {
	windowStart := now.AddDate(0, 0, -g.cfg.LockoutWindowDays)

	var events []time.Time
	for _, ts := range h.Cancellations {
		if !ts.Before(windowStart) {
			events = append(events, ts)
		}
	}
	for _, ts := range h.NoShows {
		if !ts.Before(windowStart) {
			events = append(events, ts)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].After(events[j]) })
	return events
}

// lockout returns a blocking decision when the identity accumulated enough
// strikes in the window. The block lifts when the oldest of the counted
// strikes ages out: unblockAt is that strike's time plus the window.
func (g *Guard) lockout(h IdentityHistory, now time.Time) *PolicyDecision {
	events := g.strikes(h, now)
	if len(events) < g.cfg.LockoutThreshold {
		return nil
	}
	anchor := events[g.cfg.LockoutThreshold-1]
	unblockAt := anchor.AddDate(0, 0, g.cfg.LockoutWindowDays)
	return &PolicyDecision{
		Kind: DecisionBlockedTemporarily,
		Reason: fmt.Sprintf("%d cancellations or missed appointments in the last %d days",
			len(events), g.cfg.LockoutWindowDays),
		UnblockAt: &unblockAt,
	}
}

// CheckLockout reports only the temporary-lockout rule, for the public
// pre-booking check endpoint.
func (g *Guard) CheckLockout(h IdentityHistory, now time.Time) PolicyDecision {
	if d := g.lockout(h, now); d != nil {
		return *d
	}
	return PolicyDecision{Kind: DecisionAllowed}
}

// Evaluate runs the booking rules in order: the one-active-appointment rule
// first, then the temporary lockout. Only an appointment scheduled today or
// later blocks a new booking; a missed one is a no-show strike, not a
// conflict. Capacity is not a policy concern; the booking transaction
// enforces it at commit time.
func (g *Guard) Evaluate(h IdentityHistory, now time.Time) PolicyDecision {
	if a := h.Active; a != nil && a.Date >= now.Format(dateLayout) {
		return PolicyDecision{
			Kind:     DecisionActiveExists,
			Reason:   "identity already holds an active appointment",
			Existing: a,
		}
	}
	if d := g.lockout(h, now); d != nil {
		return *d
	}
	return PolicyDecision{Kind: DecisionAllowed}
}

// EvaluateReschedule runs the rules for moving an existing appointment: the
// lockout still applies, the active appointment is required rather than
// rejected, and reschedules inside the rolling window are capped. The
// caller guarantees h.Active is non-nil.
func (g *Guard) EvaluateReschedule(h IdentityHistory, now time.Time) PolicyDecision {
	if d := g.lockout(h, now); d != nil {
		return *d
	}
	windowStart := now.AddDate(0, 0, -g.cfg.LockoutWindowDays)
	used := 0
	for _, ts := range h.Reschedules {
		if !ts.Before(windowStart) {
			used++
		}
	}
	if used >= g.cfg.RescheduleLimit {
		return PolicyDecision{
			Kind: DecisionRescheduleLimit,
			Reason: fmt.Sprintf("appointment rescheduled %d times in the last %d days",
				used, g.cfg.LockoutWindowDays),
			Existing: h.Active,
		}
	}
	return PolicyDecision{Kind: DecisionAllowed, Existing: h.Active}
}
