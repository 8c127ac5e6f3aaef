package schedule

import "github.com/google/uuid"

// BlockDecision is the outcome of evaluating block rules for one date.
type BlockDecision struct {
	FullDay bool
	// Times holds the union of blocked time labels. Meaningless when
	// FullDay is set.
	Times map[string]bool
}

// Blocks returns whether the given time label is blocked on this date.
func (d BlockDecision) Blocks(timeLabel string) bool {
	return d.FullDay || d.Times[timeLabel]
}

// EvaluateBlocks folds every rule matching the location and date into a
// single decision. A full-day rule dominates: once one matches, the whole
// day is closed no matter what specific-times rules say. Specific-times
// rules combine additively across overlapping rules.
func EvaluateBlocks(rules []BlockedDate, locationID uuid.UUID, date string) BlockDecision {
	decision := BlockDecision{Times: make(map[string]bool)}
	for _, r := range rules {
		if r.Date != date {
			continue
		}
		if r.LocationID != nil && *r.LocationID != locationID {
			continue
		}
		switch r.Kind {
		case BlockFullDay:
			decision.FullDay = true
		case BlockSpecificTimes:
			for _, t := range r.Times {
				decision.Times[t] = true
			}
		}
	}
	return decision
}
