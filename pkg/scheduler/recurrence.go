package scheduler

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// maxInstances caps recurrence expansion per rule; beyond this the poll
// window can't reach them anyway.
const maxInstances = 100

// expandRule expands an RRULE string anchored at dtstart into up to
// maxInstances occurrences, skipping any whose date (YYYY-MM-DD) appears in
// exceptionDates.
func expandRule(ruleStr string, dtstart time.Time, exceptionDates []string) ([]time.Time, error) {
	rule, err := rrule.StrToRRule(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule %q: %w", ruleStr, err)
	}
	rule.DTStart(dtstart.UTC())

	exceptions := make(map[string]bool, len(exceptionDates))
	for _, d := range exceptionDates {
		exceptions[d] = true
	}

	var out []time.Time
	next := rule.Iterator()
	for len(out) < maxInstances {
		occurrence, ok := next()
		if !ok {
			break
		}
		if exceptions[occurrence.UTC().Format("2006-01-02")] {
			continue
		}
		out = append(out, occurrence.UTC())
	}
	return out, nil
}

// eventInstance is one occurrence of a (possibly recurring) calendar event.
type eventInstance struct {
	start time.Time
	end   time.Time
}

// expandEvent expands a recurring event into instances, preserving the
// original duration.
func expandEvent(ruleStr string, start, end time.Time, exceptionDates []string) ([]eventInstance, error) {
	starts, err := expandRule(ruleStr, start, exceptionDates)
	if err != nil {
		return nil, err
	}
	duration := end.Sub(start)
	out := make([]eventInstance, len(starts))
	for i, s := range starts {
		out[i] = eventInstance{start: s, end: s.Add(duration)}
	}
	return out, nil
}

// dueWithinWindow reports whether an instance fired within the last window:
// 0 ≤ now − t ≤ window. Instances in the future or older than the window
// are not due.
func dueWithinWindow(now, t time.Time, window time.Duration) bool {
	diff := now.Sub(t)
	return diff >= 0 && diff <= window
}
