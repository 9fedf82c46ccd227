package services

import (
	"time"

	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
)

const maxRecurrenceOccurrences = 104

type RecurrenceRule struct {
	Frequency timewindow.Frequency
	EndDate   time.Time
	// Location is the zone whose wall clock the series keeps. Nil means UTC.
	Location *time.Location
}

// ExpandRecurrence returns the base window followed by every occurrence
// that starts strictly before the rule's end date. Occurrences keep the
// base start's wall-clock time in the rule's location across DST changes.
func ExpandRecurrence(base timewindow.Window, rule RecurrenceRule) ([]timewindow.Window, error) {
	if _, err := timewindow.ParseFrequency(string(rule.Frequency)); err != nil {
		return nil, invalidInput("%v", err)
	}
	if _, err := timewindow.New(base.Start, base.End); err != nil {
		return nil, invalidInput("%v", err)
	}
	if !rule.EndDate.After(base.Start) {
		return nil, invalidInput("recurrence end date must be after the first session")
	}
	if base.Duration() >= rule.Frequency.MinStep() {
		return nil, invalidInput("session must be shorter than the %s recurrence step", rule.Frequency)
	}

	loc := rule.Location
	if loc == nil {
		loc = time.UTC
	}
	local := base.Start.In(loc)

	windows := []timewindow.Window{base}
	for n := 1; ; n++ {
		start := timewindow.Step(local, rule.Frequency, n).UTC()
		if !start.Before(rule.EndDate) {
			break
		}
		if len(windows) == maxRecurrenceOccurrences {
			return nil, invalidInput("recurrence exceeds %d sessions", maxRecurrenceOccurrences)
		}
		windows = append(windows, base.Shift(start))
	}
	return windows, nil
}
