// Package timewindow holds the interval arithmetic shared by booking,
// rescheduling, availability and recurrence.
//
// A Window is half-open: it occupies [Start, End). Two windows that only
// touch (one ends exactly when the other starts) do not overlap.
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyWindow      = errors.New("window start must be before end")
	ErrInvalidWeekday   = errors.New("invalid weekday")
	ErrInvalidClock     = errors.New("invalid clock time")
	ErrInvalidFrequency = errors.New("invalid frequency")
)

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func New(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, ErrEmptyWindow
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) UTC() Window {
	return Window{Start: w.Start.UTC(), End: w.End.UTC()}
}

// Shift moves the window so it starts at start, keeping its duration.
func (w Window) Shift(start time.Time) Window {
	return Window{Start: start, End: start.Add(w.Duration())}
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func Contains(outer, inner Window) bool {
	return !inner.Start.Before(outer.Start) && !outer.End.Before(inner.End)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"tues":      time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"thurs":     time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday accepts full or abbreviated English day names in any case.
func ParseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
	}
	return day, nil
}

// ParseClock parses "HH:MM" into an offset from midnight. "24:00" is
// accepted as the end of the day.
func ParseClock(value string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	if hours == 24 && minutes == 0 {
		return 24 * time.Hour, nil
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// MidnightOf returns 00:00 of t's calendar day in t's location.
func MidnightOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(value))) {
	case Weekly:
		return Weekly, nil
	case Biweekly:
		return Biweekly, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// MinStep is the shortest distance between two occurrences of f.
func (f Frequency) MinStep() time.Duration {
	switch f {
	case Weekly:
		return 7 * 24 * time.Hour
	case Biweekly:
		return 14 * 24 * time.Hour
	case Monthly:
		return 28 * 24 * time.Hour
	default:
		return 0
	}
}

// Step returns the n-th occurrence after base. Monthly steps are computed
// from base every time and clamp to the last day of the target month, so
// a series anchored on the 31st never drifts.
func Step(base time.Time, f Frequency, n int) time.Time {
	switch f {
	case Weekly:
		return base.AddDate(0, 0, 7*n)
	case Biweekly:
		return base.AddDate(0, 0, 14*n)
	case Monthly:
		return addMonthsClamped(base, n)
	default:
		return base
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := daysIn(first.Year(), first.Month())
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
