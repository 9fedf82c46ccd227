package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
)

// AvailabilityChecker decides whether a window fits a tutor's weekly
// template. A window fits when it lies inside a single slot on the weekday
// of its local start, in the tutor's timezone.
type AvailabilityChecker struct{}

func NewAvailabilityChecker() *AvailabilityChecker {
	return &AvailabilityChecker{}
}

func (c *AvailabilityChecker) Fits(availability models.TutorAvailability, window timewindow.Window) (bool, error) {
	if len(availability.Slots) == 0 {
		return false, nil
	}
	loc, err := loadTimezone(availability.Timezone)
	if err != nil {
		return false, err
	}

	start := window.Start.In(loc)
	end := window.End.In(loc)
	day := timewindow.MidnightOf(start)
	startOffset := clockOffset(start)
	endOffset := clockOffset(end)
	if !timewindow.MidnightOf(end).Equal(day) {
		// Only a window ending exactly at the next local midnight stays on
		// one day.
		if endOffset != 0 || !timewindow.MidnightOf(end).Equal(day.AddDate(0, 0, 1)) {
			return false, nil
		}
		endOffset = 24 * time.Hour
	}

	var ref time.Time
	candidate := timewindow.Window{Start: ref.Add(startOffset), End: ref.Add(endOffset)}
	for _, slot := range availability.Slots {
		weekday, err := timewindow.ParseWeekday(slot.DayOfWeek)
		if err != nil || weekday != start.Weekday() {
			continue
		}
		slotWindow, err := parseSlot(slot)
		if err != nil {
			continue
		}
		if timewindow.Contains(timewindow.Window{Start: ref.Add(slotWindow.start), End: ref.Add(slotWindow.end)}, candidate) {
			return true, nil
		}
	}
	return false, nil
}

type slotOffsets struct {
	start time.Duration
	end   time.Duration
}

func parseSlot(slot models.AvailabilitySlot) (slotOffsets, error) {
	start, err := timewindow.ParseClock(slot.StartTime)
	if err != nil {
		return slotOffsets{}, err
	}
	end, err := timewindow.ParseClock(slot.EndTime)
	if err != nil {
		return slotOffsets{}, err
	}
	if start >= end {
		return slotOffsets{}, fmt.Errorf("slot %s-%s: %w", slot.StartTime, slot.EndTime, timewindow.ErrEmptyWindow)
	}
	return slotOffsets{start: start, end: end}, nil
}

// NormalizeAvailability validates a template and rewrites weekdays to their
// full lowercase names.
func NormalizeAvailability(availability models.TutorAvailability) (models.TutorAvailability, error) {
	timezone := strings.TrimSpace(availability.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := loadTimezone(timezone); err != nil {
		return models.TutorAvailability{}, err
	}

	slots := make([]models.AvailabilitySlot, 0, len(availability.Slots))
	for i, slot := range availability.Slots {
		weekday, err := timewindow.ParseWeekday(slot.DayOfWeek)
		if err != nil {
			return models.TutorAvailability{}, invalidInput("slot %d: %v", i, err)
		}
		if _, err := parseSlot(slot); err != nil {
			return models.TutorAvailability{}, invalidInput("slot %d: %v", i, err)
		}
		slots = append(slots, models.AvailabilitySlot{
			DayOfWeek: strings.ToLower(weekday.String()),
			StartTime: strings.TrimSpace(slot.StartTime),
			EndTime:   strings.TrimSpace(slot.EndTime),
		})
	}

	return models.TutorAvailability{
		TutorID:  availability.TutorID,
		Timezone: timezone,
		Slots:    slots,
	}, nil
}

func loadTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidInput("unknown timezone %q", name)
	}
	return loc, nil
}

func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
