// Package formctx computes the ambient defaults of a fresh form from the
// wall clock: week number, shift and dates.
package formctx

import (
	"fmt"
	"time"
)

// MaxSelectableWeek is the last week the form offers.
const MaxSelectableWeek = 16

// Shift names.
const (
	DayShift    = "Day shift"
	MiddleShift = "Middle shift"
	NightShift  = "Night shift"
)

// DateLayout is the ISO 8601 calendar date used by the date fields.
const DateLayout = "2006-01-02"

// Context is the set of defaults applied to a new or reset form.
type Context struct {
	Week          int    `json:"week"`
	WeekLabel     string `json:"week_label,omitempty"`
	Shift         string `json:"shift"`
	DateDetection string `json:"date_detection"`
	DateFinished  string `json:"date_finished"`
}

// Defaults computes the form context for now.
func Defaults(now time.Time) Context {
	label, _ := SelectedWeek(now)
	today := Today(now)
	return Context{
		Week:          WeekNumber(now),
		WeekLabel:     label,
		Shift:         Shift(now),
		DateDetection: today,
		DateFinished:  today,
	}
}

// WeekNumber returns the Sunday-based week of the year for t, where week 1
// contains January 1st.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	offset := int(jan1.Weekday())
	return (days + offset + 1 + 6) / 7
}

// SelectedWeek returns the "Week N" option for t. ok is false past
// MaxSelectableWeek, in which case no week is preselected.
func SelectedWeek(t time.Time) (label string, ok bool) {
	week := WeekNumber(t)
	if week < 1 || week > MaxSelectableWeek {
		return "", false
	}
	return WeekLabel(week), true
}

// WeekLabel formats a week option label.
func WeekLabel(week int) string {
	return fmt.Sprintf("Week %d", week)
}

// WeekOptions returns the labels of every selectable week.
func WeekOptions() []string {
	opts := make([]string, 0, MaxSelectableWeek)
	for w := 1; w <= MaxSelectableWeek; w++ {
		opts = append(opts, WeekLabel(w))
	}
	return opts
}

// Shift returns the shift running at t. Night shift wraps midnight.
func Shift(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 7 && h < 15:
		return DayShift
	case h >= 15 && h < 23:
		return MiddleShift
	default:
		return NightShift
	}
}

// Today formats t's calendar date.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// DurationOptions are the suggested values for how long an issue lasted.
func DurationOptions() []string {
	return []string{
		"5 min",
		"10 min",
		"15 min",
		"20 min",
		"30 min",
		"45 min",
		"1 hour",
		"1.5 hours",
		"2 hours",
		"2.5 hours",
		"3 hours",
		"4 hours",
		"5 hours",
		"6 hours",
		"8 hours",
		"Full shift",
	}
}
