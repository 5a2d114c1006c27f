package scheduler

import (
	"fmt"
	"sort"
	"time"
)

const dayFormat = "2006-01-02"

// maxScanDays bounds the forward scan in nextDueTime. Three years covers
// any realistic weekday/exclusion combination; exhausting it means the
// filters reject every future day.
const maxScanDays = 1100

type timeOfDay struct {
	h, m, s int
}

func parseTimeOfDay(s string) (timeOfDay, error) {
	var t timeOfDay
	if len(s) != 8 || s[2] != ':' || s[5] != ':' {
		return t, fmt.Errorf("time of day %q: want HH:MM:SS", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d:%02d", &t.h, &t.m, &t.s); err != nil {
		return t, fmt.Errorf("time of day %q: %w", s, err)
	}
	if t.h < 0 || t.h > 23 || t.m < 0 || t.m > 59 || t.s < 0 || t.s > 59 {
		return t, fmt.Errorf("time of day %q: out of range", s)
	}
	return t, nil
}

func (t timeOfDay) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.h, t.m, t.s, 0, time.UTC)
}

// isoWeekday maps Go's Sunday=0 convention onto ISO Mon=1..Sun=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// dateAccepted applies the exclusion and weekday predicates to a calendar day.
// Exclusions win over weekday matches.
func (e *Event) dateAccepted(day time.Time) bool {
	ds := day.UTC().Format(dayFormat)
	for _, ex := range e.ExcludeDates {
		if ex == ds {
			return false
		}
	}
	if len(e.WeekDays) == 0 {
		return true
	}
	wd := isoWeekday(day.UTC())
	for _, w := range e.WeekDays {
		if w == wd {
			return true
		}
	}
	return false
}

// nextDueTime computes the next occurrence of a repeating event strictly
// after now, on the UTC calendar.
//
// The comparison is strictly-after so feeding the result back in as "now"
// advances to the following occurrence instead of repeating the same one.
func nextDueTime(e *Event, now time.Time) (time.Time, error) {
	if !e.Repeating() {
		return time.Time{}, fmt.Errorf("%w: event has no times", ErrInvalidSchedule)
	}

	tods := make([]timeOfDay, 0, len(e.Times))
	for _, s := range e.Times {
		t, err := parseTimeOfDay(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		tods = append(tods, t)
	}
	sort.Slice(tods, func(i, j int) bool {
		a, b := tods[i], tods[j]
		if a.h != b.h {
			return a.h < b.h
		}
		if a.m != b.m {
			return a.m < b.m
		}
		return a.s < b.s
	})

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Today still has a slot left, if the day is accepted at all.
	if e.dateAccepted(today) {
		for _, tod := range tods {
			if cand := tod.on(today); cand.After(now) {
				return cand, nil
			}
		}
	}

	// Walk forward a day at a time; the first accepted day fires at the
	// earliest time-of-day.
	for i := 1; i <= maxScanDays; i++ {
		day := today.AddDate(0, 0, i)
		if e.dateAccepted(day) {
			return tods[0].on(day), nil
		}
	}
	return time.Time{}, ErrNoValidOccurrence
}
