package domain

import "time"

// BusinessHours is a fixed weekday opening window in one timezone.
type BusinessHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

// HoursState is the business-hours snapshot rendered into the reply prompt.
type HoursState struct {
	Open      bool
	LocalTime time.Time
	NextOpen  time.Time
}

// IsOpen reports whether now falls inside the window, Monday to Friday.
func (h BusinessHours) IsOpen(now time.Time) bool {
	local := now.In(h.location())
	if !isWeekday(local.Weekday()) {
		return false
	}
	hour := local.Hour()
	return hour >= h.OpenHour && hour < h.CloseHour
}

// State captures open/closed and, when closed, the next opening time.
func (h BusinessHours) State(now time.Time) HoursState {
	local := now.In(h.location())
	state := HoursState{Open: h.IsOpen(now), LocalTime: local}
	if !state.Open {
		state.NextOpen = h.nextOpening(local)
	}
	return state
}

func (h BusinessHours) nextOpening(local time.Time) time.Time {
	candidate := time.Date(local.Year(), local.Month(), local.Day(), h.OpenHour, 0, 0, 0, local.Location())
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for !isWeekday(candidate.Weekday()) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (h BusinessHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
