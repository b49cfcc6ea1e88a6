package schedule

import (
	"fmt"
	"time"
)

// CandidateSlot is a generated bookable interval, half open [Start, End).
type CandidateSlot struct {
	Start time.Time
	End   time.Time
}

// Generate materializes candidate slots for every calendar day between
// from and to inclusive, interpreted in the template's time zone.
//
// Per day precedence: any covering unavailable exception wins outright;
// otherwise special hours for the exact date replace the template, even
// on days the template marks unavailable; otherwise the template's
// weekly hours apply. Within each range, slots are laid out at a stride
// of duration+buffer and a slot is emitted only when it fits entirely
// inside the range.
//
// Pure function of its inputs: identical arguments always yield the
// identical slot list. Exceptions are considered in the order given, so
// callers must pass them in a stable order.
func Generate(tpl *AvailabilityTemplate, exceptions []ScheduleException, from, to time.Time) ([]CandidateSlot, error) {
	loc, err := time.LoadLocation(tpl.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load template time zone: %w", err)
	}

	durMin := tpl.SlotDurationMinutes
	strideMin := durMin + tpl.BufferMinutes

	fromLocal := from.In(loc)
	toLocal := to.In(loc)
	day := time.Date(fromLocal.Year(), fromLocal.Month(), fromLocal.Day(), 0, 0, 0, 0, loc)
	last := time.Date(toLocal.Year(), toLocal.Month(), toLocal.Day(), 0, 0, 0, 0, loc)

	var out []CandidateSlot

	for !day.After(last) {
		date := day.Format(dateLayout)

		ranges, ok := rangesForDate(tpl, exceptions, date, int(day.Weekday()))
		if !ok {
			day = day.AddDate(0, 0, 1)
			continue
		}

		for _, r := range ranges {
			startMin, err := parseClock(r.Start)
			if err != nil {
				return nil, fmt.Errorf("range start on %s: %w", date, err)
			}
			endMin, err := parseClock(r.End)
			if err != nil {
				return nil, fmt.Errorf("range end on %s: %w", date, err)
			}

			// Boundaries are rebuilt from wall-clock minutes on every
			// step. Adding durations to midnight drifts an hour on DST
			// transition days, and the drift would compound across the
			// stride loop.
			y, mo, d := day.Date()
			rangeEnd := time.Date(y, mo, d, 0, endMin, 0, 0, loc)
			for cur := startMin; ; cur += strideMin {
				slotEnd := time.Date(y, mo, d, 0, cur+durMin, 0, 0, loc)
				if slotEnd.After(rangeEnd) {
					break
				}
				out = append(out, CandidateSlot{
					Start: time.Date(y, mo, d, 0, cur, 0, 0, loc),
					End:   slotEnd,
				})
			}
		}

		day = day.AddDate(0, 0, 1)
	}

	return out, nil
}

// rangesForDate resolves which time ranges apply on a date, or reports
// the day as skipped.
func rangesForDate(tpl *AvailabilityTemplate, exceptions []ScheduleException, date string, weekday int) ([]TimeRange, bool) {
	for _, ex := range exceptions {
		if ex.Kind == ExceptionUnavailable && ex.covers(date) {
			return nil, false
		}
	}

	for _, ex := range exceptions {
		if ex.Kind != ExceptionSpecialHours || !ex.covers(date) {
			continue
		}
		if ranges, ok := ex.SpecialHours[date]; ok {
			if len(ranges) == 0 {
				return nil, false
			}
			return ranges, true
		}
	}

	dayTpl := tpl.WeeklyHours[weekday]
	if !dayTpl.Available || len(dayTpl.Ranges) == 0 {
		return nil, false
	}
	return dayTpl.Ranges, true
}
