package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ExceptionKind string

const (
	ExceptionUnavailable  ExceptionKind = "unavailable"
	ExceptionSpecialHours ExceptionKind = "special_hours"
)

// TimeRange is a within-day range in "HH:MM" wall clock, half open.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DayHours struct {
	DayOfWeek int         `json:"day_of_week"` // 0 = Sunday
	Available bool        `json:"available"`
	Ranges    []TimeRange `json:"ranges"`
}

// AvailabilityTemplate is a provider's recurring weekly pattern. One
// per provider; saving replaces the previous version.
type AvailabilityTemplate struct {
	ProviderID          uuid.UUID
	TimeZone            string
	SlotDurationMinutes int
	BufferMinutes       int
	WeeklyHours         [7]DayHours
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ScheduleException is a dated override to the template: a vacation
// (unavailable) or special hours. SpecialHours maps "2006-01-02" date
// keys to the ranges that replace the template on that date.
type ScheduleException struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	Kind         ExceptionKind
	StartDate    string // "2006-01-02"
	EndDate      string
	Reason       string
	SpecialHours map[string][]TimeRange
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidationError rejects a malformed template or exception before
// anything is written.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
}

const dateLayout = "2006-01-02"

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

func validateRanges(field string, ranges []TimeRange) error {
	prevEnd := -1
	for i, r := range ranges {
		start, err := parseClock(r.Start)
		if err != nil {
			return &ValidationError{Field: fmt.Sprintf("%s[%d].start", field, i), Msg: err.Error()}
		}
		end, err := parseClock(r.End)
		if err != nil {
			return &ValidationError{Field: fmt.Sprintf("%s[%d].end", field, i), Msg: err.Error()}
		}
		if end <= start {
			return &ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Msg: "end must be after start"}
		}
		if start < prevEnd {
			return &ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Msg: "ranges overlap or are out of order"}
		}
		prevEnd = end
	}
	return nil
}

func (t *AvailabilityTemplate) Validate() error {
	if t.ProviderID == uuid.Nil {
		return &ValidationError{Field: "provider_id", Msg: "required"}
	}
	if _, err := time.LoadLocation(t.TimeZone); err != nil {
		return &ValidationError{Field: "time_zone", Msg: "unknown time zone"}
	}
	if t.SlotDurationMinutes <= 0 {
		return &ValidationError{Field: "slot_duration_minutes", Msg: "must be positive"}
	}
	if t.BufferMinutes < 0 {
		return &ValidationError{Field: "buffer_minutes", Msg: "must not be negative"}
	}
	for i, day := range t.WeeklyHours {
		if day.DayOfWeek != i {
			return &ValidationError{Field: fmt.Sprintf("weekly_hours[%d].day_of_week", i), Msg: "must match array position"}
		}
		if day.Available && len(day.Ranges) == 0 {
			return &ValidationError{Field: fmt.Sprintf("weekly_hours[%d].ranges", i), Msg: "available day needs at least one range"}
		}
		if err := validateRanges(fmt.Sprintf("weekly_hours[%d].ranges", i), day.Ranges); err != nil {
			return err
		}
	}
	return nil
}

func (e *ScheduleException) Validate() error {
	if e.ProviderID == uuid.Nil {
		return &ValidationError{Field: "provider_id", Msg: "required"}
	}
	if e.Kind != ExceptionUnavailable && e.Kind != ExceptionSpecialHours {
		return &ValidationError{Field: "kind", Msg: "must be unavailable or special_hours"}
	}
	start, err := time.Parse(dateLayout, e.StartDate)
	if err != nil {
		return &ValidationError{Field: "start_date", Msg: "must be YYYY-MM-DD"}
	}
	end, err := time.Parse(dateLayout, e.EndDate)
	if err != nil {
		return &ValidationError{Field: "end_date", Msg: "must be YYYY-MM-DD"}
	}
	if end.Before(start) {
		return &ValidationError{Field: "end_date", Msg: "must not be before start_date"}
	}
	for date, ranges := range e.SpecialHours {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return &ValidationError{Field: "special_hours", Msg: fmt.Sprintf("bad date key %q", date)}
		}
		if err := validateRanges(fmt.Sprintf("special_hours[%s]", date), ranges); err != nil {
			return err
		}
	}
	return nil
}

// covers reports whether the exception's date range includes the given
// "2006-01-02" date. ISO dates compare correctly as strings.
func (e *ScheduleException) covers(date string) bool {
	return e.StartDate <= date && date <= e.EndDate
}
