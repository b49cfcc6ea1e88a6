package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdayTemplate(durationMin, bufferMin int, ranges ...TimeRange) *AvailabilityTemplate {
	if len(ranges) == 0 {
		ranges = []TimeRange{{Start: "09:00", End: "17:00"}}
	}

	tpl := &AvailabilityTemplate{
		ProviderID:          uuid.New(),
		TimeZone:            "UTC",
		SlotDurationMinutes: durationMin,
		BufferMinutes:       bufferMin,
	}
	for i := 0; i < 7; i++ {
		day := DayHours{DayOfWeek: i}
		if i >= 1 && i <= 5 {
			day.Available = true
			day.Ranges = ranges
		}
		tpl.WeeklyHours[i] = day
	}
	return tpl
}

func day(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	return d
}

func starts(slots []CandidateSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func TestGenerateBufferSpacing(t *testing.T) {
	tpl := weekdayTemplate(30, 10, TimeRange{Start: "09:00", End: "12:00"})

	// 2024-03-04 is a Monday.
	slots, err := Generate(tpl, nil, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:40", "10:20", "11:00"}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
		assert.False(t, s.End.After(day(t, "2024-03-04").Add(12*time.Hour)), "slot extends past range end")
	}
}

func TestGenerateExactAlignmentIncludesLastSlot(t *testing.T) {
	tpl := weekdayTemplate(30, 0, TimeRange{Start: "09:00", End: "12:00"})

	slots, err := Generate(tpl, nil, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)

	// 11:30-12:00 ends exactly on the boundary and must be emitted.
	require.Len(t, slots, 6)
	assert.Equal(t, "11:30", slots[5].Start.Format("15:04"))
	assert.Equal(t, "12:00", slots[5].End.Format("15:04"))
}

func TestGenerateRangeShorterThanSlotYieldsNothing(t *testing.T) {
	tpl := weekdayTemplate(30, 0, TimeRange{Start: "09:00", End: "09:20"})

	slots, err := Generate(tpl, nil, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSkipsUnavailableDays(t *testing.T) {
	tpl := weekdayTemplate(30, 0)

	// 2024-03-02 Sat through 2024-03-04 Mon: only Monday emits.
	slots, err := Generate(tpl, nil, day(t, "2024-03-02"), day(t, "2024-03-04"))
	require.NoError(t, err)

	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.Equal(t, time.Monday, s.Start.Weekday())
	}
}

func TestGenerateMultipleRangesStayChronological(t *testing.T) {
	tpl := weekdayTemplate(30, 0,
		TimeRange{Start: "09:00", End: "10:00"},
		TimeRange{Start: "13:00", End: "14:00"},
	)

	slots, err := Generate(tpl, nil, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30", "13:00", "13:30"}, starts(slots))
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].Start.After(slots[i-1].Start) || slots[i].Start.Equal(slots[i-1].End),
			"slots out of order or overlapping")
	}
}

func TestGenerateUnavailableExceptionSkipsDay(t *testing.T) {
	tpl := weekdayTemplate(30, 0)
	exceptions := []ScheduleException{{
		ProviderID: tpl.ProviderID,
		Kind:       ExceptionUnavailable,
		StartDate:  "2024-03-04",
		EndDate:    "2024-03-05",
	}}

	slots, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-06"))
	require.NoError(t, err)

	for _, s := range slots {
		assert.Equal(t, "2024-03-06", s.Start.Format("2006-01-02"))
	}
	assert.NotEmpty(t, slots)
}

func TestGenerateUnavailableBeatsSpecialHours(t *testing.T) {
	tpl := weekdayTemplate(30, 0)
	exceptions := []ScheduleException{
		{
			Kind:      ExceptionSpecialHours,
			StartDate: "2024-03-04",
			EndDate:   "2024-03-04",
			SpecialHours: map[string][]TimeRange{
				"2024-03-04": {{Start: "10:00", End: "11:00"}},
			},
		},
		{
			Kind:      ExceptionUnavailable,
			StartDate: "2024-03-04",
			EndDate:   "2024-03-04",
		},
	}

	slots, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Empty(t, slots, "unavailable exception must win over special hours")
}

func TestGenerateSpecialHoursReplaceTemplate(t *testing.T) {
	tpl := weekdayTemplate(30, 0)
	exceptions := []ScheduleException{{
		Kind:      ExceptionSpecialHours,
		StartDate: "2024-03-04",
		EndDate:   "2024-03-04",
		SpecialHours: map[string][]TimeRange{
			"2024-03-04": {{Start: "10:00", End: "11:00"}},
		},
	}}

	slots, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-04"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, starts(slots))
}

func TestGenerateSpecialHoursOpenTemplateOffDay(t *testing.T) {
	tpl := weekdayTemplate(30, 0)
	// 2024-03-03 is a Sunday, unavailable in the template.
	exceptions := []ScheduleException{{
		Kind:      ExceptionSpecialHours,
		StartDate: "2024-03-03",
		EndDate:   "2024-03-03",
		SpecialHours: map[string][]TimeRange{
			"2024-03-03": {{Start: "10:00", End: "12:00"}},
		},
	}}

	slots, err := Generate(tpl, exceptions, day(t, "2024-03-03"), day(t, "2024-03-03"))
	require.NoError(t, err)
	assert.Len(t, slots, 4)
}

func TestGenerateSpecialHoursRangeWithoutDateEntryFallsBack(t *testing.T) {
	tpl := weekdayTemplate(60, 0, TimeRange{Start: "09:00", End: "11:00"})
	// Exception covers the whole week but only overrides the 5th.
	exceptions := []ScheduleException{{
		Kind:      ExceptionSpecialHours,
		StartDate: "2024-03-04",
		EndDate:   "2024-03-08",
		SpecialHours: map[string][]TimeRange{
			"2024-03-05": {{Start: "14:00", End: "15:00"}},
		},
	}}

	slots, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-05"))
	require.NoError(t, err)

	byDate := map[string][]string{}
	for _, s := range slots {
		d := s.Start.Format("2006-01-02")
		byDate[d] = append(byDate[d], s.Start.Format("15:04"))
	}
	assert.Equal(t, []string{"09:00", "10:00"}, byDate["2024-03-04"])
	assert.Equal(t, []string{"14:00"}, byDate["2024-03-05"])
}

func TestGenerateDeterministic(t *testing.T) {
	tpl := weekdayTemplate(45, 5)
	exceptions := []ScheduleException{{
		Kind:      ExceptionUnavailable,
		StartDate: "2024-03-06",
		EndDate:   "2024-03-06",
	}}

	first, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-10"))
	require.NoError(t, err)
	second, err := Generate(tpl, exceptions, day(t, "2024-03-04"), day(t, "2024-03-10"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateRespectsTemplateTimeZone(t *testing.T) {
	tpl := weekdayTemplate(30, 0, TimeRange{Start: "09:00", End: "10:00"})
	tpl.TimeZone = "America/New_York"

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)

	slots, err := Generate(tpl, nil, monday, monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, "09:00", slots[0].Start.In(loc).Format("15:04"))
	// EST is UTC-5 on that date.
	assert.Equal(t, "14:00", slots[0].Start.UTC().Format("15:04"))
}

func TestGenerateKeepsWallClockAcrossDSTTransitions(t *testing.T) {
	tpl := weekdayTemplate(30, 10, TimeRange{Start: "09:00", End: "12:00"})
	tpl.TimeZone = "America/New_York"
	tpl.WeeklyHours[0].Available = true
	tpl.WeeklyHours[0].Ranges = []TimeRange{{Start: "09:00", End: "12:00"}}

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	localStarts := func(slots []CandidateSlot) []string {
		out := make([]string, 0, len(slots))
		for _, s := range slots {
			out = append(out, s.Start.In(loc).Format("15:04"))
		}
		return out
	}

	// Both Sundays cross a transition at 2 AM local: clocks spring
	// forward on 2024-03-10 and fall back on 2024-11-03. Slot times must
	// stay pinned to the template's wall clock either way.
	for _, date := range []string{"2024-03-10", "2024-11-03"} {
		t.Run(date, func(t *testing.T) {
			day := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
			if date == "2024-11-03" {
				day = time.Date(2024, 11, 3, 0, 0, 0, 0, loc)
			}

			slots, err := Generate(tpl, nil, day, day)
			require.NoError(t, err)

			assert.Equal(t, []string{"09:00", "09:40", "10:20", "11:00"}, localStarts(slots))

			noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)
			for _, s := range slots {
				assert.False(t, s.End.After(noon), "slot extends past range end")
			}
		})
	}
}

func TestGenerateBadTimeZone(t *testing.T) {
	tpl := weekdayTemplate(30, 0)
	tpl.TimeZone = "Mars/Olympus_Mons"

	_, err := Generate(tpl, nil, day(t, "2024-03-04"), day(t, "2024-03-04"))
	assert.Error(t, err)
}
