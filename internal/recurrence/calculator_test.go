package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func datePtr(t time.Time) *time.Time { return &t }

func TestNextRunDaily(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		from     time.Time
		want     time.Time
	}{
		{
			name:     "single day preserves time of day",
			interval: 1,
			from:     date(2026, time.January, 15, 12, 0),
			want:     date(2026, time.January, 16, 12, 0),
		},
		{
			name:     "three day interval",
			interval: 3,
			from:     date(2026, time.January, 30, 9, 30),
			want:     date(2026, time.February, 2, 9, 30),
		},
		{
			name:     "crosses a leap day",
			interval: 1,
			from:     date(2024, time.February, 28, 8, 0),
			want:     date(2024, time.February, 29, 8, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{Frequency: Daily, Interval: tt.interval, StartDate: tt.from}
			next, done, err := NextRun(s, tt.from)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextRunWeekly(t *testing.T) {
	// 2026-01-15 is a Thursday, 2026-01-19 the following Monday.
	tests := []struct {
		name     string
		interval int
		days     []int
		from     time.Time
		want     time.Time
	}{
		{
			name:     "wraps to monday next week",
			interval: 1,
			days:     []int{1},
			from:     date(2026, time.January, 15, 10, 0),
			want:     date(2026, time.January, 19, 10, 0),
		},
		{
			name:     "next day in the same week",
			interval: 1,
			days:     []int{1, 3, 5},
			from:     date(2026, time.January, 19, 10, 0), // Monday
			want:     date(2026, time.January, 21, 10, 0), // Wednesday
		},
		{
			name:     "same weekday never repeats on the anchor day",
			interval: 1,
			days:     []int{4},                            // Thursday
			from:     date(2026, time.January, 15, 10, 0), // Thursday
			want:     date(2026, time.January, 22, 10, 0),
		},
		{
			name:     "interval pushes a same-week hit out",
			interval: 2,
			days:     []int{5},                            // Friday
			from:     date(2026, time.January, 19, 10, 0), // Monday
			want:     date(2026, time.January, 30, 10, 0), // Friday + 1 extra week
		},
		{
			name:     "interval pushes a wrapped hit out",
			interval: 2,
			days:     []int{1},
			from:     date(2026, time.January, 15, 10, 0),
			want:     date(2026, time.January, 26, 10, 0),
		},
		{
			name:     "unordered duplicate day set",
			interval: 1,
			days:     []int{5, 1, 5},
			from:     date(2026, time.January, 17, 10, 0), // Saturday
			want:     date(2026, time.January, 19, 10, 0), // Monday
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{Frequency: Weekly, Interval: tt.interval, DaysOfWeek: tt.days, StartDate: tt.from}
			next, done, err := NextRun(s, tt.from)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, tt.want, next)
			assert.Contains(t, tt.days, int(next.Weekday()))
		})
	}
}

func TestNextRunWeeklyEmptyDays(t *testing.T) {
	s := Schedule{Frequency: Weekly, Interval: 1}
	_, _, err := NextRun(s, date(2026, time.January, 15, 0, 0))
	assert.ErrorIs(t, err, ErrDaysOfWeekRequired)
}

func TestNextRunMonthly(t *testing.T) {
	tests := []struct {
		name       string
		interval   int
		dayOfMonth int
		from       time.Time
		want       time.Time
	}{
		{
			name:       "day 31 clamps to end of february",
			interval:   1,
			dayOfMonth: 31,
			from:       date(2026, time.January, 15, 14, 0),
			want:       date(2026, time.February, 28, 14, 0),
		},
		{
			name:       "day 31 keeps the leap day",
			interval:   1,
			dayOfMonth: 31,
			from:       date(2024, time.January, 15, 14, 0),
			want:       date(2024, time.February, 29, 14, 0),
		},
		{
			name:       "quarterly interval",
			interval:   3,
			dayOfMonth: 15,
			from:       date(2026, time.January, 10, 8, 45),
			want:       date(2026, time.April, 15, 8, 45),
		},
		{
			name:       "december wraps to january",
			interval:   1,
			dayOfMonth: 5,
			from:       date(2026, time.December, 5, 8, 0),
			want:       date(2027, time.January, 5, 8, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{Frequency: Monthly, Interval: tt.interval, DayOfMonth: tt.dayOfMonth, StartDate: tt.from}
			next, done, err := NextRun(s, tt.from)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextRunYearly(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		from     time.Time
		want     time.Time
	}{
		{
			name:     "plain anniversary",
			interval: 1,
			from:     date(2026, time.June, 10, 9, 0),
			want:     date(2027, time.June, 10, 9, 0),
		},
		{
			name:     "feb 29 clamps to feb 28 in a non-leap year",
			interval: 1,
			from:     date(2024, time.February, 29, 9, 0),
			want:     date(2025, time.February, 28, 9, 0),
		},
		{
			name:     "feb 29 survives a four year interval",
			interval: 4,
			from:     date(2024, time.February, 29, 9, 0),
			want:     date(2028, time.February, 29, 9, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{Frequency: Yearly, Interval: tt.interval, StartDate: tt.from}
			next, done, err := NextRun(s, tt.from)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextRunUnknownFrequency(t *testing.T) {
	s := Schedule{Frequency: "hourly", Interval: 1}
	_, _, err := NextRun(s, date(2026, time.January, 1, 0, 0))
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestNextRunEndDate(t *testing.T) {
	start := date(2026, time.January, 1, 0, 0)
	end := date(2026, time.January, 16, 0, 0)
	s := Schedule{Frequency: Daily, Interval: 1, StartDate: start, EndDate: &end}

	next, done, err := NextRun(s, date(2026, time.January, 16, 0, 0))
	require.NoError(t, err)
	assert.True(t, done, "an occurrence past the end date must report completion")
	assert.True(t, next.After(end))

	_, done, err = NextRun(s, date(2026, time.January, 14, 0, 0))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestFirstRun(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
		want time.Time
	}{
		{
			name: "daily starts on the start date",
			s:    Schedule{Frequency: Daily, Interval: 1, StartDate: date(2026, time.March, 3, 7, 0)},
			want: date(2026, time.March, 3, 7, 0),
		},
		{
			name: "yearly starts on the start date",
			s:    Schedule{Frequency: Yearly, Interval: 2, StartDate: date(2026, time.March, 3, 7, 0)},
			want: date(2026, time.March, 3, 7, 0),
		},
		{
			name: "weekly start date already matches",
			s:    Schedule{Frequency: Weekly, Interval: 1, DaysOfWeek: []int{4}, StartDate: date(2026, time.January, 15, 7, 0)}, // Thursday
			want: date(2026, time.January, 15, 7, 0),
		},
		{
			name: "weekly searches forward within the week",
			s:    Schedule{Frequency: Weekly, Interval: 1, DaysOfWeek: []int{6}, StartDate: date(2026, time.January, 15, 7, 0)},
			want: date(2026, time.January, 17, 7, 0), // Saturday
		},
		{
			name: "weekly wraps to the next occurrence week",
			s:    Schedule{Frequency: Weekly, Interval: 2, DaysOfWeek: []int{1}, StartDate: date(2026, time.January, 15, 7, 0)},
			want: date(2026, time.January, 26, 7, 0),
		},
		{
			name: "monthly target day still ahead",
			s:    Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 15, StartDate: date(2026, time.January, 10, 7, 0)},
			want: date(2026, time.January, 15, 7, 0),
		},
		{
			name: "monthly target day already passed",
			s:    Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 15, StartDate: date(2026, time.January, 20, 7, 0)},
			want: date(2026, time.February, 15, 7, 0),
		},
		{
			name: "monthly clamps in the start month",
			s:    Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 31, StartDate: date(2026, time.February, 10, 7, 0)},
			want: date(2026, time.February, 28, 7, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstRun(tt.s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOccurrences(t *testing.T) {
	t.Run("returns at most count items", func(t *testing.T) {
		s := Schedule{Frequency: Daily, Interval: 1, StartDate: date(2026, time.January, 1, 9, 0)}
		got, err := Occurrences(s, 5, nil)
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, date(2026, time.January, 2, 9, 0), got[0])
		assert.Equal(t, date(2026, time.January, 6, 9, 0), got[4])
	})

	t.Run("stops at the end date", func(t *testing.T) {
		end := date(2026, time.January, 4, 9, 0)
		s := Schedule{Frequency: Daily, Interval: 1, StartDate: date(2026, time.January, 1, 9, 0), EndDate: &end}
		got, err := Occurrences(s, 10, nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, end, got[2])
	})

	t.Run("honours an explicit anchor", func(t *testing.T) {
		s := Schedule{Frequency: Daily, Interval: 1, StartDate: date(2026, time.January, 1, 9, 0)}
		anchor := date(2026, time.January, 10, 9, 0)
		got, err := Occurrences(s, 2, &anchor)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, date(2026, time.January, 11, 9, 0), got[0])
	})
}

func TestValidateReportsAllViolations(t *testing.T) {
	start := date(2026, time.January, 10, 0, 0)

	t.Run("weekly with zero interval and no days", func(t *testing.T) {
		errs := Validate(Schedule{Frequency: Weekly, Interval: 0, StartDate: start})
		require.Len(t, errs, 2)
		assert.ErrorIs(t, errs[0], ErrIntervalTooSmall)
		assert.ErrorIs(t, errs[1], ErrDaysOfWeekRequired)
	})

	t.Run("day of week out of range", func(t *testing.T) {
		errs := Validate(Schedule{Frequency: Weekly, Interval: 1, DaysOfWeek: []int{2, 7}, StartDate: start})
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrDayOfWeekOutOfRange)
	})

	t.Run("monthly without day of month", func(t *testing.T) {
		errs := Validate(Schedule{Frequency: Monthly, Interval: 1, StartDate: start})
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrDayOfMonthRequired)
	})

	t.Run("end date not after start", func(t *testing.T) {
		errs := Validate(Schedule{Frequency: Daily, Interval: 1, StartDate: start, EndDate: datePtr(start)})
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrEndNotAfterStart)
	})

	t.Run("valid schedule", func(t *testing.T) {
		errs := Validate(Schedule{Frequency: Monthly, Interval: 2, DayOfMonth: 15, StartDate: start})
		assert.Empty(t, errs)
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		s    Schedule
		want string
	}{
		{Schedule{Frequency: Daily, Interval: 1}, "Every day"},
		{Schedule{Frequency: Daily, Interval: 3}, "Every 3 days"},
		{Schedule{Frequency: Weekly, Interval: 1, DaysOfWeek: []int{1, 3}}, "Every Monday, Wednesday"},
		{Schedule{Frequency: Weekly, Interval: 2, DaysOfWeek: []int{5}}, "Every 2 weeks on Friday"},
		{Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 15}, "Every month on the 15th"},
		{Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 31}, "Every month on the 31st"},
		{Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 22}, "Every month on the 22nd"},
		{Schedule{Frequency: Monthly, Interval: 1, DayOfMonth: 13}, "Every month on the 13th"},
		{Schedule{Frequency: Monthly, Interval: 6, DayOfMonth: 3}, "Every 6 months on the 3rd"},
		{Schedule{Frequency: Yearly, Interval: 1}, "Every year"},
		{Schedule{Frequency: Yearly, Interval: 2}, "Every 2 years"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.s))
		})
	}
}
