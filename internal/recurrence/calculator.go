package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownFrequency marks a schedule whose frequency is not one of the
// supported values. It is a data/programmer error, never a normal outcome.
var ErrUnknownFrequency = errors.New("unknown frequency")

// Validation errors. Validate returns every violated rule, not just the first.
var (
	ErrIntervalTooSmall    = errors.New("interval must be at least 1")
	ErrDaysOfWeekRequired  = errors.New("weekly schedule requires at least one day of week")
	ErrDayOfWeekOutOfRange = errors.New("days of week must be between 0 (Sunday) and 6 (Saturday)")
	ErrDayOfMonthRequired  = errors.New("monthly schedule requires a day of month between 1 and 31")
	ErrEndNotAfterStart    = errors.New("end date must be after start date")
)

// NextRun computes the occurrence that follows from. The second result is
// true when the computed date falls past the schedule's end date; callers
// must then complete the schedule instead of using the returned date.
//
// Time-of-day is always preserved from the anchor date.
func NextRun(s Schedule, from time.Time) (time.Time, bool, error) {
	var next time.Time

	switch s.Frequency {
	case Daily:
		next = from.AddDate(0, 0, s.Interval)
	case Weekly:
		var err error
		next, err = nextWeekly(s, from)
		if err != nil {
			return time.Time{}, false, err
		}
	case Monthly:
		next = nextMonthly(s, from)
	case Yearly:
		next = nextYearly(s, from)
	default:
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrUnknownFrequency, s.Frequency)
	}

	if s.EndDate != nil && next.After(*s.EndDate) {
		return next, true, nil
	}
	return next, false, nil
}

// nextWeekly finds the earliest scheduled weekday strictly after from. A day
// remaining in the anchor's week is used directly; otherwise it wraps to the
// first scheduled day of the next occurrence week. Either way an interval of
// N weeks pushes the result (N-1) weeks further out.
func nextWeekly(s Schedule, from time.Time) (time.Time, error) {
	days := normalizedDays(s.DaysOfWeek)
	if len(days) == 0 {
		return time.Time{}, ErrDaysOfWeekRequired
	}

	weekday := int(from.Weekday())
	offset := -1
	for _, d := range days {
		if d > weekday {
			offset = d - weekday
			break
		}
	}
	if offset < 0 {
		// No day left this week: wrap to the first scheduled day next week.
		offset = 7 - weekday + days[0]
	}
	if s.Interval > 1 {
		offset += (s.Interval - 1) * 7
	}
	return from.AddDate(0, 0, offset), nil
}

func nextMonthly(s Schedule, from time.Time) time.Time {
	year, month, _ := from.Date()
	hour, minute, sec := from.Clock()

	target := time.Date(year, month+time.Month(s.Interval), 1, hour, minute, sec, from.Nanosecond(), from.Location())
	day := s.DayOfMonth
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, from.Nanosecond(), from.Location())
}

func nextYearly(s Schedule, from time.Time) time.Time {
	year := from.Year() + s.Interval
	if from.Month() == time.February && from.Day() == 29 && !isLeapYear(year) {
		hour, minute, sec := from.Clock()
		return time.Date(year, time.February, 28, hour, minute, sec, from.Nanosecond(), from.Location())
	}
	return from.AddDate(s.Interval, 0, 0)
}

// FirstRun computes the initial occurrence for a freshly created schedule.
// Unlike NextRun, the start date itself is a valid result.
func FirstRun(s Schedule) (time.Time, error) {
	switch s.Frequency {
	case Daily, Yearly:
		return s.StartDate, nil
	case Weekly:
		days := normalizedDays(s.DaysOfWeek)
		if len(days) == 0 {
			return time.Time{}, ErrDaysOfWeekRequired
		}
		weekday := int(s.StartDate.Weekday())
		for _, d := range days {
			if d == weekday {
				return s.StartDate, nil
			}
			if d > weekday {
				return s.StartDate.AddDate(0, 0, d-weekday), nil
			}
		}
		offset := 7 - weekday + days[0]
		if s.Interval > 1 {
			offset += (s.Interval - 1) * 7
		}
		return s.StartDate.AddDate(0, 0, offset), nil
	case Monthly:
		year, month, _ := s.StartDate.Date()
		hour, minute, sec := s.StartDate.Clock()
		day := s.DayOfMonth
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		candidate := time.Date(year, month, day, hour, minute, sec, s.StartDate.Nanosecond(), s.StartDate.Location())
		if !candidate.Before(s.StartDate) {
			return candidate, nil
		}
		day = s.DayOfMonth
		next := time.Date(year, month+1, 1, 0, 0, 0, 0, s.StartDate.Location())
		if last := daysInMonth(next.Year(), next.Month()); day > last {
			day = last
		}
		return time.Date(next.Year(), next.Month(), day, hour, minute, sec, s.StartDate.Nanosecond(), s.StartDate.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, s.Frequency)
	}
}

// Occurrences returns up to count occurrence dates, starting after from
// (the schedule's start date when from is nil). The sequence ends early at
// the first occurrence past the end date.
func Occurrences(s Schedule, count int, from *time.Time) ([]time.Time, error) {
	anchor := s.StartDate
	if from != nil {
		anchor = *from
	}

	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		next, done, err := NextRun(s, anchor)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		out = append(out, next)
		anchor = next
	}
	return out, nil
}

// Validate checks every schedule rule and reports all violations at once so
// the chat layer can show the user a complete list.
func Validate(s Schedule) []error {
	var errs []error

	switch s.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownFrequency, s.Frequency))
	}

	if s.Interval < 1 {
		errs = append(errs, ErrIntervalTooSmall)
	}

	if s.Frequency == Weekly {
		if len(s.DaysOfWeek) == 0 {
			errs = append(errs, ErrDaysOfWeekRequired)
		}
		for _, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				errs = append(errs, ErrDayOfWeekOutOfRange)
				break
			}
		}
	}

	if s.Frequency == Monthly && (s.DayOfMonth < 1 || s.DayOfMonth > 31) {
		errs = append(errs, ErrDayOfMonthRequired)
	}

	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		errs = append(errs, ErrEndNotAfterStart)
	}

	return errs
}

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Describe renders a short human-readable summary of the schedule, e.g.
// "Every 2 weeks on Friday" or "Every month on the 31st".
func Describe(s Schedule) string {
	switch s.Frequency {
	case Daily:
		if s.Interval <= 1 {
			return "Every day"
		}
		return fmt.Sprintf("Every %d days", s.Interval)
	case Weekly:
		names := make([]string, 0, len(s.DaysOfWeek))
		for _, d := range normalizedDays(s.DaysOfWeek) {
			if d >= 0 && d <= 6 {
				names = append(names, dayNames[d])
			}
		}
		joined := strings.Join(names, ", ")
		if s.Interval <= 1 {
			if joined == "" {
				return "Every week"
			}
			return "Every " + joined
		}
		if joined == "" {
			return fmt.Sprintf("Every %d weeks", s.Interval)
		}
		return fmt.Sprintf("Every %d weeks on %s", s.Interval, joined)
	case Monthly:
		if s.Interval <= 1 {
			return fmt.Sprintf("Every month on the %s", ordinal(s.DayOfMonth))
		}
		return fmt.Sprintf("Every %d months on the %s", s.Interval, ordinal(s.DayOfMonth))
	case Yearly:
		if s.Interval <= 1 {
			return "Every year"
		}
		return fmt.Sprintf("Every %d years", s.Interval)
	default:
		return string(s.Frequency)
	}
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// normalizedDays returns the day set sorted with duplicates removed.
func normalizedDays(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	out := make([]int, 0, len(days))
	seen := map[int]bool{}
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

// daysInMonth relies on time.Date normalising day 0 to the last day of the
// previous month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
