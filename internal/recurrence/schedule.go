package recurrence

import "time"

// Frequency is the base unit of a recurring schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Schedule describes when a recurring task repeats.
//
// It is a plain value: the calculator functions never mutate it, they only
// compute dates from it. Days of week use 0 = Sunday .. 6 = Saturday.
type Schedule struct {
	Frequency  Frequency
	Interval   int   // multiplier of the base unit, >= 1
	DaysOfWeek []int // weekly only, non-empty
	DayOfMonth int   // monthly only, 1..31 (clamped to shorter months)
	StartDate  time.Time
	EndDate    *time.Time // optional, strictly after StartDate
}

// WithDefaults returns a copy with Interval normalised to at least the zero
// value callers usually mean: an unset interval becomes 1.
func (s Schedule) WithDefaults() Schedule {
	if s.Interval == 0 {
		s.Interval = 1
	}
	return s
}
