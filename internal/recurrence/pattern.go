package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a pattern. Completed is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

var (
	// ErrInvalidTransition is returned when a lifecycle operation is called
	// from the wrong status. The automatic trigger paths treat it as benign.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrScheduleExhausted is returned by Update when the merged schedule has
	// no occurrence left before its end date.
	ErrScheduleExhausted = errors.New("schedule has no future occurrence before its end date")
)

// Pattern wraps a schedule with its lifecycle state. It carries no hidden
// behaviour: it is reconstructed from the persisted row on each operation,
// mutated in memory, and written back (or discarded) by the caller.
type Pattern struct {
	ID              uint
	TaskID          uint
	UserID          uint
	Schedule        Schedule
	Status          Status
	NextRunAt       time.Time
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPattern validates the schedule and computes the initial next-run.
func NewPattern(taskID, userID uint, s Schedule) (*Pattern, error) {
	s = s.WithDefaults()
	if errs := Validate(s); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	first, err := FirstRun(s)
	if err != nil {
		return nil, err
	}
	return &Pattern{
		TaskID:    taskID,
		UserID:    userID,
		Schedule:  s,
		Status:    StatusActive,
		NextRunAt: first,
	}, nil
}

// IsDue reports whether the pattern should fire. Pure query, no mutation.
func (p *Pattern) IsDue(now time.Time) bool {
	return p.Status == StatusActive && !p.NextRunAt.After(now)
}

// Pause suspends an active pattern.
func (p *Pattern) Pause() error {
	if p.Status != StatusActive {
		return fmt.Errorf("%w: pause from %q", ErrInvalidTransition, p.Status)
	}
	p.Status = StatusPaused
	return nil
}

// Resume reactivates a paused pattern.
func (p *Pattern) Resume() error {
	if p.Status != StatusPaused {
		return fmt.Errorf("%w: resume from %q", ErrInvalidTransition, p.Status)
	}
	p.Status = StatusActive
	return nil
}

// Trigger advances the pattern to its next occurrence, anchoring the date
// math at now. When the next occurrence falls past the end date the pattern
// transitions to completed instead and the first result is true.
//
// Calendar edge cases are normal outcomes here; the only error paths are a
// non-active status and an unknown frequency.
func (p *Pattern) Trigger(now time.Time) (completed bool, err error) {
	if p.Status != StatusActive {
		return false, fmt.Errorf("%w: trigger from %q", ErrInvalidTransition, p.Status)
	}

	next, done, err := NextRun(p.Schedule, now)
	if err != nil {
		return false, err
	}
	if done {
		p.Status = StatusCompleted
		return true, nil
	}

	triggered := now
	p.NextRunAt = next
	p.LastTriggeredAt = &triggered
	return false, nil
}

// ScheduleChange is a partial schedule edit. Nil fields stay unchanged;
// ClearEndDate removes the end date.
type ScheduleChange struct {
	Frequency    *Frequency
	Interval     *int
	DaysOfWeek   []int
	DayOfMonth   *int
	EndDate      *time.Time
	ClearEndDate bool
}

// Update merges the change into the schedule, re-validates the result and
// recomputes the next-run from now. The pre-update snapshot is returned for
// event payloads. A rejected change leaves the pattern untouched.
func (p *Pattern) Update(change ScheduleChange, now time.Time) (Pattern, error) {
	if p.Status == StatusCompleted {
		return Pattern{}, fmt.Errorf("%w: update from %q", ErrInvalidTransition, p.Status)
	}

	merged := p.Schedule
	if change.Frequency != nil {
		merged.Frequency = *change.Frequency
	}
	if change.Interval != nil {
		merged.Interval = *change.Interval
	}
	if change.DaysOfWeek != nil {
		merged.DaysOfWeek = change.DaysOfWeek
	}
	if change.DayOfMonth != nil {
		merged.DayOfMonth = *change.DayOfMonth
	}
	if change.ClearEndDate {
		merged.EndDate = nil
	} else if change.EndDate != nil {
		merged.EndDate = change.EndDate
	}

	if errs := Validate(merged); len(errs) > 0 {
		return Pattern{}, errors.Join(errs...)
	}
	next, done, err := NextRun(merged, now)
	if err != nil {
		return Pattern{}, err
	}
	if done {
		return Pattern{}, ErrScheduleExhausted
	}

	prev := *p
	p.Schedule = merged
	p.NextRunAt = next
	return prev, nil
}
