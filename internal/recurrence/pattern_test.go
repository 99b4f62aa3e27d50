package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDailyPattern(t *testing.T, end *time.Time) *Pattern {
	t.Helper()
	p, err := NewPattern(7, 3, Schedule{
		Frequency: Daily,
		Interval:  1,
		StartDate: date(2026, time.January, 1, 12, 0),
		EndDate:   end,
	})
	require.NoError(t, err)
	return p
}

func TestNewPattern(t *testing.T) {
	t.Run("computes the first run", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		assert.Equal(t, StatusActive, p.Status)
		assert.Equal(t, date(2026, time.January, 1, 12, 0), p.NextRunAt)
		assert.Nil(t, p.LastTriggeredAt)
	})

	t.Run("defaults interval to one", func(t *testing.T) {
		p, err := NewPattern(1, 1, Schedule{Frequency: Daily, StartDate: date(2026, time.May, 1, 8, 0)})
		require.NoError(t, err)
		assert.Equal(t, 1, p.Schedule.Interval)
	})

	t.Run("rejects invalid schedules with every violation", func(t *testing.T) {
		_, err := NewPattern(1, 1, Schedule{Frequency: Weekly, Interval: -1, StartDate: date(2026, time.May, 1, 8, 0)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIntervalTooSmall)
		assert.ErrorIs(t, err, ErrDaysOfWeekRequired)
	})
}

func TestPatternPauseResume(t *testing.T) {
	p := newDailyPattern(t, nil)

	require.NoError(t, p.Pause())
	assert.Equal(t, StatusPaused, p.Status)

	assert.ErrorIs(t, p.Pause(), ErrInvalidTransition)

	require.NoError(t, p.Resume())
	assert.Equal(t, StatusActive, p.Status)

	assert.ErrorIs(t, p.Resume(), ErrInvalidTransition)

	p.Status = StatusCompleted
	assert.ErrorIs(t, p.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Resume(), ErrInvalidTransition)
}

func TestPatternTrigger(t *testing.T) {
	t.Run("advances next run and last triggered", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		now := date(2026, time.January, 15, 12, 0)

		completed, err := p.Trigger(now)
		require.NoError(t, err)
		assert.False(t, completed)
		assert.Equal(t, date(2026, time.January, 16, 12, 0), p.NextRunAt)
		require.NotNil(t, p.LastTriggeredAt)
		assert.Equal(t, now, *p.LastTriggeredAt)
		assert.Equal(t, StatusActive, p.Status)
	})

	t.Run("completes when the end date is reached", func(t *testing.T) {
		end := date(2026, time.January, 16, 0, 0)
		p := newDailyPattern(t, &end)
		prevNext := p.NextRunAt

		completed, err := p.Trigger(date(2026, time.January, 16, 0, 0))
		require.NoError(t, err)
		assert.True(t, completed)
		assert.Equal(t, StatusCompleted, p.Status)
		assert.Equal(t, prevNext, p.NextRunAt, "a completed trigger must not advance next-run")
		assert.Nil(t, p.LastTriggeredAt)
	})

	t.Run("rejected outside the active state", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		require.NoError(t, p.Pause())
		_, err := p.Trigger(time.Now())
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestPatternIsDue(t *testing.T) {
	p := newDailyPattern(t, nil)

	assert.True(t, p.IsDue(p.NextRunAt), "due exactly at next-run")
	assert.True(t, p.IsDue(p.NextRunAt.Add(time.Hour)))
	assert.False(t, p.IsDue(p.NextRunAt.Add(-time.Minute)))

	require.NoError(t, p.Pause())
	assert.False(t, p.IsDue(p.NextRunAt.Add(time.Hour)), "paused patterns are never due")
}

func TestPatternUpdate(t *testing.T) {
	freq := Weekly
	interval := 2

	t.Run("merges, revalidates and recomputes next run", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		now := date(2026, time.January, 15, 12, 0) // Thursday

		prev, err := p.Update(ScheduleChange{
			Frequency:  &freq,
			Interval:   &interval,
			DaysOfWeek: []int{1},
		}, now)
		require.NoError(t, err)

		assert.Equal(t, Daily, prev.Schedule.Frequency, "snapshot keeps the pre-update schedule")
		assert.Equal(t, Weekly, p.Schedule.Frequency)
		assert.Equal(t, date(2026, time.January, 26, 12, 0), p.NextRunAt)
	})

	t.Run("invalid merge leaves the pattern untouched", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		before := *p

		_, err := p.Update(ScheduleChange{Frequency: &freq}, time.Now())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDaysOfWeekRequired)
		assert.Equal(t, before, *p)
	})

	t.Run("allowed while paused", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		require.NoError(t, p.Pause())

		three := 3
		_, err := p.Update(ScheduleChange{Interval: &three}, date(2026, time.February, 1, 12, 0))
		require.NoError(t, err)
		assert.Equal(t, StatusPaused, p.Status, "an update must not resume the pattern")
		assert.Equal(t, 3, p.Schedule.Interval)
	})

	t.Run("rejected once completed", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		p.Status = StatusCompleted
		_, err := p.Update(ScheduleChange{Interval: &interval}, time.Now())
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("rejects an end date with no occurrence left", func(t *testing.T) {
		p := newDailyPattern(t, nil)
		end := date(2026, time.March, 1, 0, 0)
		_, err := p.Update(ScheduleChange{EndDate: &end}, date(2026, time.March, 10, 0, 0))
		assert.ErrorIs(t, err, ErrScheduleExhausted)
	})

	t.Run("clears the end date", func(t *testing.T) {
		end := date(2027, time.January, 1, 0, 0)
		p := newDailyPattern(t, &end)
		_, err := p.Update(ScheduleChange{ClearEndDate: true}, date(2026, time.June, 1, 12, 0))
		require.NoError(t, err)
		assert.Nil(t, p.Schedule.EndDate)
	})
}
