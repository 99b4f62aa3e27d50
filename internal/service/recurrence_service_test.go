package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskmate/internal/events"
	"taskmate/internal/model"
	"taskmate/internal/recurrence"
	"taskmate/internal/repository"
)

func TestRecurrenceServiceCreate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "йога")

	ch, unsub := e.bus.Subscribe(8, events.TopicRecurrenceCreated)
	defer unsub()

	p, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency:  recurrence.Weekly,
		Interval:   1,
		DaysOfWeek: []int{1, 5},
		StartDate:  time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, recurrence.StatusActive, p.Status)
	// Thursday start, Monday/Friday days: first run is Friday the 16th.
	require.Equal(t, time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC), p.NextRunAt.UTC())

	// The task is flagged recurring.
	stored, err := e.taskRepo.FindByID(ctx, e.user.ID, task.ID)
	require.NoError(t, err)
	require.True(t, stored.IsRecurring)

	evs := drain(ch)
	require.Len(t, evs, 1)
	require.NotEmpty(t, evs[0].CorrelationID)
}

func TestRecurrenceServiceCreateRejectsSecondPattern(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "уборка")
	in := RecurrenceInput{Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now()}

	_, err := e.recurSvc.Create(ctx, e.user, task.ID, in)
	require.NoError(t, err)

	_, err = e.recurSvc.Create(ctx, e.user, task.ID, in)
	require.ErrorIs(t, err, repository.ErrDuplicatePattern)
}

func TestRecurrenceServiceCreateRejectsInvalidSchedule(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "прогулка")
	_, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency: recurrence.Weekly, // weekly without days of week
		Interval:  1,
		StartDate: time.Now(),
	})
	require.Error(t, err)

	// Nothing persisted, task stays one-time.
	_, err = e.recRepo.FindByTask(ctx, task.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	stored, err := e.taskRepo.FindByID(ctx, e.user.ID, task.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRecurring)
}

func TestRecurrenceServiceCreateForeignTask(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	other := &model.User{TelegramID: 200600}
	require.NoError(t, e.db.Create(other).Error)
	task := e.createTask(t, "чужая")

	_, err := e.recurSvc.Create(ctx, other, task.ID, RecurrenceInput{
		Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now(),
	})
	require.Error(t, err)
}

func TestRecurrenceServiceGetByTaskHidesForeignPattern(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "личная")
	_, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now(),
	})
	require.NoError(t, err)

	other := &model.User{TelegramID: 200600}
	require.NoError(t, e.db.Create(other).Error)

	_, err = e.recurSvc.GetByTask(ctx, other, task.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecurrenceServicePauseResume(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "гитара")
	created, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now(),
	})
	require.NoError(t, err)

	paused, err := e.recurSvc.Pause(ctx, e.user, task.ID)
	require.NoError(t, err)
	require.Equal(t, recurrence.StatusPaused, paused.Status)
	// Pause keeps the scheduled date.
	require.True(t, paused.NextRunAt.Equal(created.NextRunAt))

	// Pausing twice is an invalid transition.
	_, err = e.recurSvc.Pause(ctx, e.user, task.ID)
	require.ErrorIs(t, err, recurrence.ErrInvalidTransition)

	resumed, err := e.recurSvc.Resume(ctx, e.user, task.ID)
	require.NoError(t, err)
	require.Equal(t, recurrence.StatusActive, resumed.Status)
	require.True(t, resumed.NextRunAt.Equal(created.NextRunAt))
}

func TestRecurrenceServiceUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "отчётность")
	_, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	newInterval := 3
	updated, err := e.recurSvc.Update(ctx, e.user, task.ID, recurrence.ScheduleChange{
		Interval: &newInterval,
	})
	require.NoError(t, err)
	require.Equal(t, 3, updated.Schedule.Interval)

	stored, err := e.recRepo.FindByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Schedule.Interval)
	require.True(t, stored.NextRunAt.Equal(updated.NextRunAt))
}

func TestRecurrenceServiceRemove(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	task := e.createTask(t, "рассылка")
	_, err := e.recurSvc.Create(ctx, e.user, task.ID, RecurrenceInput{
		Frequency: recurrence.Daily, Interval: 1, StartDate: time.Now(),
	})
	require.NoError(t, err)

	ch, unsub := e.bus.Subscribe(8, events.TopicRecurrenceStopped)
	defer unsub()

	require.NoError(t, e.recurSvc.Remove(ctx, e.user, task.ID))

	_, err = e.recRepo.FindByTask(ctx, task.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stored, err := e.taskRepo.FindByID(ctx, e.user.ID, task.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRecurring)

	evs := drain(ch)
	require.Len(t, evs, 1)
	data, ok := evs[0].Data.(events.RecurrenceStopped)
	require.True(t, ok)
	require.Equal(t, events.StopReasonManual, data.Reason)
}
