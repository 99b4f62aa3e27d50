package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"taskmate/internal/eventbus"
	"taskmate/internal/events"
	"taskmate/internal/model"
	"taskmate/internal/recurrence"
	"taskmate/internal/repository"
)

// RecurrenceInput carries the user's schedule choices from the chat layer.
type RecurrenceInput struct {
	Frequency  recurrence.Frequency
	Interval   int
	DaysOfWeek []int
	DayOfMonth int
	StartDate  time.Time
	EndDate    *time.Time
}

// RecurrenceService owns the CRUD and lifecycle surface of recurrence
// patterns: validation, pause/resume, and the lifecycle events other
// components consume.
type RecurrenceService struct {
	recurRepo *repository.RecurrenceRepository
	taskRepo  *repository.TaskRepository
	bus       eventbus.Bus
	log       zerolog.Logger
}

func NewRecurrenceService(recurRepo *repository.RecurrenceRepository, taskRepo *repository.TaskRepository, bus eventbus.Bus, log zerolog.Logger) *RecurrenceService {
	return &RecurrenceService{
		recurRepo: recurRepo,
		taskRepo:  taskRepo,
		bus:       bus,
		log:       log.With().Str("component", "recurrence").Logger(),
	}
}

// Create attaches a recurrence pattern to one of the user's tasks. The task
// must exist and belong to the user; a task can carry at most one pattern.
func (s *RecurrenceService) Create(ctx context.Context, user *model.User, taskID uint, input RecurrenceInput) (*recurrence.Pattern, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}

	start := input.StartDate
	if start.IsZero() {
		start = time.Now()
	}
	pattern, err := recurrence.NewPattern(task.ID, user.ID, recurrence.Schedule{
		Frequency:  input.Frequency,
		Interval:   input.Interval,
		DaysOfWeek: input.DaysOfWeek,
		DayOfMonth: input.DayOfMonth,
		StartDate:  start,
		EndDate:    input.EndDate,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recurRepo.Create(ctx, pattern); err != nil {
		return nil, err
	}
	if err := s.taskRepo.SetRecurring(ctx, task.ID, true); err != nil {
		s.log.Error().Err(err).Uint("task_id", task.ID).Msg("flag task recurring")
	}

	s.log.Info().Uint("pattern_id", pattern.ID).Uint("task_id", task.ID).
		Time("next_run", pattern.NextRunAt).Msg("pattern created")
	s.publishLifecycle(events.TopicRecurrenceCreated, pattern, "")
	return pattern, nil
}

// GetByTask returns the pattern attached to the user's task.
func (s *RecurrenceService) GetByTask(ctx context.Context, user *model.User, taskID uint) (*recurrence.Pattern, error) {
	p, err := s.recurRepo.FindByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID {
		// Don't leak that another user's task has a pattern.
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

// List returns all of the user's patterns ordered by next run.
func (s *RecurrenceService) List(ctx context.Context, user *model.User) ([]recurrence.Pattern, error) {
	return s.recurRepo.ListByUser(ctx, user.ID)
}

// Update applies a partial schedule edit, recomputing the next run from now.
func (s *RecurrenceService) Update(ctx context.Context, user *model.User, taskID uint, change recurrence.ScheduleChange) (*recurrence.Pattern, error) {
	p, err := s.GetByTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := p.Update(change, time.Now()); err != nil {
		return nil, err
	}
	if err := s.recurRepo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Uint("pattern_id", p.ID).Time("next_run", p.NextRunAt).Msg("pattern updated")
	s.publishLifecycle(events.TopicRecurrenceModified, p, "")
	return p, nil
}

// Pause suspends the task's pattern; the poller skips paused patterns.
func (s *RecurrenceService) Pause(ctx context.Context, user *model.User, taskID uint) (*recurrence.Pattern, error) {
	p, err := s.GetByTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if err := p.Pause(); err != nil {
		return nil, err
	}
	if err := s.recurRepo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Uint("pattern_id", p.ID).Msg("pattern paused")
	s.publishLifecycle(events.TopicRecurrencePaused, p, "")
	return p, nil
}

// Resume reactivates a paused pattern.
func (s *RecurrenceService) Resume(ctx context.Context, user *model.User, taskID uint) (*recurrence.Pattern, error) {
	p, err := s.GetByTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if err := p.Resume(); err != nil {
		return nil, err
	}
	if err := s.recurRepo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Uint("pattern_id", p.ID).Msg("pattern resumed")
	s.publishLifecycle(events.TopicRecurrenceResumed, p, "")
	return p, nil
}

// Remove deletes the task's pattern at the user's request and emits a
// manual stop event.
func (s *RecurrenceService) Remove(ctx context.Context, user *model.User, taskID uint) error {
	p, err := s.GetByTask(ctx, user, taskID)
	if err != nil {
		return err
	}
	if err := s.recurRepo.Delete(ctx, user.ID, p.ID); err != nil {
		return err
	}
	if err := s.taskRepo.SetRecurring(ctx, taskID, false); err != nil {
		s.log.Error().Err(err).Uint("task_id", taskID).Msg("unflag task recurring")
	}
	s.log.Info().Uint("pattern_id", p.ID).Uint("task_id", taskID).Msg("pattern removed")
	s.bus.Publish(eventbus.Event{
		Topic: events.TopicRecurrenceStopped,
		Data: events.RecurrenceStopped{
			PatternID: p.ID,
			TaskID:    p.TaskID,
			UserID:    p.UserID,
			Reason:    events.StopReasonManual,
		},
	})
	return nil
}

func (s *RecurrenceService) publishLifecycle(topic string, p *recurrence.Pattern, correlationID string) {
	s.bus.Publish(eventbus.Event{
		Topic:         topic,
		CorrelationID: correlationID,
		Data: events.RecurrenceLifecycle{
			PatternID: p.ID,
			TaskID:    p.TaskID,
			UserID:    p.UserID,
			NextRunAt: p.NextRunAt,
		},
	})
}
