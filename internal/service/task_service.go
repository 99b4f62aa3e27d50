package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskmate/internal/eventbus"
	"taskmate/internal/events"
	"taskmate/internal/model"
	"taskmate/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Category    string
	Deadline    *time.Time
	Recurrence  *RecurrenceInput // nil for one-time tasks
}

// TaskService wraps task-related business logic and publishes task lifecycle
// events for the recurrence engine.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	bus          eventbus.Bus
	log          zerolog.Logger
}

func NewTaskService(taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository, bus eventbus.Bus, log zerolog.Logger) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		categoryRepo: categoryRepo,
		bus:          bus,
		log:          log.With().Str("component", "tasks").Logger(),
	}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	var categoryID *uint
	if input.Category != "" {
		category, err := s.categoryRepo.GetOrCreate(ctx, user.ID, input.Category)
		if err != nil {
			return nil, err
		}
		if category != nil {
			categoryID = &category.ID
		}
	}

	task := model.Task{
		UserID:      user.ID,
		CategoryID:  categoryID,
		Title:       input.Title,
		Description: input.Description,
		Deadline:    input.Deadline,
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListActiveOrRecurring(ctx, user.ID)
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// CompleteTask marks a task as done and publishes task.completed. For a
// recurring task the completion time is recorded without closing the task:
// the recurrence engine reacts to the event and generates the next
// occurrence.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint, completedAt time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}

	if task.IsRecurring {
		if err := s.taskRepo.MarkRecurringDone(ctx, task, completedAt); err != nil {
			return nil, err
		}
	} else {
		if err := s.taskRepo.MarkCompleted(ctx, task, completedAt); err != nil {
			return nil, err
		}
	}

	s.bus.Publish(eventbus.Event{
		Topic: events.TopicTaskCompleted,
		Data: events.TaskCompleted{
			TaskID:      task.ID,
			UserID:      user.ID,
			CompletedAt: completedAt,
		},
	})
	return task, nil
}

// DeleteTask removes a task completely and publishes task.deleted so the
// recurrence engine can drop an attached pattern.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	if err := s.taskRepo.Delete(ctx, user.ID, taskID); err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{
		Topic: events.TopicTaskDeleted,
		Data:  events.TaskDeleted{TaskID: taskID, UserID: user.ID},
	})
	return nil
}

// GenerateNext creates the follow-up occurrence of a recurring task: a
// fresh one-time task copying the template, due at the given time. It
// implements the TaskGenerator boundary of the trigger coordinator.
func (s *TaskService) GenerateNext(ctx context.Context, template *model.Task, dueAt time.Time) (*model.Task, error) {
	due := dueAt
	next := model.Task{
		UserID:      template.UserID,
		CategoryID:  template.CategoryID,
		Title:       template.Title,
		Description: template.Description,
		Deadline:    &due,
	}
	if err := s.taskRepo.Create(ctx, &next); err != nil {
		return nil, fmt.Errorf("generate occurrence: %w", err)
	}
	s.log.Debug().Uint("template_id", template.ID).Uint("task_id", next.ID).
		Time("due", due).Msg("occurrence generated")
	return &next, nil
}
