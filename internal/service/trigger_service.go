package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"taskmate/internal/eventbus"
	"taskmate/internal/events"
	"taskmate/internal/model"
	"taskmate/internal/recurrence"
	"taskmate/internal/repository"
)

// TaskGenerator creates the next occurrence task from its template. The
// pattern is only advanced after the generator confirms success.
type TaskGenerator interface {
	GenerateNext(ctx context.Context, template *model.Task, dueAt time.Time) (*model.Task, error)
}

// TriggerService reconciles the two independent trigger paths — the periodic
// due-pattern poll and the task-completed event — into exactly one
// next-occurrence generation per due cycle.
//
// The two paths share no locks. The optimistic check in
// RecurrenceRepository.AdvanceIfCurrent is the sole correctness mechanism:
// whichever path persists first wins, the loser's work is discarded.
type TriggerService struct {
	recurRepo *repository.RecurrenceRepository
	taskRepo  *repository.TaskRepository
	generator TaskGenerator
	bus       eventbus.Bus
	log       zerolog.Logger

	batchSize int

	polling atomic.Bool // a tick arriving while one runs is skipped

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTriggerService(recurRepo *repository.RecurrenceRepository, taskRepo *repository.TaskRepository, generator TaskGenerator, bus eventbus.Bus, batchSize int, log zerolog.Logger) *TriggerService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &TriggerService{
		recurRepo: recurRepo,
		taskRepo:  taskRepo,
		generator: generator,
		bus:       bus,
		batchSize: batchSize,
		log:       log.With().Str("component", "trigger").Logger(),
	}
}

// Start subscribes to task lifecycle events and begins handling them. The
// poll path is driven externally (see PollDue); Stop unsubscribes and waits
// for the in-flight event, if any.
func (s *TriggerService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(64, events.TopicTaskCompleted, events.TopicTaskDeleted)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				s.handleEvent(ctx, e)
			}
		}
	}()
	s.log.Info().Msg("listening for task events")
}

// Stop halts event handling. A poll tick already in flight finishes.
func (s *TriggerService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// PollDue scans for due patterns and triggers each one sequentially. It is
// meant to run on a fixed scheduler interval; a tick that arrives while the
// previous one is still processing is skipped, not queued.
func (s *TriggerService) PollDue(ctx context.Context) {
	if !s.polling.CompareAndSwap(false, true) {
		s.log.Debug().Msg("previous poll still running, tick skipped")
		return
	}
	defer s.polling.Store(false)

	now := time.Now()
	due, err := s.recurRepo.FindDue(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("scan due patterns")
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug().Int("count", len(due)).Msg("due patterns found")

	for i := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// One pattern's failure never aborts the rest of the batch.
		if err := s.TriggerAndGenerate(ctx, &due[i], ""); err != nil {
			s.log.Error().Err(err).Uint("pattern_id", due[i].ID).Msg("trigger failed, pattern left due")
		}
	}
}

// handleEvent reacts to task lifecycle events. Failures are logged, never
// propagated: generation failure leaves the pattern due, so the next poll
// tick retries without a redelivery loop.
func (s *TriggerService) handleEvent(ctx context.Context, e eventbus.Event) {
	switch data := e.Data.(type) {
	case events.TaskCompleted:
		s.onTaskCompleted(ctx, data, e.CorrelationID)
	case events.TaskDeleted:
		s.onTaskDeleted(ctx, data, e.CorrelationID)
	}
}

func (s *TriggerService) onTaskCompleted(ctx context.Context, e events.TaskCompleted, correlationID string) {
	p, err := s.recurRepo.FindByTask(ctx, e.TaskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return // not a recurring task
	}
	if err != nil {
		s.log.Error().Err(err).Uint("task_id", e.TaskID).Msg("look up pattern")
		return
	}
	if p.Status != recurrence.StatusActive {
		s.log.Debug().Uint("pattern_id", p.ID).Str("status", string(p.Status)).Msg("pattern not active, completion ignored")
		return
	}
	if err := s.TriggerAndGenerate(ctx, p, correlationID); err != nil {
		s.log.Error().Err(err).Uint("pattern_id", p.ID).Msg("trigger on completion failed, pattern left due")
	}
}

// onTaskDeleted stops the recurrence instead of triggering it: the pattern
// row is removed together with its owning task.
func (s *TriggerService) onTaskDeleted(ctx context.Context, e events.TaskDeleted, correlationID string) {
	p, err := s.recurRepo.DeleteByTask(ctx, e.TaskID)
	if err != nil {
		s.log.Error().Err(err).Uint("task_id", e.TaskID).Msg("remove pattern of deleted task")
		return
	}
	if p == nil {
		return
	}
	s.log.Info().Uint("pattern_id", p.ID).Uint("task_id", e.TaskID).Msg("recurrence stopped, owning task deleted")
	s.bus.Publish(eventbus.Event{
		Topic:         events.TopicRecurrenceStopped,
		CorrelationID: correlationID,
		Data: events.RecurrenceStopped{
			PatternID: p.ID,
			TaskID:    p.TaskID,
			UserID:    p.UserID,
			Reason:    events.StopReasonManual,
		},
	})
}

// TriggerAndGenerate advances one due pattern and generates its next task.
//
// Ordering: the generator runs first; only after it succeeds is the advanced
// next-run persisted, guarded by the next-run value read at load time. On
// generator failure nothing is persisted and the pattern stays due. On a
// lost optimistic check the other trigger path already handled this due
// cycle, so the freshly generated task is removed again and the result is a
// logged no-op.
func (s *TriggerService) TriggerAndGenerate(ctx context.Context, p *recurrence.Pattern, correlationID string) error {
	prevNextRun := p.NextRunAt
	now := time.Now()

	completed, err := p.Trigger(now)
	if errors.Is(err, recurrence.ErrInvalidTransition) {
		s.log.Debug().Uint("pattern_id", p.ID).Str("status", string(p.Status)).Msg("pattern not triggerable, skipped")
		return nil
	}
	if err != nil {
		return err
	}

	if completed {
		ok, err := s.recurRepo.AdvanceIfCurrent(ctx, p, prevNextRun)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug().Uint("pattern_id", p.ID).Msg("completion lost the race, already handled")
			return nil
		}
		s.log.Info().Uint("pattern_id", p.ID).Msg("recurrence completed, end date reached")
		s.bus.Publish(eventbus.Event{
			Topic:         events.TopicRecurrenceStopped,
			CorrelationID: correlationID,
			Data: events.RecurrenceStopped{
				PatternID: p.ID,
				TaskID:    p.TaskID,
				UserID:    p.UserID,
				Reason:    events.StopReasonEndDateReached,
			},
		})
		return nil
	}

	template, err := s.taskRepo.FindByID(ctx, p.UserID, p.TaskID)
	if err != nil {
		return err
	}
	newTask, err := s.generator.GenerateNext(ctx, template, p.NextRunAt)
	if err != nil {
		// Pattern not advanced; the next poll tick or completion retries.
		return err
	}

	ok, err := s.recurRepo.AdvanceIfCurrent(ctx, p, prevNextRun)
	if err != nil {
		return err
	}
	if !ok {
		// The other path advanced this cycle first and generated its own
		// task; drop ours so exactly one occurrence exists.
		s.log.Info().Uint("pattern_id", p.ID).Uint("task_id", newTask.ID).Msg("concurrent trigger detected, duplicate occurrence discarded")
		if err := s.taskRepo.Delete(ctx, p.UserID, newTask.ID); err != nil {
			s.log.Error().Err(err).Uint("task_id", newTask.ID).Msg("remove duplicate occurrence")
		}
		return nil
	}

	s.log.Info().Uint("pattern_id", p.ID).Uint("task_id", p.TaskID).
		Uint("new_task_id", newTask.ID).Time("next_run", p.NextRunAt).Msg("recurrence triggered")
	s.bus.Publish(eventbus.Event{
		Topic:         events.TopicRecurrenceTriggered,
		CorrelationID: correlationID,
		Data: events.RecurrenceTriggered{
			PatternID:      p.ID,
			OriginalTaskID: p.TaskID,
			NewTaskID:      newTask.ID,
			UserID:         p.UserID,
			NextRunAt:      p.NextRunAt,
		},
	})
	return nil
}
