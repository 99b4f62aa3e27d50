package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskmate/internal/eventbus"
	"taskmate/internal/model"
	"taskmate/internal/repository"
)

type testEnv struct {
	db       *gorm.DB
	bus      eventbus.Bus
	taskRepo *repository.TaskRepository
	catRepo  *repository.CategoryRepository
	recRepo  *repository.RecurrenceRepository
	taskSvc  *TaskService
	recurSvc *RecurrenceService
	user     *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Category{}, &model.Task{}, &model.RecurrencePattern{}))

	user := &model.User{TelegramID: 100500, FirstName: "Test"}
	require.NoError(t, db.Create(user).Error)

	bus := eventbus.New()
	taskRepo := repository.NewTaskRepository(db)
	catRepo := repository.NewCategoryRepository(db)
	recRepo := repository.NewRecurrenceRepository(db)
	log := zerolog.Nop()

	return &testEnv{
		db:       db,
		bus:      bus,
		taskRepo: taskRepo,
		catRepo:  catRepo,
		recRepo:  recRepo,
		taskSvc:  NewTaskService(taskRepo, catRepo, bus, log),
		recurSvc: NewRecurrenceService(recRepo, taskRepo, bus, log),
		user:     user,
	}
}

func (e *testEnv) createTask(t *testing.T, title string) *model.Task {
	t.Helper()
	task, err := e.taskSvc.CreateTask(context.Background(), e.user, TaskInput{Title: title})
	require.NoError(t, err)
	return task
}

func (e *testEnv) countTasks(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Task{}).Where("user_id = ?", e.user.ID).Count(&n).Error)
	return n
}

// drain pulls every buffered event from the channel without blocking.
func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func ptrTime(v time.Time) *time.Time { return &v }
