package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskmate/internal/model"
	"taskmate/internal/recurrence"
)

// ErrDuplicatePattern is returned when a task already has a recurrence
// pattern. The unique index on task_id is the authority, so two concurrent
// creates cannot both succeed.
var ErrDuplicatePattern = errors.New("task already has a recurrence pattern")

// RecurrenceRepository handles CRUD and the due/advance queries for
// recurrence patterns.
type RecurrenceRepository struct {
	db *gorm.DB
}

func NewRecurrenceRepository(db *gorm.DB) *RecurrenceRepository {
	return &RecurrenceRepository{db: db}
}

func (r *RecurrenceRepository) Create(ctx context.Context, p *recurrence.Pattern) error {
	row := toRow(p)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePattern
		}
		return fmt.Errorf("create pattern: %w", err)
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	p.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *RecurrenceRepository) FindByID(ctx context.Context, userID, patternID uint) (*recurrence.Pattern, error) {
	var row model.RecurrencePattern
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, patternID).First(&row).Error; err != nil {
		return nil, err
	}
	return toDomain(row), nil
}

// FindByTask looks up the pattern owned by a task regardless of the owning
// user. The trigger paths use it when reacting to task events.
func (r *RecurrenceRepository) FindByTask(ctx context.Context, taskID uint) (*recurrence.Pattern, error) {
	var row model.RecurrencePattern
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&row).Error; err != nil {
		return nil, err
	}
	return toDomain(row), nil
}

func (r *RecurrenceRepository) ListByUser(ctx context.Context, userID uint) ([]recurrence.Pattern, error) {
	var rows []model.RecurrencePattern
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("next_run_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]recurrence.Pattern, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toDomain(row))
	}
	return out, nil
}

// FindDue returns up to limit active patterns with next_run_at <= now,
// oldest first.
func (r *RecurrenceRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]recurrence.Pattern, error) {
	var rows []model.RecurrencePattern
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", string(recurrence.StatusActive), now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]recurrence.Pattern, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toDomain(row))
	}
	return out, nil
}

// Save writes the full pattern state back. Used for explicit edits and
// pause/resume, where the bot is the only writer for the user's pattern.
func (r *RecurrenceRepository) Save(ctx context.Context, p *recurrence.Pattern) error {
	row := toRow(p)
	row.ID = p.ID
	row.CreatedAt = p.CreatedAt
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}
	p.UpdatedAt = row.UpdatedAt
	return nil
}

// AdvanceIfCurrent persists the outcome of a trigger (advanced next-run and
// last-triggered, or a completed status), but only if the stored row is
// still active with the next-run the caller read. It reports whether the
// optimistic check held; false means another trigger path already advanced
// this due cycle.
func (r *RecurrenceRepository) AdvanceIfCurrent(ctx context.Context, p *recurrence.Pattern, prevNextRun time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.RecurrencePattern{}).
		Where("id = ? AND status = ? AND next_run_at = ?", p.ID, string(recurrence.StatusActive), prevNextRun).
		Updates(map[string]interface{}{
			"status":            string(p.Status),
			"next_run_at":       p.NextRunAt,
			"last_triggered_at": p.LastTriggeredAt,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("advance pattern: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *RecurrenceRepository) Delete(ctx context.Context, userID, patternID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, patternID).
		Delete(&model.RecurrencePattern{}).Error; err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}

// DeleteByTask removes a task's pattern, if any. Returns the removed pattern
// or nil when the task had none.
func (r *RecurrenceRepository) DeleteByTask(ctx context.Context, taskID uint) (*recurrence.Pattern, error) {
	p, err := r.FindByTask(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Delete(&model.RecurrencePattern{}).Error; err != nil {
		return nil, fmt.Errorf("delete pattern by task: %w", err)
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toRow(p *recurrence.Pattern) model.RecurrencePattern {
	return model.RecurrencePattern{
		ID:              p.ID,
		TaskID:          p.TaskID,
		UserID:          p.UserID,
		Frequency:       string(p.Schedule.Frequency),
		Interval:        p.Schedule.Interval,
		DaysOfWeek:      joinDays(p.Schedule.DaysOfWeek),
		DayOfMonth:      p.Schedule.DayOfMonth,
		StartDate:       p.Schedule.StartDate,
		EndDate:         p.Schedule.EndDate,
		NextRunAt:       p.NextRunAt,
		Status:          string(p.Status),
		LastTriggeredAt: p.LastTriggeredAt,
	}
}

func toDomain(row model.RecurrencePattern) *recurrence.Pattern {
	return &recurrence.Pattern{
		ID:     row.ID,
		TaskID: row.TaskID,
		UserID: row.UserID,
		Schedule: recurrence.Schedule{
			Frequency:  recurrence.Frequency(row.Frequency),
			Interval:   row.Interval,
			DaysOfWeek: splitDays(row.DaysOfWeek),
			DayOfMonth: row.DayOfMonth,
			StartDate:  row.StartDate,
			EndDate:    row.EndDate,
		},
		Status:          recurrence.Status(row.Status),
		NextRunAt:       row.NextRunAt,
		LastTriggeredAt: row.LastTriggeredAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func joinDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, part := range parts {
		if d, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			days = append(days, d)
		}
	}
	return days
}
