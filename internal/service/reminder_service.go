package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"taskmate/internal/model"
	"taskmate/internal/recurrence"
	"taskmate/internal/repository"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	recurRepo    *repository.RecurrenceRepository
}

func NewReminderService(taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository, recurRepo *repository.RecurrenceRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo, categoryRepo: categoryRepo, recurRepo: recurRepo}
}

func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListActiveOrRecurring(ctx, user.ID)
	if err != nil {
		return "", err
	}

	categories, err := s.categoryRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	patterns, err := s.recurRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	taskTitles := make(map[uint]string)
	for _, task := range tasks {
		taskTitles[task.ID] = task.Title
	}

	var pending []model.Task
	for _, task := range tasks {
		if !task.IsCompleted && !task.IsRecurring {
			pending = append(pending, task)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		switch {
		case pending[i].Deadline == nil && pending[j].Deadline == nil:
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		case pending[i].Deadline == nil:
			return false
		case pending[j].Deadline == nil:
			return true
		default:
			return pending[i].Deadline.Before(*pending[j].Deadline)
		}
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🔥 <b>Текущие задачи</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— нет открытых задач\n")
	} else {
		for _, task := range pending {
			builder.WriteString(formatTask(task, catNames, now))
		}
	}

	builder.WriteString("\n♻️ <b>Регулярные задачи</b>\n")
	if len(patterns) == 0 {
		builder.WriteString("— нет регулярных задач\n")
	} else {
		for _, p := range patterns {
			builder.WriteString(formatPattern(p, taskTitles[p.TaskID], now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatPattern(p recurrence.Pattern, title string, now time.Time) string {
	var sb strings.Builder

	icon := "♻️"
	switch p.Status {
	case recurrence.StatusPaused:
		icon = "⏸"
	case recurrence.StatusCompleted:
		icon = "🏁"
	}
	if title == "" {
		title = fmt.Sprintf("задача #%d", p.TaskID)
	}
	sb.WriteString(fmt.Sprintf("%s %s — %s\n", icon, html.EscapeString(strings.TrimSpace(title)), recurrence.Describe(p.Schedule)))

	switch p.Status {
	case recurrence.StatusCompleted:
		sb.WriteString("   🏁 Серия завершена\n")
	case recurrence.StatusPaused:
		sb.WriteString(fmt.Sprintf("   ⏸ На паузе · следующая дата после возобновления: %s\n", p.NextRunAt.In(now.Location()).Format("2006-01-02")))
	default:
		if p.IsDue(now) {
			sb.WriteString(fmt.Sprintf("   ⏰ Ожидает запуска с %s\n", p.NextRunAt.In(now.Location()).Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("   📆 Ближайшая дата: %s\n", p.NextRunAt.In(now.Location()).Format("2006-01-02")))
		}
	}
	if p.LastTriggeredAt != nil {
		sb.WriteString(fmt.Sprintf("   ✅ Последний запуск: %s\n", p.LastTriggeredAt.In(now.Location()).Format("2006-01-02")))
	}
	return sb.String()
}

func formatTask(task model.Task, catNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.Deadline != nil {
		d := task.Deadline.In(now.Location())
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))

	if task.CategoryID != nil {
		if name, ok := catNames[*task.CategoryID]; ok {
			trimmed := strings.TrimSpace(name)
			if trimmed != "" {
				sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(trimmed)))
			}
		}
	}

	if task.Deadline != nil {
		d := task.Deadline.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s — <b>просрочено</b>", d.Format("2006-01-02")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s · осталось ≈%d дн.", d.Format("2006-01-02"), daysLeft))
		}
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
