package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"taskmate/internal/model"
	"taskmate/internal/recurrence"
)

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}

	categories, _ := b.categorySvc.List(ctx, user)
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	patterns := b.patternsByTask(ctx, user)

	now := time.Now()
	type categoryGroup struct {
		Name  string
		Tasks []model.Task
	}

	groups := make(map[string]*categoryGroup)
	order := make([]string, 0, len(tasks))

	for _, task := range tasks {
		if !task.IsRecurring && task.IsCompleted {
			continue
		}
		key, display := normalizedCategory(task.CategoryID, catNames)
		group, ok := groups[key]
		if !ok {
			group = &categoryGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		groups[key].Tasks = append(groups[key].Tasks, task)
	}

	if len(groups) == 0 {
		return b.sendText(chatID, "У тебя нет активных задач. Добавь новую через /newtask.")
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == noCategoryKey {
			return false
		}
		if order[j] == noCategoryKey {
			return true
		}
		return strings.Compare(groups[order[i]].Name, groups[order[j]].Name) < 0
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Текущие задачи</b>\n")
	builder.WriteString("Нажми на кнопку, чтобы отметить задачу выполненной или удалить её.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		sort.SliceStable(section.Tasks, func(i, j int) bool {
			a := section.Tasks[i]
			b := section.Tasks[j]
			if a.Deadline != nil && b.Deadline != nil {
				if !a.Deadline.Equal(*b.Deadline) {
					return a.Deadline.Before(*b.Deadline)
				}
			} else if a.Deadline != nil {
				return true
			} else if b.Deadline != nil {
				return false
			}
			if a.IsRecurring != b.IsRecurring {
				return !a.IsRecurring && b.IsRecurring
			}
			return a.ID < b.ID
		})

		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			var row []tgbotapi.InlineKeyboardButton
			if p, ok := patterns[task.ID]; ok {
				builder.WriteString(formatPatternLine(p, task.Title, now))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 20)), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("\U0001F5D1 Удалить", fmt.Sprintf("%s%d", cbDeletePrefix, task.ID)))
			} else {
				builder.WriteString(formatTaskLine(task, now))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)))
			}
			buttons = append(buttons, row)
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) patternsByTask(ctx context.Context, user *model.User) map[uint]recurrence.Pattern {
	byTask := make(map[uint]recurrence.Pattern)
	patterns, err := b.recurSvc.List(ctx, user)
	if err != nil {
		b.log.Error().Err(err).Uint("user", user.ID).Msg("list patterns")
		return byTask
	}
	for _, p := range patterns {
		byTask[p.TaskID] = p
	}
	return byTask
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	data := cb.Data
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		taskID, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		return b.askCompleteConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		return b.askDeleteConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbConfirmPrefix):
		taskID, err := parseTaskID(data, cbConfirmPrefix)
		if err != nil {
			return nil
		}
		return b.completeTaskAndRefresh(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbRecurPause):
		taskID, err := parseTaskID(data, cbRecurPause)
		if err != nil {
			return nil
		}
		return b.pausePattern(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbRecurResume):
		taskID, err := parseTaskID(data, cbRecurResume)
		if err != nil {
			return nil
		}
		return b.resumePattern(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbRecurStop):
		taskID, err := parseTaskID(data, cbRecurStop)
		if err != nil {
			return nil
		}
		return b.stopPattern(ctx, cb.Message.Chat.ID, cb.From, taskID)
	case strings.HasPrefix(data, cbCancelPrefix):
		return nil
	default:
		return nil
	}
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		var prompt string
		if req.action == actionDelete {
			prompt = "Подтверди или отмени удаление задачи."
		} else {
			prompt = "Подтверди или отмени выполнение задачи."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) askCompleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Задача не найдена.")
		}
		return err
	}

	if !task.IsRecurring && task.IsCompleted {
		return b.sendText(chatID, "Задача уже выполнена.")
	}

	text := fmt.Sprintf("Отметить задачу «%s» (#%d) как выполненную?", escape(normalizeTitle(task.Title)), task.ID)
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionComplete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Задача не найдена.")
		}
		return err
	}

	text := fmt.Sprintf("Удалить задачу \"%s\" (#%d)?", escape(normalizeTitle(task.Title)), task.ID)
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendTextWithRemove(chatID, "Задача не найдена или уже удалена.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	now := time.Now()
	if !task.IsRecurring && task.IsCompleted {
		return b.sendTextWithRemove(chatID, "Задача уже была выполнена.")
	}

	task, err = b.taskSvc.CompleteTask(ctx, user, taskID, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendTextWithRemove(chatID, "Задача не найдена или уже удалена.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	var info string
	if task.IsRecurring {
		info = fmt.Sprintf("♻️ Задача «%s» выполнена. Следующее повторение запланируется автоматически.", escape(normalizeTitle(task.Title)))
	} else {
		info = fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(task.Title)))
	}
	b.log.Info().Uint("task_id", task.ID).Uint("user", user.ID).Bool("recurring", task.IsRecurring).Msg("task completed")
	if err := b.sendTextWithRemove(chatID, info); err != nil {
		return err
	}

	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendTextWithRemove(chatID, "Задача не найдена или уже удалена.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	if err := b.taskSvc.DeleteTask(ctx, user, taskID); err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user", user.ID).Msg("task deleted")
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("\U0001F5D1 Задача \"%s\" удалена.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}

	return b.sendTaskList(ctx, chatID, user)
}
