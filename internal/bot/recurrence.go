package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"taskmate/internal/model"
	"taskmate/internal/recurrence"
)

// handleRecurrences показывает все повторы пользователя с кнопками управления.
func (b *Bot) handleRecurrences(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	patterns, err := b.recurSvc.List(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить повторы: %s", escape(err.Error())))
	}
	if len(patterns) == 0 {
		return b.sendText(msg.Chat.ID, "Повторяющихся задач пока нет. Добавь повтор при создании задачи через /newtask.")
	}

	titles := b.taskTitles(ctx, user)
	now := time.Now()

	var builder strings.Builder
	builder.WriteString("♻️ <b>Повторяющиеся задачи</b>\n")
	builder.WriteString("Кнопками можно поставить повтор на паузу или отключить его.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, p := range patterns {
		title := titles[p.TaskID]
		if title == "" {
			title = fmt.Sprintf("задача #%d", p.TaskID)
		}
		builder.WriteString(formatPatternLine(p, title, now))

		var row []tgbotapi.InlineKeyboardButton
		switch p.Status {
		case recurrence.StatusActive:
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("⏸ #%d Пауза", p.TaskID), fmt.Sprintf("%s%d", cbRecurPause, p.TaskID)))
		case recurrence.StatusPaused:
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("▶️ #%d Возобновить", p.TaskID), fmt.Sprintf("%s%d", cbRecurResume, p.TaskID)))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🛑 Отключить", fmt.Sprintf("%s%d", cbRecurStop, p.TaskID)))
		buttons = append(buttons, row)
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, strings.TrimSpace(builder.String()))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handlePause(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseRecurArg(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /pause 12")
	}
	return b.pausePattern(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) handleResume(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseRecurArg(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /resume 12")
	}
	return b.resumePattern(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) pausePattern(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	p, err := b.recurSvc.Pause(ctx, user, taskID)
	if err != nil {
		return b.sendText(chatID, recurErrorText(err, "поставить на паузу"))
	}
	b.log.Info().Uint("task_id", taskID).Uint("user", user.ID).Msg("pattern paused via bot")
	return b.sendText(chatID, fmt.Sprintf("⏸ Повтор задачи #%d на паузе. Дата %s сохранена и сработает после возобновления.", p.TaskID, p.NextRunAt.Format("2006-01-02")))
}

func (b *Bot) resumePattern(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	p, err := b.recurSvc.Resume(ctx, user, taskID)
	if err != nil {
		return b.sendText(chatID, recurErrorText(err, "возобновить"))
	}
	b.log.Info().Uint("task_id", taskID).Uint("user", user.ID).Msg("pattern resumed via bot")
	return b.sendText(chatID, fmt.Sprintf("▶️ Повтор задачи #%d снова активен. Следующий запуск: %s.", p.TaskID, p.NextRunAt.Format("2006-01-02")))
}

func (b *Bot) stopPattern(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	if err := b.recurSvc.Remove(ctx, user, taskID); err != nil {
		return b.sendText(chatID, recurErrorText(err, "отключить"))
	}
	b.log.Info().Uint("task_id", taskID).Uint("user", user.ID).Msg("pattern stopped via bot")
	return b.sendText(chatID, fmt.Sprintf("🛑 Повтор задачи #%d отключён. Сама задача осталась в списке.", taskID))
}

func (b *Bot) taskTitles(ctx context.Context, user *model.User) map[uint]string {
	titles := make(map[uint]string)
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		b.log.Error().Err(err).Uint("user", user.ID).Msg("list tasks for titles")
		return titles
	}
	for _, task := range tasks {
		titles[task.ID] = task.Title
	}
	return titles
}

func parseRecurArg(args string) (uint, error) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return 0, fmt.Errorf("empty argument")
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func recurErrorText(err error, action string) string {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "У этой задачи нет повтора."
	case errors.Is(err, recurrence.ErrInvalidTransition):
		return fmt.Sprintf("Нельзя %s этот повтор: серия уже завершена или статус не подходит.", action)
	default:
		return fmt.Sprintf("Не удалось %s повтор: %s", action, escape(err.Error()))
	}
}
