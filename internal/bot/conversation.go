package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskmate/internal/recurrence"
	"taskmate/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
	stageDeadline
	stageRecurring
	stageRecurFrequency
	stageRecurInterval
	stageRecurDays
	stageRecurDayOfMonth
	stageRecurEndDate
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.log.Debug().Int64("user", msg.From.ID).Msg("start new task conversation")
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Выбери категорию или отправь свою (можно «Пропустить»).", categoryKeyboard())
	case stageCategory:
		if !isSkipInput(text) {
			state.input.Category = text
		}
		state.stage = stageDeadline
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Укажи дедлайн в формате <code>2026-11-30</code> (или «Пропустить»).", skipKeyboard())
	case stageDeadline:
		if !isSkipInput(text) {
			parsed, err := time.Parse("2006-01-02", text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2026-11-30</code> или «Пропустить».", skipKeyboard())
			}
			state.input.Deadline = &parsed
		}
		state.stage = stageRecurring
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Сделать задачу повторяющейся?", yesNoKeyboard())
	case stageRecurring:
		lower := strings.ToLower(text)
		if lower == "да" || lower == "yes" || lower == "y" {
			state.input.Recurrence = &service.RecurrenceInput{Interval: 1, StartDate: time.Now()}
			state.stage = stageRecurFrequency
			return b.sendWithReplyMarkup(msg.Chat.ID, "📅 Как часто повторять?", frequencyKeyboard())
		}
		if lower == "нет" || lower == "no" || lower == "n" || lower == "-" {
			state.input.Recurrence = nil
			err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
			b.clearConversation(msg.From.ID)
			return err
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, "Нажми «Да» или «Нет».", yesNoKeyboard())
	case stageRecurFrequency:
		freq, ok := parseFrequency(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери вариант на клавиатуре: день, неделя, месяц или год.", frequencyKeyboard())
		}
		state.input.Recurrence.Frequency = freq
		state.stage = stageRecurInterval
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("🔢 С каким шагом? Например, 2 — %s. «Пропустить» = каждый раз.", intervalHint(freq)), skipKeyboard())
	case stageRecurInterval:
		if !isSkipInput(text) {
			interval, err := strconv.Atoi(text)
			if err != nil || interval < 1 || interval > 365 {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Шаг должен быть числом от 1 до 365 (или «Пропустить»).", skipKeyboard())
			}
			state.input.Recurrence.Interval = interval
		}
		switch state.input.Recurrence.Frequency {
		case recurrence.Weekly:
			state.stage = stageRecurDays
			return b.sendWithReplyMarkup(msg.Chat.ID, "📆 В какие дни недели? Перечисли через запятую, например: <code>пн,ср,пт</code>", cancelKeyboard())
		case recurrence.Monthly:
			state.stage = stageRecurDayOfMonth
			return b.sendWithReplyMarkup(msg.Chat.ID, "📆 В какой день месяца? (1–31). Если числа нет в месяце, возьмём последний день.", cancelKeyboard())
		default:
			state.stage = stageRecurEndDate
			return b.sendWithReplyMarkup(msg.Chat.ID, "🔚 До какой даты повторять? Формат <code>2026-12-31</code> (или «Пропустить» для бессрочного повтора).", skipKeyboard())
		}
	case stageRecurDays:
		days, ok := parseWeekdays(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Не понял дни. Используй короткие названия или цифры: <code>пн,ср,пт</code> или <code>1,3,5</code>.", cancelKeyboard())
		}
		state.input.Recurrence.DaysOfWeek = days
		state.stage = stageRecurEndDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔚 До какой даты повторять? Формат <code>2026-12-31</code> (или «Пропустить» для бессрочного повтора).", skipKeyboard())
	case stageRecurDayOfMonth:
		day, err := strconv.Atoi(text)
		if err != nil || day < 1 || day > 31 {
			return b.sendWithReplyMarkup(msg.Chat.ID, "День должен быть числом от 1 до 31.", cancelKeyboard())
		}
		state.input.Recurrence.DayOfMonth = day
		state.stage = stageRecurEndDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔚 До какой даты повторять? Формат <code>2026-12-31</code> (или «Пропустить» для бессрочного повтора).", skipKeyboard())
	case stageRecurEndDate:
		if !isSkipInput(text) {
			parsed, err := time.Parse("2006-01-02", text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2026-12-31</code> или «Пропустить».", skipKeyboard())
			}
			if !parsed.After(state.input.Recurrence.StartDate) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Дата окончания должна быть в будущем.", skipKeyboard())
			}
			state.input.Recurrence.EndDate = &parsed
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateTask(ctx, user, input)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Не удалось сохранить задачу: %s", escape(err.Error())))
	}

	var pattern *recurrence.Pattern
	if input.Recurrence != nil {
		pattern, err = b.recurSvc.Create(ctx, user, task.ID, *input.Recurrence)
		if err != nil {
			b.log.Warn().Err(err).Uint("task_id", task.ID).Msg("attach recurrence")
			if sendErr := b.sendText(chatID, fmt.Sprintf("Задача сохранена, но повтор настроить не удалось: %s", escape(err.Error()))); sendErr != nil {
				return sendErr
			}
		}
	}

	b.log.Info().Uint("task_id", task.ID).Uint("user", user.ID).
		Bool("recurring", pattern != nil).Msg("task created")

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	if task.Deadline != nil {
		summary.WriteString(fmt.Sprintf("• <b>Дедлайн:</b> %s\n", task.Deadline.Format("2006-01-02")))
	}
	if pattern != nil {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> %s\n", recurrence.Describe(pattern.Schedule)))
		summary.WriteString(fmt.Sprintf("• <b>Следующий запуск:</b> %s\n", pattern.NextRunAt.Format("2006-01-02")))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func intervalHint(freq recurrence.Frequency) string {
	switch freq {
	case recurrence.Daily:
		return "каждые 2 дня"
	case recurrence.Weekly:
		return "каждые 2 недели"
	case recurrence.Monthly:
		return "каждые 2 месяца"
	default:
		return "каждые 2 года"
	}
}
