package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskmate/internal/model"
	"taskmate/internal/recurrence"
)

const (
	btnSkip             = "⏭️ Пропустить"
	btnYes              = "Да"
	btnNo               = "Нет"
	btnConfirm          = "✅ Подтвердить"
	btnCancel           = "↩️ Отмена"
	btnCancelDialog     = "⏪ Отменить ввод"
	noCategory          = "Без категории"
	noCategoryKey       = "__no_category__"
	iconDefault         = "🟢"
	iconDue             = "⏳"
	iconOverdue         = "⚠️"
	iconRecurring       = "♻️"
	iconPaused          = "⏸"
	menuLabelNewTask    = "➕ Новая задача"
	menuLabelTasks      = "📋 Задачи"
	menuLabelRecur      = "♻️ Повторы"
	menuLabelCategories = "📂 Категории"
	menuLabelHelp       = "ℹ️ Помощь"
)

const (
	btnFreqDaily   = "Каждый день"
	btnFreqWeekly  = "Каждую неделю"
	btnFreqMonthly = "Каждый месяц"
	btnFreqYearly  = "Каждый год"
)

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelRecur),
			tgbotapi.NewKeyboardButton(menuLabelCategories),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func yesNoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Учеба"),
			tgbotapi.NewKeyboardButton("Работа"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Покупки"),
			tgbotapi.NewKeyboardButton("Здоровье"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func frequencyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnFreqDaily),
			tgbotapi.NewKeyboardButton(btnFreqWeekly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnFreqMonthly),
			tgbotapi.NewKeyboardButton(btnFreqYearly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

// parseFrequency maps a keyboard label or free-form word onto a frequency.
func parseFrequency(text string) (recurrence.Frequency, bool) {
	switch strings.TrimSpace(strings.ToLower(text)) {
	case strings.ToLower(btnFreqDaily), "день", "ежедневно", "daily":
		return recurrence.Daily, true
	case strings.ToLower(btnFreqWeekly), "неделя", "еженедельно", "weekly":
		return recurrence.Weekly, true
	case strings.ToLower(btnFreqMonthly), "месяц", "ежемесячно", "monthly":
		return recurrence.Monthly, true
	case strings.ToLower(btnFreqYearly), "год", "ежегодно", "yearly":
		return recurrence.Yearly, true
	default:
		return "", false
	}
}

var weekdayAliases = map[string]int{
	"вс": 0, "воскресенье": 0, "sun": 0, "0": 0,
	"пн": 1, "понедельник": 1, "mon": 1, "1": 1,
	"вт": 2, "вторник": 2, "tue": 2, "2": 2,
	"ср": 3, "среда": 3, "wed": 3, "3": 3,
	"чт": 4, "четверг": 4, "thu": 4, "4": 4,
	"пт": 5, "пятница": 5, "fri": 5, "5": 5,
	"сб": 6, "суббота": 6, "sat": 6, "6": 6,
}

// parseWeekdays accepts a comma- or space-separated list of short Russian
// day names or digits, e.g. "пн,ср,пт" or "1 3 5".
func parseWeekdays(text string) ([]int, bool) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	if len(fields) == 0 {
		return nil, false
	}
	days := make([]int, 0, len(fields))
	for _, f := range fields {
		d, ok := weekdayAliases[strings.TrimSpace(f)]
		if !ok {
			return nil, false
		}
		days = append(days, d)
	}
	return days, true
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func normalizedCategory(categoryID *uint, catNames map[uint]string) (string, string) {
	if categoryID == nil {
		return noCategoryKey, categoryLabel(noCategory)
	}
	if name, ok := catNames[*categoryID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noCategoryKey, categoryLabel(noCategory)
		}
		return strings.ToLower(trimmed), categoryLabel(trimmed)
	}
	return noCategoryKey, categoryLabel(noCategory)
}

func categoryLabel(name string) string {
	base := strings.TrimSpace(name)
	lower := strings.ToLower(base)
	var icon string
	switch lower {
	case "учеба":
		icon = "🎓"
	case "работа":
		icon = "💼"
	case "покупки":
		icon = "🛒"
	case "здоровье":
		icon = "🩺"
	case "личное":
		icon = "🧩"
	case strings.ToLower(noCategory):
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}

func formatTaskLine(task model.Task, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	if task.IsRecurring {
		icon = iconRecurring
	} else if task.Deadline != nil {
		d := task.Deadline.In(now.Location())
		if now.After(d) {
			icon = iconOverdue
		} else if d.Sub(now) <= 48*time.Hour {
			icon = iconDue
		}
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, escape(normalizeTitle(task.Title))))
	if task.Deadline != nil {
		d := task.Deadline.In(now.Location())
		if now.After(d) {
			b.WriteString(fmt.Sprintf("   ⏰ Дедлайн: %s — <b>просрочено</b>\n", d.Format("2006-01-02")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			b.WriteString(fmt.Sprintf("   ⏰ Дедлайн: %s · осталось ≈%d дн.\n", d.Format("2006-01-02"), daysLeft))
		}
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatPatternLine(p recurrence.Pattern, title string, now time.Time) string {
	var b strings.Builder

	icon := iconRecurring
	if p.Status == recurrence.StatusPaused {
		icon = iconPaused
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, p.TaskID, escape(normalizeTitle(title))))
	b.WriteString(fmt.Sprintf("   🔄 %s\n", recurrence.Describe(p.Schedule)))

	switch p.Status {
	case recurrence.StatusPaused:
		b.WriteString("   ⏸ Повтор на паузе\n")
	case recurrence.StatusCompleted:
		b.WriteString("   🏁 Серия завершена\n")
	default:
		b.WriteString(fmt.Sprintf("   📆 Следующий запуск: %s\n", p.NextRunAt.In(now.Location()).Format("2006-01-02")))
	}
	if p.Schedule.EndDate != nil {
		b.WriteString(fmt.Sprintf("   🔚 До %s\n", p.Schedule.EndDate.In(now.Location()).Format("2006-01-02")))
	}
	if p.LastTriggeredAt != nil {
		b.WriteString(fmt.Sprintf("   ✅ Последний запуск: %s\n", p.LastTriggeredAt.In(now.Location()).Format("2006-01-02")))
	}
	b.WriteByte('\n')
	return b.String()
}
