package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
	"habit-bot/internal/stats"
)

const (
	actionDone = "done"
	actionSkip = "skip"
)

var errBadCallback = errors.New("malformed callback data")

// Answer is a decoded reminder button press.
type Answer struct {
	HabitID   int64
	Date      time.Time
	Completed bool
}

// callbackData encodes a button as done:<habitID>:<YYYY-MM-DD> or skip:...,
// well below Telegram's 64 byte limit.
func callbackData(habitID int64, date time.Time, completed bool) string {
	action := actionSkip
	if completed {
		action = actionDone
	}
	return fmt.Sprintf("%s:%d:%s", action, habitID, dates.Key(date))
}

// ParseCallback decodes data produced by callbackData.
func ParseCallback(data string) (Answer, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Answer{}, errBadCallback
	}

	var answer Answer
	switch parts[0] {
	case actionDone:
		answer.Completed = true
	case actionSkip:
	default:
		return Answer{}, errBadCallback
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Answer{}, errBadCallback
	}
	answer.HabitID = id

	date, err := dates.Parse(parts[2])
	if err != nil {
		return Answer{}, errBadCallback
	}
	answer.Date = date
	return answer, nil
}

func reminderText(date time.Time) string {
	return fmt.Sprintf("📝 Check-in for %s\n\nHow did your habits go today? Tap ✅ if you did it, ❌ if you didn't.",
		date.Format("Mon, 2 Jan"))
}

// reminderKeyboard has one row per habit.
func reminderKeyboard(date time.Time, habits []models.Habit) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(habits))
	for _, h := range habits {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+h.Name, callbackData(h.ID, date, true)),
			tgbotapi.NewInlineKeyboardButtonData("❌", callbackData(h.ID, date, false)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func tierEmoji(tier string) string {
	switch tier {
	case stats.TierExcellent:
		return "🏆"
	case stats.TierGood:
		return "💪"
	case stats.TierFair:
		return "👍"
	case stats.TierLow:
		return "🌱"
	default:
		return "😴"
	}
}

func summaryText(title string, ws models.WeeklyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n%s – %s\n\n", title, ws.WeekStart.Format("2 Jan"), ws.WeekEnd.Format("2 Jan"))

	for _, h := range ws.Habits {
		fmt.Fprintf(&b, "%s %s: %d/%d (%.1f%%)", tierEmoji(h.Tier), h.Name, h.CompletedDays, h.TotalDays, h.CompletionRate)
		if h.Streak > 0 {
			fmt.Fprintf(&b, " 🔥 %d", h.Streak)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nOverall: %d/%d (%.1f%%) %s %s", ws.CompletedDays, ws.TotalDays, ws.CompletionRate, tierEmoji(ws.Tier), ws.Tier)
	return b.String()
}

func habitListText(habits []models.Habit) string {
	if len(habits) == 0 {
		return "You are not tracking any habits yet. Use /add to create one."
	}

	var b strings.Builder
	b.WriteString("Your habits:\n")
	for _, h := range habits {
		fmt.Fprintf(&b, "\n#%d %s", h.ID, h.Name)
		if h.Description != "" {
			fmt.Fprintf(&b, " (%s)", h.Description)
		}
	}
	b.WriteString("\n\nRemove one with /delete <id>.")
	return b.String()
}

const helpText = `I send you a check-in every evening and a summary every week.

/add <name> - start tracking a habit
/habits - list your habits
/delete <id> - stop tracking a habit
/checkin - answer today's check-in now
/summary - this week's progress so far
/notify on|off - turn daily reminders on or off
/help - show this message`
