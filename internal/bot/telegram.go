package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"habit-bot/internal/dates"
	"habit-bot/internal/db"
	"habit-bot/internal/models"
	"habit-bot/internal/stats"
	"habit-bot/internal/tracker"
	"habit-bot/pkg/logger"
)

const (
	StateIdle              = "idle"
	StateAwaitingHabitName = "awaiting_habit_name"
)

const maxHabitName = 64

// messenger is the part of tgbotapi.BotAPI used to talk to chats.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Store is what the command layer reads and writes directly.
type Store interface {
	GetOrCreateUser(ctx context.Context, telegramID, chatID int64, username string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error
	CreateHabit(ctx context.Context, userID int64, name, description string) (*models.Habit, error)
	GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	DeactivateHabit(ctx context.Context, userID, habitID int64) error
}

// Recorder stores reminder answers.
type Recorder interface {
	RecordResponse(ctx context.Context, userID, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error)
}

// Summarizer builds the on-demand summary.
type Summarizer interface {
	Summarize(ctx context.Context, userID int64, ref time.Time, window dates.Window, mode stats.Mode) (models.WeeklyStats, error)
}

// Coach writes a short note under the weekly summary.
type Coach interface {
	CoachingNote(ctx context.Context, stats models.WeeklyStats) (string, error)
}

// Handlers are the dependencies of the command layer.
type Handlers struct {
	Store      Store
	Recorder   Recorder
	Summarizer Summarizer
	Location   *time.Location
	WeekStart  time.Weekday
	Clock      dates.Clock
}

type TelegramBot struct {
	api        *tgbotapi.BotAPI
	messenger  messenger
	handlers   *Handlers
	coach      Coach
	logger     *logger.Logger
	userStates map[int64]*models.UserState
	stateMutex sync.RWMutex
	inflight   sync.WaitGroup
}

func NewTelegramBot(token string, debug bool, logger *logger.Logger) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	api.Debug = debug

	logger.Infow("Authorized on Telegram", "username", api.Self.UserName)

	t := newTelegramBot(api, logger)
	t.api = api
	return t, nil
}

func newTelegramBot(m messenger, logger *logger.Logger) *TelegramBot {
	return &TelegramBot{
		messenger:  m,
		logger:     logger,
		userStates: make(map[int64]*models.UserState),
	}
}

// WithCoach appends a coaching note to every weekly summary.
func (t *TelegramBot) WithCoach(coach Coach) *TelegramBot {
	t.coach = coach
	return t
}

// Handle installs the command layer. It must be called before Start.
func (t *TelegramBot) Handle(h Handlers) {
	if h.Location == nil {
		h.Location = time.UTC
	}
	if h.Clock == nil {
		h.Clock = dates.SystemClock
	}
	t.handlers = &h
}

// SendReminder posts the check-in keyboard for date.
func (t *TelegramBot) SendReminder(ctx context.Context, user *models.User, date time.Time, habits []models.Habit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(user.ChatID, reminderText(date))
	msg.ReplyMarkup = reminderKeyboard(date, habits)
	if _, err := t.messenger.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder to chat %d: %w", user.ChatID, err)
	}
	return nil
}

// SendWeeklySummary posts the week's stats. A failing coach only drops the note.
func (t *TelegramBot) SendWeeklySummary(ctx context.Context, user *models.User, ws models.WeeklyStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := summaryText("Your week", ws)
	if t.coach != nil {
		note, err := t.coach.CoachingNote(ctx, ws)
		if err != nil {
			t.logger.Errorw("Failed to generate coaching note", "user_id", user.ID, "error", err)
		} else if note != "" {
			text += "\n\n💬 " + note
		}
	}

	if _, err := t.messenger.Send(tgbotapi.NewMessage(user.ChatID, text)); err != nil {
		return fmt.Errorf("failed to send weekly summary to chat %d: %w", user.ChatID, err)
	}
	return nil
}

// Start begins receiving updates from Telegram via polling
func (t *TelegramBot) Start(ctx context.Context) error {
	if t.handlers == nil {
		return errors.New("command handlers are not installed")
	}

	// Polling and webhooks are exclusive
	t.logger.Infow("Removing any existing webhook")
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.api.GetUpdatesChan(updateConfig)

	t.logger.Infow("Started receiving Telegram updates")
	go t.handleUpdates(ctx, updates)
	return nil
}

// handleUpdates processes incoming updates from Telegram
func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		t.inflight.Add(1)
		go func(update tgbotapi.Update) {
			defer t.inflight.Done()
			t.handleUpdate(ctx, update)
		}(update)
	}
}

func (t *TelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorw("Recovered from panic while processing update", "update_id", update.UpdateID, "error", r)
		}
	}()

	switch {
	case update.Message != nil && update.Message.From != nil:
		t.logger.Debugw("Received message",
			"chat_id", update.Message.Chat.ID,
			"from", update.Message.From.UserName,
			"text", update.Message.Text)

		if update.Message.IsCommand() {
			t.handleCommand(ctx, update.Message)
		} else {
			t.handleMessage(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		t.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (t *TelegramBot) reply(chatID int64, text string) {
	if _, err := t.messenger.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Errorw("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (t *TelegramBot) setState(telegramID int64, state string) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	if state == StateIdle {
		delete(t.userStates, telegramID)
		return
	}
	t.userStates[telegramID] = &models.UserState{
		TelegramID:   telegramID,
		CurrentState: state,
	}
}

func (t *TelegramBot) state(telegramID int64) string {
	t.stateMutex.RLock()
	defer t.stateMutex.RUnlock()
	if s, ok := t.userStates[telegramID]; ok {
		return s.CurrentState
	}
	return StateIdle
}

func (t *TelegramBot) user(ctx context.Context, message *tgbotapi.Message) (*models.User, error) {
	return t.handlers.Store.GetOrCreateUser(ctx, message.From.ID, message.Chat.ID, message.From.UserName)
}

// handleCommand processes bot commands. Any command ends a pending /add.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())
	chatID := message.Chat.ID

	t.logger.Infow("Handling command", "command", command, "telegram_id", message.From.ID)
	t.setState(message.From.ID, StateIdle)

	user, err := t.user(ctx, message)
	if err != nil {
		t.logger.Errorw("Failed to load user", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, "Sorry, something went wrong. Please try again later.")
		return
	}

	switch command {
	case "start":
		t.reply(chatID, "👋 Hi! I help you build habits one day at a time.\n\n"+helpText)
	case "help":
		t.reply(chatID, helpText)
	case "add":
		if args == "" {
			t.setState(message.From.ID, StateAwaitingHabitName)
			t.reply(chatID, "What habit do you want to track? Send me its name.")
			return
		}
		t.addHabit(ctx, user, chatID, args)
	case "habits":
		t.listHabits(ctx, user, chatID)
	case "delete":
		t.deleteHabit(ctx, user, chatID, args)
	case "checkin":
		t.checkin(ctx, user, chatID)
	case "summary":
		t.summary(ctx, user, chatID)
	case "notify":
		t.notify(ctx, user, chatID, args)
	default:
		t.reply(chatID, "Unknown command. Use /help to see what I can do.")
	}
}

// handleMessage processes regular messages based on user state
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if t.state(message.From.ID) != StateAwaitingHabitName {
		t.reply(chatID, "Use /help to see what I can do.")
		return
	}

	user, err := t.user(ctx, message)
	if err != nil {
		t.logger.Errorw("Failed to load user", "telegram_id", message.From.ID, "error", err)
		t.reply(chatID, "Sorry, something went wrong. Please try again later.")
		return
	}
	if t.addHabit(ctx, user, chatID, message.Text) {
		t.setState(message.From.ID, StateIdle)
	}
}

func (t *TelegramBot) addHabit(ctx context.Context, user *models.User, chatID int64, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxHabitName {
		t.reply(chatID, fmt.Sprintf("Please send a habit name of 1 to %d characters.", maxHabitName))
		return false
	}

	habit, err := t.handlers.Store.CreateHabit(ctx, user.ID, name, "")
	if err != nil {
		t.logger.Errorw("Failed to create habit", "user_id", user.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't save that habit. Please try again later.")
		return false
	}

	t.logger.Infow("Habit created", "user_id", user.ID, "habit_id", habit.ID)
	t.reply(chatID, fmt.Sprintf("Added \"%s\". I'll ask about it in your daily check-in.", habit.Name))
	return true
}

func (t *TelegramBot) listHabits(ctx context.Context, user *models.User, chatID int64) {
	habits, err := t.handlers.Store.GetTrackableHabits(ctx, user.ID)
	if err != nil {
		t.logger.Errorw("Failed to load habits", "user_id", user.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't load your habits. Please try again later.")
		return
	}
	t.reply(chatID, habitListText(habits))
}

func (t *TelegramBot) deleteHabit(ctx context.Context, user *models.User, chatID int64, args string) {
	habitID, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		t.reply(chatID, "Usage: /delete <id>. Use /habits to see the ids.")
		return
	}

	err = t.handlers.Store.DeactivateHabit(ctx, user.ID, habitID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		t.reply(chatID, "You don't have a habit with that id.")
	case err != nil:
		t.logger.Errorw("Failed to deactivate habit", "user_id", user.ID, "habit_id", habitID, "error", err)
		t.reply(chatID, "Sorry, I couldn't remove that habit. Please try again later.")
	default:
		t.reply(chatID, "Habit removed. Its history is kept.")
	}
}

// checkin sends today's keyboard on demand. No notification is recorded.
func (t *TelegramBot) checkin(ctx context.Context, user *models.User, chatID int64) {
	habits, err := t.handlers.Store.GetTrackableHabits(ctx, user.ID)
	if err != nil {
		t.logger.Errorw("Failed to load habits", "user_id", user.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't load your habits. Please try again later.")
		return
	}
	if len(habits) == 0 {
		t.reply(chatID, habitListText(nil))
		return
	}

	today := dates.Today(t.handlers.Clock, t.handlers.Location)
	if err := t.SendReminder(ctx, user, today, habits); err != nil {
		t.logger.Errorw("Failed to send check-in", "user_id", user.ID, "error", err)
	}
}

// summary reports the current week so far. Only days with an answer count.
func (t *TelegramBot) summary(ctx context.Context, user *models.User, chatID int64) {
	today := dates.Today(t.handlers.Clock, t.handlers.Location)
	window := dates.WeekOf(today, t.handlers.WeekStart)

	ws, err := t.handlers.Summarizer.Summarize(ctx, user.ID, today, window, stats.ModeObserved)
	if err != nil {
		t.logger.Errorw("Failed to build summary", "user_id", user.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't build your summary. Please try again later.")
		return
	}
	if len(ws.Habits) == 0 {
		t.reply(chatID, habitListText(nil))
		return
	}
	t.reply(chatID, summaryText("This week so far", ws))
}

func (t *TelegramBot) notify(ctx context.Context, user *models.User, chatID int64, args string) {
	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
	default:
		status := "off"
		if user.NotificationsEnabled {
			status = "on"
		}
		t.reply(chatID, fmt.Sprintf("Daily reminders are %s. Use /notify on or /notify off.", status))
		return
	}

	if err := t.handlers.Store.SetNotificationsEnabled(ctx, user.ID, enabled); err != nil {
		t.logger.Errorw("Failed to update notification preference", "user_id", user.ID, "error", err)
		t.reply(chatID, "Sorry, I couldn't update that. Please try again later.")
		return
	}

	if enabled {
		t.reply(chatID, "🔔 Daily reminders and weekly summaries are on.")
	} else {
		t.reply(chatID, "🔕 Daily reminders and weekly summaries are off.")
	}
}

// handleCallbackQuery records a ✅/❌ press from a reminder keyboard.
func (t *TelegramBot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	t.logger.Debugw("Received callback query", "telegram_id", query.From.ID, "data", query.Data)

	answer, err := ParseCallback(query.Data)
	if err != nil {
		t.answerCallback(query.ID, "")
		return
	}

	user, err := t.handlers.Store.GetUserByTelegramID(ctx, query.From.ID)
	if err != nil {
		t.logger.Errorw("Failed to load user for callback", "telegram_id", query.From.ID, "error", err)
		t.answerCallback(query.ID, "Please use /start first.")
		return
	}

	_, err = t.handlers.Recorder.RecordResponse(ctx, user.ID, answer.HabitID, answer.Date, answer.Completed)
	switch {
	case errors.Is(err, tracker.ErrHabitNotTrackable):
		t.answerCallback(query.ID, "That habit is no longer tracked.")
	case err != nil:
		t.logger.Errorw("Failed to record response",
			"user_id", user.ID,
			"habit_id", answer.HabitID,
			"date", dates.Key(answer.Date),
			"error", err)
		t.answerCallback(query.ID, "Sorry, I couldn't save that. Please try again.")
	case answer.Completed:
		t.answerCallback(query.ID, "✅ Nice work!")
	default:
		t.answerCallback(query.ID, "❌ Noted. Tomorrow is a new day.")
	}
}

func (t *TelegramBot) answerCallback(id, text string) {
	if _, err := t.messenger.Request(tgbotapi.NewCallback(id, text)); err != nil {
		t.logger.Errorw("Failed to answer callback", "error", err)
	}
}

// Stop gracefully shuts down the bot
func (t *TelegramBot) Stop(ctx context.Context) error {
	if t.api != nil {
		t.api.StopReceivingUpdates()
	}

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
