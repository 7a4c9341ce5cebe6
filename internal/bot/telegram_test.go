package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-bot/internal/db/dbtest"
	"habit-bot/internal/models"
	"habit-bot/internal/stats"
	"habit-bot/internal/tracker"
	"habit-bot/pkg/logger"
)

type fakeMessenger struct {
	mu        sync.Mutex
	messages  []tgbotapi.MessageConfig
	callbacks []tgbotapi.CallbackConfig
	err       error
}

func (m *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.messages = append(m.messages, msg)
	}
	return tgbotapi.Message{MessageID: len(m.messages)}, nil
}

func (m *fakeMessenger) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		m.callbacks = append(m.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *fakeMessenger) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeCoach struct {
	note string
	err  error
}

func (c fakeCoach) CoachingNote(context.Context, models.WeeklyStats) (string, error) {
	return c.note, c.err
}

const (
	telegramID = int64(555)
	chatID     = int64(777)
)

// Wednesday evening in Moscow.
var now = time.Date(2024, 5, 15, 21, 0, 0, 0, time.FixedZone("MSK", 3*60*60))

type fixture struct {
	store     *dbtest.Memory
	messenger *fakeMessenger
	bot       *TelegramBot
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.NewMemory()
	m := &fakeMessenger{}
	b := newTelegramBot(m, logger.NewNop())
	b.Handle(Handlers{
		Store:      store,
		Recorder:   tracker.New(store, b, logger.NewNop()),
		Summarizer: stats.NewSummarizer(store, 0, nil),
		Location:   now.Location(),
		WeekStart:  time.Monday,
		Clock:      fixedClock{now: now},
	})
	return &fixture{store: store, messenger: m, bot: b}
}

func command(text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: telegramID, UserName: "alice"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func text(s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: s,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: telegramID, UserName: "alice"},
	}}
}

func press(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: telegramID},
		Data: data,
	}}
}

func (f *fixture) send(u tgbotapi.Update) {
	f.bot.handleUpdate(context.Background(), u)
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	u, err := f.store.GetUserByTelegramID(context.Background(), telegramID)
	require.NoError(t, err)
	return u
}

func (f *fixture) habits(t *testing.T) []models.Habit {
	t.Helper()
	habits, err := f.store.GetTrackableHabits(context.Background(), f.user(t).ID)
	require.NoError(t, err)
	return habits
}

func TestStartRegistersUser(t *testing.T) {
	f := setup(t)
	f.send(command("/start"))

	u := f.user(t)
	assert.Equal(t, chatID, u.ChatID)
	assert.True(t, u.NotificationsEnabled)
	assert.Contains(t, f.messenger.last(t).Text, "/add")
}

func TestAddHabitInline(t *testing.T) {
	f := setup(t)
	f.send(command("/add Drink water"))

	habits := f.habits(t)
	require.Len(t, habits, 1)
	assert.Equal(t, "Drink water", habits[0].Name)
}

func TestAddHabitConversation(t *testing.T) {
	f := setup(t)

	f.send(command("/add"))
	assert.Equal(t, StateAwaitingHabitName, f.bot.state(telegramID))

	f.send(text("   "))
	assert.Equal(t, StateAwaitingHabitName, f.bot.state(telegramID), "empty names are rejected")

	f.send(text("Meditate"))
	assert.Equal(t, StateIdle, f.bot.state(telegramID))
	require.Len(t, f.habits(t), 1)

	f.send(text("Stretch"))
	assert.Len(t, f.habits(t), 1, "plain text outside /add creates nothing")
}

func TestIdleUsersHoldNoState(t *testing.T) {
	f := setup(t)
	f.send(command("/add"))
	require.Contains(t, f.bot.userStates, telegramID)
	assert.Equal(t, models.UserState{TelegramID: telegramID, CurrentState: StateAwaitingHabitName}, *f.bot.userStates[telegramID])

	f.send(text("Meditate"))
	assert.NotContains(t, f.bot.userStates, telegramID)
}

func TestCommandCancelsPendingAdd(t *testing.T) {
	f := setup(t)
	f.send(command("/add"))
	f.send(command("/habits"))
	assert.Equal(t, StateIdle, f.bot.state(telegramID))
}

func TestDeleteHabit(t *testing.T) {
	f := setup(t)
	f.send(command("/add Run"))
	habit := f.habits(t)[0]

	f.send(command("/delete 999"))
	assert.Contains(t, f.messenger.last(t).Text, "don't have")

	f.send(command("/delete abc"))
	assert.Contains(t, f.messenger.last(t).Text, "Usage")

	f.send(command("/delete #" + itoa(habit.ID)))
	assert.Contains(t, f.messenger.last(t).Text, "removed")
	assert.Empty(t, f.habits(t))
}

func TestNotifyToggle(t *testing.T) {
	f := setup(t)

	f.send(command("/notify off"))
	assert.False(t, f.user(t).NotificationsEnabled)

	f.send(command("/notify"))
	assert.Contains(t, f.messenger.last(t).Text, "are off")

	f.send(command("/notify ON"))
	assert.True(t, f.user(t).NotificationsEnabled)
}

func TestCheckinSendsTodayKeyboard(t *testing.T) {
	f := setup(t)
	f.send(command("/add Run"))
	f.send(command("/add Read"))

	f.send(command("/checkin"))
	msg := f.messenger.last(t)

	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 2)

	done := keyboard.InlineKeyboard[0][0].CallbackData
	require.NotNil(t, done)
	answer, err := ParseCallback(*done)
	require.NoError(t, err)
	assert.True(t, answer.Completed)
	assert.Equal(t, "2024-05-15", answer.Date.Format("2006-01-02"))

	_, notifications, _ := f.store.Counts()
	assert.Zero(t, notifications, "on-demand check-in records no notification")
}

func TestCallbackRecordsResponse(t *testing.T) {
	f := setup(t)
	f.send(command("/add Run"))
	habit := f.habits(t)[0]
	date := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	f.send(press(callbackData(habit.ID, date, true)))

	entries, err := f.store.GetHabitEntriesInRange(context.Background(), habit.ID, date, date)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Completed)

	n, err := f.store.GetNotification(context.Background(), f.user(t).ID, date)
	require.NoError(t, err)
	assert.True(t, n.Responded)

	// A second press overwrites the answer.
	f.send(press(callbackData(habit.ID, date, false)))
	entries, err = f.store.GetHabitEntriesInRange(context.Background(), habit.ID, date, date)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Completed)

	require.Len(t, f.messenger.callbacks, 2)
	assert.Contains(t, f.messenger.callbacks[0].Text, "Nice")
}

func TestCallbackForDeletedHabit(t *testing.T) {
	f := setup(t)
	f.send(command("/add Run"))
	habit := f.habits(t)[0]
	f.send(command("/delete " + itoa(habit.ID)))

	f.send(press(callbackData(habit.ID, now, true)))

	require.Len(t, f.messenger.callbacks, 1)
	assert.Contains(t, f.messenger.callbacks[0].Text, "no longer tracked")
	entries, _, _ := f.store.Counts()
	assert.Zero(t, entries)
}

func TestCallbackIgnoresGarbage(t *testing.T) {
	f := setup(t)
	f.send(press("pay:1"))
	require.Len(t, f.messenger.callbacks, 1)
	assert.Empty(t, f.messenger.callbacks[0].Text)
}

func TestSummaryCountsAnsweredDaysOnly(t *testing.T) {
	f := setup(t)
	f.send(command("/add Run"))
	habit := f.habits(t)[0]
	ctx := context.Background()

	// Mon and Tue done, Wed (today) skipped. Thu-Sun not answered yet.
	for day, completed := range map[int]bool{13: true, 14: true, 15: false} {
		_, err := f.store.UpsertHabitEntry(ctx, habit.ID, time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC), completed)
		require.NoError(t, err)
	}

	f.send(command("/summary"))
	out := f.messenger.last(t).Text
	assert.Contains(t, out, "Run: 2/3 (66.7%)")
	assert.Contains(t, out, "13 May")
	assert.Contains(t, out, "19 May")
}

func TestSendWeeklySummaryWithCoach(t *testing.T) {
	f := setup(t)
	user := &models.User{ID: 1, ChatID: chatID}
	ws := models.WeeklyStats{
		Habits:         []models.HabitStats{{Name: "Run", CompletedDays: 5, TotalDays: 7, CompletionRate: 71.4, Tier: stats.TierGood, Streak: 3}},
		CompletedDays:  5,
		TotalDays:      7,
		CompletionRate: 71.4,
		Tier:           stats.TierGood,
	}

	f.bot.WithCoach(fakeCoach{note: "Keep the streak alive."})
	require.NoError(t, f.bot.SendWeeklySummary(context.Background(), user, ws))
	out := f.messenger.last(t).Text
	assert.Contains(t, out, "Run: 5/7 (71.4%) 🔥 3")
	assert.Contains(t, out, "Keep the streak alive.")

	f.bot.WithCoach(fakeCoach{err: errors.New("quota")})
	require.NoError(t, f.bot.SendWeeklySummary(context.Background(), user, ws))
	assert.NotContains(t, f.messenger.last(t).Text, "💬")
}

func TestGatewayReportsSendFailure(t *testing.T) {
	f := setup(t)
	f.messenger.err = errors.New("blocked by user")
	user := &models.User{ID: 1, ChatID: chatID}

	err := f.bot.SendReminder(context.Background(), user, now, []models.Habit{{ID: 1, Name: "Run"}})
	assert.ErrorContains(t, err, "blocked by user")

	err = f.bot.SendWeeklySummary(context.Background(), user, models.WeeklyStats{})
	assert.Error(t, err)
}

func TestGatewayHonoursCancelledContext(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.bot.SendReminder(ctx, &models.User{ChatID: chatID}, now, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.messenger.messages)
}

func TestHandleUpdateRecoversFromPanic(t *testing.T) {
	b := newTelegramBot(&fakeMessenger{}, logger.NewNop())
	// No handlers installed: the nil dereference must not escape.
	assert.NotPanics(t, func() {
		b.handleUpdate(context.Background(), command("/habits"))
	})
}
