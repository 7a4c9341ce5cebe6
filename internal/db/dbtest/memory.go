// Package dbtest provides an in-memory db.Store and a compliance suite that
// every db.Store implementation must pass.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/db"
	"habit-bot/internal/models"
)

type entryKey struct {
	habitID int64
	date    string
}

type userDateKey struct {
	userID int64
	date   string
}

// Memory is a db.Store backed by maps, keyed the same way as the Postgres
// unique constraints.
type Memory struct {
	mu sync.Mutex

	// Hook, when set, runs before every operation with the operation name and
	// its leading id (user or habit). A non-nil result is returned as the
	// operation's error.
	Hook func(op string, id int64) error

	// Calls counts invocations per operation name.
	Calls map[string]int

	now       func() time.Time
	nextID    int64
	users     map[int64]*models.User // by id
	habits    map[int64]*models.Habit
	entries   map[entryKey]*models.HabitEntry
	notifs    map[userDateKey]*models.Notification
	summaries map[userDateKey]*models.WeeklySummary
}

var _ db.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		Calls:     make(map[string]int),
		now:       time.Now,
		users:     make(map[int64]*models.User),
		habits:    make(map[int64]*models.Habit),
		entries:   make(map[entryKey]*models.HabitEntry),
		notifs:    make(map[userDateKey]*models.Notification),
		summaries: make(map[userDateKey]*models.WeeklySummary),
	}
}

func (m *Memory) enter(op string, id int64) error {
	m.Calls[op]++
	if m.Hook != nil {
		return m.Hook(op, id)
	}
	return nil
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) GetOrCreateUser(ctx context.Context, telegramID, chatID int64, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOrCreateUser", telegramID); err != nil {
		return nil, err
	}

	now := m.now()
	for _, u := range m.users {
		if u.TelegramID == telegramID {
			u.ChatID, u.Username, u.IsActive, u.UpdatedAt = chatID, username, true, now
			out := *u
			return &out, nil
		}
	}

	u := &models.User{
		ID:                   m.id(),
		TelegramID:           telegramID,
		ChatID:               chatID,
		Username:             username,
		IsActive:             true,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	m.users[u.ID] = u
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetUserByTelegramID", telegramID); err != nil {
		return nil, err
	}

	for _, u := range m.users {
		if u.TelegramID == telegramID {
			out := *u
			return &out, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *Memory) SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetNotificationsEnabled", userID); err != nil {
		return err
	}

	u, ok := m.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	u.NotificationsEnabled = enabled
	u.UpdatedAt = m.now()
	return nil
}

// SetActive flips a user's active flag. Only tests need soft-deactivation.
func (m *Memory) SetActive(userID int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsActive = active
	}
}

func (m *Memory) GetActiveNotifiableUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetActiveNotifiableUsers", 0); err != nil {
		return nil, err
	}

	var users []models.User
	for _, u := range m.users {
		if u.IsActive && u.NotificationsEnabled {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *Memory) CreateHabit(ctx context.Context, userID int64, name, description string) (*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateHabit", userID); err != nil {
		return nil, err
	}

	now := m.now()
	h := &models.Habit{
		ID:          m.id(),
		UserID:      userID,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.habits[h.ID] = h
	out := *h
	return &out, nil
}

func (m *Memory) GetHabit(ctx context.Context, habitID int64) (*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetHabit", habitID); err != nil {
		return nil, err
	}

	h, ok := m.habits[habitID]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *h
	return &out, nil
}

func (m *Memory) GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetTrackableHabits", userID); err != nil {
		return nil, err
	}
	return m.trackable(userID), nil
}

func (m *Memory) trackable(userID int64) []models.Habit {
	var habits []models.Habit
	for _, h := range m.habits {
		if h.UserID == userID && h.IsActive {
			habits = append(habits, *h)
		}
	}
	sort.Slice(habits, func(i, j int) bool { return habits[i].ID < habits[j].ID })
	return habits
}

func (m *Memory) DeactivateHabit(ctx context.Context, userID, habitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeactivateHabit", userID); err != nil {
		return err
	}

	h, ok := m.habits[habitID]
	if !ok || h.UserID != userID || !h.IsActive {
		return db.ErrNotFound
	}
	h.IsActive = false
	h.UpdatedAt = m.now()
	return nil
}

func (m *Memory) UpsertHabitEntry(ctx context.Context, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertHabitEntry", habitID); err != nil {
		return nil, err
	}

	now := m.now()
	key := entryKey{habitID: habitID, date: dates.Key(date)}
	e, ok := m.entries[key]
	if !ok {
		e = &models.HabitEntry{ID: m.id(), HabitID: habitID, Date: dates.Normalize(date), CreatedAt: now}
		m.entries[key] = e
	}
	e.Completed = completed
	e.UpdatedAt = now
	out := *e
	return &out, nil
}

func (m *Memory) GetHabitEntriesInRange(ctx context.Context, habitID int64, start, end time.Time) ([]models.HabitEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetHabitEntriesInRange", habitID); err != nil {
		return nil, err
	}

	window := dates.Window{Start: start, End: end}
	var entries []models.HabitEntry
	for _, e := range m.entries {
		if e.HabitID == habitID && window.Contains(e.Date) {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	return entries, nil
}

func (m *Memory) HasAnyEntryForDate(ctx context.Context, userID int64, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("HasAnyEntryForDate", userID); err != nil {
		return false, err
	}

	for _, h := range m.trackable(userID) {
		if _, ok := m.entries[entryKey{habitID: h.ID, date: dates.Key(date)}]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) GetNotification(ctx context.Context, userID int64, date time.Time) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetNotification", userID); err != nil {
		return nil, err
	}

	n, ok := m.notifs[userDateKey{userID: userID, date: dates.Key(date)}]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *n
	return &out, nil
}

func (m *Memory) notification(userID int64, date time.Time) *models.Notification {
	key := userDateKey{userID: userID, date: dates.Key(date)}
	n, ok := m.notifs[key]
	if !ok {
		n = &models.Notification{ID: m.id(), UserID: userID, Date: dates.Normalize(date), CreatedAt: m.now()}
		m.notifs[key] = n
	}
	return n
}

func (m *Memory) UpsertNotification(ctx context.Context, userID int64, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertNotification", userID); err != nil {
		return err
	}
	m.notification(userID, date)
	return nil
}

func (m *Memory) MarkNotificationSent(ctx context.Context, userID int64, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkNotificationSent", userID); err != nil {
		return err
	}

	n := m.notification(userID, date)
	now := m.now()
	n.Sent, n.SentAt = true, &now
	return nil
}

func (m *Memory) MarkNotificationResponded(ctx context.Context, userID int64, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkNotificationResponded", userID); err != nil {
		return err
	}

	n := m.notification(userID, date)
	now := m.now()
	n.Responded, n.RespondedAt = true, &now
	return nil
}

func (m *Memory) UpsertWeeklySummary(ctx context.Context, userID int64, weekStart, weekEnd time.Time, stats []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertWeeklySummary", userID); err != nil {
		return err
	}

	key := userDateKey{userID: userID, date: dates.Key(weekStart)}
	s, ok := m.summaries[key]
	if !ok {
		s = &models.WeeklySummary{ID: m.id(), UserID: userID, WeekStart: dates.Normalize(weekStart), CreatedAt: m.now()}
		m.summaries[key] = s
	}
	s.WeekEnd = dates.Normalize(weekEnd)
	s.Stats = append([]byte(nil), stats...)
	s.SentAt = nil
	return nil
}

func (m *Memory) MarkWeeklySummarySent(ctx context.Context, userID int64, weekStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkWeeklySummarySent", userID); err != nil {
		return err
	}

	s, ok := m.summaries[userDateKey{userID: userID, date: dates.Key(weekStart)}]
	if !ok {
		return db.ErrNotFound
	}
	now := m.now()
	s.SentAt = &now
	return nil
}

func (m *Memory) GetWeeklySummary(ctx context.Context, userID int64, weekStart time.Time) (*models.WeeklySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetWeeklySummary", userID); err != nil {
		return nil, err
	}

	s, ok := m.summaries[userDateKey{userID: userID, date: dates.Key(weekStart)}]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping", 0)
}

// Counts reports how many rows of each table exist.
func (m *Memory) Counts() (entries, notifications, summaries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), len(m.notifs), len(m.summaries)
}
