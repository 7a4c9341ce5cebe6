package dbtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-bot/internal/db"
)

// Run exercises the db.Store contract. makeStore must return a store that is
// safe to write to; the suite uses a fresh telegram id on every run so it can
// share a database with earlier runs.
func Run(t *testing.T, makeStore func(t *testing.T) db.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	telegramID := time.Now().UnixNano()
	day := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	user, err := s.GetOrCreateUser(ctx, telegramID, 100, "alice")
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, user.NotificationsEnabled)

	again, err := s.GetOrCreateUser(ctx, telegramID, 101, "alice2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID, "second contact must not create a new user")
	assert.EqualValues(t, 101, again.ChatID)

	t.Run("users", func(t *testing.T) {
		got, err := s.GetUserByTelegramID(ctx, telegramID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = s.GetUserByTelegramID(ctx, -telegramID)
		assert.ErrorIs(t, err, db.ErrNotFound)

		require.NoError(t, s.SetNotificationsEnabled(ctx, user.ID, false))
		users, err := s.GetActiveNotifiableUsers(ctx)
		require.NoError(t, err)
		for _, u := range users {
			assert.NotEqual(t, user.ID, u.ID)
		}

		require.NoError(t, s.SetNotificationsEnabled(ctx, user.ID, true))
		users, err = s.GetActiveNotifiableUsers(ctx)
		require.NoError(t, err)
		found := false
		for _, u := range users {
			found = found || u.ID == user.ID
		}
		assert.True(t, found)
	})

	run, err := s.CreateHabit(ctx, user.ID, "Run", "5km")
	require.NoError(t, err)
	read, err := s.CreateHabit(ctx, user.ID, "Read", "")
	require.NoError(t, err)

	t.Run("habit entries upsert by habit and date", func(t *testing.T) {
		_, err := s.UpsertHabitEntry(ctx, run.ID, day, true)
		require.NoError(t, err)
		e, err := s.UpsertHabitEntry(ctx, run.ID, day, false)
		require.NoError(t, err)
		assert.False(t, e.Completed)

		entries, err := s.GetHabitEntriesInRange(ctx, run.ID, day.AddDate(0, 0, -1), day)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Completed)
		assert.True(t, entries[0].Date.Equal(day))

		engaged, err := s.HasAnyEntryForDate(ctx, user.ID, day)
		require.NoError(t, err)
		assert.True(t, engaged)

		engaged, err = s.HasAnyEntryForDate(ctx, user.ID, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.False(t, engaged)
	})

	t.Run("deactivated habits are not trackable", func(t *testing.T) {
		require.NoError(t, s.DeactivateHabit(ctx, user.ID, run.ID))
		assert.ErrorIs(t, s.DeactivateHabit(ctx, user.ID, run.ID), db.ErrNotFound)

		habits, err := s.GetTrackableHabits(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, habits, 1)
		assert.Equal(t, read.ID, habits[0].ID)

		h, err := s.GetHabit(ctx, run.ID)
		require.NoError(t, err)
		assert.False(t, h.IsActive)

		// Entries of an inactive habit no longer count toward the day.
		engaged, err := s.HasAnyEntryForDate(ctx, user.ID, day)
		require.NoError(t, err)
		assert.False(t, engaged)

		entries, err := s.GetHabitEntriesInRange(ctx, run.ID, day, day)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "history is kept")
	})

	t.Run("notifications upsert by user and date", func(t *testing.T) {
		_, err := s.GetNotification(ctx, user.ID, day)
		assert.ErrorIs(t, err, db.ErrNotFound)

		require.NoError(t, s.UpsertNotification(ctx, user.ID, day))
		require.NoError(t, s.UpsertNotification(ctx, user.ID, day))
		require.NoError(t, s.MarkNotificationSent(ctx, user.ID, day))

		n, err := s.GetNotification(ctx, user.ID, day)
		require.NoError(t, err)
		assert.True(t, n.Sent)
		assert.NotNil(t, n.SentAt)
		assert.False(t, n.Responded)

		require.NoError(t, s.MarkNotificationResponded(ctx, user.ID, day))
		n2, err := s.GetNotification(ctx, user.ID, day)
		require.NoError(t, err)
		assert.Equal(t, n.ID, n2.ID)
		assert.True(t, n2.Sent)
		assert.True(t, n2.Responded)

		// Responding first creates the row.
		next := day.AddDate(0, 0, 1)
		require.NoError(t, s.MarkNotificationResponded(ctx, user.ID, next))
		n3, err := s.GetNotification(ctx, user.ID, next)
		require.NoError(t, err)
		assert.True(t, n3.Responded)
		assert.False(t, n3.Sent)
	})

	t.Run("weekly summaries upsert by user and week", func(t *testing.T) {
		start := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 6)

		assert.ErrorIs(t, s.MarkWeeklySummarySent(ctx, user.ID, start), db.ErrNotFound)

		require.NoError(t, s.UpsertWeeklySummary(ctx, user.ID, start, end, []byte(`{"completion_rate":50}`)))
		require.NoError(t, s.MarkWeeklySummarySent(ctx, user.ID, start))
		require.NoError(t, s.UpsertWeeklySummary(ctx, user.ID, start, end, []byte(`{"completion_rate":75}`)))

		got, err := s.GetWeeklySummary(ctx, user.ID, start)
		require.NoError(t, err)
		assert.Nil(t, got.SentAt, "a rewritten snapshot is unsent until delivered again")

		var payload map[string]float64
		require.NoError(t, json.Unmarshal(got.Stats, &payload))
		assert.Equal(t, 75.0, payload["completion_rate"])
	})

	require.NoError(t, s.Ping(ctx))
}
