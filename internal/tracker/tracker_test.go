package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-bot/internal/db/dbtest"
	"habit-bot/internal/models"
	"habit-bot/pkg/logger"
)

type reminder struct {
	userID int64
	date   time.Time
	habits []models.Habit
}

type fakeGateway struct {
	sent []reminder
	err  error
}

func (g *fakeGateway) SendReminder(ctx context.Context, user *models.User, date time.Time, habits []models.Habit) error {
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, reminder{userID: user.ID, date: date, habits: habits})
	return nil
}

var today = time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *dbtest.Memory
	gateway *fakeGateway
	tracker *Tracker
	user    *models.User
	habits  []*models.Habit
}

func setup(t *testing.T, habitNames ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	store := dbtest.NewMemory()
	user, err := store.GetOrCreateUser(ctx, 1001, 2002, "alice")
	require.NoError(t, err)

	f := &fixture{store: store, gateway: &fakeGateway{}, user: user}
	for _, name := range habitNames {
		h, err := store.CreateHabit(ctx, user.ID, name, "")
		require.NoError(t, err)
		f.habits = append(f.habits, h)
	}
	f.tracker = New(store, f.gateway, logger.NewNop())
	return f
}

func TestDispatchSendsReminderWithEveryHabit(t *testing.T) {
	f := setup(t, "Run", "Read")
	ctx := context.Background()

	outcome, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	require.Len(t, f.gateway.sent, 1)
	assert.Len(t, f.gateway.sent[0].habits, 2)
	assert.True(t, f.gateway.sent[0].date.Equal(today))

	n, err := f.store.GetNotification(ctx, f.user.ID, today)
	require.NoError(t, err)
	assert.True(t, n.Sent)
	assert.NotNil(t, n.SentAt)
	assert.False(t, n.Responded)
}

func TestDispatchAtMostOncePerDay(t *testing.T) {
	f := setup(t, "Run")
	ctx := context.Background()

	_, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)
	outcome, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadySent, outcome)
	assert.Len(t, f.gateway.sent, 1)

	_, notifications, _ := f.store.Counts()
	assert.Equal(t, 1, notifications)
}

func TestDispatchPreChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("notifications disabled", func(t *testing.T) {
		f := setup(t, "Run")
		f.user.NotificationsEnabled = false

		outcome, err := f.tracker.Dispatch(ctx, f.user, today)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDisabled, outcome)
		assert.True(t, outcome.Skipped())
		assert.Empty(t, f.gateway.sent)
	})

	t.Run("no trackable habits", func(t *testing.T) {
		f := setup(t, "Run")
		require.NoError(t, f.store.DeactivateHabit(ctx, f.user.ID, f.habits[0].ID))

		outcome, err := f.tracker.Dispatch(ctx, f.user, today)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoHabits, outcome)
		assert.Empty(t, f.gateway.sent)

		_, notifications, _ := f.store.Counts()
		assert.Zero(t, notifications, "no notification row is created")
	})
}

func TestDispatchSuppressedByAnyEntry(t *testing.T) {
	f := setup(t, "Run", "Read", "Meditate")
	ctx := context.Background()

	// One of three habits answered before the trigger suppresses the reminder.
	_, err := f.store.UpsertHabitEntry(ctx, f.habits[1].ID, today, false)
	require.NoError(t, err)

	outcome, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Empty(t, f.gateway.sent)

	_, err = f.store.GetNotification(ctx, f.user.ID, today)
	assert.Error(t, err, "suppression creates no notification row")
}

func TestDispatchAfterEarlyCheckIn(t *testing.T) {
	f := setup(t, "Run", "Read")
	ctx := context.Background()

	_, err := f.tracker.RecordResponse(ctx, f.user.ID, f.habits[0].ID, today, true)
	require.NoError(t, err)

	outcome, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Empty(t, f.gateway.sent)
}

func TestDispatchErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("gateway failure", func(t *testing.T) {
		f := setup(t, "Run")
		f.gateway.err = errors.New("telegram down")

		_, err := f.tracker.Dispatch(ctx, f.user, today)
		require.Error(t, err)
		assert.ErrorIs(t, err, f.gateway.err)
	})

	t.Run("store failure", func(t *testing.T) {
		f := setup(t, "Run")
		storeErr := errors.New("connection reset")
		f.store.Hook = func(op string, id int64) error {
			if op == "HasAnyEntryForDate" {
				return storeErr
			}
			return nil
		}

		_, err := f.tracker.Dispatch(ctx, f.user, today)
		assert.ErrorIs(t, err, storeErr)
		assert.Empty(t, f.gateway.sent)
	})
}

func TestRecordResponseLastWriteWins(t *testing.T) {
	f := setup(t, "Run")
	ctx := context.Background()
	habitID := f.habits[0].ID

	_, err := f.tracker.RecordResponse(ctx, f.user.ID, habitID, today, true)
	require.NoError(t, err)
	entry, err := f.tracker.RecordResponse(ctx, f.user.ID, habitID, today, false)
	require.NoError(t, err)
	assert.False(t, entry.Completed)

	entries, err := f.store.GetHabitEntriesInRange(ctx, habitID, today, today)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Completed)

	n, err := f.store.GetNotification(ctx, f.user.ID, today)
	require.NoError(t, err)
	assert.True(t, n.Responded)
	assert.False(t, n.Sent, "an unprompted check-in creates the row without sending")
}

func TestRecordResponseAfterReminder(t *testing.T) {
	f := setup(t, "Run")
	ctx := context.Background()

	_, err := f.tracker.Dispatch(ctx, f.user, today)
	require.NoError(t, err)
	_, err = f.tracker.RecordResponse(ctx, f.user.ID, f.habits[0].ID, today.Add(15*time.Hour), true)
	require.NoError(t, err)

	n, err := f.store.GetNotification(ctx, f.user.ID, today)
	require.NoError(t, err)
	assert.True(t, n.Sent)
	assert.True(t, n.Responded)
}

func TestRecordResponseRejectsUntrackableHabits(t *testing.T) {
	ctx := context.Background()

	t.Run("inactive habit", func(t *testing.T) {
		f := setup(t, "Run")
		require.NoError(t, f.store.DeactivateHabit(ctx, f.user.ID, f.habits[0].ID))

		_, err := f.tracker.RecordResponse(ctx, f.user.ID, f.habits[0].ID, today, true)
		assert.ErrorIs(t, err, ErrHabitNotTrackable)
	})

	t.Run("someone else's habit", func(t *testing.T) {
		f := setup(t, "Run")
		_, err := f.tracker.RecordResponse(ctx, f.user.ID+99, f.habits[0].ID, today, true)
		assert.ErrorIs(t, err, ErrHabitNotTrackable)
	})

	t.Run("unknown habit", func(t *testing.T) {
		f := setup(t, "Run")
		_, err := f.tracker.RecordResponse(ctx, f.user.ID, 9999, today, true)
		assert.ErrorIs(t, err, ErrHabitNotTrackable)

		entries, _, _ := f.store.Counts()
		assert.Zero(t, entries)
	})
}

func TestRecordResponseSurfacesStoreErrors(t *testing.T) {
	f := setup(t, "Run")
	ctx := context.Background()
	storeErr := errors.New("deadlock detected")
	f.store.Hook = func(op string, id int64) error {
		if op == "MarkNotificationResponded" {
			return storeErr
		}
		return nil
	}

	entry, err := f.tracker.RecordResponse(ctx, f.user.ID, f.habits[0].ID, today, true)
	assert.ErrorIs(t, err, storeErr)
	require.NotNil(t, entry, "the entry write already happened")
	assert.Equal(t, 1, f.store.Calls["MarkNotificationResponded"])
}
