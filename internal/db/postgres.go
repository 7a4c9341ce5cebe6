package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-bot/internal/models"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresDB)(nil)

func NewPostgresDB(cfg struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)
	return Connect(connStr, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnLifetime)
}

// Connect opens a pool from a libpq connection string or URL.
func Connect(connStr string, maxConns, minConns int, lifetime time.Duration) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	// Set connection pool parameters
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		poolConfig.MinConns = int32(minConns)
	}
	if lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	// Connect with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const userColumns = `id, telegram_id, chat_id, username, is_active, notifications_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.TelegramID, &user.ChatID, &user.Username,
		&user.IsActive, &user.NotificationsEnabled,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetOrCreateUser registers a chat on first contact and refreshes its chat
// and username afterwards. A returning user is reactivated.
func (db *PostgresDB) GetOrCreateUser(ctx context.Context, telegramID, chatID int64, username string) (*models.User, error) {
	query := `
        INSERT INTO users (telegram_id, chat_id, username)
        VALUES ($1, $2, $3)
        ON CONFLICT (telegram_id) DO UPDATE
        SET chat_id = $2, username = $3, is_active = TRUE, updated_at = NOW()
        RETURNING ` + userColumns

	user, err := scanUser(db.pool.QueryRow(ctx, query, telegramID, chatID, username))
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(db.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (db *PostgresDB) SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error {
	query := `
        UPDATE users
        SET notifications_enabled = $2, updated_at = NOW()
        WHERE id = $1
    `

	tag, err := db.pool.Exec(ctx, query, userID, enabled)
	if err != nil {
		return fmt.Errorf("failed to update notification preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) GetActiveNotifiableUsers(ctx context.Context) ([]models.User, error) {
	query := `
        SELECT ` + userColumns + `
        FROM users
        WHERE is_active AND notifications_enabled
        ORDER BY id
    `

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifiable users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

const habitColumns = `id, user_id, name, description, is_active, created_at, updated_at`

func scanHabit(row pgx.Row) (*models.Habit, error) {
	var habit models.Habit
	err := row.Scan(
		&habit.ID, &habit.UserID, &habit.Name, &habit.Description,
		&habit.IsActive, &habit.CreatedAt, &habit.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &habit, nil
}

func (db *PostgresDB) CreateHabit(ctx context.Context, userID int64, name, description string) (*models.Habit, error) {
	query := `
        INSERT INTO habits (user_id, name, description)
        VALUES ($1, $2, $3)
        RETURNING ` + habitColumns

	habit, err := scanHabit(db.pool.QueryRow(ctx, query, userID, name, description))
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}
	return habit, nil
}

func (db *PostgresDB) GetHabit(ctx context.Context, habitID int64) (*models.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`

	habit, err := scanHabit(db.pool.QueryRow(ctx, query, habitID))
	if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return habit, nil
}

func (db *PostgresDB) GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	query := `
        SELECT ` + habitColumns + `
        FROM habits
        WHERE user_id = $1 AND is_active
        ORDER BY id
    `

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, *habit)
	}
	return habits, rows.Err()
}

// DeactivateHabit soft-deletes a habit. Its entries are kept.
func (db *PostgresDB) DeactivateHabit(ctx context.Context, userID, habitID int64) error {
	query := `
        UPDATE habits
        SET is_active = FALSE, updated_at = NOW()
        WHERE id = $1 AND user_id = $2 AND is_active
    `

	tag, err := db.pool.Exec(ctx, query, habitID, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const entryColumns = `id, habit_id, entry_date, completed, created_at, updated_at`

func scanEntry(row pgx.Row) (*models.HabitEntry, error) {
	var entry models.HabitEntry
	err := row.Scan(
		&entry.ID, &entry.HabitID, &entry.Date, &entry.Completed,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (db *PostgresDB) UpsertHabitEntry(ctx context.Context, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error) {
	query := `
        INSERT INTO habit_entries (habit_id, entry_date, completed)
        VALUES ($1, $2, $3)
        ON CONFLICT (habit_id, entry_date) DO UPDATE
        SET completed = EXCLUDED.completed, updated_at = NOW()
        RETURNING ` + entryColumns

	entry, err := scanEntry(db.pool.QueryRow(ctx, query, habitID, date, completed))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert habit entry: %w", err)
	}
	return entry, nil
}

func (db *PostgresDB) GetHabitEntriesInRange(ctx context.Context, habitID int64, start, end time.Time) ([]models.HabitEntry, error) {
	query := `
        SELECT ` + entryColumns + `
        FROM habit_entries
        WHERE habit_id = $1 AND entry_date >= $2 AND entry_date <= $3
        ORDER BY entry_date DESC
    `

	rows, err := db.pool.Query(ctx, query, habitID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.HabitEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (db *PostgresDB) HasAnyEntryForDate(ctx context.Context, userID int64, date time.Time) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1
            FROM habit_entries e
            JOIN habits h ON h.id = e.habit_id
            WHERE h.user_id = $1 AND h.is_active AND e.entry_date = $2
        )
    `

	var exists bool
	if err := db.pool.QueryRow(ctx, query, userID, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check entries for date: %w", err)
	}
	return exists, nil
}

func (db *PostgresDB) GetNotification(ctx context.Context, userID int64, date time.Time) (*models.Notification, error) {
	query := `
        SELECT id, user_id, notify_date, sent, sent_at, responded, responded_at, created_at
        FROM notifications
        WHERE user_id = $1 AND notify_date = $2
    `

	var n models.Notification
	err := db.pool.QueryRow(ctx, query, userID, date).Scan(
		&n.ID, &n.UserID, &n.Date, &n.Sent, &n.SentAt,
		&n.Responded, &n.RespondedAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (db *PostgresDB) UpsertNotification(ctx context.Context, userID int64, date time.Time) error {
	query := `
        INSERT INTO notifications (user_id, notify_date)
        VALUES ($1, $2)
        ON CONFLICT (user_id, notify_date) DO UPDATE
        SET updated_at = NOW()
    `

	if _, err := db.pool.Exec(ctx, query, userID, date); err != nil {
		return fmt.Errorf("failed to upsert notification: %w", err)
	}
	return nil
}

func (db *PostgresDB) MarkNotificationSent(ctx context.Context, userID int64, date time.Time) error {
	query := `
        INSERT INTO notifications (user_id, notify_date, sent, sent_at)
        VALUES ($1, $2, TRUE, NOW())
        ON CONFLICT (user_id, notify_date) DO UPDATE
        SET sent = TRUE, sent_at = NOW(), updated_at = NOW()
    `

	if _, err := db.pool.Exec(ctx, query, userID, date); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (db *PostgresDB) MarkNotificationResponded(ctx context.Context, userID int64, date time.Time) error {
	query := `
        INSERT INTO notifications (user_id, notify_date, responded, responded_at)
        VALUES ($1, $2, TRUE, NOW())
        ON CONFLICT (user_id, notify_date) DO UPDATE
        SET responded = TRUE, responded_at = NOW(), updated_at = NOW()
    `

	if _, err := db.pool.Exec(ctx, query, userID, date); err != nil {
		return fmt.Errorf("failed to mark notification responded: %w", err)
	}
	return nil
}

// UpsertWeeklySummary replaces any snapshot already stored for the week and
// clears its send timestamp until MarkWeeklySummarySent runs again.
func (db *PostgresDB) UpsertWeeklySummary(ctx context.Context, userID int64, weekStart, weekEnd time.Time, stats []byte) error {
	query := `
        INSERT INTO weekly_summaries (user_id, week_start, week_end, stats)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, week_start) DO UPDATE
        SET week_end = EXCLUDED.week_end, stats = EXCLUDED.stats, sent_at = NULL, updated_at = NOW()
    `

	if _, err := db.pool.Exec(ctx, query, userID, weekStart, weekEnd, string(stats)); err != nil {
		return fmt.Errorf("failed to upsert weekly summary: %w", err)
	}
	return nil
}

func (db *PostgresDB) MarkWeeklySummarySent(ctx context.Context, userID int64, weekStart time.Time) error {
	query := `
        UPDATE weekly_summaries
        SET sent_at = NOW(), updated_at = NOW()
        WHERE user_id = $1 AND week_start = $2
    `

	tag, err := db.pool.Exec(ctx, query, userID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to mark weekly summary sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) GetWeeklySummary(ctx context.Context, userID int64, weekStart time.Time) (*models.WeeklySummary, error) {
	query := `
        SELECT id, user_id, week_start, week_end, stats::text, sent_at, created_at
        FROM weekly_summaries
        WHERE user_id = $1 AND week_start = $2
    `

	var s models.WeeklySummary
	var stats string
	err := db.pool.QueryRow(ctx, query, userID, weekStart).Scan(
		&s.ID, &s.UserID, &s.WeekStart, &s.WeekEnd, &stats, &s.SentAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	s.Stats = []byte(stats)
	return &s, nil
}
