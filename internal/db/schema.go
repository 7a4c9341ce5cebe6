package db

import (
	"context"
	"fmt"
)

// schema is idempotent. The UNIQUE constraints back every ON CONFLICT upsert in postgres.go.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id                    BIGSERIAL PRIMARY KEY,
        telegram_id           BIGINT NOT NULL UNIQUE,
        chat_id               BIGINT NOT NULL,
        username              TEXT NOT NULL DEFAULT '',
        is_active             BOOLEAN NOT NULL DEFAULT TRUE,
        notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
        created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS habits (
        id          BIGSERIAL PRIMARY KEY,
        user_id     BIGINT NOT NULL REFERENCES users(id),
        name        TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        is_active   BOOLEAN NOT NULL DEFAULT TRUE,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_habits_user_active ON habits (user_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS habit_entries (
        id         BIGSERIAL PRIMARY KEY,
        habit_id   BIGINT NOT NULL REFERENCES habits(id),
        entry_date DATE NOT NULL,
        completed  BOOLEAN NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (habit_id, entry_date)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_habit_entries_date ON habit_entries (entry_date)`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id           BIGSERIAL PRIMARY KEY,
        user_id      BIGINT NOT NULL REFERENCES users(id),
        notify_date  DATE NOT NULL,
        sent         BOOLEAN NOT NULL DEFAULT FALSE,
        sent_at      TIMESTAMPTZ,
        responded    BOOLEAN NOT NULL DEFAULT FALSE,
        responded_at TIMESTAMPTZ,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (user_id, notify_date)
    )`,
	`CREATE TABLE IF NOT EXISTS weekly_summaries (
        id         BIGSERIAL PRIMARY KEY,
        user_id    BIGINT NOT NULL REFERENCES users(id),
        week_start DATE NOT NULL,
        week_end   DATE NOT NULL,
        stats      JSONB NOT NULL,
        sent_at    TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (user_id, week_start)
    )`,
}

// EnsureSchema creates missing tables and indexes.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
