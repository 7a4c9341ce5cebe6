package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray config.yaml or .env is read.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("SCHEDULE_TIMEZONE", "Europe/Berlin")
	t.Setenv("SCHEDULE_DAILYTIME", "19:45")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "Europe/Berlin", cfg.Schedule.Timezone)
	assert.Equal(t, "19:45", cfg.Schedule.DailyTime)
	assert.Equal(t, "Sunday", cfg.Schedule.WeeklyDay)
	assert.Equal(t, "21:00", cfg.Schedule.WeeklyTime)
	assert.Equal(t, "Monday", cfg.Schedule.WeekStart)
	assert.Equal(t, 30, cfg.Schedule.StreakHorizon)
	assert.Equal(t, 100*time.Millisecond, cfg.Schedule.PacingDelay)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, 20, cfg.DB.MaxOpenConns)
	assert.Equal(t, []float64{90, 70, 50, 30}, cfg.Stats.Tiers)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	require.NoError(t, cfg.Validate())
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadConfigFile(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("BOT_TOKEN_FROM_VAULT", "999:xyz")

	yaml := `
telegram:
  token: ${BOT_TOKEN_FROM_VAULT}
schedule:
  timezone: Asia/Tokyo
  weeklyday: sat
  dailytime: "08:00"
  weeklytime: "09:30"
  streakhorizon: 14
  pacingdelay: 250ms
stats:
  tiers: [95, 80, 60, 40]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "999:xyz", cfg.Telegram.Token)
	assert.Equal(t, "Asia/Tokyo", cfg.Schedule.Timezone)
	assert.Equal(t, "sat", cfg.Schedule.WeeklyDay)
	assert.Equal(t, 14, cfg.Schedule.StreakHorizon)
	assert.Equal(t, 250*time.Millisecond, cfg.Schedule.PacingDelay)
	assert.Equal(t, []float64{95, 80, 60, 40}, cfg.Stats.Tiers)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Telegram.Token = "t"
		cfg.Schedule = ScheduleConfig{
			Timezone:      "UTC",
			DailyTime:     "20:00",
			WeeklyDay:     "Sunday",
			WeeklyTime:    "21:00",
			WeekStart:     "Monday",
			StreakHorizon: 30,
		}
		cfg.Stats.Tiers = []float64{90, 70, 50, 30}
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing time zone", func(c *Config) { c.Schedule.Timezone = "" }},
		{"unknown time zone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"bad daily time", func(c *Config) { c.Schedule.DailyTime = "8pm" }},
		{"bad weekly time", func(c *Config) { c.Schedule.WeeklyTime = "19:75" }},
		{"weekly summary before daily reminder", func(c *Config) { c.Schedule.WeeklyTime = "19:00" }},
		{"weekly summary with daily reminder", func(c *Config) { c.Schedule.WeeklyTime = "20:00" }},
		{"bad weekly day", func(c *Config) { c.Schedule.WeeklyDay = "Someday" }},
		{"bad week start", func(c *Config) { c.Schedule.WeekStart = "" }},
		{"zero horizon", func(c *Config) { c.Schedule.StreakHorizon = 0 }},
		{"negative pacing", func(c *Config) { c.Schedule.PacingDelay = -time.Second }},
		{"unordered tiers", func(c *Config) { c.Stats.Tiers = []float64{50, 70, 90, 30} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
