package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"habit-bot/internal/dates"
	"habit-bot/internal/stats"
)

// ScheduleConfig holds the single zone every trigger and calendar date uses.
type ScheduleConfig struct {
	Timezone      string
	DailyTime     string // HH:MM
	WeeklyDay     string // e.g. "Sunday"
	WeeklyTime    string // HH:MM
	WeekStart     string // first day of the summary week
	StreakHorizon int    // days
	PacingDelay   time.Duration
}

type Config struct {
	Telegram struct {
		Token string
		Debug bool
	}
	DB struct {
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
	}
	GPT struct {
		APIKey string
		Model  string
	}
	Server struct {
		Port string
	}
	Log struct {
		Development bool
	}
	Schedule ScheduleConfig
	Stats    struct {
		Tiers []float64
	}
	ShutdownTimeout time.Duration
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Create a new viper instance
	v := viper.New()

	// Set the config name (without extension)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Add paths where to look for the config file
	v.AddConfigPath(".")                // Look in current directory
	v.AddConfigPath("./config")         // Look in config subdirectory
	v.AddConfigPath("../config")        // Look in sibling config directory
	v.AddConfigPath("$HOME/.habit-bot") // Look in home directory

	setDefaults(v)

	// Environment variables override config values: Schedule.Timezone <- SCHEDULE_TIMEZONE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine, defaults and the environment cover everything
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			envValue := os.Getenv(envVar)
			if envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	// Unmarshal config to struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Telegram.Token", "")
	v.SetDefault("Telegram.Debug", false)
	v.SetDefault("DB.Host", "localhost")
	v.SetDefault("DB.Port", "5432")
	v.SetDefault("DB.User", "postgres")
	v.SetDefault("DB.Password", "postgres")
	v.SetDefault("DB.DBName", "habit_bot")
	v.SetDefault("DB.SSLMode", "disable")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("GPT.APIKey", "")
	v.SetDefault("GPT.Model", "gpt-4o-mini")
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Log.Development", false)
	v.SetDefault("Schedule.Timezone", "")
	v.SetDefault("Schedule.DailyTime", "20:00")
	v.SetDefault("Schedule.WeeklyDay", "Sunday")
	v.SetDefault("Schedule.WeeklyTime", "21:00")
	v.SetDefault("Schedule.WeekStart", "Monday")
	v.SetDefault("Schedule.StreakHorizon", stats.DefaultStreakHorizon)
	v.SetDefault("Schedule.PacingDelay", 100*time.Millisecond)
	v.SetDefault("Stats.Tiers", stats.DefaultThresholds)
	v.SetDefault("ShutdownTimeout", 10*time.Second)
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is not configured")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	dailyHour, dailyMinute, err := dates.ParseClock(c.Schedule.DailyTime)
	if err != nil {
		return fmt.Errorf("schedule.dailytime: %w", err)
	}
	weeklyHour, weeklyMinute, err := dates.ParseClock(c.Schedule.WeeklyTime)
	if err != nil {
		return fmt.Errorf("schedule.weeklytime: %w", err)
	}
	// The weekly summary counts the day it runs on, so that day's reminder must already be out.
	if weeklyHour*60+weeklyMinute <= dailyHour*60+dailyMinute {
		return fmt.Errorf("schedule.weeklytime %s must be later than schedule.dailytime %s",
			c.Schedule.WeeklyTime, c.Schedule.DailyTime)
	}
	if _, err := dates.ParseWeekday(c.Schedule.WeeklyDay); err != nil {
		return fmt.Errorf("schedule.weeklyday: %w", err)
	}
	if _, err := dates.ParseWeekday(c.Schedule.WeekStart); err != nil {
		return fmt.Errorf("schedule.weekstart: %w", err)
	}
	if c.Schedule.StreakHorizon < 1 {
		return fmt.Errorf("schedule.streakhorizon must be at least 1, got %d", c.Schedule.StreakHorizon)
	}
	if c.Schedule.PacingDelay < 0 {
		return fmt.Errorf("schedule.pacingdelay must not be negative")
	}
	if _, err := stats.NewTiers(c.Stats.Tiers); err != nil {
		return fmt.Errorf("stats.tiers: %w", err)
	}
	return nil
}

// Location loads the configured zone.
func (c *Config) Location() (*time.Location, error) {
	return dates.LoadLocation(c.Schedule.Timezone)
}
