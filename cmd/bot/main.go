package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habit-bot/config"
	"habit-bot/internal/bot"
	"habit-bot/internal/cycle"
	"habit-bot/internal/dates"
	"habit-bot/internal/db"
	"habit-bot/internal/gpt"
	"habit-bot/internal/scheduler"
	"habit-bot/internal/server"
	"habit-bot/internal/stats"
	"habit-bot/internal/tracker"
	"habit-bot/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()

	// Initialize logger
	l := logger.New()
	if err == nil && cfg.Log.Development {
		l = logger.NewDevelopment()
	}
	defer func() { _ = l.Sync() }()
	l.Infow("Starting habit bot...")

	if err != nil {
		l.Fatalw("Failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		l.Fatalw("Invalid configuration", "error", err)
	}

	// Validate has already parsed these
	loc, _ := cfg.Location()
	weekStart, _ := dates.ParseWeekday(cfg.Schedule.WeekStart)
	tiers, _ := stats.NewTiers(cfg.Stats.Tiers)

	// Initialize database connection with retry
	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("Failed to connect to database, retrying...", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("Failed to connect to database after multiple attempts", "error", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(context.Background()); err != nil {
		l.Fatalw("Failed to prepare database schema", "error", err)
	}

	// Create the messaging gateway
	telegramBot, err := bot.NewTelegramBot(cfg.Telegram.Token, cfg.Telegram.Debug, l.Named("bot"))
	if err != nil {
		l.Fatalw("Failed to create Telegram bot", "error", err)
	}
	if cfg.GPT.APIKey != "" {
		telegramBot.WithCoach(gpt.NewClient(cfg.GPT.APIKey).WithModel(cfg.GPT.Model))
	} else {
		l.Infow("GPT API key is not configured, weekly summaries go out without a coaching note")
	}

	summarizer := stats.NewSummarizer(database, cfg.Schedule.StreakHorizon, tiers)
	habitTracker := tracker.New(database, telegramBot, l.Named("tracker"))

	telegramBot.Handle(bot.Handlers{
		Store:      database,
		Recorder:   habitTracker,
		Summarizer: summarizer,
		Location:   loc,
		WeekStart:  weekStart,
	})

	opts := cycle.Options{Location: loc, Pacing: cfg.Schedule.PacingDelay}
	daily := cycle.NewDaily(database, habitTracker, opts, l.Named("cycle"))
	weekly := cycle.NewWeekly(database, summarizer, telegramBot, weekStart, opts, l.Named("cycle"))

	sched, err := newScheduler(cfg, loc, daily, weekly, l)
	if err != nil {
		l.Fatalw("Failed to schedule cycles", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the bot to receive updates
	if err := telegramBot.Start(ctx); err != nil {
		l.Fatalw("Failed to start Telegram bot", "error", err)
	}
	l.Infow("Telegram bot started successfully")

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Errorw("Scheduler stopped unexpectedly", "error", err)
		}
	}()

	// Start health endpoint
	httpServer := server.NewServer(cfg.Server.Port, database, l.Named("server"))
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Infow("Shutting down bot...")

	// Cancelling ctx abandons a running cycle between two users
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		l.Errorw("Scheduler did not stop in time")
	}

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}

	if err := telegramBot.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during bot shutdown", "error", err)
	}

	l.Infow("Bot stopped successfully")
}

// newScheduler registers the daily reminder and weekly summary cycles.
func newScheduler(cfg *config.Config, loc *time.Location, daily *cycle.Daily, weekly *cycle.Weekly, l *logger.Logger) (*scheduler.Scheduler, error) {
	dailyHour, dailyMinute, err := dates.ParseClock(cfg.Schedule.DailyTime)
	if err != nil {
		return nil, err
	}
	weeklyHour, weeklyMinute, err := dates.ParseClock(cfg.Schedule.WeeklyTime)
	if err != nil {
		return nil, err
	}
	weeklyDay, err := dates.ParseWeekday(cfg.Schedule.WeeklyDay)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.RealClock, l.Named("scheduler"))

	err = sched.Add("daily-reminders", scheduler.Daily(dailyHour, dailyMinute, loc), func(ctx context.Context) {
		if _, err := daily.Run(ctx); err != nil {
			l.Errorw("Daily cycle failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	err = sched.Add("weekly-summaries", scheduler.Weekly(weeklyDay, weeklyHour, weeklyMinute, loc), func(ctx context.Context) {
		if _, err := weekly.Run(ctx); err != nil {
			l.Errorw("Weekly cycle failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return sched, nil
}
