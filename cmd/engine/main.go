package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avolkov/spendwatch/internal/analytics"
	"github.com/avolkov/spendwatch/internal/config"
	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/insight"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/notify"
	"github.com/avolkov/spendwatch/internal/store/firestore"
)

// Schedule expressions for the periodic rules, evaluated in the engine
// timezone: budget check at 09:00 on the first of the month, retention
// sweep at 02:00 every day.
const (
	budgetCheckSchedule = "0 9 1 * *"
	sweepSchedule       = "0 2 * * *"
)

func main() {
	log := logger.New("spendwatch-engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	db, err := firestore.New(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Firestore")
	}
	defer db.Close()

	var notifier notify.Notifier
	if cfg.FirebaseCredentials != "" {
		fcm, err := notify.NewFCM(ctx, cfg.FirebaseCredentials, db, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize FCM")
		}
		notifier = fcm
	} else {
		log.Warn().Msg("No Firebase credentials configured - push notifications disabled")
	}

	var recorder insight.Recorder
	if cfg.AnalyticsDataset != "" {
		sink, err := analytics.NewBigQuerySink(ctx, cfg.ProjectID, cfg.AnalyticsDataset, cfg.AnalyticsTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize analytics sink")
		}
		defer sink.Close()
		recorder = sink
	}

	engine, err := insight.NewEngine(insight.Config{
		Records:       db,
		Insights:      db,
		Users:         db,
		Notifier:      notifier,
		Recorder:      recorder,
		Location:      cfg.Location,
		Logger:        log,
		RetentionDays: cfg.RetentionDays,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build insight engine")
	}

	queue := events.NewQueue(cfg.QueueSize, cfg.Workers)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := queue.Start(workerCtx, engine.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event workers")
	}

	publishTick := func(typ events.Type) func() {
		return func() {
			if err := queue.Publish(workerCtx, events.Event{Type: typ}); err != nil {
				log.Error().Err(err).Str("type", string(typ)).Msg("Failed to publish schedule tick")
			}
		}
	}

	scheduler := cron.New(cron.WithLocation(cfg.Location))
	if _, err := scheduler.AddFunc(budgetCheckSchedule, publishTick(events.TypeBudgetTick)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register budget check schedule")
	}
	if _, err := scheduler.AddFunc(sweepSchedule, publishTick(events.TypeSweepTick)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sweep schedule")
	}
	scheduler.Start()

	log.Info().
		Str("timezone", cfg.TimezoneName).
		Str("budget_schedule", budgetCheckSchedule).
		Str("sweep_schedule", sweepSchedule).
		Msg("Engine service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down engine service...")

	// Stop scheduling new ticks, then drain buffered events. The worker
	// context stays live until the deferred cancel so draining handlers
	// are not cut short.
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close event queue")
	}

	log.Info().Msg("Engine service exited")
}
