package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avolkov/spendwatch/internal/analytics"
	"github.com/avolkov/spendwatch/internal/api/handlers"
	"github.com/avolkov/spendwatch/internal/api/middleware"
	"github.com/avolkov/spendwatch/internal/config"
	"github.com/avolkov/spendwatch/internal/events"
	"github.com/avolkov/spendwatch/internal/insight"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/notify"
	"github.com/avolkov/spendwatch/internal/report"
	"github.com/avolkov/spendwatch/internal/store"
	"github.com/avolkov/spendwatch/internal/store/firestore"
)

func main() {
	log := logger.New("spendwatch-api")

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

	// Optional integrations stay nil when unconfigured.
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

	go func() {
		log.Info().Int("workers", cfg.Workers).Msg("Starting event workers")
		if err := queue.Start(workerCtx, engine.Handle); err != nil {
			log.Error().Err(err).Msg("Event workers stopped with error")
		}
	}()

	recordsHandler := handlers.NewRecordsHandler(db, queue, log)
	insightsHandler := handlers.NewInsightsHandler(db, log)
	budgetsHandler := handlers.NewBudgetsHandler(db, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			recordsHandler.ListRecords(w, r)
		case http.MethodPost:
			recordsHandler.CreateRecord(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/records/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		// Path is /api/records/{type}/{id}
		rest := strings.TrimPrefix(r.URL.Path, "/api/records/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Record type and ID are required")
			return
		}
		recordsHandler.DeleteRecord(w, r, store.RecordType(parts[0]), parts[1])
	})

	mux.HandleFunc("/api/insights", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.ListInsights(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.LatestInsight(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/budgets/", func(w http.ResponseWriter, r *http.Request) {
		monthKey := strings.TrimPrefix(r.URL.Path, "/api/budgets/")
		if monthKey == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Budget month is required")
			return
		}
		switch r.Method {
		case http.MethodGet:
			budgetsHandler.GetBudget(w, r, monthKey)
		case http.MethodPut:
			budgetsHandler.UpsertBudget(w, r, monthKey)
		case http.MethodDelete:
			budgetsHandler.DeleteBudget(w, r, monthKey)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	if cfg.ReportBucket != "" {
		var summarizer report.Summarizer
		if cfg.GeminiModel != "" {
			summarizer = report.NewGeminiSummarizer(cfg.GeminiModel)
		}
		generator := report.NewGenerator(db, summarizer, report.NewGCSUploader(cfg.ReportBucket), cfg.Location)
		reportsHandler := handlers.NewReportsHandler(generator, log)

		mux.HandleFunc("/api/reports/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			monthKey := strings.TrimPrefix(r.URL.Path, "/api/reports/")
			if monthKey == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Report month is required")
				return
			}
			reportsHandler.GenerateReport(w, r, monthKey)
		})
	} else {
		log.Warn().Msg("No report bucket configured - report generation disabled")
	}

	mux.HandleFunc("/health", handlers.HealthHandler)

	// Health stays outside the owner check; everything under /api requires it.
	root := http.NewServeMux()
	root.Handle("/health", mux)
	root.Handle("/api/", middleware.Owner(mux))

	// RequestID runs before Logger so the request-scoped logger sees it.
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(root),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop drains buffered events; the worker context stays live until
	// the deferred cancel so draining handlers are not cut short.
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping event queue")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close event queue")
	}

	log.Info().Msg("Server exited")
}
