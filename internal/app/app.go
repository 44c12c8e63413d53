// Package app wires configuration into a running indicators engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	_ "github.com/mobistudy/indicators-backend-go/internal/analysis/activity" // register producer
	_ "github.com/mobistudy/indicators-backend-go/internal/analysis/sleep"    // register producer
	"github.com/mobistudy/indicators-backend-go/internal/api"
	"github.com/mobistudy/indicators-backend-go/internal/attachments"
	"github.com/mobistudy/indicators-backend-go/internal/config"
	"github.com/mobistudy/indicators-backend-go/internal/database"
	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/events"
	"github.com/mobistudy/indicators-backend-go/internal/handler"
	"github.com/mobistudy/indicators-backend-go/internal/logging"
	"github.com/mobistudy/indicators-backend-go/internal/reporting"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
	"github.com/mobistudy/indicators-backend-go/internal/runguard"
	"github.com/mobistudy/indicators-backend-go/internal/service"
)

const sentryFlushTimeout = 2 * time.Second

// App holds the wired engine and its stores
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Results    *repository.TaskResultRepository
	Indicators *repository.IndicatorRepository
	Runs       *repository.RunRepository
	Engine     *analysis.Engine

	logger  zerolog.Logger
	closers []func() error
	sentry  bool
}

// OpenDatabase opens and migrates the configured SQLite database
func OpenDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	return database.Open(ctx, database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  int(cfg.Database.BusyTimeout / time.Millisecond),
	}, logger)
}

// New opens the stores and builds the engine with every registered producer
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger := logging.Component("App")

	a := &App{Config: cfg, logger: logger}

	hub, err := reporting.Init(reporting.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
	}, logging.Component("Sentry"))
	if err != nil {
		// Reporting is optional; the engine still runs without it.
		logger.Warn().Err(err).Msg("Sentry disabled")
	}
	a.sentry = hub != nil

	db, err := OpenDatabase(ctx, cfg, logging.Component("Database"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Results = repository.NewTaskResultRepository(db)
	a.Indicators = repository.NewIndicatorRepository(db)
	a.Runs = repository.NewRunRepository(db)

	store, err := a.attachmentStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	producers := analysis.NewRegisteredProducers(analysis.Dependencies{
		Results:     a.Results,
		Indicators:  a.Indicators,
		Attachments: store,
		Bucketer:    daybucket.New(cfg.Aggregation.DefaultTimeZone),
		Logger:      logging.Component("Producer"),
		Options: analysis.PipelineOptions{
			RemergeDuplicates:  cfg.Aggregation.RemergeDuplicates,
			AttachmentMaxBytes: cfg.Attachments.MaxBytes,
		},
	})

	opts := []analysis.EngineOption{analysis.WithRunRecorder(a.Runs)}
	if hub != nil {
		opts = append(opts, analysis.WithReporter(reporting.NewReporter(hub, logging.Component("Sentry"))))
	}
	a.Engine = analysis.NewEngine(runguard.New(logging.Component("RunGuard")), logging.Component("Engine"), producers, opts...)

	return a, nil
}

func (a *App) attachmentStore(ctx context.Context) (attachments.Store, error) {
	cfg := a.Config.Attachments

	var store attachments.Store
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store = attachments.NewGCSStore(client, cfg.Bucket, cfg.Prefix)
	default:
		store = attachments.NewFSStore(cfg.Dir)
	}

	a.logger.Info().Str("backend", cfg.Backend).Msg("Attachment store ready")
	return attachments.NewBreakerStore(store, "attachments-"+cfg.Backend, cfg.BreakerTimeout, logging.Component("Attachments")), nil
}

// Router builds the HTTP shell over the engine
func (a *App) Router() *gin.Engine {
	return api.SetupRouter(a.Config, api.Handlers{
		Runs:       handler.NewRunHandler(service.NewRunService(a.Engine, a.Runs)),
		Indicators: handler.NewIndicatorHandler(service.NewIndicatorService(a.Indicators)),
	}, logging.Component("HTTP"))
}

// Serve runs the HTTP server and, when enabled, the event consumer until ctx
// is cancelled, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	if a.Config.Events.Enabled {
		consumer, closePubSub, err := a.consumer(ctx)
		if err != nil {
			return err
		}
		defer closePubSub()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				errs <- fmt.Errorf("event consumer: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         a.Config.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	a.logger.Info().Msg("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	return runErr
}

func (a *App) consumer(ctx context.Context) (*events.Consumer, func(), error) {
	cfg := a.Config.Events
	wmLogger := logging.NewWatermillAdapter(logging.Component("Events"))

	ps, err := events.NewPubSub(ctx, cfg, wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub: %w", err)
	}

	handlers := events.NewHandlers(a.Engine, cfg.SubmittedTopic, cfg.RunRequestedTopic, logging.Component("Events"))
	consumer, err := events.NewConsumer(cfg, ps.Subscriber, handlers, wmLogger)
	if err != nil {
		ps.Close()
		return nil, nil, err
	}

	closeAll := func() {
		if err := consumer.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close event consumer")
		}
		if err := ps.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close pubsub")
		}
	}
	return consumer, closeAll, nil
}

// Close releases stores and flushes pending reports
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
	if a.sentry {
		reporting.Flush(sentryFlushTimeout)
	}
}
