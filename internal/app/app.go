// Package app wires configuration to adapters, use cases and lifecycle
// orchestration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"TenderWatch/internal/attachments"
	"TenderWatch/internal/config"
	"TenderWatch/internal/dataset"
	"TenderWatch/internal/documents"
	"TenderWatch/internal/infrastructure/analysis"
	"TenderWatch/internal/infrastructure/kvstore"
	"TenderWatch/internal/infrastructure/portal"
	infrasched "TenderWatch/internal/infrastructure/scheduler"
	"TenderWatch/internal/infrastructure/storage"
	"TenderWatch/internal/infrastructure/webhook"
	"TenderWatch/internal/ledger"
	"TenderWatch/internal/logging"
	"TenderWatch/internal/matching"
	"TenderWatch/internal/metrics"
	"TenderWatch/internal/notify"
	"TenderWatch/internal/usecase"
)

// Application owns every long-lived component: the engine, the recurring
// scheduler, the webhook listener and the store cleanup worker.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	engine    *usecase.Engine
	scheduler *usecase.Scheduler
	portal    *portal.Client
	server    *http.Server
	cleanup   *kvstore.CleanupJob
	closeDB   func() error
}

// New builds the full dependency graph. The database must be reachable; every
// other external system is contacted lazily on first use.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	if err := storage.RunMigrations(cfg.Database.DSN); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	kv := kvstore.NewPostgresStore(db)
	subscribers := storage.NewSubscriberRepository(db)
	docRepo := storage.NewDocumentRepository(db)
	sendRecords := storage.NewSendRecordRepository(db)

	collector := metrics.NewCollector()

	portalClient := portal.NewClient(cfg.Portal, kv, nil, logging.ForComponent(baseLogger,"portal"))
	portalClient.Observe(collector.RecordPortalStatus)

	datasetCache := dataset.NewCache(portalClient, kv, cfg.Cache.DatasetTTL.Std(), logging.ForComponent(baseLogger,"dataset"))
	dayLedger := ledger.New(kv, cfg.Ledger.MaxEntries, cfg.Ledger.TTL.Std(), logging.ForComponent(baseLogger,"ledger"))
	resolver := attachments.NewResolver(portalClient, kv, cfg.Cache.AttachmentTTL.Std(), nil, logging.ForComponent(baseLogger,"attachments"))

	docStore := documents.NewStore(docRepo, cfg.Documents.Root, cfg.Documents.AllowedExtensions, cfg.Documents.FallbackExtension, logging.ForComponent(baseLogger,"documents"))
	fetcher := documents.NewFetcher(docStore, portalClient, logging.ForComponent(baseLogger,"fetcher"))

	registry := notify.NewRegistry()
	telegram := notify.NewTelegramChannel(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.RatePerSecond)
	registry.Register(telegram)
	registry.Register(notify.NewEmailChannel(cfg.Notifications.Email))

	dispatcher := notify.NewDispatcher(registry, sendRecords, logging.ForComponent(baseLogger,"dispatcher"))

	analyzer := analysis.NewClient(cfg.Analysis.Endpoint, cfg.Analysis.APIKey, kv, cfg.Cache.AnalysisTTL.Std())

	engine := usecase.NewEngine(usecase.EngineDeps{
		Dataset:     datasetCache,
		Ledger:      dayLedger,
		Matcher:     matching.NewMatcher(),
		Attachments: resolver,
		Dispatcher:  dispatcher,
		Subscribers: subscribers,
		Metrics:     collector,
		Logger:      logging.ForComponent(baseLogger,"engine"),
		Year:        cfg.Portal.Year,
		PageSize:    cfg.Portal.PageSize,
		Location:    cfg.Scheduler.Location(),
	})

	sched := usecase.NewScheduler(
		infrasched.NewTickerScheduler(cfg.Scheduler.Interval.Std()),
		engine,
		portalClient,
		cfg.Scheduler.PacingMin.Std(),
		cfg.Scheduler.PacingMax.Std(),
		logging.ForComponent(baseLogger,"scheduler"),
	)

	hooks := webhook.NewServer(
		kv,
		cfg.Cache.LockTTL.Std(),
		fetcher,
		analyzer,
		telegram,
		subscribers,
		collector,
		logging.ForComponent(baseLogger,"webhook"),
	)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      hooks.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		engine:    engine,
		scheduler: sched,
		portal:    portalClient,
		server:    server,
		cleanup:   kvstore.NewCleanupJob(db, logging.ForComponent(baseLogger,"kv-cleanup")),
		closeDB:   db.Close,
	}, nil
}

// Close releases the database pool. Run closes it on exit itself; callers
// driving RunOnce directly call Close when done.
func (a *Application) Close() error {
	return a.closeDB()
}

// RunOnce executes a single engine run for today and returns its report.
// With force set the pre-poll pacing delay is skipped.
func (a *Application) RunOnce(ctx context.Context, force bool) error {
	if err := a.portal.Pace(ctx, a.cfg.Scheduler.PacingMin.Std(), a.cfg.Scheduler.PacingMax.Std(), force); err != nil {
		return err
	}

	now := time.Now().In(a.cfg.Scheduler.Location())
	report, err := a.engine.RunDay(ctx, now)
	if err != nil {
		return err
	}
	a.logger.Info("run finished",
		"total_new", report.TotalNew,
		"coincidencias", report.Matches,
		"envios", report.Sends,
		"procesos_sin_envio", len(report.ItemsWithoutSend),
	)
	return nil
}

// Run starts the recurring scheduler, the webhook listener and the cleanup
// worker, then blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		if err := a.closeDB(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
	}()

	go a.cleanup.RunEvery(ctx, time.Hour)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http listener started", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		_ = a.scheduler.Stop(context.Background())
		return fmt.Errorf("http listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop failed", "error", err)
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	return nil
}
