package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/common"
	"github.com/leadflowhq/leadflow/internal/handlers"
	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/pipeline"
	"github.com/leadflowhq/leadflow/internal/services/events"
	"github.com/leadflowhq/leadflow/internal/services/invoker"
	"github.com/leadflowhq/leadflow/internal/services/leads"
	"github.com/leadflowhq/leadflow/internal/services/sweeper"
	"github.com/leadflowhq/leadflow/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	InvokerClient   *invoker.Client
	PipelineService *pipeline.Service
	PipelineWatcher *pipeline.Watcher
	LeadsService    *leads.Service
	SweeperService  *sweeper.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	ListHandler     *handlers.ListHandler
	PipelineHandler *handlers.PipelineHandler
	JobHandler      *handlers.JobHandler
	IngestHandler   *handlers.IngestHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)

	// WebSocket handler subscribes to the bus before any service publishes
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	app.InvokerClient = invoker.NewClient(
		cfg.Functions.BaseURL,
		cfg.Functions.CallbackBaseURL,
		invoker.WithLogger(logger),
		invoker.WithTimeout(cfg.FunctionTimeout()),
		invoker.WithRateLimit(cfg.Functions.RateLimit),
	)

	app.PipelineService = pipeline.NewService(
		storageManager.JobStorage(),
		storageManager.ListStorage(),
		app.InvokerClient,
		app.EventService,
		logger,
	)
	app.PipelineWatcher = pipeline.NewWatcher(app.PipelineService, app.EventService, logger, cfg.PollInterval())

	app.LeadsService = leads.NewService(
		storageManager.ListStorage(),
		storageManager.LeadStorage(),
		storageManager.JobStorage(),
		app.EventService,
		logger,
	)

	if cfg.Sweeper.Enabled {
		app.SweeperService = sweeper.NewService(
			storageManager.JobStorage(),
			app.EventService,
			logger,
			cfg.Sweeper.Schedule,
			cfg.StaleAfter(),
		)
		if err := app.SweeperService.Start(); err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to start sweeper: %w", err)
		}
	}

	app.APIHandler = handlers.NewAPIHandler()
	app.ListHandler = handlers.NewListHandler(app.LeadsService, logger)
	app.PipelineHandler = handlers.NewPipelineHandler(app.PipelineService, app.PipelineWatcher, logger)
	app.JobHandler = handlers.NewJobHandler(storageManager.JobStorage(), logger)
	app.IngestHandler = handlers.NewIngestHandler(storageManager.JobStorage(), app.EventService, app.PipelineWatcher, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage_path", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down components in reverse dependency order.
func (a *App) Close() error {
	if a.SweeperService != nil {
		a.SweeperService.Stop()
	}
	if a.PipelineWatcher != nil {
		a.PipelineWatcher.Stop()
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
