package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/application/service"
	"github.com/garyjia/expense-flow/internal/application/workflow"
	"github.com/garyjia/expense-flow/internal/domain/event"
	"github.com/garyjia/expense-flow/internal/infrastructure/export"
	"github.com/garyjia/expense-flow/internal/infrastructure/external/abbyy"
	infraLark "github.com/garyjia/expense-flow/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-flow/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-flow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-flow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-flow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-flow/internal/infrastructure/storage"
	"github.com/garyjia/expense-flow/internal/infrastructure/worker"
	"github.com/garyjia/expense-flow/pkg/database"
)

// DatabaseBundle holds database-related components.
// DB and TransactionMgr are nil for the memory driver.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
	Store          port.ExpenseStore
}

// ExtractionBundle holds the configured extraction provider.
// Worker is set for the openai provider, Gateway for abbyy.
type ExtractionBundle struct {
	Client  port.ExtractionClient
	Worker  *worker.ExtractionWorker
	Gateway *abbyy.Client
}

// ProvideDatabase opens the expense store.
// For sqlite it also runs the embedded schema migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		logger.Info("Using in-memory expense store")
		return &DatabaseBundle{Store: memory.NewStore()}, nil
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(database.Migrations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txMgr := sqlite.NewDB(db.DB, logger)

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: txMgr,
		Store:          repository.NewExpenseRepository(txMgr, logger),
	}, nil
}

// ProvideStorage creates the attachment file storage, creating its base directory.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if err := os.MkdirAll(cfg.AttachmentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.AttachmentDir, logger), nil
}

// ProvideExtraction creates the extraction client for the configured provider.
// The openai worker is returned unbound; the caller binds it to the
// extraction service once that exists.
func ProvideExtraction(cfg *ExtractionConfig, fileStorage port.FileStorage, logger *zap.Logger) (*ExtractionBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("extraction config is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		prompts := openai.DefaultPrompts()
		if cfg.OpenAI.PromptsPath != "" {
			loaded, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
			if err != nil {
				return nil, err
			}
			prompts = loaded
		}

		extractor := openai.NewReceiptExtractor(openai.Config{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
			MaxPages: cfg.OpenAI.MaxPages,
		}, prompts, logger)

		w := worker.NewExtractionWorker(worker.ExtractionWorkerConfig{
			Concurrency:    cfg.Worker.Concurrency,
			QueueSize:      cfg.Worker.QueueSize,
			ProcessTimeout: cfg.Worker.ProcessTimeout,
		}, extractor, fileStorage, logger)

		return &ExtractionBundle{Client: w, Worker: w}, nil

	case ProviderABBYY:
		gateway := abbyy.NewClient(abbyy.Config{
			Endpoint:            cfg.ABBYY.Endpoint,
			APIKey:              cfg.ABBYY.APIKey,
			CallbackURL:         cfg.ABBYY.CallbackURL,
			FileBaseURL:         cfg.ABBYY.FileBaseURL,
			SigningSecret:       cfg.CallbackSecret,
			RequestTimeout:      cfg.ABBYY.RequestTimeout,
			ConsecutiveFailures: cfg.ABBYY.ConsecutiveFailures,
			BreakerTimeout:      cfg.ABBYY.BreakerTimeout,
		}, logger)

		return &ExtractionBundle{Client: gateway, Gateway: gateway}, nil

	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}

// ProvideMessenger creates the Lark message sender, or nil when notifications are disabled.
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.MessageSender {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	larkCfg := infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
		Recipients:    cfg.Recipients,
	}
	return infraLark.NewMessenger(infraLark.NewSDKClient(larkCfg), larkCfg, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}))
}

// WorkflowDeps holds dependencies for creating the workflow engine.
type WorkflowDeps struct {
	Store          port.ExpenseStore
	Dispatcher     dispatcher.Dispatcher
	ProcessingMode string
	Logger         *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine and registers its event handlers.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}

	mode := workflow.ProcessingMode(deps.ProcessingMode)
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid processing mode %q", deps.ProcessingMode)
	}

	engine := workflow.NewEngine(deps.Store,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithProcessingMode(mode),
	)

	deps.Logger.Info("Workflow engine initialized", zap.String("processing_mode", string(mode)))

	return engine, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Store       port.ExpenseStore
	Engine      workflow.WorkflowEngine
	Dispatcher  dispatcher.Dispatcher
	Extraction  port.ExtractionClient
	Storage     port.FileStorage
	Messenger   port.MessageSender
	AutoRequest bool
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
// The notification service is only created and subscribed when a messenger is configured.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("expense store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}

	svcLogger := &zapLoggerAdapter{logger: deps.Logger}

	bundle := &ServiceBundle{
		Lifecycle: service.NewLifecycleService(deps.Store, deps.Engine, deps.Dispatcher, svcLogger),
		Extraction: service.NewExtractionService(deps.Store, deps.Extraction, deps.Storage, svcLogger,
			service.WithAutoRequest(deps.AutoRequest),
			service.WithExtractionDispatcher(deps.Dispatcher),
			service.WithProcessingStarter(deps.Engine),
		),
		Analytics: service.NewAnalyticsService(deps.Store, export.NewExcelReport(deps.Logger), svcLogger, nil),
		Query:     service.NewQueryService(deps.Store),
	}

	if deps.Messenger != nil {
		bundle.Notification = service.NewNotificationService(deps.Messenger, svcLogger)
		for _, typ := range []event.Type{event.TypeExpenseApproved, event.TypeExpenseRejected, event.TypeExpensePaid} {
			deps.Dispatcher.SubscribeNamed(typ, "notification."+string(typ), bundle.Notification.HandleEvent)
		}
	}

	return bundle, nil
}

// ProvideWorkers binds the extraction worker to its completer and registers it.
// The abbyy provider has no local workers.
func ProvideWorkers(extraction *ExtractionBundle, completer port.ExtractionCompleter, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if extraction != nil && extraction.Worker != nil {
		extraction.Worker.Bind(completer)
		manager.Register(extraction.Worker)
	}
	return manager
}
