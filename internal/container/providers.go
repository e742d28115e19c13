// Package container provides dependency injection and lifecycle management
// for the refund approval service.
package container

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/dedup"
	"github.com/garyjia/refund-approval/internal/application/dispatcher"
	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/application/proration"
	"github.com/garyjia/refund-approval/internal/application/refundcheck"
	"github.com/garyjia/refund-approval/internal/application/service"
	"github.com/garyjia/refund-approval/internal/application/workflow"
	"github.com/garyjia/refund-approval/internal/config"
	infraLark "github.com/garyjia/refund-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/refund-approval/internal/infrastructure/external/orders"
	"github.com/garyjia/refund-approval/internal/infrastructure/worker"
	"github.com/garyjia/refund-approval/migrations"
	"github.com/garyjia/refund-approval/pkg/database"
	"github.com/garyjia/refund-approval/pkg/utils"
)

// LarkBundle holds all Lark-related components.
type LarkBundle struct {
	Client    *infraLark.Client
	Messenger *infraLark.Messenger
	Directory *infraLark.Directory
	Cards     *infraLark.CardActionProcessor
}

// ServiceBundle groups the application services.
type ServiceBundle struct {
	Journal  *service.JournalService
	Identity *service.IdentityService
	Notifier *service.CustomerNotifier
}

// ProvideDatabase opens the database and applies pending migrations.
// Embedded migrations are used unless cfg.MigrationsDir is set.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
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

	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}

	if _, err := database.NewMigrator(db, logger).Run(ctx, source); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// ProvideLarkClients creates the Lark client and its adapters.
func ProvideLarkClients(cfg *config.Config, logger *zap.Logger) (*LarkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		BaseURL:   cfg.Lark.BaseURL,
	}, logger)

	// Long-connection events carry no verification token and are not encrypted
	token, encryptKey := cfg.Lark.VerificationToken, cfg.Lark.EncryptKey
	if cfg.Lark.EventMode == config.EventModeWebSocket {
		token, encryptKey = "", ""
	}

	return &LarkBundle{
		Client:    client,
		Messenger: infraLark.NewMessenger(client, cfg.Retry, logger),
		Directory: infraLark.NewDirectory(client, logger),
		Cards:     infraLark.NewCardActionProcessor(token, logger).WithEncryptKey(encryptKey),
	}, nil
}

// ProvideOrderService creates the order API client.
func ProvideOrderService(cfg *config.Config, logger *zap.Logger) (*orders.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return orders.NewClient(orders.Config{
		BaseURL:  cfg.Orders.BaseURL,
		APIToken: cfg.Orders.APIToken,
		Timeout:  cfg.Orders.Timeout,
	}, cfg.Retry, logger), nil
}

// ProvideCalculator creates the proration calculator in the business time zone.
func ProvideCalculator(cfg *config.Config) (*proration.Calculator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return proration.NewCalculator(cfg.ProrationSettings(loc))
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *config.DispatcherConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger})}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Journal    port.JournalRepository
	Writer     service.JournalWriter
	Archive    port.ArchiveStore
	Directory  port.IdentityDirectory
	Dispatcher dispatcher.Dispatcher
	Config     *config.Config
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes the
// event-driven ones to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Journal == nil {
		return nil, fmt.Errorf("journal repository is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("identity directory is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := NewLogAdapter(deps.Logger)

	journal := service.NewJournalService(deps.Journal, serviceLogger)
	if deps.Archive != nil && deps.Writer != nil {
		journal.WithArchive(deps.Writer, deps.Archive)
	}
	journal.Register(deps.Dispatcher)

	notifier := service.NewCustomerNotifier(serviceLogger)
	notifier.Register(deps.Dispatcher)

	identity := service.NewIdentityService(
		deps.Directory,
		deps.Config.IdentityRetry(),
		deps.Config.Identity.Concurrency,
		serviceLogger,
	)

	return &ServiceBundle{
		Journal:  journal,
		Identity: identity,
		Notifier: notifier,
	}, nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Orders     port.OrderService
	Messenger  port.Messenger
	Calculator *proration.Calculator
	Dedup      *dedup.Cache
	Dispatcher dispatcher.Dispatcher
	Requesters workflow.RequesterLookup
	ChannelID  string
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (*workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("order service is required")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Calculator == nil || deps.Dedup == nil {
		return nil, fmt.Errorf("calculator and dedup cache are required")
	}

	opts := []workflow.EngineOption{workflow.WithValidator(utils.NewValidator())}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Requesters != nil {
		opts = append(opts, workflow.WithRequesterLookup(deps.Requesters))
	}

	return workflow.NewEngine(
		deps.Orders,
		deps.Messenger,
		refundcheck.NewDetector(deps.Orders, deps.Logger),
		deps.Calculator,
		deps.Dedup,
		deps.ChannelID,
		deps.Logger,
		opts...,
	), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Journal *service.JournalService
	Dedup   *dedup.Cache
	Config  *config.Config
	Logger  *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Journal == nil || deps.Dedup == nil {
		return nil, fmt.Errorf("journal service and dedup cache are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Config.Journal.Retention > 0 && deps.Config.Journal.PruneInterval > 0 {
		manager.Register(worker.NewJournalPruneWorker(
			deps.Journal,
			deps.Config.Journal.Retention,
			deps.Config.Journal.PruneInterval,
			deps.Logger,
		))
	}

	sweep := deps.Config.Dedup.SweepInterval
	if sweep <= 0 {
		sweep = deps.Config.Dedup.TTL
	}
	manager.Register(worker.NewDedupSweepWorker(deps.Dedup, sweep, deps.Logger))

	return manager, nil
}
