package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/dedup"
	"github.com/garyjia/refund-approval/internal/application/dispatcher"
	"github.com/garyjia/refund-approval/internal/application/workflow"
	"github.com/garyjia/refund-approval/internal/config"
	"github.com/garyjia/refund-approval/internal/infrastructure/external/orders"
	"github.com/garyjia/refund-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/refund-approval/internal/infrastructure/report"
	"github.com/garyjia/refund-approval/internal/infrastructure/storage"
	"github.com/garyjia/refund-approval/internal/infrastructure/worker"
	"github.com/garyjia/refund-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db *database.DB

	// Infrastructure - External
	lark   *LarkBundle
	orders *orders.Client

	// Application
	dedup      *dedup.Cache
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	engine     *workflow.Engine
	exporter   *report.JournalExporter

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and migrations
// 2. External clients (Lark, order API)
// 3. Dispatcher and application services
// 4. Workflow engine
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.logger.Info("Workflow engine initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Drains in-flight journal writes before the database goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.db.Ping(); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers != nil {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		})
	} else {
		set("workers", ComponentHealth{Message: "not initialized"})
	}

	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	}

	if c.dedup != nil {
		set("dedup", ComponentHealth{Healthy: true, Message: fmt.Sprintf("tracked keys: %d", c.dedup.Len())})
	} else {
		set("dedup", ComponentHealth{Message: "not initialized"})
	}

	return status
}

// HealthSummary flattens Health for the HTTP health endpoint.
func (c *Container) HealthSummary() (bool, map[string]string) {
	h := c.Health()
	out := make(map[string]string, len(h.Components))
	for name, comp := range h.Components {
		switch {
		case comp.Healthy:
			out[name] = "ok"
		case comp.Message != "":
			out[name] = comp.Message
		default:
			out[name] = "unhealthy"
		}
	}
	return h.Overall, out
}

func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

func (c *Container) initExternalClients() error {
	larkBundle, err := ProvideLarkClients(c.config, c.logger)
	if err != nil {
		return err
	}
	c.lark = larkBundle

	ordersClient, err := ProvideOrderService(c.config, c.logger)
	if err != nil {
		return err
	}
	c.orders = ordersClient

	return nil
}

func (c *Container) initServices() error {
	disp, err := ProvideDispatcher(&c.config.Dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	loc, err := c.config.Location()
	if err != nil {
		return err
	}
	c.exporter = report.NewJournalExporter(loc, c.logger)

	deps := &ServiceDeps{
		Journal:    repository.NewJournalRepository(c.db.DB, c.logger),
		Writer:     c.exporter,
		Directory:  c.lark.Directory,
		Dispatcher: c.dispatcher,
		Config:     c.config,
		Logger:     c.logger,
	}
	if dir := c.config.Journal.ArchiveDir; dir != "" {
		deps.Archive = storage.NewLocalArchive(dir, c.logger)
	}

	services, err := ProvideServices(deps)
	if err != nil {
		return err
	}
	c.services = services

	return nil
}

func (c *Container) initWorkflow() error {
	calculator, err := ProvideCalculator(c.config)
	if err != nil {
		return err
	}
	c.dedup = dedup.NewCache(c.config.Dedup.TTL)

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Orders:     c.orders,
		Messenger:  c.lark.Messenger,
		Calculator: calculator,
		Dedup:      c.dedup,
		Dispatcher: c.dispatcher,
		Requesters: c.services.Identity,
		ChannelID:  c.config.Lark.ChannelID,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Journal: c.services.Journal,
		Dedup:   c.dedup,
		Config:  c.config,
		Logger:  c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// Getters for accessing container components

// DB returns the database.
func (c *Container) DB() *database.DB {
	return c.db
}

// Lark returns the Lark adapters.
func (c *Container) Lark() *LarkBundle {
	return c.lark
}

// Orders returns the order API client.
func (c *Container) Orders() *orders.Client {
	return c.orders
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns the application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() *workflow.Engine {
	return c.engine
}

// Exporter returns the journal spreadsheet exporter.
func (c *Container) Exporter() *report.JournalExporter {
	return c.exporter
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// LogAdapter adapts zap.Logger to the key/value Logger interfaces used by
// the service and HTTP layers.
type LogAdapter struct {
	logger *zap.Logger
}

// NewLogAdapter wraps logger.
func NewLogAdapter(logger *zap.Logger) *LogAdapter {
	return &LogAdapter{logger: logger}
}

func (a *LogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *LogAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
