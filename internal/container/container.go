package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/application/service"
	httpapi "github.com/garyjia/invoice-reimbursement/internal/interfaces/http"
	"github.com/garyjia/invoice-reimbursement/internal/report"
	"github.com/garyjia/invoice-reimbursement/pkg/database"
	"github.com/garyjia/invoice-reimbursement/pkg/utils"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialised in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	db       *database.DB
	repo     port.BatchRepository
	pipeline *PipelineBundle
	notifier port.BatchNotifier
	renderer *report.Renderer

	// Application
	services *ServiceBundle

	// Interface
	server *httpapi.Server

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Batch   service.BatchService
	History service.HistoryService
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
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
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

// Start initializes all components in dependency order:
// 1. History database (optional)
// 2. Pipeline: workspaces, extractor, unpacker, analyzer
// 3. Notifier (optional) and report renderer
// 4. Application services
// 5. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = dbBundle.DB
	c.repo = dbBundle.Repo

	pipeline, err := ProvidePipeline(c.config, c.logger)
	if err != nil {
		_ = c.closeDB()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	c.pipeline = pipeline

	c.notifier = ProvideNotifier(&c.config.Lark, c.logger)
	c.renderer = ProvideRenderer(&c.config.Report, c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Pipeline: c.pipeline,
		Repo:     c.repo,
		Notifier: c.notifier,
		Logger:   c.logger,
	})
	if err != nil {
		_ = c.closeDB()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services

	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            c.config.Server.Port,
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
		MaxUploadBytes:  c.config.Server.MaxUploadBytes,
		AllowedOrigins:  c.config.Server.AllowedOrigins,
	}, c.services.Batch, c.services.History, c.renderer, utils.NewKVLogger(c.logger))

	c.ready.Store(true)
	c.logger.Info("Container started successfully",
		zap.Bool("history", c.repo != nil),
		zap.Bool("notifications", c.notifier != nil))

	return nil
}

// Close releases stateful components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.closeDB()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeDB() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	}
	c.db = nil
	return err
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components. Disabled optional
// components are reported healthy. A missing API key marks the analyzer
// unhealthy without failing the overall status.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case !c.config.Database.Enabled:
		status.Components["database"] = ComponentHealth{Healthy: true, Message: "disabled"}
	case c.db == nil:
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	default:
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.pipeline != nil {
		msg := ""
		if c.config.OpenAI.APIKey == "" {
			msg = "no API key; invoices will be declined"
		}
		status.Components["analyzer"] = ComponentHealth{Healthy: c.config.OpenAI.APIKey != "", Message: msg}
	} else {
		status.Components["analyzer"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.config.Lark.Enabled {
		status.Components["lark"] = ComponentHealth{Healthy: c.notifier != nil}
	} else {
		status.Components["lark"] = ComponentHealth{Healthy: true, Message: "disabled"}
	}

	return status
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// BatchRepository returns the history repository, or nil when history is disabled.
func (c *Container) BatchRepository() port.BatchRepository {
	return c.repo
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
