// Package http exposes the batch pipeline over HTTP.
// Handlers only translate requests into application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-reimbursement/internal/application/service"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ReportRenderer converts a batch result into a downloadable workbook
type ReportRenderer interface {
	Render(result *entity.BatchResult) ([]byte, error)
	Filename(result *entity.BatchResult) string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxUploadBytes:  50 << 20,
		AllowedOrigins:  []string{"*"},
	}
}

// Server is the HTTP server adapter
type Server struct {
	config         ServerConfig
	httpServer     *http.Server
	router         *gin.Engine
	batchService   service.BatchService
	historyService service.HistoryService
	renderer       ReportRenderer
	logger         Logger
}

// NewServer creates a new HTTP server. The gin mode must be set by the caller.
func NewServer(
	config ServerConfig,
	batchService service.BatchService,
	historyService service.HistoryService,
	renderer ReportRenderer,
	logger Logger,
) *Server {
	server := &Server{
		config:         config,
		router:         gin.New(),
		batchService:   batchService,
		historyService: historyService,
		renderer:       renderer,
		logger:         logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestID())
	s.router.Use(Recovery(s.logger))
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(CORS(s.config.AllowedOrigins))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.batchService, s.historyService, s.renderer, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	// Clients post with and without the trailing slash; avoid a redirect that
	// would drop the multipart body.
	s.router.RedirectTrailingSlash = false
	s.router.POST("/analyze_invoices/", handlers.AnalyzeInvoices)
	s.router.POST("/analyze_invoices", handlers.AnalyzeInvoices)

	s.router.GET("/batches", handlers.ListBatches)
	s.router.GET("/batches/:id", handlers.GetBatch)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
