// Package http is the HTTP surface: request intake, card callbacks and the
// admin API. Handlers translate requests into application calls.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/refund-approval/internal/application/workflow"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/external/lark"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Workflow is the part of the workflow engine the HTTP layer drives
type Workflow interface {
	Submit(ctx context.Context, req entity.RefundRequest) (*workflow.SubmitResult, error)
	HandleAction(ctx context.Context, in workflow.Interaction) (*workflow.ActionOutcome, error)
}

// IdentityLookup resolves emails to chat users in bulk
type IdentityLookup interface {
	LookupMany(ctx context.Context, emails []string) (map[string]entity.Identity, error)
}

// Journal reads the action journal
type Journal interface {
	List(ctx context.Context, orderNumber string, limit int) ([]*entity.JournalEntry, error)
	Between(ctx context.Context, from, to time.Time) ([]*entity.JournalEntry, error)
}

// JournalExporter renders journal entries as a spreadsheet
type JournalExporter interface {
	Write(w io.Writer, entries []*entity.JournalEntry) error
}

// CardParser verifies and parses card callback bodies
type CardParser interface {
	VerifySignature(timestamp, nonce, signature string, body []byte) bool
	Parse(body []byte) (*lark.CardCallback, error)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// ActionTimeout bounds background handling of one card action
	ActionTimeout time.Duration
}

// Deps are the application components behind the handlers
type Deps struct {
	Workflow   Workflow
	Identities IdentityLookup
	Journal    Journal
	Exporter   JournalExporter
	Cards      CardParser
	// Health reports component health; nil means always healthy
	Health func() (bool, map[string]string)
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, deps Deps, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(deps, config.ActionTimeout, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)
	s.router.POST("/lark/card-action", h.CardAction)

	api := s.router.Group("/api/v1")
	{
		api.POST("/refund-requests", h.SubmitRequest)
		api.POST("/identities/lookup", h.LookupIdentities)
		api.GET("/journal", h.ListJournal)
		api.GET("/journal/export", h.ExportJournal)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)

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

// Stop stops accepting requests, then waits for in-flight card actions
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	if err := s.handlers.Wait(ctx); err != nil {
		s.logger.Error("Card actions still running at shutdown", "error", err)
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

// inflight tracks background card actions
type inflight struct {
	wg sync.WaitGroup
}

func (f *inflight) Go(fn func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
}

// Wait blocks until all tracked work is done or ctx expires
func (f *inflight) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
