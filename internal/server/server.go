// Package server exposes the HTTP surface. Handlers stay thin: they
// validate input, call repositories or enqueue pipeline jobs, and map
// the shared error taxonomy onto HTTP statuses.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"invoice-recon/internal/config"
)

// Server is the HTTP adapter over the repositories and the job queue.
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates an HTTP server wired to the given handlers.
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   cfg,
		router:   gin.New(),
		handlers: handlers,
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

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("latency", time.Since(start).String()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/vendors", s.handlers.CreateVendor)
		api.GET("/vendors", s.handlers.ListVendors)
		api.GET("/vendors/export", s.handlers.ExportVendorSummary)
		api.GET("/vendors/:id", s.handlers.GetVendor)
		api.DELETE("/vendors/:id", s.handlers.DeleteVendor)
		api.POST("/vendors/:id/restore", s.handlers.RestoreVendor)
		api.GET("/vendors/:id/stats", s.handlers.GetVendorStats)
		api.GET("/vendors/:id/contracts", s.handlers.ListContracts)
		api.POST("/vendors/:id/contracts", s.handlers.UploadContract)
		api.GET("/vendors/:id/invoices", s.handlers.ListInvoices)
		api.GET("/vendors/:id/reports", s.handlers.ListReports)

		api.GET("/contracts/:id", s.handlers.GetContract)
		api.PATCH("/contracts/:id/status", s.handlers.ChangeContractStatus)

		api.POST("/invoices", s.handlers.UploadInvoice)
		api.GET("/invoices/:id", s.handlers.GetInvoice)
		api.POST("/invoices/:id/approve", s.handlers.ApproveInvoice)
		api.POST("/invoices/:id/reject", s.handlers.RejectInvoice)
		api.GET("/invoices/:id/report", s.handlers.GetReport)
		api.GET("/invoices/:id/report/export", s.handlers.ExportReport)
	}
}

// Start runs the server until ctx is cancelled or listening fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

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
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing).
func (s *Server) Router() *gin.Engine {
	return s.router
}
