package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealguard/dealguard/internal/config"
	"github.com/dealguard/dealguard/internal/connect"
	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/logging"
	"github.com/dealguard/dealguard/internal/metrics"
	"github.com/dealguard/dealguard/internal/store"
	"github.com/dealguard/dealguard/internal/syncer"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	store       store.Store
	connections *connect.Manager
	syncer      *syncer.Syncer
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	tlsConfig   config.TLSConfig
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, st store.Store, connections *connect.Manager, sy *syncer.Syncer, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	// Initialize rate limiter from config with sane defaults
	requestsPerMinute := cfg.API.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := cfg.API.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:      gin.New(),
		config:      cfg.Server,
		apiConfig:   cfg.API,
		store:       st,
		connections: connections,
		syncer:      sy,
		metrics:     m,
		logger:      logger,
		rateLimiter: rateLimiter,
		tlsConfig:   cfg.Server.TLS,
	}
	server.router.HandleMethodNotAllowed = true

	// Add recovery middleware with logging
	server.router.Use(gin.Recovery())

	// Add rate limiting middleware
	server.router.Use(rateLimitMiddleware(rateLimiter))

	// Add body size limit (1MB)
	server.router.Use(bodyLimitMiddleware(1 << 20))

	// Add metrics and logging middleware
	server.router.Use(metrics.Middleware(m, logger))

	// Add logging middleware for structured logs
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Get or generate correlation ID
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		// Add to context
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		// Process request
		c.Next()

		// Log request completion
		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	// The OAuth callback is hit by the user's browser on redirect from the
	// CRM, so it cannot carry the API key. The signed state is its proof.
	s.router.GET("/oauth/hubspot/callback", s.handleOAuthCallback)

	// Everything else requires the API key and an acting user.
	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)
	userMiddleware := RequireUser(s.apiConfig.Auth.UserHeader)

	connectionGroup := s.router.Group("")
	connectionGroup.Use(authMiddleware, userMiddleware)
	{
		connectionGroup.POST("/hubspot/connect", s.handleConnect)
		connectionGroup.POST("/hubspot/disconnect", s.handleDisconnect)
		connectionGroup.POST("/hubspot/sync", s.handleSync)
		connectionGroup.GET("/hubspot/status", s.handleStatus)
	}

	dealGroup := s.router.Group("")
	dealGroup.Use(authMiddleware, userMiddleware)
	{
		dealGroup.GET("/deals", s.handleListDeals)
		dealGroup.POST("/deals/score", s.handleScoreDeal)
	}

	settingsGroup := s.router.Group("")
	settingsGroup.Use(authMiddleware, userMiddleware)
	{
		settingsGroup.GET("/settings/risk", s.handleGetRiskSettings)
		settingsGroup.PUT("/settings/risk", s.handlePutRiskSettings)
	}
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	// Create http server if not already created
	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &apperrors.ErrServerStart{Addr: addr, Err: err}
	}
	s.httpServer = srv

	return s.httpServer.ListenAndServe()
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.httpServer = srv
	s.logger.Info("starting HTTP server", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	// Stop accepting new connections
	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("shutting down HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", "error", err.Error())
				errs <- &apperrors.ErrServerShutdown{Err: err}
			}
		}()
	}

	// Close store connections
	if s.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Close(); err != nil {
				errs <- fmt.Errorf("store close: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	var errList []error
	for err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
