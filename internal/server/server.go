// Package server wires storage, the lifecycle orchestrator, and the HTTP
// surface together.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/health"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/lifecycle"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/realtime"
	"github.com/wardenhq/warden/internal/requests"
	"github.com/wardenhq/warden/internal/retention"
	"github.com/wardenhq/warden/internal/security"
	"github.com/wardenhq/warden/internal/sequence"
	"github.com/wardenhq/warden/internal/traces"
	"github.com/wardenhq/warden/internal/validation"
)

// Server wraps the HTTP server and its collaborators.
type Server struct {
	cfg       *config.Config
	admins    directory.Store
	requests  requests.Store
	service   *lifecycle.Service
	ids       *sequence.Allocator
	adminNS   sequence.Namespace
	auditSink audit.Sink
	recorder  *audit.Recorder
	notifier  notify.Notifier
	hub       *realtime.Hub
	sweeper   *retention.Sweeper
	checks    *health.Registry

	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	shutdownTracing func(context.Context) error
	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNotifier sets a custom notification channel (for testing)
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set logger/notifier)
	for _, opt := range opts {
		opt(s)
	}

	s.checks = health.NewRegistry()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var seqStore sequence.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.admins = directory.NewPostgresStore(db)
		s.requests = requests.NewPostgresStore(db)
		seqStore = sequence.NewPostgresStore(db)
		s.auditSink = audit.NewPostgresSink(db)
		s.checks.Register("database", health.Database("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		admins := directory.NewMemoryStore()
		s.admins = admins
		s.requests = requests.NewMemoryStore(func(ctx context.Context, adminID string) (hierarchy.Role, error) {
			a, err := admins.Get(ctx, adminID)
			if err != nil {
				return "", err
			}
			return a.Role, nil
		})
		seqStore = sequence.NewMemoryStore()
		s.auditSink = audit.NewMemorySink()
		s.checks.Register("storage", health.Always("storage"))
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Realtime feed for audit events
	s.hub = realtime.NewHub(s.logger)

	// Audit recorder feeds both the durable sink and the live feed
	s.recorder = audit.NewRecorder(s.auditSink, s.logger, cfg.AuditQueueSize,
		audit.WithBroadcast(s.hub.Broadcast),
		audit.WithDroppedHook(metrics.AuditEventsDroppedTotal.Inc),
	)

	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}

	s.ids = sequence.NewAllocator(seqStore, cfg.OriginCode)
	s.adminNS = sequence.Namespace{Key: "admins", Prefix: "ADM", Capacity: cfg.AdminCapacity}
	s.service = lifecycle.NewService(lifecycle.Config{
		AuthMode:         lifecycle.AuthMode(cfg.AuthMode),
		AdminNamespace:   s.adminNS,
		RequestNamespace: sequence.Namespace{Key: "requests", Prefix: "REQ", Capacity: cfg.RequestCapacity},
	}, s.admins, s.requests, s.ids, s.recorder, s.notifier, s.logger)

	// Seed an initial super admin so a fresh deployment is usable.
	if cfg.BootstrapEmail != "" {
		if err := s.bootstrap(context.Background()); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	if cfg.RetentionWindow > 0 {
		s.sweeper = retention.NewSweeper(s.admins, s.requests,
			cfg.RetentionWindow, cfg.SweepInterval, s.logger)
		s.logger.Info("retention sweep enabled",
			"window", cfg.RetentionWindow, "interval", cfg.SweepInterval)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// bootstrap creates the first super admin when the directory has none.
// Every later account is created through the normal authorization path.
func (s *Server) bootstrap(ctx context.Context) error {
	existing, err := s.admins.List(ctx, directory.Filter{Role: hierarchy.RoleSuperAdmin, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	id, err := s.ids.Allocate(ctx, s.adminNS)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.admins.Create(ctx, &directory.Admin{
		AdminID:   id,
		Email:     s.cfg.BootstrapEmail,
		Name:      s.cfg.BootstrapName,
		Role:      hierarchy.RoleSuperAdmin,
		IsActive:  true,
		CreatedBy: "system",
		UpdatedBy: "system",
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		// Release the minted identifier so a failed bootstrap leaves no gap.
		if _, rbErr := s.ids.Rollback(ctx, s.adminNS); rbErr != nil {
			s.logger.Error("sequence rollback failed after bootstrap create failure",
				"namespace", s.adminNS.Key, "error", rbErr)
		}
		return err
	}
	s.logger.Info("bootstrapped initial super admin", "admin_id", id, "email", s.cfg.BootstrapEmail)
	return nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS for the admin console
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader(auth.HeaderRequestID)
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header(auth.HeaderRequestID, requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/livez", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Everything under /v1 requires a resolved, active admin identity.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.admins), auth.RequireActor())

	lifecycle.NewHandler(s.service).RegisterRoutes(v1)
	audit.NewHandler(s.auditSink).RegisterRoutes(v1)

	// Live audit event feed
	v1.GET("/feed", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until a shutdown signal, a server
// error, or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no endpoint configured)
	endpoint := ""
	if s.cfg.TracingEnabled {
		endpoint = s.cfg.OTLPEndpoint
	}
	shutdownTracing, err := traces.Init(runCtx, endpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start retention sweeper
	if s.sweeper != nil {
		go s.sweeper.Start(runCtx)
	}

	// Start DB stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop retention sweeper
	if s.sweeper != nil {
		s.sweeper.Stop()
		s.logger.Info("retention sweeper stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Drain the audit queue before closing storage
	if s.recorder != nil {
		s.recorder.Close()
		s.logger.Info("audit recorder drained")
	}

	// Flush traces
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service returns the lifecycle orchestrator (used by tests to seed data).
func (s *Server) Service() *lifecycle.Service {
	return s.service
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
