package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/handlers"
	"github.com/mmdatafocus/warehouse_backend/middlewares"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/models/reports"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/mmdatafocus/warehouse_backend/workflow"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort        = "8080"
	eventQueueSize     = 256
	shutdownTimeout    = 30 * time.Second
	correlationHeader  = "x-correlation-id"
	defaultRateLimit   = 600
	defaultRateWindowS = 60
)

// readyHandler answers 503 (and 204 on /healthz) until the full router is installed.
type readyHandler struct {
	router atomic.Pointer[gin.Engine]
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if router := h.router.Load(); router != nil {
		router.ServeHTTP(w, r)
		return
	}
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

type dependencies struct {
	store    models.Store
	handler  *handlers.Handler
	closers  []func()
	dispatch *workflow.EventDispatcher
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening immediately (Cloud Run startup probe is TCP based).
	gate := &readyHandler{}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: gate,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	deps := wire(dispatcherCtx, logger)
	gate.router.Store(newRouter(deps, logger))

	logger.WithFields(logrus.Fields{
		"field":  "server",
		"port":   port,
		"store":  config.StoreBackend(),
		"events": config.EventsBackend(),
	}).Info("server ready")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests first so no new events are queued, then flush the dispatcher.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	cancelDispatcher()
	deps.dispatch.Wait()
	deps.close()
}

// wire connects the store, redis, event backend and object storage, retrying connections
// like the rest of config does.
func wire(ctx context.Context, logger *logrus.Logger) *dependencies {
	deps := &dependencies{}

	switch config.StoreBackend() {
	case config.StoreBackendMemory:
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_BACKEND=memory; data is lost on restart")
		deps.store = models.NewMemoryStore()
	default:
		config.ConnectDatabaseWithRetry()
		db := config.GetDB()
		// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
		if !config.SkipMigrations() {
			if err := models.MigrateTable(db); err != nil {
				logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		deps.store = models.NewGormStore(db)
		deps.closers = append(deps.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	}

	if os.Getenv("REDIS_ADDRESS") != "" || config.StoreBackend() == config.StoreBackendMySQL {
		config.ConnectRedisWithRetry()
		deps.closers = append(deps.closers, func() {
			if rdb := config.GetRedisDB(); rdb != nil {
				_ = rdb.Close()
			}
		})
	} else {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("REDIS_ADDRESS not set; logout revocation and user cache are disabled")
	}

	backend, closeBackend, err := workflow.NewEventPublisher(ctx, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "events"}).Error("event backend unavailable; logging events instead: " + err.Error())
		backend = workflow.NewLogPublisher(logger)
	}
	deps.closers = append(deps.closers, closeBackend)
	deps.dispatch = workflow.NewEventDispatcher(backend, logger, eventQueueSize)
	deps.dispatch.Start(ctx)

	storage, err := utils.NewObjectStorage(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal(err.Error())
	}
	if closer, ok := storage.(io.Closer); ok {
		deps.closers = append(deps.closers, func() { _ = closer.Close() })
	}

	ledgerLocks := config.GetRedisLock()
	if !config.DistributedLedgerLocks() {
		ledgerLocks = nil
	}
	ledger := workflow.NewLedger(deps.store, ledgerLocks, logger)
	deps.handler = &handlers.Handler{
		Catalog:  workflow.NewCatalog(deps.store, ledger, logger),
		Issues:   workflow.NewIssueWorkflow(deps.store, ledger, deps.dispatch, logger),
		Accounts: workflow.NewAccounts(deps.store, logger),
		Reports:  reports.NewEngine(deps.store, logger),
		Storage:  storage,
		Logger:   logger,
	}
	return deps
}

func newRouter(deps *dependencies, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader(correlationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(correlationHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if config.RateLimitEnabled() {
		limit := config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", defaultRateLimit)
		windowSec := config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", defaultRateWindowS)
		rateLimiter := middlewares.NewRateLimiter(config.GetRedisDB(), int64(limit), time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	if local, ok := deps.handler.Storage.(*utils.LocalStorage); ok {
		r.Static("/uploads", local.Dir())
	}

	api := r.Group("/api",
		middlewares.AuthMiddleware(deps.handler.Accounts),
		middlewares.LoaderMiddleware(deps.store),
	)
	deps.handler.RegisterRoutes(api)
	r.NoRoute(customNotFoundHandler)
	return r
}

// corsConfig requires an explicit CORS_ALLOWED_ORIGINS allowlist in production and
// allows all origins elsewhere.
func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := utils.SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		corsConfig.AllowOrigins = allowedOrigins
		if len(allowedOrigins) == 0 {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", correlationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "X-Next-Cursor", correlationHeader)
	corsConfig.AllowCredentials = true
	return corsConfig
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}
