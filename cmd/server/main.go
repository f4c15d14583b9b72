package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	inventoryapp "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/clinicpos/backend/internal/domain/shared"
	"github.com/clinicpos/backend/internal/infrastructure/cache"
	"github.com/clinicpos/backend/internal/infrastructure/config"
	"github.com/clinicpos/backend/internal/infrastructure/logger"
	"github.com/clinicpos/backend/internal/infrastructure/persistence"
	"github.com/clinicpos/backend/internal/infrastructure/telemetry"
	"github.com/clinicpos/backend/internal/interfaces/http/handler"
	"github.com/clinicpos/backend/internal/interfaces/http/middleware"
	"github.com/clinicpos/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Clinic POS Ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize telemetry providers. Both degrade to no-ops when disabled.
	ctx := context.Background()
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Register database query tracing
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:         "postgresql",
		WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Register database query metrics and connection pool sampling
	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.Enabled = cfg.Telemetry.Enabled
	dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Ledger metrics observe committed moves and rejections, and poll stock
	// health gauges on an interval
	stockMetrics := persistence.NewGormStockMetricsProvider(db.DB)
	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:             meterProvider.Meter("ledger"),
		Logger:            log,
		ExpiryWarningDays: cfg.Ledger.ExpiryWarningDays,
		StockProvider:     stockMetrics,
	})
	if err != nil {
		log.Fatal("Failed to initialize ledger metrics", zap.Error(err))
	}
	ledgerMetrics.StartPeriodicCollection(ctx, cfg.Ledger.ExpiryWarningDays, 5*time.Minute)
	defer ledgerMetrics.Stop()

	// Idempotency cache: Redis when configured, in-memory otherwise. The move
	// log's unique indexes guard correctness either way.
	var idempotencyStore shared.IdempotencyStore
	if cfg.Redis.Enabled {
		store, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idempotencyStore = store
		log.Info("Redis idempotency cache enabled",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port),
		)
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Initialize the transaction scope and application services
	scope := persistence.NewGormTransactionScope(db.DB)
	allocator := inventory.NewFEFOAllocator()

	consumptionService := inventoryapp.NewConsumptionService(scope, allocator, ledgerMetrics, log)
	consumptionService.SetIdempotencyCache(idempotencyStore, shared.IdempotencyConfig{
		TTL:     cfg.Ledger.IdempotencyTTL,
		Enabled: cfg.Ledger.IdempotencyCacheEnabled,
	})
	refundService := inventoryapp.NewRefundService(scope, ledgerMetrics, log)
	intakeService := inventoryapp.NewIntakeService(scope, ledgerMetrics, log)
	queryService := inventoryapp.NewLedgerQueryService(scope)
	locationService := inventoryapp.NewLocationService(scope, log)

	// Initialize HTTP handlers
	ledgerHandler := handler.NewLedgerHandler(consumptionService, refundService, intakeService, queryService)
	locationHandler := handler.NewLocationHandler(locationService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - OpenTelemetry spans
	// 5. Metrics - HTTP metrics
	// 6. Security - Add security headers
	// 7. CORS - Handle cross-origin requests
	// 8. BodyLimit - Limit request body size
	// 9. RateLimit - Apply rate limiting
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Advertise the write deadline so terminals can size their own timeouts
	engine.Use(middleware.Timeout(cfg.HTTP.WriteTimeout))

	// Per-actor rate limiting
	rateLimiter := middleware.NewRateLimiter(600, time.Minute)
	engine.Use(middleware.RateLimit(rateLimiter))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Ledger domain: consumption, refunds, intake, and ledger queries
	ledgerRoutes := router.NewDomainGroup("ledger", "/ledger")
	ledgerRoutes.POST("/consume", ledgerHandler.Consume)
	ledgerRoutes.POST("/allocate", ledgerHandler.Allocate)
	ledgerRoutes.POST("/refunds/full", ledgerHandler.RefundAll)
	ledgerRoutes.POST("/refunds/partial", ledgerHandler.RefundPartial)
	ledgerRoutes.POST("/receipts", ledgerHandler.Receive)
	ledgerRoutes.POST("/adjustments", ledgerHandler.Adjust)
	ledgerRoutes.POST("/transfers", ledgerHandler.Transfer)
	ledgerRoutes.GET("/sales/:id/moves", ledgerHandler.MovesBySale)
	ledgerRoutes.GET("/refunds/:id/moves", ledgerHandler.MovesByRefund)
	ledgerRoutes.GET("/balances", ledgerHandler.Balance)
	ledgerRoutes.GET("/balances/verify", ledgerHandler.VerifyBalance)
	ledgerRoutes.GET("/on-hand", ledgerHandler.OnHand)
	ledgerRoutes.GET("/batches/expiring", ledgerHandler.ExpiringBatches)

	// Locations domain: the physical stock locations moves are scoped to
	locationRoutes := router.NewDomainGroup("locations", "/locations")
	locationRoutes.POST("", locationHandler.Register)
	locationRoutes.GET("", locationHandler.List)
	locationRoutes.GET("/:id", locationHandler.GetByID)
	locationRoutes.POST("/:id/default", locationHandler.MakeDefault)
	locationRoutes.POST("/:id/deactivate", locationHandler.Deactivate)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(ledgerRoutes).
		Register(locationRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
