package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/checkout"
	"github.com/stayhub/checkout-gateway/internal/config"
	"github.com/stayhub/checkout-gateway/internal/database"
	"github.com/stayhub/checkout-gateway/internal/handlers"
	"github.com/stayhub/checkout-gateway/internal/middleware"
	"github.com/stayhub/checkout-gateway/internal/services"
	"github.com/stayhub/checkout-gateway/pkg/jwt"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting StayHub checkout gateway")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Audit trail database (optional)
	var db *sqlx.DB
	var auditStore database.AuditStore = database.NoopAuditStore{}
	var auditPurger services.AuditPurger
	if cfg.Security.EnableAuditLog && cfg.Database.URL != "" {
		logger.Info("Connecting to audit database...")
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		auditRepo := database.NewCheckoutAuditRepository(db, logger)
		auditStore = auditRepo
		auditPurger = auditRepo
		logger.Info("Audit database connection established")
	} else {
		logger.Warn("Checkout audit trail disabled")
	}

	// Session store: redis when configured, memory otherwise
	var sessionStore database.SessionStore
	var sessionSweeper services.SessionSweeper
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		sessionStore = database.NewRedisSessionStore(redisClient, cfg.Redis.KeyPrefix, cfg.Checkout.SessionTTL)
		logger.WithField("addr", cfg.Redis.Addr).Info("Checkout sessions stored in redis")
	} else {
		memoryStore := database.NewMemorySessionStore(cfg.Checkout.SessionTTL)
		sessionStore = memoryStore
		sessionSweeper = memoryStore
		logger.Warn("REDIS_ADDR not set, checkout sessions kept in memory")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	marketplaceClient := marketplace.NewClient(marketplace.Config{
		BaseURL: cfg.Marketplace.BaseURL,
		Timeout: cfg.Marketplace.Timeout,
	}, marketplace.ContextCredentials{}, logger)

	engine := checkout.NewEngine(marketplaceClient, checkout.Config{
		ConfirmDelay: cfg.Checkout.PaymentConfirmDelay,
	}, logger)
	checkoutService := services.NewCheckoutService(engine, sessionStore, auditStore, logger)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, logger)

	paymentLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.Burst,
		logger,
	)

	cronService := services.NewCronService(cfg.Housekeeping, sessionSweeper, paymentLimiter, auditPurger, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, redisClient))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, logger))
	checkoutHandler.RegisterRoutes(v1, paymentLimiter.Middleware())

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
		// link-opened holds the request for the confirmation delay
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Marketplace.Timeout + cfg.Checkout.PaymentConfirmDelay + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if user, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = user.UserID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports the state of the optional backing stores
func healthCheckHandler(db *sqlx.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
			"database":  "disabled",
			"redis":     "disabled",
		}

		if db != nil {
			body["database"] = "healthy"
			if err := db.PingContext(ctx); err != nil {
				body["database"] = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}

		if redisClient != nil {
			body["redis"] = "healthy"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				body["redis"] = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}

		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		c.JSON(status, body)
	}
}
