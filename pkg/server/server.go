// Package server assembles the HTTP application: infrastructure, services,
// middleware, and routes, plus graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/api"
	"github.com/tagmaster/tagmaster-api/internal/config"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/database"
	"github.com/tagmaster/tagmaster-api/internal/services/generation"
	"github.com/tagmaster/tagmaster-api/internal/services/ledger"
	"github.com/tagmaster/tagmaster-api/internal/services/middleware"
	"github.com/tagmaster/tagmaster-api/internal/services/payment"
	"github.com/tagmaster/tagmaster-api/internal/services/profile"
	"github.com/tagmaster/tagmaster-api/internal/services/scheduler"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Server represents a TagMaster API server instance.
type Server struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
}

type services struct {
	profiles     *profile.Service
	ledger       *ledger.Service
	stripe       *payment.StripeService
	orchestrator *generation.Orchestrator
	authProvider auth.Provider
}

// New creates a new Server instance with the given configuration.
// The cfg parameter is required and must not be nil.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}

	return &Server{
		config: cfg,
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	s.app = createFiberApp(s.config)

	redisClient, err := createRedisClient(s.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	s.redis = redisClient
	if s.redis != nil {
		defer func() {
			if err := s.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	db, err := database.New(*s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.db = db
	defer func() {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()
	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	svcs, err := s.initializeServices()
	if err != nil {
		return err
	}

	// Cross-instance balance notifications ride on redis when available.
	listenCtx, listenCancel := context.WithCancel(context.Background())
	defer listenCancel()
	if s.redis != nil {
		go svcs.profiles.ListenRemoteChanges(listenCtx)
	}

	retention := time.Duration(s.config.Credits.EventRetentionDays) * 24 * time.Hour
	retentionScheduler := scheduler.NewEventRetentionScheduler(svcs.stripe, retention, 0)
	go retentionScheduler.Start(listenCtx)
	defer retentionScheduler.Stop()

	setupMiddleware(s.app, s.config)
	setupRoutes(s.app, s.config, s.redis, s.db, svcs)

	s.app.Get("/", welcomeHandler())

	fmt.Printf("TagMaster API starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- s.app.ShutdownWithTimeout(30 * time.Second)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

func (s *Server) initializeServices() (*services, error) {
	profiles := profile.NewService(s.db.DB, s.redis, s.config.Credits.InitialGrant)
	if err := profiles.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate profiles table: %w", err)
	}

	ledgerSvc := ledger.NewService(s.db.DB)
	if err := ledgerSvc.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate credit transactions table: %w", err)
	}

	stripeSvc := payment.NewStripeService(payment.StripeConfig{
		SecretKey:     s.config.Stripe.SecretKey,
		WebhookSecret: s.config.Stripe.WebhookSecret,
		Packages:      s.config.Credits.Packages,
	}, ledgerSvc, s.db.DB)
	if err := stripeSvc.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate processed payment events table: %w", err)
	}
	fiberlog.Info("Database migrations completed successfully")

	geminiClient := generation.NewGeminiClient(s.config.Gemini)
	orchestrator := generation.NewOrchestrator(profiles, ledgerSvc, geminiClient, s.config.Credits.RefundFailedGenerations)

	var authProvider auth.Provider
	switch s.config.Auth.Provider {
	case "clerk":
		authProvider = auth.NewClerkProvider(s.config.Auth.ClerkConfig.SecretKey)
	case "jwt":
		authProvider = auth.NewJWTProvider(s.config.Auth.JWTConfig.Secret, s.config.Auth.JWTConfig.Issuer)
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", s.config.Auth.Provider)
	}

	return &services{
		profiles:     profiles,
		ledger:       ledgerSvc,
		stripe:       stripeSvc,
		orchestrator: orchestrator,
		authProvider: authProvider,
	}, nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:              "TagMaster API v1.0",
		EnablePrintRoutes:    !isProd,
		ReadTimeout:          2 * time.Minute,
		WriteTimeout:         2 * time.Minute,
		IdleTimeout:          5 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      8192,
		CompressedFileSuffix: ".gz",
		Prefork:              false,
		CaseSensitive:        true,
		StrictRouting:        false,
		Network:              "tcp",
		ServerHeader:         "TagMaster",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:               300,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		},
	}))

	// Per-request deadline: the generation call is the slowest path and
	// carries its own timeout, so the request ceiling just has to exceed it.
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Minute)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, User-Agent",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))
}

func setupRoutes(app *fiber.App, cfg *config.Config, redisClient *redis.Client, db *database.DB, svcs *services) {
	authMiddleware := middleware.NewAuthMiddleware(svcs.authProvider, &middleware.AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths:   []string{"/health", "/webhooks"},
	})

	healthHandler := api.NewHealthHandler(db.DB, redisClient)
	app.Get("/health", healthHandler.HealthCheck)

	stripeHandler := api.NewStripeHandler(svcs.stripe)
	app.Post("/webhooks/stripe", stripeHandler.HandleWebhook)

	if cfg.Auth.ClerkConfig != nil && cfg.Auth.ClerkConfig.WebhookSecret != "" {
		clerkWebhookHandler := api.NewClerkWebhookHandler(cfg.Auth.ClerkConfig.WebhookSecret, svcs.profiles)
		app.Post("/webhooks/clerk", clerkWebhookHandler.HandleWebhook)
	}

	generationHandler := api.NewGenerationHandler(svcs.orchestrator)
	profileHandler := api.NewProfileHandler(svcs.profiles, svcs.ledger)

	v1 := app.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())

	v1.Post("/generations", generationHandler.Generate)
	v1.Get("/strategies", generationHandler.ListStrategies)

	v1.Get("/profile", profileHandler.GetProfile)
	v1.Post("/profile/refresh", profileHandler.RefreshProfile)
	v1.Get("/profile/transactions", profileHandler.GetTransactions)

	v1.Get("/packages", stripeHandler.ListPackages)
	v1.Post("/checkout", stripeHandler.CreateCheckoutSession)
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	redisURL := ""
	if cfg.Redis != nil {
		redisURL = cfg.Redis.URL
	}

	if redisURL == "" {
		fiberlog.Info("Redis not configured - cross-instance profile notifications disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			fiberlog.Errorf("Failed to close Redis client after connection failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	fiberlog.Info("Redis connection established successfully")

	return client, nil
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to the TagMaster API!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"generations": "/api/v1/generations",
				"strategies":  "/api/v1/strategies",
				"profile":     "/api/v1/profile",
				"packages":    "/api/v1/packages",
				"checkout":    "/api/v1/checkout",
				"health":      "/health",
			},
		})
	}
}
