package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"GigSafe/internal/config"
	"GigSafe/internal/database"
	"GigSafe/internal/handlers"
	"GigSafe/internal/logger"
	"GigSafe/internal/repository"
	"GigSafe/internal/routes"
	"GigSafe/internal/scheduler"
	"GigSafe/internal/services"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	zl, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.JWTSecret == "" {
		zl.Fatal("JWT_SECRET is not set")
	}

	zl.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("jwt_secret", config.MaskSecret(cfg.JWTSecret)),
		zap.String("tradesafe_client_id", cfg.TradeSafe.ClientID),
		zap.String("tradesafe_client_secret", config.MaskSecret(cfg.TradeSafe.ClientSecret)),
		zap.String("resend_api_key", config.MaskSecret(cfg.Email.ResendAPIKey)),
		zap.String("cloudinary_cloud_name", cfg.Cloudinary.CloudName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, zl)
	defer closeStore()

	transactor := repository.NewTransactor(store, repository.RetryPolicy{
		MaxRetries:      cfg.Tx.MaxRetries,
		InitialInterval: cfg.Tx.InitialBackoff(),
		MaxInterval:     cfg.Tx.MaxBackoff(),
	}, zl.Named("tx"))

	// Initialize services
	var provider services.EscrowProvider
	if cfg.TradeSafe.Enabled() {
		provider = services.NewTradeSafeService(services.TradeSafeConfig{
			APIURL:       cfg.TradeSafe.APIURL,
			TokenURL:     cfg.TradeSafe.TokenURL,
			ClientID:     cfg.TradeSafe.ClientID,
			ClientSecret: cfg.TradeSafe.ClientSecret,
			Timeout:      cfg.TradeSafe.Timeout(),
			RetryMax:     cfg.TradeSafe.RetryMax,
		}, zl.Named("tradesafe"))
		zl.Info("TradeSafe client initialized", zap.String("api_url", cfg.TradeSafe.APIURL))
	} else {
		zl.Warn("TradeSafe credentials not set, escrow funding and payouts are unavailable")
	}

	var mailer services.Mailer
	if cfg.Email.ResendAPIKey != "" {
		mailer = services.NewEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, zl.Named("email"))
	} else {
		zl.Warn("RESEND_API_KEY not set, notifications are in-app only")
	}

	var evidence handlers.EvidenceStore
	if cld, err := services.NewCloudinaryService(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret); err != nil {
		zl.Warn("Cloudinary disabled, evidence uploads are unavailable", zap.Error(err))
	} else {
		evidence = cld
		zl.Info("Cloudinary service initialized")
	}

	settings := services.NewSettingsService(store, transactor, time.Now)
	notifier := services.NewNotificationService(store, mailer, zl.Named("notifications"))
	deps := services.Dependencies{
		Store:           store,
		Transactor:      transactor,
		Provider:        provider,
		Config:          settings,
		Notifier:        notifier,
		Logger:          zl.Named("escrow"),
		ProviderTimeout: cfg.TradeSafe.Timeout(),
	}
	release := services.NewEscrowReleaseService(deps)
	completion := services.NewCompletionService(deps)
	funding := services.NewFundingService(deps)
	mediator := services.NewDisputeMediator(deps, release)
	wallet := services.NewWalletService(store)

	sweeps, err := scheduler.NewAutoReleaseScheduler(release, cfg.AutoRelease.Interval(), cfg.AutoRelease.SweepBatch, zl.Named("scheduler"))
	if err != nil {
		zl.Fatal("Failed to create auto-release scheduler", zap.Error(err))
	}
	sweeps.Start()
	defer func() {
		if err := sweeps.Shutdown(); err != nil {
			zl.Warn("scheduler shutdown", zap.Error(err))
		}
	}()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "GigSafe API v1.0",
		BodyLimit: 10 * 1024 * 1024,
		Immutable: true,
	})

	// Middleware
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to GigSafe API",
			"status":  "running",
			"version": "1.0",
		})
	})

	// Setup application routes
	routes.SetupRoutes(app, routes.Handlers{
		Gigs:          handlers.NewGigHandler(completion, zl),
		Escrow:        handlers.NewEscrowHandler(funding, completion, release, zl),
		Disputes:      handlers.NewDisputeHandler(completion, mediator, evidence, zl),
		Files:         handlers.NewFileHandler(evidence, zl),
		Wallet:        handlers.NewWalletHandler(wallet, zl),
		Notifications: handlers.NewNotificationHandler(notifier, zl),
		Admin:         handlers.NewAdminHandler(settings, release, cfg.AutoRelease.SweepBatch, zl),
	}, cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zl.Warn("server shutdown", zap.Error(err))
		}
	}()

	zl.Info("GigSafe server starting", zap.String("addr", "http://localhost:"+cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zl.Error("server stopped", zap.Error(err))
	}
}

// openStore picks the backing store from STORE_DRIVER. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (repository.Store, func()) {
	if cfg.StoreDriver == "memory" {
		zl.Warn("using the in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	dsn, err := cfg.Database.DSN()
	if err != nil {
		zl.Fatal("Failed to read database configuration", zap.Error(err))
	}
	db, err := database.Connect(ctx, dsn, cfg.Database.MaxConns, cfg.IsDevelopment(), zl)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(ctx, db, zl); err != nil {
		zl.Fatal("Failed to migrate database", zap.Error(err))
	}
	zl.Info("Database connected and migrated successfully")

	return repository.NewGormStore(db), func() {
		if err := database.Close(db); err != nil {
			zl.Warn("database close", zap.Error(err))
		}
	}
}
