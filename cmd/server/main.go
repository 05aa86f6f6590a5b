package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/redis/go-redis/v9"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/materna-health/materna-backend/internal/clock"
	"github.com/materna-health/materna-backend/internal/config"
	"github.com/materna-health/materna-backend/internal/database"
	"github.com/materna-health/materna-backend/internal/handlers"
	"github.com/materna-health/materna-backend/internal/limiter"
	"github.com/materna-health/materna-backend/internal/logging"
	"github.com/materna-health/materna-backend/internal/mailer"
	"github.com/materna-health/materna-backend/internal/middleware"
	"github.com/materna-health/materna-backend/internal/repository"
	"github.com/materna-health/materna-backend/internal/routes"
	"github.com/materna-health/materna-backend/internal/services"
	"github.com/materna-health/materna-backend/internal/uploads"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Redis-backed OTP resend throttling, disabled without REDIS_ADDR
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		slog.Info("resend throttling enabled", "redis", cfg.RedisAddr)
	}
	resendLimiter := limiter.NewResendLimiter(cache, cfg.ResendMax, cfg.ResendWindow)

	// Outbound mail channel
	var mail mailer.Mailer
	var kafkaMailer *mailer.KafkaMailer
	switch cfg.MailTransport {
	case "smtp":
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.MailFromName)
	case "kafka":
		kafkaMailer = mailer.NewKafkaMailer(cfg.KafkaBroker, cfg.KafkaMailTopic)
		mail = kafkaMailer
	default:
		mail = mailer.NewLogMailer(slog.Default())
	}
	slog.Info("mail transport ready", "transport", cfg.MailTransport)

	// Avatar uploads (optional)
	var uploader uploads.Uploader
	if cfg.CloudinaryURL != "" {
		cu, err := uploads.NewCloudinaryUploader(cfg.CloudinaryURL)
		if err != nil {
			slog.Error("cloudinary init failed", "error", err)
			os.Exit(1)
		}
		uploader = cu
	}

	// Services
	userRepo := repository.NewGormUserRepository(database.DB)
	clk := clock.System{}
	authService := services.NewAuthService(userRepo, mail, resendLimiter, clk, cfg)
	profileService := services.NewProfileService(userRepo, uploader, cfg.CloudinaryFolder, clk)
	activityService := services.NewActivityService(database.DB)
	questionnaireService := services.NewQuestionnaireService(database.DB)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	profileHandler := handlers.NewProfileHandler(profileService)
	activityHandler := handlers.NewActivityHandler(activityService)
	questionnaireHandler := handlers.NewQuestionnaireHandler(questionnaireService)
	healthHandler := handlers.NewHealthHandler()

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, authHandler, profileHandler, activityHandler, questionnaireHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if kafkaMailer != nil {
		if err := kafkaMailer.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
