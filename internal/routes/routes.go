package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/materna-health/materna-backend/internal/config"
	"github.com/materna-health/materna-backend/internal/handlers"
	"github.com/materna-health/materna-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	activityHandler *handlers.ActivityHandler,
	questionnaireHandler *handlers.QuestionnaireHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth — public, stricter rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/signup", authHandler.Signup)
	auth.Post("/verify", authHandler.VerifyEmail)
	auth.Post("/resend", authHandler.ResendVerification)
	auth.Post("/password/forgot", authHandler.ForgotPassword)
	auth.Post("/password/reset", authHandler.ResetPassword)
	auth.Post("/login", authHandler.Login)

	// Protected routes (JWT required)
	protected := api.Group("", middleware.JWTProtected(cfg))
	protected.Get("/me", profileHandler.GetMe)
	protected.Put("/me", profileHandler.UpdateMe)
	protected.Post("/me/avatar", profileHandler.UploadAvatar)

	protected.Post("/activities", activityHandler.Create)
	protected.Get("/activities", activityHandler.List)
	protected.Delete("/activities/:id", activityHandler.Delete)
	protected.Get("/badges", activityHandler.ListBadges)

	protected.Post("/questionnaires", questionnaireHandler.Submit)
	protected.Get("/questionnaires", questionnaireHandler.List)
	protected.Get("/questionnaires/:id", questionnaireHandler.Get)
}
