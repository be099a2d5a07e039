package internal

import (
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	v1 "funnelscope/api/v1"
	"funnelscope/internal/config"
	"funnelscope/internal/http"
	"funnelscope/internal/http/middleware"
	"funnelscope/internal/jobs"
)

// publicCORSConfig is the CORS setup shared by all API endpoints so
// dashboards on other origins can read reports and trackers can post
// sessions.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountRoutes mounts all application routes on the fiber app.
func MountRoutes(app *fiber.App, cfg *config.Config, logger *slog.Logger, db *gorm.DB, scheduler *jobs.Scheduler) {
	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(handler fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.Environment == config.Production {
				return handler(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for the collection API (70 requests per minute per IP)
	collectRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:        70,
		Expiration: time.Minute,
	}))

	// === HEALTH ===
	app.Get("/health", http.HealthHandler(db, logger))
	app.Head("/health", http.HealthHandler(db, logger))

	// === API ROUTES ===
	api := app.Group("/api/v1", cors.New(publicCORSConfig))

	api.Get("/funnel", v1.GetFunnelHandler(db, scheduler, logger))
	api.Get("/funnel/segments", v1.GetSegmentsHandler(db, scheduler, logger))
	api.Get("/bottlenecks", v1.GetBottlenecksHandler(db, scheduler, logger))
	api.Get("/summary", v1.GetSummaryHandler(db, logger))

	// Collection is the only mutating endpoint and requires the API key.
	api.Post("/sessions",
		collectRateLimiter,
		middleware.APIKeyAuth(cfg, logger),
		v1.CreateSessionsHandler(db, scheduler, logger))
}
