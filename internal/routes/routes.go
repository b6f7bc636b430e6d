package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cash-point/cashpoint/internal/atm"
	"github.com/cash-point/cashpoint/internal/config"
	"github.com/cash-point/cashpoint/internal/middleware"
	"github.com/cash-point/cashpoint/internal/session"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	ATM      *atm.Service
	Sessions *session.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.ATM == nil || d.Sessions == nil {
		return fmt.Errorf("terminal and session services are required")
	}
	if !d.Cfg.IsDevelopment() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Logger != nil {
		app.Use(middleware.Audit(d.Logger))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	terminal := atm.NewHandler(d.ATM, d.Cfg.RecentTransactions)

	// Public routes
	RegisterSessionRoutes(api, session.NewHandler(d.ATM, d.Sessions), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute))
	api.Post("/accounts", terminal.Open)
	api.Get("/denominations", terminal.Denominations)

	// Session routes
	protected := api.Group("/account", middleware.SessionAuth(d.Sessions))
	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterAccountRoutes(protected, terminal, idempotent)

	return nil
}
