package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/colegio-mx/backoffice/app/controllers"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
)

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	// Rate limit state lives in Redis so all instances share one budget.
	store := redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: mustPort(env.GetEnv("CACHE_PORT", "6379")),
	})

	app.Post("/webhook/stripe", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    store,
	}), controllers.HandleStripeWebhook)

	app.Get("/up", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

func mustPort(s string) int {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 6379
	}
	return p
}
