package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/colegio-mx/backoffice/app/controllers"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// Finance endpoints are for back office staff; protect with basic auth
	// until the admin SSO rollout.
	finance := api.Group("/v1/finance", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("FINANCE_API_USER", "finance"): env.GetEnv("FINANCE_API_PASSWORD", "finance"),
		},
	}))

	finance.Get("/balance", controllers.HandleFinanceBalance)
	finance.Get("/payouts", controllers.HandleFinancePayouts)
	finance.Post("/payouts", controllers.HandleCreatePayout)
	finance.Get("/payments/:id/events", controllers.HandlePaymentEvents)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
