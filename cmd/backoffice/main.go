package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/colegio-mx/backoffice/app/controllers"
	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/cache"
	"github.com/colegio-mx/backoffice/internal/pkg/database"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
	"github.com/colegio-mx/backoffice/internal/pkg/jobqueue"
	"github.com/colegio-mx/backoffice/internal/pkg/notify"
	"github.com/colegio-mx/backoffice/internal/pkg/payments"
	"github.com/colegio-mx/backoffice/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	gateway := payments.NewStripeGatewayFromEnv()
	notifier := notify.NewQueueNotifier(payments.NewEventBus())
	dispatcher := payments.NewDispatcher(repos, gateway, notifier)
	reconciler := payments.NewReconciler(repos, gateway, notifier, payments.ReconcilerConfigFromEnv())

	controllers.InitializeWebhookController(dispatcher, repos)
	controllers.InitializeFinanceController(gateway)

	jobqueue.SetReconciler(reconciler)
	jobqueue.GetManager().Start()

	app := fiber.New(fiber.Config{
		AppName: "colegio-backoffice",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
