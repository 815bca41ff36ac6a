package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/chainlens/chainlens/internal/api/v1"
	"github.com/chainlens/chainlens/internal/pkg/constants"
	"github.com/chainlens/chainlens/internal/pkg/credits"
	"github.com/chainlens/chainlens/internal/pkg/database"
	"github.com/chainlens/chainlens/internal/pkg/middleware"
	"github.com/chainlens/chainlens/internal/pkg/statistics"
	"github.com/chainlens/chainlens/internal/pkg/webhooks"
)

// InstallRouter attaches the public API surface to the fiber app.
func InstallRouter(app *fiber.App) {
	db := database.GetDB()

	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Public platform counters, no API key required
	api.Get(constants.StatsRoute, func(ctx *fiber.Ctx) error {
		return ctx.JSON(statistics.GetStatistics())
	})

	// API v1 routes (API key protected)
	v1 := api.Group(constants.APIV1Route, middleware.APIKeyAuthMiddleware())
	server := apiv1.NewAPIServer(
		db,
		credits.NewServiceFromDB(db),
		webhooks.NewRegistryFromDB(db),
		webhooks.GetDispatcher(),
	)
	apiv1.RegisterHandlers(v1, server)
}
