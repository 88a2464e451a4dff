package server

import (
	"github.com/Meugenn/knowledge-graph-sub001/internal/server/middleware"
	"github.com/Meugenn/knowledge-graph-sub001/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Read-only graph routes
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.GET("/nodes", routes.GetNodesHandler)
	apiRoutes.GET("/nodes/:id", routes.GetNodeHandler)
	apiRoutes.GET("/nodes/:id/neighbourhood", routes.GetNeighbourhoodHandler)
	apiRoutes.GET("/nodes/:id/density", routes.GetDensityHandler)
	apiRoutes.GET("/rings", routes.GetRingsHandler)

	// Scheduler status routes
	apiRoutes.GET("/status", routes.GetStatusHandler)
	apiRoutes.GET("/queues/:caste", routes.GetQueueHandler)
	apiRoutes.GET("/artifacts/:kind", routes.GetArtifactsHandler)
	apiRoutes.GET("/markets", routes.GetMarketsHandler)
	apiRoutes.GET("/trism/breakers", routes.GetBreakersHandler)
	apiRoutes.GET("/trism/breakers/:source", routes.GetBreakerHandler)

	// Mutating routes
	auth := middleware.AuthMiddleware
	apiRoutes.POST("/papers", routes.CreatePaperHandler, auth, middleware.RequirePermission("graph.write"))
	apiRoutes.POST("/awaken", routes.AwakenHandler, auth, middleware.RequirePermission("scheduler.control"))
	apiRoutes.POST("/sleep", routes.SleepHandler, auth, middleware.RequirePermission("scheduler.control"))
	apiRoutes.POST("/patrol", routes.PatrolHandler, auth, middleware.RequirePermission("scheduler.control"))
	apiRoutes.POST("/trism/evaluate", routes.EvaluateHandler, auth, middleware.RequirePermission("trism.write"))
	apiRoutes.POST("/trism/reset", routes.ResetTrismHandler, auth, middleware.RequirePermission("trism.write"))
}
