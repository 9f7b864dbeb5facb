package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"zipfetch/internal/api/controllers"
	"zipfetch/internal/app"
	"zipfetch/internal/queue"
)

func RegisterRoutes(e *echo.Echo, app *app.Context, mgr *queue.Manager) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	runsCtrl := &controllers.RunsController{App: app, Queue: mgr}

	e.POST("/api/runs", runsCtrl.Create)
	e.GET("/api/runs", runsCtrl.List)
	e.GET("/api/runs/active", runsCtrl.Active)
	e.GET("/api/runs/:id", runsCtrl.Get)
	e.DELETE("/api/runs/:id", runsCtrl.Cancel)
}
