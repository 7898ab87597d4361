package router

import (
	"replyBandit/internal/rest"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetBanditRoutes(api *echo.Group, handler *rest.BanditHandler, authRequired echo.MiddlewareFunc) {
	decisions := api.Group("/decisions", authRequired)
	decisions.POST("", handler.Decide)
	decisions.POST("/explain", handler.Explain)

	api.POST("/feedback", handler.Feedback, authRequired)

	evaluations := api.Group("/evaluations", authRequired)
	evaluations.POST("", handler.Evaluate)
	evaluations.POST("/log", handler.EvaluateLog)

	api.GET("/summary", handler.Summary, authRequired)
}

func SetBanditAdminRoutes(api *echo.Group, handler *rest.BanditAdminHandler, authRequired echo.MiddlewareFunc, adminOnly echo.MiddlewareFunc) {
	admin := api.Group("/admin", authRequired, adminOnly)

	admin.GET("/arms", handler.Arms)
	admin.POST("/arms/:arm/reset", handler.ResetArm)
	admin.POST("/snapshots", handler.SaveSnapshot)
	admin.GET("/exploration", handler.GetExploration)
	admin.PUT("/exploration", handler.PutExploration)
}

func SetMetricsRoute(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func SetHealthRoute(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}
