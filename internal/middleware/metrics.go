package middleware

import (
	"strconv"
	"time"

	"replyBandit/pkg/metrics"

	"github.com/labstack/echo/v4"
)

// Metrics records latency and a status-class counter per route.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			metrics.BanditHTTPInFlight.Inc()
			defer metrics.BanditHTTPInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = StatusFor(err)
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			metrics.BanditHTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
			metrics.BanditHTTPRequests.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
			return err
		}
	}
}
