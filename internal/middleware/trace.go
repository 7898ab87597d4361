package middleware

import (
	"replyBandit/business/bandit"

	"github.com/labstack/echo/v4"
)

const HeaderTraceID = "X-Trace-ID"

// TraceID propagates the caller's trace id (or a new one) into the request
// context and echoes it back in the response.
func TraceID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := bandit.WithTraceID(req.Context(), req.Header.Get(HeaderTraceID))
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(HeaderTraceID, bandit.TraceIDFromContext(ctx))
			return next(c)
		}
	}
}
