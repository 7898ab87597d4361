package middleware

import (
	"errors"
	"net/http"

	"replyBandit/domain"
	"replyBandit/pkg/logger"

	jsonres "replyBandit/pkg/response"

	"github.com/labstack/echo/v4"
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptyCandidateSet):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownArm):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorBody builds the error envelope for a status. 5xx messages are
// replaced by the status text so storage errors never reach clients.
func ErrorBody(status int, message string) jsonres.ErrorBody {
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	return jsonres.Error(codeFor(status), message, nil)
}

// ErrorHandler renders errors that escaped a handler in the same envelope
// the middlewares use.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := StatusFor(err)
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("http_unhandled_error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, ErrorBody(status, message))
	}
	if werr != nil {
		logger.Error("http_error_response_failed", "error", werr)
	}
}
