//go:build !integration

package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/domain"
	"replyBandit/pkg/utils"

	"github.com/labstack/echo/v4"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrEmptyCandidateSet, http.StatusBadRequest},
		{fmt.Errorf("candidate 1: %w", domain.ErrUnknownArm), http.StatusUnprocessableEntity},
		{domain.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v)=%d, want %d", tt.err, got, tt.want)
		}
	}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestErrorHandler_Envelope(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/unknown-arm", func(c echo.Context) error {
		return fmt.Errorf("candidate 0: %w", domain.ErrUnknownArm)
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("secret internals")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/unknown-arm", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "UNPROCESSABLE_ENTITY" {
		t.Fatalf("code=%q", body.Error.Code)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if got := rec.Body.String(); strings.Contains(got, "secret internals") {
		t.Fatalf("internal error leaked: %s", got)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	utils.SetJWTConfig("mw-secret", "reply-bandit")
	admin, _ := utils.GenerateJWT("7", "ADMIN", time.Hour)
	user, _ := utils.GenerateJWT("8", "USER", time.Hour)

	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("user_id").(string))
	}, AuthMiddleware(), AdminOnly())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"not admin", "Bearer " + user, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(e, req)
			if rec.Code != tt.want {
				t.Fatalf("status=%d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "7" {
				t.Fatalf("user_id=%q", rec.Body.String())
			}
		})
	}
}

func TestTraceID(t *testing.T) {
	e := echo.New()
	e.Use(TraceID())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, bandit.TraceIDFromContext(c.Request().Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTraceID, "abc-123")
	rec := serve(e, req)
	if rec.Body.String() != "abc-123" || rec.Header().Get(HeaderTraceID) != "abc-123" {
		t.Fatalf("propagated trace id: body=%q header=%q", rec.Body.String(), rec.Header().Get(HeaderTraceID))
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() == "" || rec.Body.String() != rec.Header().Get(HeaderTraceID) {
		t.Fatalf("minted trace id: body=%q header=%q", rec.Body.String(), rec.Header().Get(HeaderTraceID))
	}
}
