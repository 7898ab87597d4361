//go:build !integration

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"replyBandit/pkg/config"
	"replyBandit/pkg/utils"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.JWT.SecretKey = "server-test-secret"
	cfg.Engine.Arms = []string{"warm", "terse"}
	return cfg
}

func TestBuild_Defaults(t *testing.T) {
	app, err := Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	arms, err := app.Service.Arms(context.Background())
	if err != nil || len(arms) != 2 {
		t.Fatalf("arms=%v err=%v", arms, err)
	}
}

func TestBuild_RejectsDimensionMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Dim = 4
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatal("expected error for a dimension that does not match the extractor")
	}
}

func TestNewEcho_Routes(t *testing.T) {
	cfg := testConfig()
	app, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()
	e := NewEcho(cfg, app)

	admin, err := utils.GenerateJWT("1", "ADMIN", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	user, _ := utils.GenerateJWT("2", "USER", time.Hour)

	body := `{"turn_id":"t-1","utterance":"hey","candidates":[{"text":"hi!","style":"warm","meta":{"length":3}}]}`
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"decide without token", http.MethodPost, "/api/v1/decisions", "", body, http.StatusUnauthorized},
		{"decide with token", http.MethodPost, "/api/v1/decisions", user, body, http.StatusOK},
		{"admin as user", http.MethodGet, "/api/v1/admin/arms", user, "", http.StatusForbidden},
		{"admin as admin", http.MethodGet, "/api/v1/admin/arms", admin, "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nope", admin, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status=%d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Header().Get("X-Trace-ID") == "" {
				t.Fatal("response carries no trace id")
			}
		})
	}
}

func TestNewEcho_JWTDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Enabled = false
	app, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()
	e := NewEcho(cfg, app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/arms", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d with auth disabled", rec.Code)
	}
}
