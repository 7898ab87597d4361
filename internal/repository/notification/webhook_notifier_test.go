//go:build !integration

package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"replyBandit/domain"
)

func shiftReport() domain.EvaluationReport {
	return domain.EvaluationReport{
		SampleCount: 40,
		ESS:         3.5,
		ESSRatio:    0.0875,
		ShiftSignals: []domain.ShiftSignal{
			{Kind: domain.ShiftPropensityPeaky, Dimension: -1, Value: 0.0875, Threshold: 0.1},
		},
	}
}

func TestWebhookNotifier_NotifyShift(t *testing.T) {
	var got shiftAlert
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode alert: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		WebhookURL:        srv.URL,
		BasicAuthUsername: "ops",
		BasicAuthPassword: "pw",
		Source:            "reply-bandit",
	})
	if err := n.NotifyShift(context.Background(), "trace-1", shiftReport()); err != nil {
		t.Fatalf("NotifyShift: %v", err)
	}

	if auth != "Basic b3BzOnB3" {
		t.Fatalf("authorization=%q", auth)
	}
	if got.Source != "reply-bandit" || got.TraceID != "trace-1" || got.SampleCount != 40 {
		t.Fatalf("unexpected alert: %+v", got)
	}
	if len(got.Signals) != 1 || got.Signals[0].Kind != domain.ShiftPropensityPeaky {
		t.Fatalf("signals=%+v", got.Signals)
	}
}

func TestWebhookNotifier_NoSignals(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL})
	if err := n.NotifyShift(context.Background(), "", domain.EvaluationReport{SampleCount: 5}); err != nil {
		t.Fatalf("NotifyShift: %v", err)
	}
	if called {
		t.Fatal("a report without signals must not be sent")
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("no credentials configured, got %q", r.Header.Get("Authorization"))
		}
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL})
	err := n.NotifyShift(context.Background(), "", shiftReport())
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err=%v, want status and body", err)
	}
}
