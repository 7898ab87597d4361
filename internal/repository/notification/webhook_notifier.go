package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pobyzaarif/goshortcute"

	"replyBandit/domain"
)

type WebhookConfig struct {
	WebhookURL        string
	BasicAuthUsername string
	BasicAuthPassword string
	Timeout           time.Duration
	Source            string
}

// WebhookNotifier posts shift alerts from offline evaluation to an
// operator webhook.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type shiftAlert struct {
	Source      string               `json:"source"`
	TraceID     string               `json:"trace_id,omitempty"`
	SampleCount int                  `json:"sample_count"`
	ESS         float64              `json:"ess"`
	ESSRatio    float64              `json:"ess_ratio"`
	IPSMean     float64              `json:"ips_mean"`
	DRMean      float64              `json:"dr_mean"`
	Signals     []domain.ShiftSignal `json:"signals"`
	SentAt      time.Time            `json:"sent_at"`
}

// NotifyShift sends the report's shift signals. A report without signals
// sends nothing.
func (r *WebhookNotifier) NotifyShift(ctx context.Context, traceID string, rep domain.EvaluationReport) error {
	if len(rep.ShiftSignals) == 0 {
		return nil
	}

	payload := shiftAlert{
		Source:      r.cfg.Source,
		TraceID:     traceID,
		SampleCount: rep.SampleCount,
		ESS:         rep.ESS,
		ESSRatio:    rep.ESSRatio,
		IPSMean:     rep.IPSMean,
		DRMean:      rep.DRMean,
		Signals:     rep.ShiftSignals,
		SentAt:      time.Now().UTC(),
	}
	payloadByte, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.WebhookURL, bytes.NewReader(payloadByte))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	if r.cfg.BasicAuthUsername != "" {
		basicAuth := goshortcute.StringtoBase64Encode(r.cfg.BasicAuthUsername + ":" + r.cfg.BasicAuthPassword)
		req.Header.Add("Authorization", "Basic "+basicAuth)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("webhook returned status %d: %s", res.StatusCode, bytes.TrimSpace(bodyBytes))
}
