//go:build !integration

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetup_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "production", "info")
	t.Cleanup(func() { Setup(&bytes.Buffer{}, "test", "info") })

	Info("bandit_decision", "arm", "warm", "propensity", 0.9)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "bandit_decision" || line["arm"] != "warm" {
		t.Fatalf("unexpected record: %v", line)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "development", "warn")
	t.Cleanup(func() { Setup(&bytes.Buffer{}, "test", "info") })

	Debug("hidden")
	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("records below warn were written: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing: %q", out)
	}
}
