//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bandit.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
engine:
  arms: [warm, terse]
  variant: posterior-sampling
  alpha: 0.6
storage:
  snapshots: sqlite
  sqlite_path: /tmp/arms.db
jwt:
  secret_key: from-file
`)
	t.Setenv("BANDIT_ENGINE__ALPHA", "0.9")
	t.Setenv("BANDIT_SERVER__SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg.Engine.Arms, []string{"warm", "terse"}) {
		t.Fatalf("arms=%v", cfg.Engine.Arms)
	}
	if cfg.Engine.Variant != "posterior-sampling" {
		t.Fatalf("variant=%q", cfg.Engine.Variant)
	}
	if cfg.Engine.Alpha != 0.9 {
		t.Fatalf("alpha=%v, env should override file", cfg.Engine.Alpha)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("shutdown timeout=%v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Engine.Lambda != 1 || cfg.Engine.Dim != 9 {
		t.Fatalf("defaults lost: %+v", cfg.Engine)
	}
	if cfg.Storage.SQLitePath != "/tmp/arms.db" {
		t.Fatalf("sqlite path=%q", cfg.Storage.SQLitePath)
	}
}

func TestLoadFile_CommaSeparatedArmsFromEnv(t *testing.T) {
	t.Setenv("BANDIT_JWT__SECRET_KEY", "s3cret")
	t.Setenv("BANDIT_ENGINE__ARMS", "warm, terse,curious")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg.Engine.Arms, []string{"warm", "terse", "curious"}) {
		t.Fatalf("arms=%v", cfg.Engine.Arms)
	}
}

func TestLoadFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing jwt secret", nil, "jwt secret"},
		{"bad variant", map[string]string{"BANDIT_JWT__SECRET_KEY": "x", "BANDIT_ENGINE__VARIANT": "softmax"}, "engine.variant"},
		{"bad ledger", map[string]string{"BANDIT_JWT__SECRET_KEY": "x", "BANDIT_STORAGE__LEDGER": "etcd"}, "storage.ledger"},
		{"postgres without password", map[string]string{"BANDIT_JWT__SECRET_KEY": "x", "BANDIT_STORAGE__DECISION_LOG": "postgres"}, "database password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
