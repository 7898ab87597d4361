//go:build !integration

package database

import (
	"strings"
	"testing"

	"replyBandit/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Password = "pw"
	dsn := DSN(cfg)
	for _, want := range []string{"host=localhost", "port=5432", "password=pw", "dbname=reply_bandit", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
