//go:build !integration

package redis

import (
	"testing"

	"replyBandit/pkg/config"
)

func TestOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Host = "cache.internal"
	cfg.Redis.Port = "6380"
	cfg.Redis.DB = 3
	cfg.Redis.Password = "pw"

	opts := Options(cfg)
	if opts.Addr != "cache.internal:6380" {
		t.Fatalf("Addr=%q", opts.Addr)
	}
	if opts.DB != 3 || opts.Password != "pw" {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestCloseRedisClient_Nil(t *testing.T) {
	if err := CloseRedisClient(nil); err != nil {
		t.Fatalf("CloseRedisClient(nil) = %v", err)
	}
}
