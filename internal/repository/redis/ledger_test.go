//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestFeedbackLedger_ClaimRelease(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	l := NewFeedbackLedger(client, time.Minute)
	turn := uuid.NewString()
	defer client.Del(ctx, ledgerKey(turn))

	first, err := l.Claim(ctx, turn)
	if err != nil || !first {
		t.Fatalf("first claim: %v %v", first, err)
	}
	again, err := l.Claim(ctx, turn)
	if err != nil || again {
		t.Fatalf("second claim: %v %v", again, err)
	}
	if err := l.Release(ctx, turn); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := l.Claim(ctx, turn); !ok {
		t.Fatal("claim after release failed")
	}
}
