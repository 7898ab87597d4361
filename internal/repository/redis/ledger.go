package redis

import (
	"context"
	"fmt"
	"time"

	"replyBandit/business/bandit"

	"github.com/redis/go-redis/v9"
)

const ledgerKeyPrefix = "bandit:feedback:"

// FeedbackLedger claims turn ids with SETNX so that feedback is applied once
// per turn across every replica sharing the Redis instance.
type FeedbackLedger struct {
	client *redis.Client
	ttl    time.Duration
}

var _ bandit.FeedbackLedger = (*FeedbackLedger)(nil)

// NewFeedbackLedger keeps claims for ttl; zero keeps them forever.
func NewFeedbackLedger(client *redis.Client, ttl time.Duration) *FeedbackLedger {
	return &FeedbackLedger{
		client: client,
		ttl:    ttl,
	}
}

func ledgerKey(turnID string) string {
	return ledgerKeyPrefix + turnID
}

func (l *FeedbackLedger) Claim(ctx context.Context, turnID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, ledgerKey(turnID), time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim feedback in Redis: %w", err)
	}
	return ok, nil
}

func (l *FeedbackLedger) Release(ctx context.Context, turnID string) error {
	if err := l.client.Del(ctx, ledgerKey(turnID)).Err(); err != nil {
		return fmt.Errorf("failed to release feedback claim: %w", err)
	}
	return nil
}
