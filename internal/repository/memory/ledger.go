package memory

import (
	"context"
	"fmt"
	"sync"

	"replyBandit/business/bandit"
)

// FeedbackLedger records which turns have already received feedback.
type FeedbackLedger struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

var _ bandit.FeedbackLedger = (*FeedbackLedger)(nil)

func NewFeedbackLedger() *FeedbackLedger {
	return &FeedbackLedger{claimed: make(map[string]struct{})}
}

func (l *FeedbackLedger) Claim(ctx context.Context, turnID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.claimed[turnID]; ok {
		return false, nil
	}
	l.claimed[turnID] = struct{}{}
	return true, nil
}

func (l *FeedbackLedger) Release(_ context.Context, turnID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, turnID)
	return nil
}
