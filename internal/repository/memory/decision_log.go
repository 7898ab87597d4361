package memory

import (
	"context"
	"fmt"
	"sync"

	"replyBandit/business/bandit"
	"replyBandit/domain"
)

// DecisionLog keeps decisions and feedback in process memory, in arrival
// order. It is the default log for development and tests.
type DecisionLog struct {
	mu        sync.RWMutex
	decisions []domain.DecisionRecord
	byTurn    map[string]int
	feedback  []domain.FeedbackRecord
}

var (
	_ bandit.DecisionLog       = (*DecisionLog)(nil)
	_ bandit.DecisionLogReader = (*DecisionLog)(nil)
)

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{byTurn: make(map[string]int)}
}

func (l *DecisionLog) SaveDecision(ctx context.Context, rec domain.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byTurn[rec.TurnID]; ok {
		return fmt.Errorf("%w: turn %q already logged", domain.ErrInvalidInput, rec.TurnID)
	}
	l.byTurn[rec.TurnID] = len(l.decisions)
	l.decisions = append(l.decisions, rec)
	return nil
}

func (l *DecisionLog) GetDecision(ctx context.Context, turnID string) (domain.DecisionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionRecord{}, false, fmt.Errorf("context error: %w", err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byTurn[turnID]
	if !ok {
		return domain.DecisionRecord{}, false, nil
	}
	return l.decisions[i], true, nil
}

func (l *DecisionLog) SaveFeedback(ctx context.Context, fb domain.FeedbackRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feedback = append(l.feedback, fb)
	return nil
}

// ListDecisions returns the newest limit decisions in arrival order, or all
// of them when limit <= 0.
func (l *DecisionLog) ListDecisions(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.DecisionRecord(nil), tail(l.decisions, limit)...), nil
}

func (l *DecisionLog) ListFeedback(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.FeedbackRecord(nil), tail(l.feedback, limit)...), nil
}

func tail[T any](s []T, limit int) []T {
	if limit <= 0 || limit >= len(s) {
		return s
	}
	return s[len(s)-limit:]
}
