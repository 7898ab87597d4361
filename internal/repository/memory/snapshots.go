package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/domain"

	"github.com/google/uuid"
)

// SnapshotRepository holds arm-store snapshots for the life of the process.
type SnapshotRepository struct {
	mu    sync.RWMutex
	snaps []domain.StoreSnapshot
}

var _ bandit.SnapshotRepository = (*SnapshotRepository)(nil)

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{}
}

func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snap domain.StoreSnapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}
	snap.VersionID = uuid.NewString()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
	return snap.VersionID, nil
}

func (r *SnapshotRepository) LatestSnapshot(ctx context.Context) (domain.StoreSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoreSnapshot{}, false, fmt.Errorf("context error: %w", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.snaps) == 0 {
		return domain.StoreSnapshot{}, false, nil
	}
	return r.snaps[len(r.snaps)-1], true, nil
}
