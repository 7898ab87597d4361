package bandit

import (
	"context"
	"fmt"

	"replyBandit/domain"
)

// ServiceConfig controls the orchestration around the engine.
type ServiceConfig struct {
	// SnapshotEvery persists the arm store after this many applied updates.
	// Zero disables automatic snapshots.
	SnapshotEvery int
}

const defaultSnapshotEvery = 100

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{SnapshotEvery: defaultSnapshotEvery}
}

// read per-variant exploration overrides from storage.
type ExplorationRepository interface {
	GetExploration(ctx context.Context, variant domain.PolicyVariant) (domain.ExplorationConfig, bool, error)
	UpsertExploration(ctx context.Context, variant domain.PolicyVariant, cfg domain.ExplorationConfig) error
}

// loadExploration returns the stored override for the engine's variant, or
// the zero value (engine defaults) when none is stored or storage fails.
func (s *BanditService) loadExploration(ctx context.Context) domain.ExplorationConfig {
	if s.explorationRepo == nil {
		return domain.ExplorationConfig{}
	}
	cfg, ok, err := s.explorationRepo.GetExploration(ctx, s.engine.Config().Variant)
	if err != nil || !ok {
		return domain.ExplorationConfig{}
	}
	return cfg
}

// Exploration returns the stored override for the engine's variant. The
// bool is false when nothing is stored and the engine defaults apply.
func (s *BanditService) Exploration(ctx context.Context) (domain.ExplorationConfig, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExplorationConfig{}, false, fmt.Errorf("context error: %w", err)
	}
	if s.explorationRepo == nil {
		return domain.ExplorationConfig{}, false, nil
	}
	return s.explorationRepo.GetExploration(ctx, s.engine.Config().Variant)
}
