package bandit

import (
	"context"
	"fmt"
	"math"

	"replyBandit/business/features"
	"replyBandit/domain"
	"replyBandit/pkg/logger"
)

// Explain returns the score components of every candidate without choosing
// one or logging a decision. No randomness is consumed.
func (s *BanditService) Explain(ctx context.Context, req domain.DecisionRequest) ([]domain.DebugCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if len(req.Candidates) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}

	ex := s.loadExploration(ctx)
	if req.Exploration != nil {
		ex = *req.Exploration
	}
	eff, err := s.engine.resolve(ex)
	if err != nil {
		return nil, err
	}

	logger.Debug("bandit_explain",
		"trace_id", TraceIDFromContext(ctx),
		"candidate_count", len(req.Candidates),
		"alpha", eff.alpha,
	)

	store := s.engine.Store()
	names := features.Names()
	out := make([]domain.DebugCandidate, 0, len(req.Candidates))

	for i, c := range req.Candidates {
		raw, err := features.Extract(req.Context, c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		idx, err := store.Index(c.Style)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		x, err := s.engine.prepare(raw)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		st, err := store.Snapshot(idx)
		if err != nil {
			return nil, err
		}

		mean := dot(st.Theta(), x)
		uncertainty := math.Sqrt(math.Max(0, dot(x, matVecMul(st.AInv, x))))

		fv := make(map[string]float64, len(raw))
		for j, v := range raw {
			fv[names[j]] = v
		}

		out = append(out, domain.DebugCandidate{
			Index:       i,
			Arm:         c.Style,
			ArmIndex:    idx,
			Features:    fv,
			Mean:        mean,
			Uncertainty: uncertainty,
			UCB:         mean + eff.alpha*uncertainty,
			ArmCount:    st.Count,
		})
	}
	return out, nil
}
