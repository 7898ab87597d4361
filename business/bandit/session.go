package bandit

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"replyBandit/business/features"
	"replyBandit/domain"
)

// DecisionSession runs one turn: features, one Select, and the immutable
// record of what was shown.
type DecisionSession struct {
	engine *Engine
	now    func() time.Time
}

func NewDecisionSession(engine *Engine) *DecisionSession {
	return &DecisionSession{
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *DecisionSession) Decide(req domain.DecisionRequest) (domain.DecisionRecord, error) {
	if len(req.Candidates) == 0 {
		return domain.DecisionRecord{}, domain.ErrEmptyCandidateSet
	}

	store := s.engine.Store()
	scored := make([]domain.ScoredCandidate, len(req.Candidates))
	arms := make([]ArmFeatures, len(req.Candidates))

	for i, c := range req.Candidates {
		x, err := features.Extract(req.Context, c)
		if err != nil {
			return domain.DecisionRecord{}, fmt.Errorf("candidate %d: %w", i, err)
		}
		idx, err := store.Index(c.Style)
		if err != nil {
			return domain.DecisionRecord{}, fmt.Errorf("candidate %d: %w", i, err)
		}
		scored[i] = domain.ScoredCandidate{
			Candidate: c,
			Arm:       c.Style,
			ArmIndex:  idx,
			Features:  x,
		}
		arms[i] = ArmFeatures{ArmIndex: idx, X: x}
	}

	var override domain.ExplorationConfig
	if req.Exploration != nil {
		override = *req.Exploration
	}

	sel, err := s.engine.Select(arms, override)
	if err != nil {
		return domain.DecisionRecord{}, err
	}
	for i := range scored {
		scored[i].Score = sel.Scores[i]
	}

	turnID := req.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	return domain.DecisionRecord{
		TurnID:      turnID,
		SessionID:   req.SessionID,
		ContextHash: ContextHash(req.Context),
		Candidates:  scored,
		ChosenIndex: sel.ChosenIndex,
		ChosenArm:   scored[sel.ChosenIndex].ArmIndex,
		Propensity:  sel.Propensity,
		Explored:    sel.Explored,
		Variant:     sel.Variant,
		CreatedAt:   s.now(),
	}, nil
}

// ContextHash is a stable BLAKE2b-256 digest of a conversation context.
func ContextHash(c domain.Context) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	write := func(s string) {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	binary.BigEndian.PutUint64(n[:], uint64(len(c.History)))
	h.Write(n[:])
	for _, m := range c.History {
		write(m)
	}
	write(c.Utterance)
	return hex.EncodeToString(h.Sum(nil))
}
