package domain

import (
	"math"
	"time"
)

type PolicyVariant string

const (
	VariantUCB               PolicyVariant = "ucb"
	VariantPosteriorSampling PolicyVariant = "posterior-sampling"
)

func (v PolicyVariant) Valid() bool {
	return v == VariantUCB || v == VariantPosteriorSampling
}

// ExplorationConfig overrides the engine defaults for a single request.
// Zero fields fall back to the engine configuration.
type ExplorationConfig struct {
	Alpha      float64 `json:"alpha"`
	Epsilon    float64 `json:"epsilon"`
	PriorScale float64 `json:"prior_scale"`
}

type DecisionRequest struct {
	TurnID      string             `json:"turn_id"`
	SessionID   string             `json:"session_id"`
	Context     Context            `json:"context"`
	Candidates  []Candidate        `json:"candidates"`
	Exploration *ExplorationConfig `json:"exploration,omitempty"`
}

type ScoredCandidate struct {
	Candidate Candidate `json:"candidate"`
	Arm       string    `json:"arm"`
	ArmIndex  int       `json:"arm_index"`
	Features  []float64 `json:"features"`
	Score     float64   `json:"score"`
}

// DecisionRecord is created once per turn and never modified afterwards.
type DecisionRecord struct {
	TurnID      string            `json:"turn_id"`
	SessionID   string            `json:"session_id"`
	ContextHash string            `json:"context_hash"`
	Candidates  []ScoredCandidate `json:"candidates"`
	ChosenIndex int               `json:"chosen_index"`
	ChosenArm   int               `json:"chosen_arm"`
	Propensity  float64           `json:"propensity"`
	Explored    bool              `json:"explored"`
	Variant     PolicyVariant     `json:"variant"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Scores returns the per-candidate scores in input order.
func (d DecisionRecord) Scores() []float64 {
	out := make([]float64, len(d.Candidates))
	for i, c := range d.Candidates {
		out[i] = c.Score
	}
	return out
}

// Chosen returns the candidate that was shown.
func (d DecisionRecord) Chosen() ScoredCandidate {
	return d.Candidates[d.ChosenIndex]
}

// DecisionResponse is what transports hand back to the caller.
type DecisionResponse struct {
	TurnID      string        `json:"turn_id"`
	ChosenIndex int           `json:"chosen_index"`
	ChosenArm   int           `json:"chosen_arm"`
	Propensity  float64       `json:"propensity"`
	Scores      []float64     `json:"scores"`
	Variant     PolicyVariant `json:"variant"`
	Text        string        `json:"text"`
}

func NewDecisionResponse(d DecisionRecord) DecisionResponse {
	return DecisionResponse{
		TurnID:      d.TurnID,
		ChosenIndex: d.ChosenIndex,
		ChosenArm:   d.ChosenArm,
		Propensity:  d.Propensity,
		Scores:      d.Scores(),
		Variant:     d.Variant,
		Text:        d.Chosen().Candidate.Text,
	}
}

type FeedbackRecord struct {
	TurnID   string  `json:"turn_id"`
	ArmIndex int     `json:"arm_index"`
	Reward   float64 `json:"reward"`
	// AppliedReward is the clipped reward the arm learned from; nil when the
	// reward was dropped.
	AppliedReward *float64  `json:"applied_reward,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// EffectiveReward returns the reward the arm learned from. Records without
// an applied reward fall back to a finite raw reward.
func (f FeedbackRecord) EffectiveReward() (float64, bool) {
	if f.AppliedReward != nil {
		return *f.AppliedReward, true
	}
	if math.IsNaN(f.Reward) || math.IsInf(f.Reward, 0) {
		return 0, false
	}
	return f.Reward, true
}

type FeedbackResult struct {
	TurnID        string  `json:"turn_id"`
	Applied       bool    `json:"applied"`
	Duplicate     bool    `json:"duplicate"`
	AppliedReward float64 `json:"applied_reward"`
	Warning       string  `json:"warning,omitempty"`
}

// ArmView is a read-only summary of one arm for admin/debug output.
type ArmView struct {
	Index       int       `json:"index"`
	Arm         string    `json:"arm"`
	Count       int       `json:"count"`
	Theta       []float64 `json:"theta"`
	Uncertainty float64   `json:"uncertainty"` // trace of A^-1
	LastUpdated time.Time `json:"last_updated"`
}
