//go:build !integration

package evaluation

import (
	"math"
	"testing"

	"replyBandit/domain"
)

func decision(turn, style string, prop float64, explored bool) domain.DecisionRecord {
	return domain.DecisionRecord{
		TurnID: turn,
		Candidates: []domain.ScoredCandidate{
			{Candidate: domain.Candidate{Style: style}, Arm: style, Features: []float64{1, 0.5}},
		},
		ChosenIndex: 0,
		Propensity:  prop,
		Explored:    explored,
	}
}

func TestSummarize(t *testing.T) {
	decisions := []domain.DecisionRecord{
		decision("t1", "warm", 0.9, false),
		decision("t2", "warm", 0.9, false),
		decision("t3", "terse", 0.1, true),
		decision("t4", "curious", 0.5, false),
	}
	feedback := []domain.FeedbackRecord{
		{TurnID: "t1", Reward: 1},
		{TurnID: "t3", Reward: 0},
		{TurnID: "t3", Reward: 1}, // second feedback for a turn is ignored
		{TurnID: "missing", Reward: 1},
	}

	s := Summarize(decisions, feedback)
	if s.TurnCount != 4 || s.RewardedCount != 2 {
		t.Fatalf("counts: %+v", s)
	}
	if s.AvgReward == nil || *s.AvgReward != 0.5 {
		t.Fatalf("AvgReward=%v, want 0.5", s.AvgReward)
	}
	if s.StyleWinRates["warm"] != 0.5 || s.StyleWinRates["terse"] != 0.25 {
		t.Fatalf("win rates: %v", s.StyleWinRates)
	}
	if s.ExploreRate != 0.25 {
		t.Fatalf("ExploreRate=%v, want 0.25", s.ExploreRate)
	}
	if s.PropensityMean == nil || math.Abs(*s.PropensityMean-0.6) > 1e-12 {
		t.Fatalf("PropensityMean=%v, want 0.6", s.PropensityMean)
	}
}

func TestSummarize_UsesAppliedReward(t *testing.T) {
	decisions := []domain.DecisionRecord{
		decision("t1", "warm", 0.9, false),
		decision("t2", "terse", 0.5, false),
		decision("t3", "warm", 0.5, false),
	}
	feedback := []domain.FeedbackRecord{
		{TurnID: "t1", Reward: 5, AppliedReward: domain.FloatPtr(1)},
		{TurnID: "t2", Reward: math.NaN()}, // dropped before the update
		{TurnID: "t2", Reward: 1},          // later feedback for a turn is ignored
		{TurnID: "t3", Reward: 0},          // logged before applied rewards were kept
	}

	s := Summarize(decisions, feedback)
	if s.RewardedCount != 2 {
		t.Fatalf("RewardedCount=%d, want 2", s.RewardedCount)
	}
	if s.AvgReward == nil || *s.AvgReward != 0.5 {
		t.Fatalf("AvgReward=%v, want 0.5", s.AvgReward)
	}

	recs := RecordsFromLog(decisions, feedback)
	if len(recs) != 2 {
		t.Fatalf("len=%d, want 2", len(recs))
	}
	if recs[0].Reward != 1 || recs[1].Reward != 0 {
		t.Fatalf("rewards=%v,%v want 1,0", recs[0].Reward, recs[1].Reward)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil)
	if s.TurnCount != 0 || s.AvgReward != nil || s.PropensityMean != nil {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestRecordsFromLog(t *testing.T) {
	decisions := []domain.DecisionRecord{
		decision("t1", "warm", 0.8, false),
		decision("t2", "terse", 0.2, true),
	}
	recs := RecordsFromLog(decisions, []domain.FeedbackRecord{{TurnID: "t2", Reward: 1}})
	if len(recs) != 1 {
		t.Fatalf("len=%d, want 1", len(recs))
	}
	if recs[0].Propensity != 0.2 || recs[0].Arm != "terse" || len(recs[0].Features) != 2 {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}
