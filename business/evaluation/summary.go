package evaluation

import (
	"replyBandit/domain"
)

// Summarize reports reward, propensity and per-style win statistics over a
// decision log. When a turn was logged more than once the last entry wins.
func Summarize(decisions []domain.DecisionRecord, feedback []domain.FeedbackRecord) domain.LogSummary {
	byTurn := make(map[string]domain.DecisionRecord, len(decisions))
	order := make([]string, 0, len(decisions))
	for _, d := range decisions {
		if _, seen := byTurn[d.TurnID]; !seen {
			order = append(order, d.TurnID)
		}
		byTurn[d.TurnID] = d
	}

	sum := domain.LogSummary{
		TurnCount:     len(order),
		StyleWinRates: map[string]float64{},
	}
	if len(order) == 0 {
		return sum
	}

	rewards := make(map[string]float64, len(feedback))
	seen := make(map[string]bool, len(feedback))
	for _, f := range feedback {
		if seen[f.TurnID] {
			continue
		}
		if _, ok := byTurn[f.TurnID]; !ok {
			continue
		}
		seen[f.TurnID] = true
		if r, ok := f.EffectiveReward(); ok {
			rewards[f.TurnID] = r
		}
	}

	total := float64(len(order))
	var rewardSum float64
	props := make([]float64, 0, len(order))
	explored := 0
	wins := map[string]int{}
	for _, id := range order {
		d := byTurn[id]
		if r, ok := rewards[id]; ok {
			rewardSum += r
			sum.RewardedCount++
		}
		props = append(props, d.Propensity)
		if d.Explored {
			explored++
		}
		if d.ChosenIndex >= 0 && d.ChosenIndex < len(d.Candidates) {
			wins[d.Candidates[d.ChosenIndex].Candidate.Style]++
		}
	}

	if sum.RewardedCount > 0 {
		avg := rewardSum / float64(sum.RewardedCount)
		sum.AvgReward = &avg
	}
	for style, c := range wins {
		sum.StyleWinRates[style] = float64(c) / total
	}
	sum.ExploreRate = float64(explored) / total
	m, sd := meanStd(props)
	sum.PropensityMean = &m
	sum.PropensityStd = &sd
	return sum
}

// RecordsFromLog joins decisions with their feedback into evaluation
// records. Turns without feedback, or whose reward was dropped, are skipped.
func RecordsFromLog(decisions []domain.DecisionRecord, feedback []domain.FeedbackRecord) []domain.EvaluationRecord {
	byTurn := make(map[string]domain.DecisionRecord, len(decisions))
	for _, d := range decisions {
		byTurn[d.TurnID] = d
	}
	seen := make(map[string]bool, len(feedback))
	out := make([]domain.EvaluationRecord, 0, len(feedback))
	for _, f := range feedback {
		d, ok := byTurn[f.TurnID]
		if !ok || seen[f.TurnID] || d.ChosenIndex < 0 || d.ChosenIndex >= len(d.Candidates) {
			continue
		}
		seen[f.TurnID] = true
		reward, ok := f.EffectiveReward()
		if !ok {
			continue
		}
		chosen := d.Chosen()
		out = append(out, domain.EvaluationRecord{
			Propensity: d.Propensity,
			Reward:     reward,
			Features:   chosen.Features,
			Arm:        chosen.Arm,
		})
	}
	return out
}
