package bandit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BanditDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_decisions_total",
			Help: "Count of decisions by chosen arm, policy variant and whether the choice was exploratory.",
		},
		[]string{"arm", "variant", "explored"},
	)

	BanditFeedbackEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_feedback_events_total",
			Help: "Count of feedback events by arm and outcome (applied, duplicate, clipped, dropped).",
		},
		[]string{"arm", "outcome"},
	)

	BanditDecisionPropensity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bandit_decision_propensity",
			Help:    "Propensity recorded for served decisions.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		},
	)

	BanditSingularResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_singular_resets_total",
			Help: "Arms reset to cold start after a corrupted state was detected.",
		},
		[]string{"arm"},
	)

	BanditArmUpdates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bandit_arm_updates",
			Help: "Number of rank-one updates held by each arm.",
		},
		[]string{"arm"},
	)
)

func init() {
	prometheus.MustRegister(
		BanditDecisionsTotal,
		BanditFeedbackEventsTotal,
		BanditDecisionPropensity,
		BanditSingularResetsTotal,
		BanditArmUpdates,
	)
}
