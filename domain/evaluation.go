package domain

// EvaluationRecord is one logged (propensity, reward) pair. TargetPropensity
// is the probability the evaluated policy gives the logged action; nil means
// the policy that produced the log is being evaluated (weight 1/propensity).
type EvaluationRecord struct {
	Propensity       float64   `json:"propensity"`
	Reward           float64   `json:"reward"`
	Baseline         *float64  `json:"baseline,omitempty"`
	TargetPropensity *float64  `json:"target_propensity,omitempty"`
	Features         []float64 `json:"features,omitempty"`
	Arm              string    `json:"arm,omitempty"`
}

type ShiftKind string

const (
	ShiftPropensityPeaky     ShiftKind = "propensity_peaky"
	ShiftWeightHeavyTail     ShiftKind = "weight_heavy_tail"
	ShiftFeatureDrift        ShiftKind = "feature_drift"
	ShiftLowBaselineCoverage ShiftKind = "low_baseline_coverage"
)

type ShiftSignal struct {
	Kind      ShiftKind `json:"kind"`
	Dimension int       `json:"dimension"` // -1 when not per-dimension
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Detail    string    `json:"detail"`
}

// FeatureProfile holds per-dimension descriptive statistics of a batch.
type FeatureProfile struct {
	Count    int       `json:"count"`
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
}

type EvaluationReport struct {
	SampleCount       int     `json:"sample_count"`
	ESS               float64 `json:"ess"`
	ESSRatio          float64 `json:"ess_ratio"`
	EffectiveSupport  float64 `json:"effective_support"`
	IPSMean           float64 `json:"ips_mean"`
	IPSVariance       float64 `json:"ips_variance"`
	IPSStdErr         float64 `json:"ips_std_err"`
	SNIPSMean         float64 `json:"snips_mean"`
	DRMean            float64 `json:"dr_mean"`
	DRVariance        float64 `json:"dr_variance"`
	BaselineCoverage  float64 `json:"baseline_coverage"`
	ClipThreshold     float64 `json:"clip_threshold"`
	ClippedIPSMean    float64 `json:"clipped_ips_mean"`
	ClippedFraction   float64 `json:"clipped_fraction"`
	WeightMean        float64 `json:"weight_mean"`
	WeightMax         float64 `json:"weight_max"`
	PropensityMean    float64 `json:"propensity_mean"`
	PropensityStd     float64 `json:"propensity_std"`
	ExtremeMass       float64 `json:"extreme_mass"`
	ShiftSignals      []ShiftSignal   `json:"shift_signals"`
	BatchFeatures     *FeatureProfile `json:"batch_features,omitempty"`
}

// HasSignal reports whether a shift signal of the given kind was raised.
func (r EvaluationReport) HasSignal(kind ShiftKind) bool {
	for _, s := range r.ShiftSignals {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// LogSummary mirrors the quick report over a decision log: reward and
// propensity statistics plus how often each style won.
type LogSummary struct {
	TurnCount      int                `json:"turn_count"`
	RewardedCount  int                `json:"rewarded_count"`
	AvgReward      *float64           `json:"avg_reward"`
	StyleWinRates  map[string]float64 `json:"style_win_rates"`
	ExploreRate    float64            `json:"explore_rate"`
	PropensityMean *float64           `json:"propensity_mean"`
	PropensityStd  *float64           `json:"propensity_std"`
}
