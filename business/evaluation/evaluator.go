package evaluation

import (
	"fmt"
	"math"
	"sort"

	"replyBandit/domain"
)

const (
	// sdFloor keeps the standardized mean difference finite on constant features.
	sdFloor = 1e-6

	// MinPropensity is the smallest logging propensity accepted. Below it a
	// squared importance weight overflows float64.
	MinPropensity = 1e-150
)

// Evaluate computes off-policy diagnostics for a batch of logged records.
// It is a pure function of its inputs.
func Evaluate(records []domain.EvaluationRecord, cfg Config) (domain.EvaluationReport, error) {
	if len(records) == 0 {
		return domain.EvaluationReport{}, fmt.Errorf("%w: no records to evaluate", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return domain.EvaluationReport{}, err
	}
	if err := validateRecords(records); err != nil {
		return domain.EvaluationReport{}, err
	}

	n := float64(len(records))
	weights := make([]float64, len(records))
	props := make([]float64, len(records))

	var sumW, sumWR float64
	ips := make([]float64, len(records))
	dr := make([]float64, len(records))
	covered, extreme := 0, 0
	maxW, minP := 0.0, 1.0

	for i, r := range records {
		target := 1.0
		if r.TargetPropensity != nil {
			target = *r.TargetPropensity
		}
		w := target / r.Propensity
		weights[i] = w
		props[i] = r.Propensity

		sumW += w
		sumWR += w * r.Reward
		maxW = math.Max(maxW, w)
		minP = math.Min(minP, r.Propensity)
		if r.Propensity < cfg.ExtremePropensity {
			extreme++
		}

		ips[i] = w * r.Reward

		q := 0.0
		if r.Baseline != nil {
			q = *r.Baseline
			covered++
		}
		dr[i] = q + w*(r.Reward-q)
	}

	// Second moments are taken on weights scaled by their maximum so the
	// squares stay in range however small the propensities get.
	var sumScaled, sumScaled2, sumInvScaled float64
	for i, w := range weights {
		if maxW > 0 {
			sumScaled += w / maxW
			sumScaled2 += (w / maxW) * (w / maxW)
		}
		sumInvScaled += minP / props[i]
	}

	rep := domain.EvaluationReport{
		SampleCount:      len(records),
		EffectiveSupport: n * n * minP / sumInvScaled,
		BaselineCoverage: float64(covered) / n,
		WeightMean:       sumW / n,
		WeightMax:        maxW,
		ExtremeMass:      float64(extreme) / n,
		ShiftSignals:     []domain.ShiftSignal{},
	}
	if sumScaled2 > 0 {
		rep.ESS = sumScaled * sumScaled / sumScaled2
	}
	rep.ESSRatio = rep.ESS / n
	if sumW > 0 {
		rep.SNIPSMean = sumWR / sumW
	}

	rep.IPSMean, rep.IPSVariance = meanVar(ips)
	rep.IPSStdErr = math.Sqrt(rep.IPSVariance / n)
	rep.DRMean, rep.DRVariance = meanVar(dr)
	rep.PropensityMean, rep.PropensityStd = meanStd(props)

	rep.ClipThreshold = percentile(weights, cfg.ClipPercentile)
	clipped := 0
	var clippedSum float64
	for i, r := range records {
		w := weights[i]
		if w > rep.ClipThreshold {
			w = rep.ClipThreshold
			clipped++
		}
		clippedSum += w * r.Reward
	}
	rep.ClippedIPSMean = clippedSum / n
	rep.ClippedFraction = float64(clipped) / n

	profile, err := profileOf(records)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	rep.BatchFeatures = profile

	rep.ShiftSignals = append(rep.ShiftSignals, peakySignals(rep, cfg)...)
	if rep.WeightMean > 0 && rep.WeightMax/rep.WeightMean > cfg.MaxWeightRatio {
		rep.ShiftSignals = append(rep.ShiftSignals, domain.ShiftSignal{
			Kind:      domain.ShiftWeightHeavyTail,
			Dimension: -1,
			Value:     rep.WeightMax / rep.WeightMean,
			Threshold: cfg.MaxWeightRatio,
			Detail:    "largest importance weight dominates the mean",
		})
	}
	drift, err := driftSignals(profile, cfg)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	rep.ShiftSignals = append(rep.ShiftSignals, drift...)
	if rep.BaselineCoverage < cfg.MinBaselineCoverage {
		rep.ShiftSignals = append(rep.ShiftSignals, domain.ShiftSignal{
			Kind:      domain.ShiftLowBaselineCoverage,
			Dimension: -1,
			Value:     rep.BaselineCoverage,
			Threshold: cfg.MinBaselineCoverage,
			Detail:    "doubly-robust estimate falls back to IPS for records without a baseline",
		})
	}

	if err := checkFinite(rep); err != nil {
		return domain.EvaluationReport{}, err
	}
	return rep, nil
}

// checkFinite rejects a report that JSON cannot encode, which happens when
// large rewards meet large weights.
func checkFinite(rep domain.EvaluationReport) error {
	stats := map[string]float64{
		"ess":               rep.ESS,
		"effective_support": rep.EffectiveSupport,
		"ips_mean":          rep.IPSMean,
		"ips_variance":      rep.IPSVariance,
		"snips_mean":        rep.SNIPSMean,
		"dr_mean":           rep.DRMean,
		"dr_variance":       rep.DRVariance,
		"clipped_ips_mean":  rep.ClippedIPSMean,
		"weight_mean":       rep.WeightMean,
		"weight_max":        rep.WeightMax,
	}
	for name, v := range stats {
		if !finite(v) {
			return fmt.Errorf("%w: %s overflows float64", domain.ErrInvalidInput, name)
		}
	}
	for _, sig := range rep.ShiftSignals {
		if !finite(sig.Value) {
			return fmt.Errorf("%w: %s signal value overflows float64", domain.ErrInvalidInput, sig.Kind)
		}
	}
	return nil
}

func peakySignals(rep domain.EvaluationReport, cfg Config) []domain.ShiftSignal {
	n := float64(rep.SampleCount)
	switch {
	case rep.EffectiveSupport/n < cfg.MinSupportRatio:
		return []domain.ShiftSignal{{
			Kind:      domain.ShiftPropensityPeaky,
			Dimension: -1,
			Value:     rep.EffectiveSupport / n,
			Threshold: cfg.MinSupportRatio,
			Detail:    fmt.Sprintf("logging propensities back about %.2f effective samples", rep.EffectiveSupport),
		}}
	case rep.ESSRatio < cfg.MinESSRatio:
		return []domain.ShiftSignal{{
			Kind:      domain.ShiftPropensityPeaky,
			Dimension: -1,
			Value:     rep.ESSRatio,
			Threshold: cfg.MinESSRatio,
			Detail:    fmt.Sprintf("importance weights concentrate on about %.2f samples", rep.ESS),
		}}
	case rep.ExtremeMass > cfg.MaxExtremeMass:
		return []domain.ShiftSignal{{
			Kind:      domain.ShiftPropensityPeaky,
			Dimension: -1,
			Value:     rep.ExtremeMass,
			Threshold: cfg.MaxExtremeMass,
			Detail:    fmt.Sprintf("share of records logged with propensity below %v", cfg.ExtremePropensity),
		}}
	}
	return nil
}

func driftSignals(batch *domain.FeatureProfile, cfg Config) ([]domain.ShiftSignal, error) {
	ref := cfg.Reference
	if ref == nil || batch == nil {
		return nil, nil
	}
	if len(ref.Mean) != len(batch.Mean) || len(ref.Variance) != len(ref.Mean) {
		return nil, fmt.Errorf("%w: reference profile has dimension %d, batch has %d",
			domain.ErrInvalidInput, len(ref.Mean), len(batch.Mean))
	}
	var out []domain.ShiftSignal
	for j := range batch.Mean {
		sd := math.Sqrt((ref.Variance[j] + batch.Variance[j]) / 2)
		smd := math.Abs(batch.Mean[j]-ref.Mean[j]) / math.Max(sd, sdFloor)
		if smd > cfg.DriftThreshold {
			out = append(out, domain.ShiftSignal{
				Kind:      domain.ShiftFeatureDrift,
				Dimension: j,
				Value:     smd,
				Threshold: cfg.DriftThreshold,
				Detail:    fmt.Sprintf("mean moved from %.4f to %.4f", ref.Mean[j], batch.Mean[j]),
			})
		}
	}
	return out, nil
}

func validateRecords(records []domain.EvaluationRecord) error {
	dim := -1
	for i, r := range records {
		if !finite(r.Propensity) || r.Propensity <= 0 || r.Propensity > 1 {
			return fmt.Errorf("%w: record %d propensity %v not in (0, 1]", domain.ErrInvalidInput, i, r.Propensity)
		}
		if r.Propensity < MinPropensity {
			return fmt.Errorf("%w: record %d propensity %v below %v", domain.ErrInvalidInput, i, r.Propensity, MinPropensity)
		}
		if !finite(r.Reward) {
			return fmt.Errorf("%w: record %d reward is not finite", domain.ErrInvalidInput, i)
		}
		if r.Baseline != nil && !finite(*r.Baseline) {
			return fmt.Errorf("%w: record %d baseline is not finite", domain.ErrInvalidInput, i)
		}
		if t := r.TargetPropensity; t != nil && (!finite(*t) || *t < 0 || *t > 1) {
			return fmt.Errorf("%w: record %d target propensity not in [0, 1]", domain.ErrInvalidInput, i)
		}
		if len(r.Features) == 0 {
			continue
		}
		if dim == -1 {
			dim = len(r.Features)
		} else if len(r.Features) != dim {
			return fmt.Errorf("%w: record %d has %d features, expected %d", domain.ErrInvalidInput, i, len(r.Features), dim)
		}
		for _, f := range r.Features {
			if !finite(f) {
				return fmt.Errorf("%w: record %d has a non-finite feature", domain.ErrInvalidInput, i)
			}
		}
	}
	return nil
}

// DescribeFeatures builds a feature profile from a batch, typically the
// training period, to use as Config.Reference.
func DescribeFeatures(records []domain.EvaluationRecord) (*domain.FeatureProfile, error) {
	if err := validateRecords(records); err != nil {
		return nil, err
	}
	p, err := profileOf(records)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no records carry features", domain.ErrInvalidInput)
	}
	return p, nil
}

// profileOf assumes records were validated.
func profileOf(records []domain.EvaluationRecord) (*domain.FeatureProfile, error) {
	var rows [][]float64
	for _, r := range records {
		if len(r.Features) > 0 {
			rows = append(rows, r.Features)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	d := len(rows[0])
	p := &domain.FeatureProfile{
		Count:    len(rows),
		Mean:     make([]float64, d),
		Variance: make([]float64, d),
	}
	col := make([]float64, len(rows))
	for j := range d {
		for i, row := range rows {
			col[i] = row[j]
		}
		m, sd := meanStd(col)
		p.Mean[j] = m
		p.Variance[j] = sd * sd
	}
	return p, nil
}

// meanVar returns the mean and unbiased sample variance.
func meanVar(v []float64) (float64, float64) {
	n := float64(len(v))
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	m := sum / n
	if len(v) < 2 {
		return m, 0
	}
	ss := 0.0
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return m, ss / (n - 1)
}

// meanStd returns the mean and population standard deviation.
func meanStd(v []float64) (float64, float64) {
	n := float64(len(v))
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	m := sum / n
	ss := 0.0
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return m, math.Sqrt(ss / n)
}

// percentile uses linear interpolation between closest ranks.
func percentile(v []float64, q float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo] + frac*(s[hi]-s[lo])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
