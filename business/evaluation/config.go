package evaluation

import (
	"fmt"

	"replyBandit/domain"
)

// Config holds the thresholds behind the clipping recommendation and the
// shift signals.
type Config struct {
	ClipPercentile float64

	MinESSRatio       float64
	MinSupportRatio   float64
	ExtremePropensity float64
	MaxExtremeMass    float64

	MaxWeightRatio float64

	DriftThreshold float64

	MinBaselineCoverage float64

	// Reference is the training-period feature profile drift is measured
	// against. Nil disables feature drift detection.
	Reference *domain.FeatureProfile
}

func DefaultConfig() Config {
	return Config{
		ClipPercentile:      0.95,
		MinESSRatio:         0.1,
		MinSupportRatio:     0.1,
		ExtremePropensity:   0.05,
		MaxExtremeMass:      0.5,
		MaxWeightRatio:      20,
		DriftThreshold:      0.25,
		MinBaselineCoverage: 0.5,
	}
}

func (c Config) Validate() error {
	if !(c.ClipPercentile > 0 && c.ClipPercentile <= 1) {
		return fmt.Errorf("%w: clip percentile must be in (0, 1]", domain.ErrInvalidInput)
	}
	if c.MinESSRatio < 0 || c.MinSupportRatio < 0 || c.MaxExtremeMass < 0 || c.MinBaselineCoverage < 0 {
		return fmt.Errorf("%w: thresholds must be >= 0", domain.ErrInvalidInput)
	}
	if c.ExtremePropensity < 0 || c.ExtremePropensity > 1 {
		return fmt.Errorf("%w: extreme propensity must be in [0, 1]", domain.ErrInvalidInput)
	}
	if !(c.MaxWeightRatio > 0) || !(c.DriftThreshold > 0) {
		return fmt.Errorf("%w: weight ratio and drift thresholds must be > 0", domain.ErrInvalidInput)
	}
	return nil
}
