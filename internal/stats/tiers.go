package stats

import (
	"fmt"
)

const (
	TierExcellent = "excellent"
	TierGood      = "good"
	TierFair      = "fair"
	TierLow       = "low"
	TierPoor      = "poor"
)

var tierLabels = []string{TierExcellent, TierGood, TierFair, TierLow}

// DefaultThresholds are the lower bounds of the excellent, good, fair and low bands.
var DefaultThresholds = []float64{90, 70, 50, 30}

type Tier struct {
	Min   float64
	Label string
}

// Tiers is ordered from the highest band down. Rates under every band are TierPoor.
type Tiers []Tier

func DefaultTiers() Tiers {
	t, _ := NewTiers(DefaultThresholds)
	return t
}

// NewTiers builds bands from strictly descending thresholds within (0, 100].
func NewTiers(thresholds []float64) (Tiers, error) {
	if len(thresholds) != len(tierLabels) {
		return nil, fmt.Errorf("expected %d tier thresholds, got %d", len(tierLabels), len(thresholds))
	}

	tiers := make(Tiers, 0, len(thresholds))
	for i, threshold := range thresholds {
		if threshold <= 0 || threshold > 100 {
			return nil, fmt.Errorf("tier threshold %v out of range (0, 100]", threshold)
		}
		if i > 0 && threshold >= thresholds[i-1] {
			return nil, fmt.Errorf("tier thresholds must be strictly descending: %v", thresholds)
		}
		tiers = append(tiers, Tier{Min: threshold, Label: tierLabels[i]})
	}
	return tiers, nil
}

// Classify returns the label of the first band whose lower bound rate reaches.
func (t Tiers) Classify(rate float64) string {
	for _, tier := range t {
		if rate >= tier.Min {
			return tier.Label
		}
	}
	return TierPoor
}
