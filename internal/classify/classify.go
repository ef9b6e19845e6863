// Package classify maps site densities to ordinal area tiers under either a
// per-cluster quantile policy or a fixed global threshold policy.
package classify

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-density/internal/model"
)

// Classifier assigns one tier per site. densities and clusterIDs are
// parallel slices indexed by site.
type Classifier interface {
	Classify(densities []float64, clusterIDs []string) []model.Tier
}

// New resolves the configured mode into a concrete classifier, validating
// mode-specific parameters before any site is processed.
func New(p model.AnalysisParams) (Classifier, error) {
	switch p.Mode {
	case model.ModeQuantile:
		return Quantile{}, nil
	case model.ModeThreshold:
		t := Threshold{
			Rural:    p.RuralThreshold,
			Suburban: p.SuburbanThreshold,
			Urban:    p.UrbanThreshold,
		}
		if !(t.Rural < t.Suburban && t.Suburban < t.Urban) {
			return nil, eris.Errorf("classify: thresholds must be strictly increasing, got %g/%g/%g",
				t.Rural, t.Suburban, t.Urban)
		}
		return t, nil
	default:
		return nil, eris.Errorf("classify: unknown mode %q", p.Mode)
	}
}

// Quantile classifies each site against the 25th/50th/75th density
// percentiles of its own cluster. Clusters with few sites still compute
// quantiles; repeated boundary values may leave some tiers empty.
type Quantile struct{}

// Classify implements Classifier.
func (Quantile) Classify(densities []float64, clusterIDs []string) []model.Tier {
	byCluster := make(map[string][]int)
	for i, c := range clusterIDs {
		byCluster[c] = append(byCluster[c], i)
	}

	tiers := make([]model.Tier, len(densities))
	for _, indices := range byCluster {
		values := make([]float64, len(indices))
		for k, i := range indices {
			values[k] = densities[i]
		}
		sort.Float64s(values)

		q25 := percentile(values, 0.25)
		q50 := percentile(values, 0.50)
		q75 := percentile(values, 0.75)

		for _, i := range indices {
			tiers[i] = tierFor(densities[i], q25, q50, q75)
		}
	}
	return tiers
}

// Threshold classifies every site against fixed global density cutoffs.
type Threshold struct {
	Rural, Suburban, Urban float64
}

// Classify implements Classifier.
func (t Threshold) Classify(densities []float64, _ []string) []model.Tier {
	tiers := make([]model.Tier, len(densities))
	for i, d := range densities {
		tiers[i] = tierFor(d, t.Rural, t.Suburban, t.Urban)
	}
	return tiers
}

// tierFor applies the shared boundary convention: lower tiers are closed on
// the upper bound, the top tier is open-ended.
func tierFor(d, b1, b2, b3 float64) model.Tier {
	switch {
	case d <= b1:
		return model.TierRural
	case d <= b2:
		return model.TierSuburban
	case d <= b3:
		return model.TierUrban
	default:
		return model.TierDense
	}
}

// percentile returns the q-th percentile of sorted values using linear
// interpolation between order statistics.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
