// Package model defines the core domain types for site density analysis.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Tier is an ordinal density classification.
type Tier string

// Density tiers, ordered from least to most dense.
const (
	TierRural    Tier = "Rural"
	TierSuburban Tier = "Suburban"
	TierUrban    Tier = "Urban"
	TierDense    Tier = "Dense"
)

// Classification modes.
const (
	ModeQuantile  = "quantile"
	ModeThreshold = "threshold"
)

// Site is one validated input record. Coordinates are signed degrees,
// already range-checked by the ingest layer.
type Site struct {
	SiteID    string  `json:"site_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	ClusterID string  `json:"cluster_id"`
}

// DensityResult holds the per-site neighbor count and areal density.
type DensityResult struct {
	NeighborCount int     `json:"neighbor_count"`
	Density       float64 `json:"density"`
}

// CoLocationGroup is a maximal set of sites connected by pairwise
// proximity below the co-location threshold.
type CoLocationGroup struct {
	GroupID   string   `json:"group_id"`
	Members   []string `json:"members"`
	GroupSize int      `json:"group_size"`
}

// ClassifiedSite is the final enriched output row for one site.
type ClassifiedSite struct {
	SiteID        string  `json:"site_id"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	ClusterID     string  `json:"cluster_id"`
	NeighborCount int     `json:"neighbor_count"`
	Density       float64 `json:"density"`
	GroupID       string  `json:"group_id"`
	GroupSize     int     `json:"group_size"`
	AreaClass     Tier    `json:"area_class"`
}

// AnalysisSummary counts classified sites per tier.
type AnalysisSummary struct {
	Rural    int `json:"Rural"`
	Suburban int `json:"Suburban"`
	Urban    int `json:"Urban"`
	Dense    int `json:"Dense"`
}

// Add increments the counter for the given tier.
func (s *AnalysisSummary) Add(t Tier) {
	switch t {
	case TierRural:
		s.Rural++
	case TierSuburban:
		s.Suburban++
	case TierUrban:
		s.Urban++
	case TierDense:
		s.Dense++
	}
}

// Total returns the sum of all tier counts.
func (s AnalysisSummary) Total() int {
	return s.Rural + s.Suburban + s.Urban + s.Dense
}

// AnalysisParams holds the configuration for one analysis request.
type AnalysisParams struct {
	RadiusKM             float64 `json:"radius_km"`
	CoLocationThresholdM float64 `json:"co_location_threshold_m"`
	Mode                 string  `json:"classification_mode"`

	// Threshold-mode cutoffs in sites/km², strictly increasing.
	RuralThreshold    float64 `json:"rural_threshold"`
	SuburbanThreshold float64 `json:"suburban_threshold"`
	UrbanThreshold    float64 `json:"urban_threshold"`
}

// DefaultParams returns the default analysis parameters.
func DefaultParams() AnalysisParams {
	return AnalysisParams{
		RadiusKM:             2.0,
		CoLocationThresholdM: 100.0,
		Mode:                 ModeQuantile,
		RuralThreshold:       10.0,
		SuburbanThreshold:    50.0,
		UrbanThreshold:       200.0,
	}
}

// Validate checks the parameters and returns a configuration error on the
// first violation. Called before any computation starts.
func (p AnalysisParams) Validate() error {
	if p.RadiusKM <= 0 {
		return eris.Errorf("params: radius_km must be > 0, got %g", p.RadiusKM)
	}
	if p.CoLocationThresholdM <= 0 {
		return eris.Errorf("params: co_location_threshold_m must be > 0, got %g", p.CoLocationThresholdM)
	}
	switch p.Mode {
	case ModeQuantile:
	case ModeThreshold:
		if !(p.RuralThreshold < p.SuburbanThreshold && p.SuburbanThreshold < p.UrbanThreshold) {
			return eris.Errorf("params: thresholds must be strictly increasing, got %g/%g/%g",
				p.RuralThreshold, p.SuburbanThreshold, p.UrbanThreshold)
		}
	default:
		return eris.Errorf("params: unknown classification_mode %q", p.Mode)
	}
	return nil
}

// AnalysisResult is the full output of one pipeline run.
type AnalysisResult struct {
	Sites    []ClassifiedSite `json:"sites"`
	Summary  AnalysisSummary  `json:"summary"`
	Messages []string         `json:"messages"`
}

// RunStatus tracks the lifecycle of a stored analysis run.
type RunStatus string

// Run statuses.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusAnalyzing RunStatus = "analyzing"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a persisted analysis request.
type Run struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Params    AnalysisParams  `json:"params"`
	Status    RunStatus       `json:"status"`
	Result    *AnalysisResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
