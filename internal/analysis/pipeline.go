// Package analysis orchestrates the site density pipeline: spatial index
// construction, density estimation, co-location grouping, and tier
// classification over a validated site table.
package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/site-density/internal/classify"
	"github.com/sells-group/site-density/internal/colocate"
	"github.com/sells-group/site-density/internal/density"
	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/spatial"
)

// densityChunk is the number of sites each density task handles.
const densityChunk = 1024

// Pipeline runs analysis requests. A single Pipeline is safe for concurrent
// Run calls; each run owns its index and derived structures exclusively.
type Pipeline struct {
	workers int
}

// New creates a Pipeline. workers bounds the parallelism of the read-only
// index passes; values < 1 default to GOMAXPROCS.
func New(workers int) *Pipeline {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{workers: workers}
}

// Run executes one analysis over the validated sites. Configuration errors
// are returned before any computation starts; degenerate inputs are reported
// as messages and never block processing. Cancelling ctx abandons the run
// with no partial result.
func (p *Pipeline) Run(ctx context.Context, sites []model.Site, params model.AnalysisParams) (*model.AnalysisResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	classifier, err := classify.New(params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := zap.L().With(zap.Int("sites", len(sites)))
	log.Info("analysis: starting run",
		zap.Float64("radius_km", params.RadiusKM),
		zap.Float64("co_location_threshold_m", params.CoLocationThresholdM),
		zap.String("mode", params.Mode),
	)

	result := &model.AnalysisResult{}
	result.Messages = degenerateMessages(sites, params)

	if len(sites) == 0 {
		log.Warn("analysis: no sites to process")
		return result, nil
	}

	ix := spatial.NewIndex(sites)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "analysis: cancelled")
	}

	// Density pass: embarrassingly parallel reads of the immutable index.
	densities := make([]model.DensityResult, len(sites))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for lo := 0; lo < len(sites); lo += densityChunk {
		hi := min(lo+densityChunk, len(sites))
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				d, estErr := density.Estimate(ix, i, params.RadiusKM)
				if estErr != nil {
					return estErr
				}
				densities[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analysis: density pass")
	}

	// Co-location pass: independent of density, different radius and
	// boundary semantics, joined with it only by site identity.
	groups, assignment, err := colocate.Group(ctx, ix, sites, params.CoLocationThresholdM, p.workers)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "analysis: cancelled")
	}

	values := make([]float64, len(sites))
	clusterIDs := make([]string, len(sites))
	for i := range sites {
		values[i] = densities[i].Density
		clusterIDs[i] = sites[i].ClusterID
	}
	tiers := classifier.Classify(values, clusterIDs)

	result.Sites = make([]model.ClassifiedSite, len(sites))
	for i, s := range sites {
		grp := groups[assignment[i]]
		result.Sites[i] = model.ClassifiedSite{
			SiteID:        s.SiteID,
			Lat:           s.Lat,
			Lon:           s.Lon,
			ClusterID:     s.ClusterID,
			NeighborCount: densities[i].NeighborCount,
			Density:       densities[i].Density,
			GroupID:       grp.GroupID,
			GroupSize:     grp.GroupSize,
			AreaClass:     tiers[i],
		}
		result.Summary.Add(tiers[i])
	}

	result.Messages = append(result.Messages,
		fmt.Sprintf("Processed %d sites successfully", len(sites)))

	log.Info("analysis: run complete",
		zap.Int("groups", len(groups)),
		zap.Int("rural", result.Summary.Rural),
		zap.Int("suburban", result.Summary.Suburban),
		zap.Int("urban", result.Summary.Urban),
		zap.Int("dense", result.Summary.Dense),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// degenerateMessages reports non-fatal observations about the input: too few
// sites, coordinate collisions, and clusters too small for distinct quantile
// boundaries.
func degenerateMessages(sites []model.Site, params model.AnalysisParams) []string {
	var msgs []string

	switch len(sites) {
	case 0:
		return append(msgs, "No sites to analyze")
	case 1:
		msgs = append(msgs, "Only one site provided; density is 0 and it forms its own group")
	}

	coordCount := make(map[[2]float64]int, len(sites))
	for _, s := range sites {
		coordCount[[2]float64{s.Lat, s.Lon}]++
	}
	shared := 0
	for _, c := range coordCount {
		if c > 1 {
			shared += c
		}
	}
	if shared > 0 {
		msgs = append(msgs, fmt.Sprintf("%d sites share identical coordinates", shared))
	}

	if params.Mode == model.ModeQuantile {
		clusterSize := make(map[string]int)
		for _, s := range sites {
			clusterSize[s.ClusterID]++
		}
		var small []string
		for c, n := range clusterSize {
			if n < 4 {
				small = append(small, c)
			}
		}
		sort.Strings(small)
		for _, c := range small {
			msgs = append(msgs, fmt.Sprintf("cluster %s has fewer than 4 sites; quantile boundaries may coincide", c))
		}
	}

	return msgs
}
