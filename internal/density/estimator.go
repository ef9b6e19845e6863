// Package density converts spatial neighbor counts into areal densities.
package density

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/spatial"
)

// Estimate computes the density result for site i: the count of other sites
// within radiusKM (inclusive), divided by the circular search area.
// A non-positive radius is a configuration error, never silently clamped.
func Estimate(ix *spatial.Index, i int, radiusKM float64) (model.DensityResult, error) {
	if radiusKM <= 0 {
		return model.DensityResult{}, eris.Errorf("density: radius_km must be > 0, got %g", radiusKM)
	}

	count := len(ix.Within(i, radiusKM))
	area := math.Pi * radiusKM * radiusKM

	return model.DensityResult{
		NeighborCount: count,
		Density:       float64(count) / area,
	}, nil
}
