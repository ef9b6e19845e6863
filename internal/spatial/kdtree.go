// Package spatial provides a KD-tree index over site coordinates supporting
// haversine radius queries without pairwise comparison.
package spatial

import (
	"math"

	"github.com/sells-group/site-density/internal/geo"
	"github.com/sells-group/site-density/internal/model"
)

// leafSize is the bucket size below which subranges are scanned linearly.
const leafSize = 16

// epsKM absorbs floating-point noise at the query boundary (~1 micron).
const epsKM = 1e-9

// Neighbor is one radius-query hit.
type Neighbor struct {
	Index      int
	DistanceKM float64
}

// Index is an immutable KD-tree over the unit-sphere embedding of the input
// coordinates. Latitude/longitude pairs are mapped to 3-D unit vectors so
// that Euclidean (chord) distance is monotone in great-circle distance,
// which makes tree pruning exact for the haversine metric. Safe for
// concurrent queries once built.
type Index struct {
	lat, lon   []float64
	px, py, pz []float64
	order      []int32
}

// NewIndex builds the index from an ordered sequence of sites.
// Zero or one site is valid and yields an index with no neighbors.
func NewIndex(sites []model.Site) *Index {
	n := len(sites)
	ix := &Index{
		lat:   make([]float64, n),
		lon:   make([]float64, n),
		px:    make([]float64, n),
		py:    make([]float64, n),
		pz:    make([]float64, n),
		order: make([]int32, n),
	}
	for i, s := range sites {
		ix.lat[i] = s.Lat
		ix.lon[i] = s.Lon
		latr := s.Lat * math.Pi / 180
		lonr := s.Lon * math.Pi / 180
		cosLat := math.Cos(latr)
		ix.px[i] = cosLat * math.Cos(lonr)
		ix.py[i] = cosLat * math.Sin(lonr)
		ix.pz[i] = math.Sin(latr)
		ix.order[i] = int32(i)
	}
	ix.build(0, n, 0)
	return ix
}

// Len returns the number of indexed sites.
func (ix *Index) Len() int { return len(ix.order) }

// coord returns the embedding coordinate of site i on the given axis.
func (ix *Index) coord(i int32, axis int) float64 {
	switch axis {
	case 0:
		return ix.px[i]
	case 1:
		return ix.py[i]
	default:
		return ix.pz[i]
	}
}

// build recursively median-splits order[lo:hi] on the cycling axis.
func (ix *Index) build(lo, hi, depth int) {
	if hi-lo <= leafSize {
		return
	}
	axis := depth % 3
	mid := (lo + hi) / 2
	ix.nthElement(lo, hi, mid, axis)
	ix.build(lo, mid, depth+1)
	ix.build(mid+1, hi, depth+1)
}

// nthElement partially sorts order[lo:hi] so that order[k] holds the element
// that would be at position k in full sorted order by the given axis.
func (ix *Index) nthElement(lo, hi, k, axis int) {
	for hi-lo > 1 {
		pivot := ix.coord(ix.order[(lo+hi)/2], axis)
		i, j := lo, hi-1
		for i <= j {
			for ix.coord(ix.order[i], axis) < pivot {
				i++
			}
			for ix.coord(ix.order[j], axis) > pivot {
				j--
			}
			if i <= j {
				ix.order[i], ix.order[j] = ix.order[j], ix.order[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j + 1
		case k >= i:
			lo = i
		default:
			return
		}
	}
}

// Within returns all sites other than i whose haversine distance from site i
// is at most radiusKM (inclusive boundary). Callers needing a strict
// comparison filter the returned distances themselves.
func (ix *Index) Within(i int, radiusKM float64) []Neighbor {
	if len(ix.order) < 2 || radiusKM <= 0 {
		return nil
	}

	// Chord-length bound on the unit sphere for the requested arc.
	arc := radiusKM / geo.EarthRadiusKM
	if arc > math.Pi {
		arc = math.Pi
	}
	chord := 2 * math.Sin(arc/2)
	bound := chord + epsKM/geo.EarthRadiusKM
	boundSq := bound * bound

	var out []Neighbor
	ix.search(int32(i), radiusKM, bound, boundSq, 0, len(ix.order), 0, &out)
	return out
}

func (ix *Index) search(self int32, radiusKM, bound, boundSq float64, lo, hi, depth int, out *[]Neighbor) {
	qx, qy, qz := ix.px[self], ix.py[self], ix.pz[self]

	if hi-lo <= leafSize {
		for _, j := range ix.order[lo:hi] {
			if j == self {
				continue
			}
			dx := ix.px[j] - qx
			dy := ix.py[j] - qy
			dz := ix.pz[j] - qz
			if dx*dx+dy*dy+dz*dz > boundSq {
				continue
			}
			d := geo.Distance(ix.lat[self], ix.lon[self], ix.lat[j], ix.lon[j])
			if d <= radiusKM+epsKM {
				*out = append(*out, Neighbor{Index: int(j), DistanceKM: d})
			}
		}
		return
	}

	axis := depth % 3
	mid := (lo + hi) / 2
	node := ix.order[mid]

	// The node itself is a candidate.
	if node != self {
		dx := ix.px[node] - qx
		dy := ix.py[node] - qy
		dz := ix.pz[node] - qz
		if dx*dx+dy*dy+dz*dz <= boundSq {
			d := geo.Distance(ix.lat[self], ix.lon[self], ix.lat[node], ix.lon[node])
			if d <= radiusKM+epsKM {
				*out = append(*out, Neighbor{Index: int(node), DistanceKM: d})
			}
		}
	}

	var q float64
	switch axis {
	case 0:
		q = qx
	case 1:
		q = qy
	default:
		q = qz
	}
	diff := q - ix.coord(node, axis)

	if diff <= bound {
		ix.search(self, radiusKM, bound, boundSq, lo, mid, depth+1, out)
	}
	if -diff <= bound {
		ix.search(self, radiusKM, bound, boundSq, mid+1, hi, depth+1, out)
	}
}
