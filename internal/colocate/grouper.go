// Package colocate groups physically co-located sites into connected
// components with a deterministic, membership-derived group identity.
package colocate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/spatial"
)

// edgeChunk is the number of sites each edge-discovery task handles.
const edgeChunk = 1024

// epsKM absorbs floating-point noise at the strict threshold boundary.
const epsKM = 1e-9

// Group partitions sites into co-location groups. An edge exists between two
// sites when their haversine distance is strictly below thresholdM meters;
// groups are the connected components of that graph. Every site lands in
// exactly one group; sites with no edges form singleton groups.
//
// Returns the groups ordered by their smallest input index, plus a
// per-site assignment of group index. Edge discovery runs in parallel over
// the immutable index; component extraction is a serial union-find pass.
func Group(ctx context.Context, ix *spatial.Index, sites []model.Site, thresholdM float64, workers int) ([]model.CoLocationGroup, []int, error) {
	if thresholdM <= 0 {
		return nil, nil, eris.Errorf("colocate: threshold_m must be > 0, got %g", thresholdM)
	}
	n := len(sites)
	if n == 0 {
		return nil, nil, nil
	}
	if workers < 1 {
		workers = 1
	}
	thresholdKM := thresholdM / 1000.0

	// Parallel edge discovery: each task writes only its own slots.
	adj := make([][]int32, n)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += edgeChunk {
		hi := min(lo+edgeChunk, n)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				for _, nb := range ix.Within(i, thresholdKM) {
					// Strict comparison: ties at exactly the threshold are
					// NOT co-located, unlike the inclusive density radius.
					if nb.DistanceKM < thresholdKM-epsKM {
						adj[i] = append(adj[i], int32(nb.Index))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "colocate: edge discovery")
	}

	// Union-find over the discovered edges.
	parent := make([]int32, n)
	size := make([]int32, n)
	for i := range parent {
		parent[i] = int32(i)
		size[i] = 1
	}
	var find func(x int32) int32
	find = func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]] // path halving
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if size[ra] < size[rb] {
			ra, rb = rb, ra
		}
		parent[rb] = ra
		size[ra] += size[rb]
	}
	for i, neighbors := range adj {
		for _, j := range neighbors {
			union(int32(i), j)
		}
	}

	// Extract components in order of smallest member index.
	groupOf := make(map[int32]int, n)
	var groups []model.CoLocationGroup
	assignment := make([]int, n)
	for i := range n {
		root := find(int32(i))
		gi, ok := groupOf[root]
		if !ok {
			gi = len(groups)
			groupOf[root] = gi
			groups = append(groups, model.CoLocationGroup{})
		}
		groups[gi].Members = append(groups[gi].Members, sites[i].SiteID)
		assignment[i] = gi
	}
	for gi := range groups {
		sort.Strings(groups[gi].Members)
		groups[gi].GroupID = GroupID(groups[gi].Members)
		groups[gi].GroupSize = len(groups[gi].Members)
	}

	return groups, assignment, nil
}

// GroupID derives a stable identifier from group membership alone. Members
// are canonicalized by lexicographic sort and joined with a fixed delimiter
// before hashing, so identical membership always yields the same id
// regardless of discovery order, input row order, or process restarts.
func GroupID(members []string) string {
	sorted := members
	if !sort.StringsAreSorted(sorted) {
		sorted = append([]string(nil), members...)
		sort.Strings(sorted)
	}
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x1f")))
	return hex.EncodeToString(sum[:8])
}
