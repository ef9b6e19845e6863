package colocate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-density/internal/geo"
	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/spatial"
)

func kmNorth(km float64) float64 {
	return km / geo.EarthRadiusKM * 180 / math.Pi
}

func group(t *testing.T, sites []model.Site, thresholdM float64) ([]model.CoLocationGroup, []int) {
	t.Helper()
	ix := spatial.NewIndex(sites)
	groups, assignment, err := Group(context.Background(), ix, sites, thresholdM, 4)
	require.NoError(t, err)
	return groups, assignment
}

func TestGroup_PairWithinThreshold(t *testing.T) {
	// Two sites 50 m apart merge under a 100 m threshold; the third stays a
	// singleton.
	sites := []model.Site{
		{SiteID: "a", Lat: 30, Lon: -90},
		{SiteID: "b", Lat: 30 + kmNorth(0.05), Lon: -90},
		{SiteID: "z", Lat: 31, Lon: -90},
	}
	groups, assignment := group(t, sites, 100)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "b"}, groups[0].Members)
	assert.Equal(t, 2, groups[0].GroupSize)
	assert.Equal(t, []string{"z"}, groups[1].Members)
	assert.Equal(t, []int{0, 0, 1}, assignment)
}

func TestGroup_ExactThresholdNotGrouped(t *testing.T) {
	// Exactly 100 m apart: the edge requires strictly less than the
	// threshold, so both sites remain singletons.
	sites := []model.Site{
		{SiteID: "a", Lat: 30, Lon: -90},
		{SiteID: "b", Lat: 30 + kmNorth(0.1), Lon: -90},
	}
	groups, _ := group(t, sites, 100)

	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.Equal(t, 1, g.GroupSize)
	}
}

func TestGroup_ChainTransitivity(t *testing.T) {
	// a-b and b-c are each 80 m apart but a-c is 160 m; connectivity is
	// transitive so all three share one group.
	sites := []model.Site{
		{SiteID: "a", Lat: 30, Lon: -90},
		{SiteID: "b", Lat: 30 + kmNorth(0.08), Lon: -90},
		{SiteID: "c", Lat: 30 + kmNorth(0.16), Lon: -90},
	}
	groups, assignment := group(t, sites, 100)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0].Members)
	assert.Equal(t, []int{0, 0, 0}, assignment)
}

func TestGroup_PartitionProperty(t *testing.T) {
	sites := []model.Site{
		{SiteID: "a", Lat: 30, Lon: -90},
		{SiteID: "b", Lat: 30 + kmNorth(0.05), Lon: -90},
		{SiteID: "c", Lat: 30.5, Lon: -90},
		{SiteID: "d", Lat: 31, Lon: -90},
		{SiteID: "e", Lat: 31 + kmNorth(0.02), Lon: -90},
	}
	groups, assignment := group(t, sites, 100)

	require.Len(t, assignment, len(sites))
	total := 0
	seen := make(map[string]bool)
	for _, g := range groups {
		total += g.GroupSize
		for _, m := range g.Members {
			assert.False(t, seen[m], "site %s appears in more than one group", m)
			seen[m] = true
		}
	}
	assert.Equal(t, len(sites), total)
}

func TestGroup_InvalidThreshold(t *testing.T) {
	sites := []model.Site{{SiteID: "a", Lat: 1, Lon: 1}}
	ix := spatial.NewIndex(sites)

	_, _, err := Group(context.Background(), ix, sites, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold_m must be > 0")
}

func TestGroup_EmptyInput(t *testing.T) {
	groups, assignment, err := Group(context.Background(), spatial.NewIndex(nil), nil, 100, 1)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, assignment)
}

func TestGroupID_OrderInvariant(t *testing.T) {
	a := GroupID([]string{"s1", "s2", "s3"})
	b := GroupID([]string{"s3", "s1", "s2"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16) // hex of the first 8 hash bytes
}

func TestGroupID_MembershipSensitive(t *testing.T) {
	assert.NotEqual(t, GroupID([]string{"s1", "s2"}), GroupID([]string{"s1", "s3"}))
	assert.NotEqual(t, GroupID([]string{"s1"}), GroupID([]string{"s1", "s2"}))
}

func TestGroupID_DoesNotMutateInput(t *testing.T) {
	members := []string{"s3", "s1", "s2"}
	GroupID(members)
	assert.Equal(t, []string{"s3", "s1", "s2"}, members)
}
