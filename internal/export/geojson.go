package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/site-density/internal/model"
)

// FeatureCollection converts the enriched rows into a GeoJSON feature
// collection with one point feature per site.
func FeatureCollection(sites []model.ClassifiedSite) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, len(sites)),
	}
	for i, s := range sites {
		fc.Features[i] = &geojson.Feature{
			ID:       s.SiteID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{s.Lon, s.Lat}),
			Properties: map[string]interface{}{
				"site_id":        s.SiteID,
				"cluster_id":     s.ClusterID,
				"neighbor_count": s.NeighborCount,
				"density":        s.Density,
				"group_id":       s.GroupID,
				"group_size":     s.GroupSize,
				"area_class":     string(s.AreaClass),
			},
		}
	}
	return fc
}

// WriteGeoJSON writes the enriched rows as a GeoJSON feature collection.
func WriteGeoJSON(w io.Writer, sites []model.ClassifiedSite) error {
	data, err := json.Marshal(FeatureCollection(sites))
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}
