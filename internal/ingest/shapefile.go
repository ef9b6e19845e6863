package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/site-density/internal/model"
)

// ReadShapefile reads a point shapefile whose attribute table carries
// site_id and cluster_id fields. Coordinates come from the point geometry
// (X = lon, Y = lat); validation matches ReadCSV.
func ReadShapefile(ctx context.Context, path string) ([]model.Site, []string, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "shapefile: open")
	}
	defer func() { _ = reader.Close() }()

	siteIDIdx := fieldIndex(reader, "site_id")
	clusterIdx := fieldIndex(reader, "cluster_id")
	if siteIDIdx < 0 || clusterIdx < 0 {
		return nil, nil, eris.New("shapefile: required attribute fields (site_id, cluster_id) not found")
	}

	v := newRowValidator(map[string]int{"site_id": 0, "lat": 1, "lon": 2, "cluster_id": 3})
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "shapefile: context cancelled")
		}
		_, shape := reader.Shape()
		point, ok := shape.(*shp.Point)
		if !ok {
			v.add([]string{"", "", "", ""}) // non-point geometry drops as a missing-value row
			continue
		}
		v.add([]string{
			strings.TrimSpace(reader.Attribute(siteIDIdx)),
			strconv.FormatFloat(point.Y, 'f', -1, 64),
			strconv.FormatFloat(point.X, 'f', -1, 64),
			strings.TrimSpace(reader.Attribute(clusterIdx)),
		})
	}

	return v.finish()
}

// fieldIndex returns the index of a named dbf field, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
