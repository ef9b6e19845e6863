// Package export renders analysis results as CSV and GeoJSON for the
// presentation layer.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-density/internal/model"
)

// csvHeader is the column order of the enriched output table.
var csvHeader = []string{
	"site_id", "lat", "lon", "cluster_id",
	"neighbor_count", "density", "group_id", "group_size", "area_class",
}

// WriteCSV writes the enriched rows, header first.
func WriteCSV(w io.Writer, sites []model.ClassifiedSite) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, s := range sites {
		record := []string{
			s.SiteID,
			strconv.FormatFloat(s.Lat, 'f', -1, 64),
			strconv.FormatFloat(s.Lon, 'f', -1, 64),
			s.ClusterID,
			strconv.Itoa(s.NeighborCount),
			strconv.FormatFloat(s.Density, 'f', -1, 64),
			s.GroupID,
			strconv.Itoa(s.GroupSize),
			string(s.AreaClass),
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", s.SiteID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
