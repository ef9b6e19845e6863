// Package ingest reads site tables from CSV, XLSX, and shapefile sources,
// validates schema and coordinate ranges, and drops invalid rows with
// per-reason messages. The analysis core only ever sees validated sites.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/site-density/internal/model"
)

// Required input columns, matched case-insensitively.
var requiredColumns = []string{"site_id", "lat", "lon", "cluster_id"}

// ReadCSV reads and validates a site table from CSV. Invalid rows are
// dropped and reported as messages; a missing required column is fatal.
// The reader may carry a UTF-8 or UTF-16 byte order mark.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.Site, []string, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1 // variable fields; short rows are dropped per-row

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, eris.New("csv: empty input")
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "csv: read header")
	}

	cols, err := columnIndices(header)
	if err != nil {
		return nil, nil, err
	}

	v := newRowValidator(cols)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "csv: read row")
		}
		v.add(record)
	}

	return v.finish()
}

// columnIndices maps required column names to their header positions.
func columnIndices(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, name := range requiredColumns {
		i, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// rowValidator accumulates valid sites and per-reason drop counts.
type rowValidator struct {
	cols       map[string]int
	sites      []model.Site
	seen       map[string]bool
	total      int
	missing    int
	nonNumeric int
	outOfRange int
	duplicate  int
}

func newRowValidator(cols map[string]int) *rowValidator {
	return &rowValidator{cols: cols, seen: make(map[string]bool)}
}

// field returns the named column value, or "" when the row is too short.
func (v *rowValidator) field(record []string, name string) string {
	i := v.cols[name]
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (v *rowValidator) add(record []string) {
	v.total++

	siteID := v.field(record, "site_id")
	clusterID := v.field(record, "cluster_id")
	latRaw := v.field(record, "lat")
	lonRaw := v.field(record, "lon")
	if siteID == "" || clusterID == "" || latRaw == "" || lonRaw == "" {
		v.missing++
		return
	}

	lat, latErr := strconv.ParseFloat(latRaw, 64)
	lon, lonErr := strconv.ParseFloat(lonRaw, 64)
	if latErr != nil || lonErr != nil {
		v.nonNumeric++
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		v.outOfRange++
		return
	}
	if v.seen[siteID] {
		v.duplicate++
		return
	}
	v.seen[siteID] = true

	v.sites = append(v.sites, model.Site{
		SiteID:    siteID,
		Lat:       lat,
		Lon:       lon,
		ClusterID: clusterID,
	})
}

func (v *rowValidator) finish() ([]model.Site, []string, error) {
	var msgs []string
	if v.missing > 0 {
		msgs = append(msgs, fmt.Sprintf("Dropped %d rows with missing required values", v.missing))
	}
	if v.nonNumeric > 0 {
		msgs = append(msgs, fmt.Sprintf("Dropped %d rows with non-numeric coordinates", v.nonNumeric))
	}
	if v.outOfRange > 0 {
		msgs = append(msgs, fmt.Sprintf("Dropped %d rows with out-of-range coordinates", v.outOfRange))
	}
	if v.duplicate > 0 {
		msgs = append(msgs, fmt.Sprintf("Dropped %d rows with duplicate site_id", v.duplicate))
	}
	if dropped := v.total - len(v.sites); dropped > 0 {
		msgs = append(msgs, fmt.Sprintf("Dropped %d invalid rows (from %d total)", dropped, v.total))
	}
	return v.sites, msgs, nil
}
