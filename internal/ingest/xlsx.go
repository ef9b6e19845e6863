package ingest

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/site-density/internal/model"
)

// ReadXLSX reads and validates a site table from the first sheet of an XLSX
// workbook. The first row is the header; validation matches ReadCSV.
func ReadXLSX(ctx context.Context, path string) ([]model.Site, []string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("xlsx: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("xlsx: empty sheet")
	}

	cols, err := columnIndices(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, nil, err
	}

	v := newRowValidator(cols)
	for _, row := range sheet.Rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "xlsx: context cancelled")
		}
		v.add(rowToStrings(row))
	}

	return v.finish()
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		// Numeric cells format through the float path so coordinates keep
		// full precision instead of the display format.
		if f, err := cell.Float(); err == nil {
			cells[j] = strconv.FormatFloat(f, 'f', -1, 64)
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}
