// Package rdb parses USGS RDB responses (tab-delimited text with '#' comment
// lines and a two-row header) into a typed station table.
package rdb

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usgs-gages/internal/table"
)

// Column names the site service always reports.
const (
	SiteNo      = "site_no"
	StationName = "station_nm"
	Latitude    = "dec_lat_va"
	Longitude   = "dec_long_va"
	HUC         = "huc_cd"
)

// textColumns are never inferred as numbers; leading zeros are significant.
var textColumns = map[string]bool{
	SiteNo: true,
	HUC:    true,
}

var (
	// ErrNoHeader is returned when the response has no column-name line.
	ErrNoHeader = eris.New("rdb: missing column header")
	// ErrNoTypeHints is returned when the type-hint line is missing.
	ErrNoTypeHints = eris.New("rdb: missing type-hint header")
)

// maxLineSize bounds a single RDB line; expanded site output stays far below.
const maxLineSize = 1 << 20

// reader yields the tab-separated records of an RDB body. Comment and blank
// lines are skipped and fields are taken verbatim: RDB has no quoting, so a
// station name may start with '"'.
type reader struct {
	scanner *bufio.Scanner
	line    int
	fields  int
}

func newReader(r io.Reader) *reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &reader{scanner: scanner}
}

// Read returns the next record, or io.EOF. Every record must have as many
// fields as the first one.
func (r *reader) Read() ([]string, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSuffix(r.scanner.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		record := strings.Split(text, "\t")
		if r.fields == 0 {
			r.fields = len(record)
		} else if len(record) != r.fields {
			return nil, eris.Errorf("rdb: line %d has %d fields, want %d", r.line, len(record), r.fields)
		}
		return record, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "rdb: scan")
	}
	return nil, io.EOF
}

// Parse reads an RDB response into a table. The type-hint row is checked for
// arity but otherwise ignored: column types are inferred from the data. Rows
// missing a latitude or longitude are dropped.
func Parse(r io.Reader) (*table.Table, error) {
	reader := newReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "rdb: read header")
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTypeHints
		}
		return nil, eris.Wrap(err, "rdb: read type hints")
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "rdb: read row")
		}
		for i, v := range record {
			raw[i] = append(raw[i], v)
		}
	}

	cols := make([]*table.Column, len(header))
	for i, name := range header {
		cols[i] = buildColumn(name, raw[i], textColumns[name])
	}

	tbl, err := table.New(cols...)
	if err != nil {
		return nil, eris.Wrap(err, "rdb: build table")
	}

	return dropMissingCoordinates(tbl)
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if name == "" {
			return eris.Errorf("rdb: empty column name at position %d", i)
		}
		if seen[name] {
			return eris.Errorf("rdb: duplicate column %q", name)
		}
		seen[name] = true
	}
	return nil
}

func dropMissingCoordinates(tbl *table.Table) (*table.Table, error) {
	lat, err := coordinateColumn(tbl, Latitude)
	if err != nil {
		return nil, err
	}
	lon, err := coordinateColumn(tbl, Longitude)
	if err != nil {
		return nil, err
	}
	return tbl.Filter(func(i int) bool {
		return !lat.IsNull(i) && !lon.IsNull(i)
	}), nil
}

func coordinateColumn(tbl *table.Table, name string) (*table.Column, error) {
	c, ok := tbl.Column(name)
	if !ok {
		return nil, eris.Errorf("rdb: missing required column %q", name)
	}
	// An empty response has no values to infer from.
	if tbl.Len() > 0 && !c.Type.IsNumeric() {
		return nil, eris.Errorf("rdb: column %q is %s, want numeric", name, c.Type)
	}
	return c, nil
}

// Coordinate returns the value of a numeric coordinate column at row i.
func Coordinate(c *table.Column, i int) float64 {
	if c.Type == table.Int64 {
		return float64(c.Int[i])
	}
	return c.Float[i]
}
