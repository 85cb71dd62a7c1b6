package featurestore

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/usgs-gages/internal/proj"
	"github.com/sells-group/usgs-gages/internal/schema"
)

// DBF field sizes. Text uses the format maximum; numbers follow the usual
// ESRI defaults for doubles and 64-bit integers.
const (
	textWidth     = 254
	doubleWidth   = 19
	doubleDecimal = 11
	longWidth     = 18
)

// DefaultDBFEncoding is the code page used when none is configured.
const DefaultDBFEncoding = "windows-1252"

var shapefileSidecars = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// Shapefile writes a POINT shapefile with .prj and .cpg sidecars. DBF
// files cannot store nulls.
type Shapefile struct {
	path     string
	base     string
	encoder  *encoding.Encoder
	codePage string

	writer *shp.Writer
	fields []schema.Field
	rows   int
}

// NewShapefile prepares a shapefile destination at path. dbfEncoding names
// the attribute text encoding; empty selects windows-1252.
func NewShapefile(path, dbfEncoding string) (*Shapefile, error) {
	if dbfEncoding == "" {
		dbfEncoding = DefaultDBFEncoding
	}
	enc, err := htmlindex.Get(dbfEncoding)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: dbf encoding %q", dbfEncoding)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: dbf encoding %q", dbfEncoding)
	}
	return &Shapefile{
		path:     path,
		base:     strings.TrimSuffix(path, filepath.Ext(path)),
		encoder:  encoding.ReplaceUnsupported(enc.NewEncoder()),
		codePage: codePage(name),
	}, nil
}

// codePage returns the .cpg content for a WHATWG encoding name.
func codePage(name string) string {
	switch {
	case name == "utf-8":
		return "UTF-8"
	case strings.HasPrefix(name, "windows-"):
		return strings.TrimPrefix(name, "windows-")
	case strings.HasPrefix(name, "iso-8859-"):
		return "8859" + strings.TrimPrefix(name, "iso-8859-")
	}
	return strings.ToUpper(name)
}

// Name implements Destination.
func (s *Shapefile) Name() string { return s.path }

// SupportsNull implements Destination.
func (s *Shapefile) SupportsNull() bool { return false }

// Create implements Destination. Existing files of the same shapefile are
// replaced.
func (s *Shapefile) Create(_ context.Context, fields []schema.Field) error {
	if s.writer != nil {
		return eris.Errorf("featurestore: %s already created", s.path)
	}
	if err := checkFields(fields); err != nil {
		return err
	}

	dbfFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		if n := len(f.Name); n > schema.MaxFieldNameLen {
			return eris.Errorf("featurestore: field name %q exceeds %d characters allowed in a shapefile", f.Name, schema.MaxFieldNameLen)
		}
		switch f.Type {
		case schema.Text:
			dbfFields[i] = shp.StringField(f.Name, textWidth)
		case schema.Double:
			dbfFields[i] = shp.FloatField(f.Name, doubleWidth, doubleDecimal)
		case schema.Long:
			dbfFields[i] = shp.NumberField(f.Name, longWidth)
		default:
			return eris.Wrapf(schema.ErrUnsupportedType, "field %s type %s", f.Name, f.Type)
		}
	}

	if err := s.removeExisting(); err != nil {
		return err
	}

	w, err := shp.Create(s.base+".shp", shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "featurestore: create %s", s.path)
	}
	if err := w.SetFields(dbfFields); err != nil {
		return eris.Wrapf(err, "featurestore: set fields on %s", s.path)
	}
	s.writer = w
	s.fields = fields
	return nil
}

func (s *Shapefile) removeExisting() error {
	for _, ext := range append(shapefileSidecars, "dbf") {
		err := os.Remove(s.base + ext)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "featurestore: remove %s%s", s.base, ext)
		}
	}
	return nil
}

// Insert implements Destination. Every value is converted and size-checked
// before the point is written, so a rejected feature leaves no record.
func (s *Shapefile) Insert(_ context.Context, f Feature) error {
	if s.writer == nil {
		return eris.New("featurestore: shapefile insert before create")
	}
	if err := checkArity(f, s.fields); err != nil {
		return err
	}

	values := make([]any, len(f.Attrs))
	for i, v := range f.Attrs {
		dv, err := s.dbfValue(s.fields[i], v)
		if err != nil {
			return eris.Wrapf(err, "featurestore: feature %s field %s", f.Key, s.fields[i].Name)
		}
		values[i] = dv
	}

	row := int(s.writer.Write(&shp.Point{X: f.Lon, Y: f.Lat}))
	for i, v := range values {
		if err := s.writer.WriteAttribute(row, i, v); err != nil {
			return eris.Wrapf(err, "featurestore: feature %s field %s", f.Key, s.fields[i].Name)
		}
	}
	s.rows++
	return nil
}

// dbfValue converts v to the int, float64 or string go-shp writes and
// checks it fits the field.
func (s *Shapefile) dbfValue(field schema.Field, v any) (any, error) {
	if v == nil {
		return nil, eris.New("null value in a format without nulls")
	}
	switch field.Type {
	case schema.Text:
		str, ok := v.(string)
		if !ok {
			return nil, eris.Errorf("want text, got %T", v)
		}
		encoded, err := s.encoder.String(str)
		if err != nil {
			return nil, eris.Wrap(err, "encode text")
		}
		if len(encoded) > textWidth {
			return nil, eris.Errorf("text of %d characters exceeds %d", utf8.RuneCountInString(str), textWidth)
		}
		return encoded, nil
	case schema.Double:
		var fv float64
		switch n := v.(type) {
		case float64:
			fv = n
		case int64:
			fv = float64(n)
		default:
			return nil, eris.Errorf("want number, got %T", v)
		}
		if math.IsNaN(fv) || math.IsInf(fv, 0) {
			return nil, eris.Errorf("cannot store %v", fv)
		}
		if len(strconv.FormatFloat(fv, 'f', doubleDecimal, 64)) > doubleWidth {
			return nil, eris.Errorf("%g does not fit a %d.%d field", fv, doubleWidth, doubleDecimal)
		}
		return fv, nil
	case schema.Long:
		var iv int64
		switch n := v.(type) {
		case int64:
			iv = n
		case float64:
			if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
				return nil, eris.Errorf("%g is not an integer", n)
			}
			iv = int64(n)
		default:
			return nil, eris.Errorf("want integer, got %T", v)
		}
		if len(strconv.FormatInt(iv, 10)) > longWidth {
			return nil, eris.Errorf("%d does not fit a %d character field", iv, longWidth)
		}
		return int(iv), nil
	}
	return nil, eris.Wrapf(schema.ErrUnsupportedType, "field type %s", field.Type)
}

// Close writes the headers and the .prj and .cpg sidecars.
func (s *Shapefile) Close() error {
	if s.writer == nil {
		return nil
	}
	s.writer.Close()
	s.writer = nil

	// go-shp names the table "<base>dbf".
	if err := os.Rename(s.base+"dbf", s.base+".dbf"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "featurestore: finalize %s.dbf", s.base)
	}
	if err := os.WriteFile(s.base+".prj", []byte(proj.WGS84WKT), 0o644); err != nil {
		return eris.Wrapf(err, "featurestore: write %s.prj", s.base)
	}
	if err := os.WriteFile(s.base+".cpg", []byte(s.codePage), 0o644); err != nil {
		return eris.Wrapf(err, "featurestore: write %s.cpg", s.base)
	}
	return nil
}

// Abort implements Destination. The partly written files are removed.
func (s *Shapefile) Abort() error {
	if s.writer == nil {
		return nil
	}
	s.writer.Close()
	s.writer = nil
	return s.removeExisting()
}

// Rows returns the number of features written.
func (s *Shapefile) Rows() int { return s.rows }
