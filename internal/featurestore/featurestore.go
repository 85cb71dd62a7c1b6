// Package featurestore writes WGS-84 point features to spatial formats:
// shapefiles, GeoPackages, GeoJSON, PostGIS tables and an in-memory store.
package featurestore

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usgs-gages/internal/db"
	"github.com/sells-group/usgs-gages/internal/schema"
)

// SRID is the spatial reference of every feature written here.
const SRID = 4326

var (
	// ErrExists is returned when the output exists and overwrite is off.
	ErrExists = eris.New("featurestore: output already exists")

	// ErrUnsupportedTarget is returned for outputs no destination handles.
	ErrUnsupportedTarget = eris.New("featurestore: unsupported output")
)

// Feature is one point with attribute values ordered like the fields passed
// to Create. A nil attribute is a missing value.
type Feature struct {
	Key      string
	Attrs    []any
	Lon, Lat float64
}

// Destination is a point feature store.
type Destination interface {
	// Name describes the output for logs.
	Name() string

	// SupportsNull reports whether missing values can be stored as nulls.
	// Callers substitute sentinels when it is false.
	SupportsNull() bool

	// Create defines the attribute fields. It must be called once before
	// Insert.
	Create(ctx context.Context, fields []schema.Field) error

	// Insert writes one feature. An error rejects only that feature.
	Insert(ctx context.Context, f Feature) error

	// Close flushes and releases the output.
	Close() error

	// Abort releases the output without keeping what was written. Callers
	// use it instead of Close when a run fails.
	Abort() error
}

// Options control how a destination is opened.
type Options struct {
	Overwrite bool

	// DBFEncoding names the shapefile attribute encoding (an IANA or WHATWG
	// label such as windows-1252 or utf-8).
	DBFEncoding string

	Pool db.PoolConfig
}

// Open picks a destination for target. File outputs are chosen by
// extension. PostgreSQL URLs carry the table in the fragment, as in
// postgres://host/db#schema.table. An existing output is an error unless
// opts.Overwrite is set.
func Open(ctx context.Context, target string, opts Options) (Destination, error) {
	if isPostgresURL(target) {
		return openPostGIS(ctx, target, opts)
	}

	switch strings.ToLower(filepath.Ext(target)) {
	case ".shp":
		if err := checkOverwrite(target, opts.Overwrite); err != nil {
			return nil, err
		}
		return NewShapefile(target, opts.DBFEncoding)
	case ".gpkg":
		if err := checkOverwrite(target, opts.Overwrite); err != nil {
			return nil, err
		}
		return NewGeoPackage(target), nil
	case ".geojson", ".json":
		if err := checkOverwrite(target, opts.Overwrite); err != nil {
			return nil, err
		}
		return NewGeoJSON(target), nil
	}
	return nil, eris.Wrapf(ErrUnsupportedTarget, "%s (want .shp, .gpkg, .geojson or a postgres:// URL)", target)
}

func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func checkOverwrite(path string, overwrite bool) error {
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return eris.Wrapf(err, "featurestore: stat %s", path)
	case !overwrite:
		return eris.Wrap(ErrExists, path)
	}
	return nil
}

// checkFields rejects empty and duplicate names. Comparison ignores case
// since none of the formats distinguish fields by case alone.
func checkFields(fields []schema.Field, reserved ...string) error {
	seen := make(map[string]bool, len(fields)+len(reserved))
	for _, r := range reserved {
		seen[strings.ToLower(r)] = true
	}
	for _, f := range fields {
		key := strings.ToLower(f.Name)
		if key == "" {
			return eris.New("featurestore: empty field name")
		}
		if seen[key] {
			return eris.Errorf("featurestore: duplicate field name %q", f.Name)
		}
		seen[key] = true
	}
	return nil
}

func checkArity(f Feature, fields []schema.Field) error {
	if len(f.Attrs) != len(fields) {
		return eris.Errorf("featurestore: feature %s has %d values for %d fields", f.Key, len(f.Attrs), len(fields))
	}
	return nil
}

// attrValue checks v against the field type for formats that store nulls
// natively. Integral float64 values are accepted for LONG fields since
// nullable integer columns parse as floats.
func attrValue(field schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch field.Type {
	case schema.Text:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.Double:
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int64:
			f = float64(n)
		default:
			return nil, eris.Errorf("field %s: want number, got %T", field.Name, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, eris.Errorf("field %s: cannot store %v", field.Name, f)
		}
		return f, nil
	case schema.Long:
		switch n := v.(type) {
		case int64:
			return n, nil
		case float64:
			if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
				return int64(n), nil
			}
			return nil, eris.Errorf("field %s: %g is not an integer", field.Name, n)
		}
	default:
		return nil, eris.Wrapf(schema.ErrUnsupportedType, "field %s type %s", field.Name, field.Type)
	}
	return nil, eris.Errorf("field %s: want %s, got %T", field.Name, field.Type, v)
}

// attrValues converts every attribute of f with attrValue.
func attrValues(f Feature, fields []schema.Field) ([]any, error) {
	if err := checkArity(f, fields); err != nil {
		return nil, err
	}
	out := make([]any, len(fields))
	for i, v := range f.Attrs {
		av, err := attrValue(fields[i], v)
		if err != nil {
			return nil, eris.Wrapf(err, "featurestore: feature %s", f.Key)
		}
		out[i] = av
	}
	return out, nil
}
