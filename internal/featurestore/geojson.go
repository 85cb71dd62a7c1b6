package featurestore

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/usgs-gages/internal/schema"
)

// GeoJSON buffers features and writes one FeatureCollection on Close.
// Feature ids are the feature keys.
type GeoJSON struct {
	path     string
	fields   []schema.Field
	features []*geojson.Feature
	bounds   *geom.Bounds
	created  bool
}

// NewGeoJSON prepares a GeoJSON destination at path.
func NewGeoJSON(path string) *GeoJSON {
	return &GeoJSON{path: path, bounds: geom.NewBounds(geom.XY)}
}

// Name implements Destination.
func (g *GeoJSON) Name() string { return g.path }

// SupportsNull implements Destination.
func (g *GeoJSON) SupportsNull() bool { return true }

// Create implements Destination.
func (g *GeoJSON) Create(_ context.Context, fields []schema.Field) error {
	if g.created {
		return eris.Errorf("featurestore: %s already created", g.path)
	}
	if err := checkFields(fields); err != nil {
		return err
	}
	g.fields = fields
	g.created = true
	return nil
}

// Insert implements Destination.
func (g *GeoJSON) Insert(_ context.Context, f Feature) error {
	if !g.created {
		return eris.New("featurestore: geojson insert before create")
	}
	values, err := attrValues(f, g.fields)
	if err != nil {
		return err
	}
	props := make(map[string]any, len(values))
	for i, v := range values {
		props[g.fields[i].Name] = v
	}
	pt := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{f.Lon, f.Lat})
	g.features = append(g.features, &geojson.Feature{
		ID:         f.Key,
		Geometry:   pt,
		Properties: props,
	})
	g.bounds.Extend(pt)
	return nil
}

// Close writes the collection. Nothing is written if Create was never
// called.
func (g *GeoJSON) Close() error {
	if !g.created {
		return nil
	}
	fc := geojson.FeatureCollection{Features: g.features}
	if !g.bounds.IsEmpty() {
		fc.BBox = g.bounds
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrapf(err, "featurestore: encode %s", g.path)
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		return eris.Wrapf(err, "featurestore: write %s", g.path)
	}
	g.created = false
	return nil
}

// Abort implements Destination. Buffered features are dropped and nothing
// is written.
func (g *GeoJSON) Abort() error {
	g.features = nil
	g.created = false
	return nil
}

// Rows returns the number of buffered features.
func (g *GeoJSON) Rows() int { return len(g.features) }
