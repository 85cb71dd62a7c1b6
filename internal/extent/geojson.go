package extent

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/usgs-gages/internal/proj"
)

// openGeoJSON reads a FeatureCollection, Feature or bare geometry. GeoJSON
// coordinates are always WGS-84.
func openGeoJSON(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extent: read %s", path)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(err, "extent: decode %s", path)
	}

	var geoms []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrapf(err, "extent: decode feature collection %s", path)
		}
		for _, f := range fc.Features {
			if f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "extent: decode feature %s", path)
		}
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrapf(err, "extent: decode geometry %s", path)
		}
		geoms = append(geoms, g)
	}

	geoms = flatten(geoms)
	if len(geoms) == 0 {
		return nil, eris.Errorf("extent: %s has no geometries", path)
	}

	ds := &Dataset{
		Path:       path,
		Projection: proj.WGS84(),
		Bounds:     geom.NewBounds(geom.XY),
	}
	for _, g := range geoms {
		ds.Bounds.Extend(g)
		switch t := g.(type) {
		case *geom.Polygon:
			mp := geom.NewMultiPolygon(geom.XY)
			if err := mp.Push(toXY(t)); err != nil {
				return nil, eris.Wrapf(err, "extent: polygon in %s", path)
			}
			ds.polygons = append(ds.polygons, mp)
		case *geom.MultiPolygon:
			mp := geom.NewMultiPolygon(geom.XY)
			for i := 0; i < t.NumPolygons(); i++ {
				if err := mp.Push(toXY(t.Polygon(i))); err != nil {
					return nil, eris.Wrapf(err, "extent: multipolygon in %s", path)
				}
			}
			ds.polygons = append(ds.polygons, mp)
		}
	}
	return ds, nil
}

// flatten expands geometry collections into their members and drops empty
// geometries. Bounds cannot be extended by a collection directly.
func flatten(geoms []geom.T) []geom.T {
	var out []geom.T
	for _, g := range geoms {
		if gc, ok := g.(*geom.GeometryCollection); ok {
			out = append(out, flatten(gc.Geoms())...)
			continue
		}
		if g == nil || g.Empty() {
			continue
		}
		out = append(out, g)
	}
	return out
}

// toXY drops any Z or M ordinates so ring tests can assume stride 2.
func toXY(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	out := geom.NewPolygon(geom.XY)
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		stride := ring.Stride()
		flat := ring.FlatCoords()
		xyFlat := make([]float64, 0, len(flat)/stride*2)
		for j := 0; j < len(flat); j += stride {
			xyFlat = append(xyFlat, flat[j], flat[j+1])
		}
		_ = out.Push(geom.NewLinearRingFlat(geom.XY, xyFlat))
	}
	return out
}
