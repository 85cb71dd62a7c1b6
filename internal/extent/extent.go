// Package extent reads the area-of-interest dataset: its bounding box in
// WGS-84 and, for clipping, its polygon geometry.
package extent

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/usgs-gages/internal/proj"
)

// ErrNoPolygons is returned when clipping against a dataset without polygons.
var ErrNoPolygons = eris.New("extent: dataset has no polygons to clip with")

// Dataset is an opened extent dataset. Bounds and polygons are in the
// dataset's native coordinate system.
type Dataset struct {
	Path       string
	Projection proj.Projection
	Bounds     *geom.Bounds

	polygons []*geom.MultiPolygon
}

// Open reads an extent dataset. Shapefiles (.shp) and GeoJSON (.geojson,
// .json) are supported.
func Open(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return openShapefile(path)
	case ".geojson", ".json":
		return openGeoJSON(path)
	}
	return nil, eris.Errorf("extent: unsupported dataset %s", path)
}

// WGS84Corners returns the lower-left and upper-right corners of the
// dataset's bounding box reprojected to EPSG:4326 (longitude, latitude).
func (d *Dataset) WGS84Corners() (lowerLeft, upperRight geom.Coord, err error) {
	if proj.IsGeographic(d.Projection) {
		return geom.Coord{d.Bounds.Min(0), d.Bounds.Min(1)}, geom.Coord{d.Bounds.Max(0), d.Bounds.Max(1)}, nil
	}
	llx, lly, err := d.Projection.Inverse(d.Bounds.Min(0), d.Bounds.Min(1))
	if err != nil {
		return nil, nil, eris.Wrap(err, "extent: project lower-left corner")
	}
	urx, ury, err := d.Projection.Inverse(d.Bounds.Max(0), d.Bounds.Max(1))
	if err != nil {
		return nil, nil, eris.Wrap(err, "extent: project upper-right corner")
	}
	return geom.Coord{llx, lly}, geom.Coord{urx, ury}, nil
}

// HasPolygons reports whether the dataset carries polygon geometry.
func (d *Dataset) HasPolygons() bool {
	return len(d.polygons) > 0
}

// Contains reports whether a WGS-84 point falls inside any of the dataset's
// polygons. Rings are tested with the even-odd rule so holes and multipart
// shapes need no orientation handling.
func (d *Dataset) Contains(lon, lat float64) (bool, error) {
	if !d.HasPolygons() {
		return false, ErrNoPolygons
	}
	x, y, err := proj.Transform(proj.WGS84(), d.Projection, lon, lat)
	if err != nil {
		return false, eris.Wrapf(err, "extent: project point (%f, %f)", lon, lat)
	}
	p := geom.Coord{x, y}

	for _, mp := range d.polygons {
		inside := false
		for i := 0; i < mp.NumPolygons(); i++ {
			poly := mp.Polygon(i)
			for j := 0; j < poly.NumLinearRings(); j++ {
				if xy.IsPointInRing(geom.XY, p, poly.LinearRing(j).FlatCoords()) {
					inside = !inside
				}
			}
		}
		if inside {
			return true, nil
		}
	}
	return false, nil
}

func fitsGeographic(b *geom.Bounds) bool {
	return math.Abs(b.Min(0)) <= 180 && math.Abs(b.Max(0)) <= 180 &&
		math.Abs(b.Min(1)) <= 90 && math.Abs(b.Max(1)) <= 90
}
