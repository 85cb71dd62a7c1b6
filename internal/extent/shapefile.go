package extent

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/usgs-gages/internal/proj"
)

func openShapefile(path string) (*Dataset, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extent: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	ds := &Dataset{Path: path}
	var shapes, skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		if _, null := shape.(*shp.Null); null || shape == nil {
			skipped++
			continue
		}
		shapes++
		if p, ok := shape.(*shp.Polygon); ok {
			if mp := polygonToMultiPolygon(p); mp != nil {
				ds.polygons = append(ds.polygons, mp)
			}
		}
	}
	if shapes == 0 {
		return nil, eris.Errorf("extent: shapefile %s has no features", path)
	}
	if skipped > 0 {
		zap.L().Debug("extent: skipped null shapes",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	box := reader.BBox()
	ds.Bounds = geom.NewBounds(geom.XY).Set(box.MinX, box.MinY, box.MaxX, box.MaxY)

	ds.Projection, err = readPRJ(path, ds.Bounds)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// readPRJ loads the spatial reference from the .prj sidecar. Without one the
// data is taken as WGS-84 when its bounds look like degrees.
func readPRJ(shpPath string, bounds *geom.Bounds) (proj.Projection, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "extent: read %s%s", base, ext)
		}
		p, err := proj.ParseWKT(string(data))
		if err != nil {
			return nil, eris.Wrapf(err, "extent: spatial reference of %s", shpPath)
		}
		return p, nil
	}

	if !fitsGeographic(bounds) {
		return nil, eris.Errorf("extent: %s has no .prj and its bounds are not geographic", shpPath)
	}
	zap.L().Warn("extent: no .prj found, assuming WGS-84",
		zap.String("path", shpPath),
	)
	return proj.WGS84(), nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// with one single-ring polygon per part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("extent: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("extent: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
