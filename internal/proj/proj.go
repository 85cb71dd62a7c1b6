// Package proj converts coordinates between WGS-84 geographic degrees and the
// projected coordinate systems found in shapefile .prj files. The projection
// math comes from github.com/wroge/wgs84.
//
// Datum shifts are not applied, so NAD83 based systems are treated as WGS-84.
package proj

import (
	"fmt"
	"math"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// EPSGWGS84 is the EPSG code of geographic WGS-84.
const EPSGWGS84 = 4326

// ErrOutOfRange is returned for coordinates a projection cannot represent.
var ErrOutOfRange = eris.New("proj: coordinate out of range")

// Projection converts between geographic degrees and native coordinates.
type Projection interface {
	// Name is the projection method, e.g. "Transverse_Mercator".
	Name() string
	// Forward converts longitude/latitude degrees to native x/y.
	Forward(lon, lat float64) (x, y float64, err error)
	// Inverse converts native x/y to longitude/latitude degrees.
	Inverse(x, y float64) (lon, lat float64, err error)
}

// Ellipsoid is a reference ellipsoid.
type Ellipsoid struct {
	A    float64 // semi-major axis, meters
	InvF float64 // inverse flattening, 0 for a sphere
}

// WGS84Ellipsoid is the WGS-84 reference ellipsoid.
var WGS84Ellipsoid = Ellipsoid{A: wgs84.A, InvF: wgs84.Fi}

// sphereInvF stands in for the infinite inverse flattening of a sphere; the
// library's series divide by the eccentricity.
const sphereInvF = 1e10

type spheroid struct{ a, fi float64 }

func (s spheroid) A() float64  { return s.a }
func (s spheroid) Fi() float64 { return s.fi }

// datum returns a wgs84 datum on e with the semi-major axis scaled by k.
// Conic radii grow linearly with the axis, so k acts as a scale factor.
func (e Ellipsoid) datum(k float64) wgs84.Datum {
	fi := e.InvF
	if fi == 0 {
		fi = sphereInvF
	}
	return wgs84.Datum{Spheroid: spheroid{a: e.A * k, fi: fi}}
}

// normalizeLon wraps a longitude in degrees into [-180, 180].
func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Geographic is a longitude/latitude system; Forward and Inverse are the
// identity.
type Geographic struct {
	Ellipsoid Ellipsoid
}

// WGS84 returns geographic WGS-84 (EPSG:4326).
func WGS84() *Geographic {
	return &Geographic{Ellipsoid: WGS84Ellipsoid}
}

// Name implements Projection.
func (g *Geographic) Name() string { return "Geographic" }

// Forward implements Projection.
func (g *Geographic) Forward(lon, lat float64) (float64, float64, error) {
	return lon, lat, nil
}

// Inverse implements Projection.
func (g *Geographic) Inverse(x, y float64) (float64, float64, error) {
	return x, y, nil
}

// IsGeographic reports whether p works in degrees.
func IsGeographic(p Projection) bool {
	_, ok := p.(*Geographic)
	return ok
}

// Transform converts a point from one system to another through WGS-84
// geographic degrees.
func Transform(from, to Projection, x, y float64) (float64, float64, error) {
	lon, lat, err := from.Inverse(x, y)
	if err != nil {
		return 0, 0, err
	}
	return to.Forward(lon, lat)
}

// UTM returns the WGS-84 UTM projection for zone (1-60), northern or
// southern hemisphere.
func UTM(zone int, south bool) (Projection, error) {
	if zone < 1 || zone > 60 {
		return nil, eris.Errorf("proj: invalid UTM zone %d", zone)
	}
	return newProjected("Transverse_Mercator", wgs84.UTM(float64(zone), !south)), nil
}

// WebMercator returns the spherical Mercator on the WGS-84 semi-major axis
// (EPSG:3857, ESRI Mercator_Auxiliary_Sphere).
func WebMercator() Projection {
	p := newProjected("Mercator_Auxiliary_Sphere", wgs84.WebMercator())
	p.maxLat = maxMercatorLat
	return p
}

var epsgRepository = sync.OnceValue(wgs84.EPSG)

// FromEPSG returns the system registered under an EPSG code: geographic and
// projected codes known to wgs84.EPSG, which include 4326, 4269, 3857 and the
// WGS-84 UTM zones.
func FromEPSG(code int) (Projection, error) {
	switch code {
	case EPSGWGS84:
		return WGS84(), nil
	case 3857, 900913:
		return WebMercator(), nil
	}

	switch c := epsgRepository().Code(code).(type) {
	case wgs84.GeographicReferenceSystem:
		return &Geographic{Ellipsoid: Ellipsoid{A: c.Datum.A(), InvF: c.Datum.Fi()}}, nil
	case wgs84.ProjectedReferenceSystem:
		return newProjected(fmt.Sprintf("EPSG:%d", code), c), nil
	}
	return nil, eris.Errorf("proj: unsupported EPSG code %d", code)
}

// Params are the projection parameters read from a PROJCS definition. Angles
// are degrees; false easting and northing are meters.
type Params struct {
	CentralMeridian   float64
	LatitudeOfOrigin  float64
	StandardParallel1 float64
	StandardParallel2 float64
	ScaleFactor       float64
	FalseEasting      float64
	FalseNorthing     float64

	hasParallel1 bool
	hasParallel2 bool
}

func (p Params) scale() float64 {
	if p.ScaleFactor == 0 {
		return 1
	}
	return p.ScaleFactor
}

// parallels returns the standard parallels of a conic. A missing first
// parallel falls back to the latitude of origin and a missing second one to
// the first.
func (p Params) parallels() (lat1, lat2 float64) {
	lat1 = p.LatitudeOfOrigin
	if p.hasParallel1 {
		lat1 = p.StandardParallel1
	}
	lat2 = lat1
	if p.hasParallel2 {
		lat2 = p.StandardParallel2
	}
	return lat1, lat2
}
