package proj

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

const maxMercatorLat = 89.5

// projected runs a wgs84 projection on its datum's spheroid. Systems built
// from WKT parameters are anchored at Greenwich with no false offsets in the
// library; their central meridian, false easting and northing and linear
// unit are applied here.
type projected struct {
	name     string
	crs      wgs84.ProjectedReferenceSystem
	lon0     float64
	fe, fn   float64 // meters
	toMeters float64
	maxLat   float64
}

func newProjected(name string, crs wgs84.ProjectedReferenceSystem) *projected {
	return &projected{name: name, crs: crs, toMeters: 1, maxLat: 90}
}

// withParams applies the central meridian and false offsets of p.
func (p *projected) withParams(params Params) *projected {
	p.lon0 = params.CentralMeridian
	p.fe = params.FalseEasting
	p.fn = params.FalseNorthing
	return p
}

// Name implements Projection.
func (p *projected) Name() string { return p.name }

// Forward implements Projection.
func (p *projected) Forward(lon, lat float64) (float64, float64, error) {
	if math.Abs(lat) > p.maxLat {
		return 0, 0, ErrOutOfRange
	}
	x, y := p.crs.Projection.FromLonLat(normalizeLon(lon-p.lon0), lat, p.crs.Datum)
	if !finite(x) || !finite(y) {
		return 0, 0, ErrOutOfRange
	}
	return (x + p.fe) / p.toMeters, (y + p.fn) / p.toMeters, nil
}

// Inverse implements Projection.
func (p *projected) Inverse(x, y float64) (float64, float64, error) {
	lon, lat := p.crs.Projection.ToLonLat(x*p.toMeters-p.fe, y*p.toMeters-p.fn, p.crs.Datum)
	if !finite(lon) || !finite(lat) || math.Abs(lat) > 90 {
		return 0, 0, ErrOutOfRange
	}
	return normalizeLon(lon + p.lon0), lat, nil
}

func newTransverseMercator(el Ellipsoid, params Params) *projected {
	crs := el.datum(1).TransverseMercator(0, params.LatitudeOfOrigin, params.scale(), 0, 0)
	return newProjected("Transverse_Mercator", crs).withParams(params)
}

// newLambertConformalConic handles the one and two parallel variants. With
// one parallel the scale factor applies there through the scaled axis.
func newLambertConformalConic(el Ellipsoid, params Params) (*projected, error) {
	lat1, lat2 := params.parallels()
	if math.Abs(lat1+lat2) < 1e-10 {
		return nil, eris.New("proj: lambert conformal conic with parallels symmetric about the equator")
	}
	crs := el.datum(params.scale()).LambertConformalConic2SP(0, params.LatitudeOfOrigin, lat1, lat2, 0, 0)
	return newProjected("Lambert_Conformal_Conic", crs).withParams(params), nil
}

func newAlbersEqualArea(el Ellipsoid, params Params) (*projected, error) {
	lat1, lat2 := params.parallels()
	if math.Abs(lat1+lat2) < 1e-10 {
		return nil, eris.New("proj: albers with parallels symmetric about the equator")
	}
	crs := el.datum(1).AlbersEqualAreaConic(0, params.LatitudeOfOrigin, lat1, lat2, 0, 0)
	return newProjected("Albers", crs).withParams(params), nil
}

func newAuxiliarySphere(el Ellipsoid, params Params) *projected {
	p := newProjected("Mercator_Auxiliary_Sphere", el.datum(1).WebMercator()).withParams(params)
	p.maxLat = maxMercatorLat
	return p
}

func newLambertAzimuthalEqualArea(el Ellipsoid, params Params) *projected {
	crs := el.datum(1).LambertAzimuthalEqualArea(0, params.LatitudeOfOrigin, 0, 0)
	return newProjected("Lambert_Azimuthal_Equal_Area", crs).withParams(params)
}
