package proj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clarke1866 = Ellipsoid{A: 6378206.4, InvF: 294.9786982}

// The transverse Mercator inverse loses up to about 1e-4 degrees of latitude
// toward the zone edges.
const tmLatTolerance = 2e-4

func TestUTM_CentralMeridian(t *testing.T) {
	p, err := UTM(18, false)
	require.NoError(t, err)
	assert.Equal(t, "Transverse_Mercator", p.Name())

	x, y, err := p.Forward(-75, 40)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 4427757.219, y, 0.01)
}

func TestUTM_RoundTrip(t *testing.T) {
	p, err := UTM(17, false)
	require.NoError(t, err)

	points := [][2]float64{
		{-78.193949, 37.008687},
		{-76.737630, 37.882912},
		{-81.0, 25.5},
		{-84.5, 45.1},
	}
	for _, pt := range points {
		x, y, err := p.Forward(pt[0], pt[1])
		require.NoError(t, err)
		lon, lat, err := p.Inverse(x, y)
		require.NoError(t, err)
		assert.InDelta(t, pt[0], lon, 1e-6)
		assert.InDelta(t, pt[1], lat, tmLatTolerance)
	}
}

func TestUTM_SouthernHemisphere(t *testing.T) {
	p, err := UTM(23, true)
	require.NoError(t, err)

	x, y, err := p.Forward(-45, -23.5)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.Less(t, y, 10000000.0)

	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -45, lon, 1e-8)
	assert.InDelta(t, -23.5, lat, 1e-8)
}

func TestUTM_InvalidZone(t *testing.T) {
	_, err := UTM(0, false)
	assert.Error(t, err)
	_, err = UTM(61, false)
	assert.Error(t, err)
}

func TestLambertConformalConic_Snyder(t *testing.T) {
	p, err := newLambertConformalConic(clarke1866, Params{
		StandardParallel1: 33, hasParallel1: true,
		StandardParallel2: 45, hasParallel2: true,
		LatitudeOfOrigin: 23,
		CentralMeridian:  -96,
	})
	require.NoError(t, err)

	x, y, err := p.Forward(-75, 35)
	require.NoError(t, err)
	assert.InDelta(t, 1894410.9, x, 0.1)
	assert.InDelta(t, 1564649.5, y, 0.1)

	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -75, lon, 1e-9)
	assert.InDelta(t, 35, lat, 1e-9)
}

func TestLambertConformalConic_OneParallelScale(t *testing.T) {
	params := Params{LatitudeOfOrigin: 40, CentralMeridian: -100, FalseEasting: 1000}
	unit, err := newLambertConformalConic(WGS84Ellipsoid, params)
	require.NoError(t, err)

	params.ScaleFactor = 0.9999
	reduced, err := newLambertConformalConic(WGS84Ellipsoid, params)
	require.NoError(t, err)

	x1, _, err := unit.Forward(-99, 40)
	require.NoError(t, err)
	x2, _, err := reduced.Forward(-99, 40)
	require.NoError(t, err)
	assert.InDelta(t, (x1-1000)*0.9999, x2-1000, 1e-6)

	x0, y0, err := reduced.Forward(-100, 40)
	require.NoError(t, err)
	assert.InDelta(t, 1000, x0, 1e-6)
	assert.InDelta(t, 0, y0, 1e-6)
}

func TestLambertConformalConic_EquatorialParallels(t *testing.T) {
	_, err := newLambertConformalConic(WGS84Ellipsoid, Params{})
	assert.Error(t, err)
}

func TestAlbers_Snyder(t *testing.T) {
	p, err := newAlbersEqualArea(clarke1866, Params{
		StandardParallel1: 29.5, hasParallel1: true,
		StandardParallel2: 45.5, hasParallel2: true,
		LatitudeOfOrigin: 23,
		CentralMeridian:  -96,
	})
	require.NoError(t, err)

	x, y, err := p.Forward(-75, 35)
	require.NoError(t, err)
	assert.InDelta(t, 1885472.7, x, 0.1)
	assert.InDelta(t, 1535925.0, y, 0.1)

	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -75, lon, 1e-9)
	assert.InDelta(t, 35, lat, 1e-9)
}

func TestAlbers_Sphere(t *testing.T) {
	p, err := newAlbersEqualArea(Ellipsoid{A: 6370997}, Params{
		StandardParallel1: 29.5, hasParallel1: true,
		StandardParallel2: 45.5, hasParallel2: true,
		LatitudeOfOrigin: 23,
		CentralMeridian:  -96,
	})
	require.NoError(t, err)

	x, y, err := p.Forward(-110.25, 41.75)
	require.NoError(t, err)
	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -110.25, lon, 1e-7)
	assert.InDelta(t, 41.75, lat, 1e-7)
}

func TestLambertAzimuthalEqualArea(t *testing.T) {
	p := newLambertAzimuthalEqualArea(Ellipsoid{A: 6378137, InvF: 298.257222101}, Params{
		LatitudeOfOrigin: 52,
		CentralMeridian:  10,
		FalseEasting:     4321000,
		FalseNorthing:    3210000,
	})

	x, y, err := p.Forward(10, 52)
	require.NoError(t, err)
	assert.InDelta(t, 4321000, x, 1e-6)
	assert.InDelta(t, 3210000, y, 1e-6)

	x, y, err = p.Forward(5, 50)
	require.NoError(t, err)
	assert.InDelta(t, 3962799.45, x, 0.01)
	assert.InDelta(t, 2999718.85, y, 0.01)
	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 5, lon, 1e-7)
	assert.InDelta(t, 50, lat, 1e-7)
}

func TestWebMercator(t *testing.T) {
	p := WebMercator()

	x, y, err := p.Forward(180, 45)
	require.NoError(t, err)
	assert.InDelta(t, 20037508.342789244, x, 1e-6)
	assert.InDelta(t, 5621521.486192066, y, 1e-6)

	lon, lat, err := p.Inverse(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 180, lon, 1e-9)
	assert.InDelta(t, 45, lat, 1e-9)

	_, _, err = p.Forward(0, 89.9)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestAuxiliarySphere_CentralMeridian(t *testing.T) {
	p := newAuxiliarySphere(WGS84Ellipsoid, Params{CentralMeridian: 150, FalseEasting: 100})

	x, _, err := p.Forward(-170, 0)
	require.NoError(t, err)
	assert.InDelta(t, 20037508.342789244/180*40+100, x, 1e-6)

	lon, _, err := p.Inverse(x, 0)
	require.NoError(t, err)
	assert.InDelta(t, -170, lon, 1e-9)
}

func TestForward_OutOfRange(t *testing.T) {
	p, err := UTM(18, false)
	require.NoError(t, err)
	_, _, err = p.Forward(-75, 91)
	assert.ErrorIs(t, err, ErrOutOfRange)

	albers, err := newAlbersEqualArea(WGS84Ellipsoid, Params{
		StandardParallel1: 29.5, hasParallel1: true,
		StandardParallel2: 45.5, hasParallel2: true,
	})
	require.NoError(t, err)
	_, _, err = albers.Inverse(1e9, 1e9)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFromEPSG(t *testing.T) {
	for _, code := range []int{4326, 4269, 3857, 32618, 32755, 27700} {
		p, err := FromEPSG(code)
		require.NoError(t, err, code)
		assert.NotNil(t, p)
	}

	p, err := FromEPSG(4326)
	require.NoError(t, err)
	assert.True(t, IsGeographic(p))

	nad83, err := FromEPSG(4269)
	require.NoError(t, err)
	require.True(t, IsGeographic(nad83))
	assert.InDelta(t, 298.257222101, nad83.(*Geographic).Ellipsoid.InvF, 1e-9)

	utm, err := FromEPSG(32618)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32618", utm.Name())
	x, y, err := utm.Forward(-75, 40)
	require.NoError(t, err)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 4427757.219, y, 0.01)

	for _, code := range []int{2263, 4978} {
		_, err := FromEPSG(code)
		assert.Error(t, err, code)
	}
}

func TestTransform(t *testing.T) {
	utm, err := UTM(18, false)
	require.NoError(t, err)

	x, y, err := Transform(WGS84(), utm, -76.5, 37.25)
	require.NoError(t, err)

	lon, lat, err := Transform(utm, WGS84(), x, y)
	require.NoError(t, err)
	assert.InDelta(t, -76.5, lon, 1e-8)
	assert.InDelta(t, 37.25, lat, tmLatTolerance)
}

func TestNormalizeLon(t *testing.T) {
	assert.Equal(t, 180.0, normalizeLon(180))
	assert.Equal(t, -180.0, normalizeLon(-180))
	assert.InDelta(t, -170, normalizeLon(190), 1e-12)
	assert.InDelta(t, 170, normalizeLon(-550), 1e-12)
}
