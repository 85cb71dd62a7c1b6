package proj

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// WGS84WKT is the ESRI WKT written to .prj files for EPSG:4326.
const WGS84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// node is one KEYWORD[...] element of a WKT tree. Args hold strings, float64
// values and child nodes in document order.
type node struct {
	Name string
	Args []any
}

func (n *node) child(name string) *node {
	for _, a := range n.Args {
		if c, ok := a.(*node); ok && strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (n *node) children(name string) []*node {
	var out []*node
	for _, a := range n.Args {
		if c, ok := a.(*node); ok && strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) str(i int) string {
	if i < len(n.Args) {
		if s, ok := n.Args[i].(string); ok {
			return s
		}
	}
	return ""
}

func (n *node) num(i int) (float64, bool) {
	if i < len(n.Args) {
		if f, ok := n.Args[i].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

type wktParser struct {
	src string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *wktParser) parseNode() (*node, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (isIdent(p.src[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return nil, eris.Errorf("proj: wkt: expected keyword at offset %d", start)
	}
	n := &node{Name: p.src[start:p.pos]}

	open := p.peek()
	if open != '[' && open != '(' {
		return nil, eris.Errorf("proj: wkt: expected '[' after %s", n.Name)
	}
	p.pos++
	closer := byte(']')
	if open == '(' {
		closer = ')'
	}

	for {
		c := p.peek()
		switch {
		case c == 0:
			return nil, eris.Errorf("proj: wkt: unterminated %s", n.Name)
		case c == closer:
			p.pos++
			return n, nil
		case c == ',':
			p.pos++
		case c == '"':
			s, err := p.parseString()
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, s)
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			f, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, f)
		case isIdent(c):
			if word, ok := p.bareWord(); ok {
				// AXIS["Easting",EAST]
				n.Args = append(n.Args, word)
				continue
			}
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, child)
		default:
			return nil, eris.Errorf("proj: wkt: unexpected %q at offset %d", c, p.pos)
		}
	}
}

// bareWord consumes an identifier that is not followed by a bracket.
func (p *wktParser) bareWord() (string, bool) {
	start := p.pos
	for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
		p.pos++
	}
	word := p.src[start:p.pos]
	if c := p.peek(); c == '[' || c == '(' {
		p.pos = start
		return "", false
	}
	return word, true
}

func (p *wktParser) parseString() (string, error) {
	p.pos++ // opening quote
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", eris.New("proj: wkt: unterminated string")
	}
	s := p.src[start:p.pos]
	p.pos++
	return s, nil
}

func (p *wktParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE", p.src[p.pos]) >= 0 {
		p.pos++
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, eris.Wrapf(err, "proj: wkt: number at offset %d", start)
	}
	return f, nil
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func parseWKTTree(s string) (*node, error) {
	p := &wktParser{src: s}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	if p.peek() != 0 {
		return nil, eris.Errorf("proj: wkt: trailing data at offset %d", p.pos)
	}
	return root, nil
}

// ParseWKT builds a Projection from a WKT1 coordinate system definition as
// found in shapefile .prj files. A top-level EPSG authority known to FromEPSG
// wins over the written parameters.
func ParseWKT(s string) (Projection, error) {
	root, err := parseWKTTree(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}

	if code, ok := authorityCode(root); ok {
		if p, err := FromEPSG(code); err == nil {
			return p, nil
		}
	}

	switch strings.ToUpper(root.Name) {
	case "GEOGCS":
		el, err := ellipsoidOf(root)
		if err != nil {
			return nil, err
		}
		return &Geographic{Ellipsoid: el}, nil
	case "PROJCS":
		return parseProjected(root)
	}
	return nil, eris.Errorf("proj: unsupported coordinate system %s", root.Name)
}

func ellipsoidOf(geogcs *node) (Ellipsoid, error) {
	datum := geogcs.child("DATUM")
	if datum == nil {
		return Ellipsoid{}, eris.New("proj: wkt: GEOGCS without DATUM")
	}
	sph := datum.child("SPHEROID")
	if sph == nil {
		sph = datum.child("ELLIPSOID")
	}
	if sph == nil {
		return Ellipsoid{}, eris.New("proj: wkt: DATUM without SPHEROID")
	}
	a, ok := sph.num(1)
	if !ok || a <= 0 {
		return Ellipsoid{}, eris.Errorf("proj: wkt: bad semi-major axis in %s", sph.str(0))
	}
	invf, _ := sph.num(2)
	return Ellipsoid{A: a, InvF: invf}, nil
}

func parseProjected(root *node) (Projection, error) {
	geogcs := root.child("GEOGCS")
	if geogcs == nil {
		return nil, eris.New("proj: wkt: PROJCS without GEOGCS")
	}
	el, err := ellipsoidOf(geogcs)
	if err != nil {
		return nil, err
	}

	method := root.child("PROJECTION")
	if method == nil {
		return nil, eris.New("proj: wkt: PROJCS without PROJECTION")
	}

	toMeters := 1.0
	if unit := root.child("UNIT"); unit != nil {
		if f, ok := unit.num(1); ok && f > 0 {
			toMeters = f
		}
	}

	params := readParams(root.children("PARAMETER"), toMeters)

	var p *projected
	switch normalizeName(method.str(0)) {
	case "transverse_mercator", "gauss_kruger":
		p = newTransverseMercator(el, params)
	case "lambert_conformal_conic", "lambert_conformal_conic_1sp", "lambert_conformal_conic_2sp":
		p, err = newLambertConformalConic(el, params)
	case "albers", "albers_conic_equal_area":
		p, err = newAlbersEqualArea(el, params)
	case "lambert_azimuthal_equal_area":
		p = newLambertAzimuthalEqualArea(el, params)
	case "mercator_auxiliary_sphere", "popular_visualisation_pseudo_mercator":
		p = newAuxiliarySphere(el, params)
	default:
		return nil, eris.Errorf("proj: unsupported projection %q", method.str(0))
	}
	if err != nil {
		return nil, err
	}
	p.toMeters = toMeters
	return p, nil
}

// authorityCode returns the EPSG code of an AUTHORITY["EPSG","N"] child.
func authorityCode(n *node) (int, bool) {
	auth := n.child("AUTHORITY")
	if auth == nil || !strings.EqualFold(auth.str(0), "EPSG") {
		return 0, false
	}
	if f, ok := auth.num(1); ok {
		return int(f), true
	}
	code, err := strconv.Atoi(strings.TrimSpace(auth.str(1)))
	if err != nil {
		return 0, false
	}
	return code, true
}

func readParams(nodes []*node, toMeters float64) Params {
	var p Params
	for _, n := range nodes {
		v, ok := n.num(1)
		if !ok {
			continue
		}
		switch normalizeName(n.str(0)) {
		case "false_easting":
			p.FalseEasting = v * toMeters
		case "false_northing":
			p.FalseNorthing = v * toMeters
		case "central_meridian", "longitude_of_center", "longitude_of_origin":
			p.CentralMeridian = v
		case "latitude_of_origin", "latitude_of_center":
			p.LatitudeOfOrigin = v
		case "standard_parallel_1":
			p.StandardParallel1 = v
			p.hasParallel1 = true
		case "standard_parallel_2":
			p.StandardParallel2 = v
			p.hasParallel2 = true
		case "scale_factor":
			p.ScaleFactor = v
		}
	}
	return p
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}
