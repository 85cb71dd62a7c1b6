package featurestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/usgs-gages/internal/db"
	"github.com/sells-group/usgs-gages/internal/schema"
)

// DefaultPostGISTable receives features when the URL names no table.
const DefaultPostGISTable = "public.usgs_gages"

const geomColumn = "geom"

// abortTimeout bounds cleanup after the run's own context is cancelled.
const abortTimeout = 10 * time.Second

// PostGIS writes features to a geometry(Point,4326) table. Rows are
// inserted one statement at a time so a rejected row leaves the rest.
type PostGIS struct {
	pool      db.Pool
	name      db.TableName
	overwrite bool
	closeFn   func()

	inserter *db.Inserter
	fields   []schema.Field
	rows     int
}

// openPostGIS connects to the database in target and checks the table
// named by its fragment.
func openPostGIS(ctx context.Context, target string, opts Options) (Destination, error) {
	dsn, fragment, _ := strings.Cut(target, "#")
	table, err := url.PathUnescape(fragment)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: table name %q", fragment)
	}
	if table == "" {
		table = DefaultPostGISTable
	}
	name, err := db.ParseTableName(table)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, dsn, opts.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "featurestore: connect postgis")
	}
	exists, err := db.TableExists(ctx, pool, name)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if exists && !opts.Overwrite {
		pool.Close()
		return nil, eris.Wrapf(ErrExists, "table %s", name)
	}
	return NewPostGIS(pool, name, opts.Overwrite, pool.Close), nil
}

// NewPostGIS writes to table name through pool. With overwrite set Create
// drops an existing table first. closeFn, if non-nil, runs on Close.
func NewPostGIS(pool db.Pool, name db.TableName, overwrite bool, closeFn func()) *PostGIS {
	return &PostGIS{pool: pool, name: name, overwrite: overwrite, closeFn: closeFn}
}

// Name implements Destination.
func (p *PostGIS) Name() string { return "postgis:" + p.name.String() }

// SupportsNull implements Destination.
func (p *PostGIS) SupportsNull() bool { return true }

// Create implements Destination.
func (p *PostGIS) Create(ctx context.Context, fields []schema.Field) error {
	if p.inserter != nil {
		return eris.Errorf("featurestore: %s already created", p.Name())
	}
	if err := checkFields(fields, geomColumn); err != nil {
		return err
	}

	cols := make([]db.Column, 0, len(fields)+1)
	names := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		typ, err := pgType(f.Type)
		if err != nil {
			return eris.Wrapf(err, "field %s", f.Name)
		}
		cols = append(cols, db.Column{Name: f.Name, Type: typ})
		names = append(names, f.Name)
	}
	cols = append(cols, db.Column{Name: geomColumn, Type: fmt.Sprintf("geometry(Point,%d)", SRID)})
	names = append(names, geomColumn)

	if err := db.ReplaceTable(ctx, p.pool, p.name, cols, p.overwrite); err != nil {
		return eris.Wrap(err, "featurestore: create postgis table")
	}
	zap.L().Debug("created postgis table",
		zap.String("component", "featurestore"),
		zap.String("table", p.name.String()),
		zap.Int("fields", len(fields)),
	)

	p.inserter = db.NewInserter(p.pool, p.name, names, map[string]string{
		geomColumn: "ST_GeomFromEWKB(%s)",
	})
	p.fields = fields
	return nil
}

func pgType(t schema.FieldType) (string, error) {
	switch t {
	case schema.Text:
		return "text", nil
	case schema.Double:
		return "double precision", nil
	case schema.Long:
		return "bigint", nil
	}
	return "", eris.Wrapf(schema.ErrUnsupportedType, "type %s", t)
}

// Insert implements Destination.
func (p *PostGIS) Insert(ctx context.Context, f Feature) error {
	if p.inserter == nil {
		return eris.New("featurestore: postgis insert before create")
	}
	values, err := attrValues(f, p.fields)
	if err != nil {
		return err
	}
	pt, err := pointEWKB(f.Lon, f.Lat)
	if err != nil {
		return eris.Wrapf(err, "featurestore: feature %s", f.Key)
	}
	if err := p.inserter.Insert(ctx, append(values, pt)...); err != nil {
		return eris.Wrapf(err, "featurestore: feature %s", f.Key)
	}
	p.rows++
	return nil
}

func pointEWKB(lon, lat float64) ([]byte, error) {
	pt := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{lon, lat}).SetSRID(SRID)
	b, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode ewkb")
	}
	return b, nil
}

// Close releases the connection pool.
func (p *PostGIS) Close() error {
	if p.closeFn != nil {
		p.closeFn()
		p.closeFn = nil
	}
	return nil
}

// Abort implements Destination. A table this destination created is dropped
// before the pool is released.
func (p *PostGIS) Abort() error {
	defer p.Close() //nolint:errcheck
	if p.inserter == nil {
		return nil
	}
	p.inserter = nil

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := db.DropTable(ctx, p.pool, p.name); err != nil {
		return eris.Wrapf(err, "featurestore: drop %s", p.name)
	}
	return nil
}

// Rows returns the number of features written.
func (p *PostGIS) Rows() int { return p.rows }
