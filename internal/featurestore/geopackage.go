package featurestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/usgs-gages/internal/proj"
	"github.com/sells-group/usgs-gages/internal/schema"
)

// GeoPackage header values: application_id is "GPKG", user_version 1.3.0.
const (
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10300
)

const gpkgCoreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL UNIQUE REFERENCES gpkg_contents(table_name),
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);
`

// GeoPackage writes a single point layer, named after the file, to an OGC
// GeoPackage. All features are written in one transaction committed by
// Close; a failed insert only rolls back its own statement.
type GeoPackage struct {
	path  string
	layer string

	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt
	fields []schema.Field
	bounds *geom.Bounds
	rows   int
}

// NewGeoPackage prepares a GeoPackage destination at path.
func NewGeoPackage(path string) *GeoPackage {
	return &GeoPackage{
		path:   path,
		layer:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		bounds: geom.NewBounds(geom.XY),
	}
}

// Name implements Destination.
func (g *GeoPackage) Name() string { return g.path }

// SupportsNull implements Destination.
func (g *GeoPackage) SupportsNull() bool { return true }

// Layer returns the feature table name.
func (g *GeoPackage) Layer() string { return g.layer }

// Create implements Destination. An existing file at the path is replaced.
func (g *GeoPackage) Create(ctx context.Context, fields []schema.Field) error {
	if g.db != nil {
		return eris.Errorf("featurestore: %s already created", g.path)
	}
	if err := checkFields(fields, "fid", "geom"); err != nil {
		return err
	}
	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "featurestore: remove %s", g.path)
	}

	db, err := sql.Open("sqlite", g.path)
	if err != nil {
		return eris.Wrap(err, "featurestore: open geopackage")
	}
	// The transaction must own the only connection.
	db.SetMaxOpenConns(1)

	if err := g.initialize(ctx, db, fields); err != nil {
		db.Close() //nolint:errcheck
		return err
	}
	g.db = db
	g.fields = fields
	return nil
}

func (g *GeoPackage) initialize(ctx context.Context, db *sql.DB, fields []schema.Field) error {
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version=%d", gpkgUserVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "featurestore: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "featurestore: begin geopackage tx")
	}
	if err := g.createLayer(ctx, tx, fields); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	cols := make([]string, 0, len(fields)+1)
	marks := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent("geom"))
	marks = append(marks, "?")
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(g.layer), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return eris.Wrap(err, "featurestore: prepare geopackage insert")
	}
	g.tx = tx
	g.insert = stmt
	return nil
}

func (g *GeoPackage) createLayer(ctx context.Context, tx *sql.Tx, fields []schema.Field) error {
	if _, err := tx.ExecContext(ctx, gpkgCoreSchema); err != nil {
		return eris.Wrap(err, "featurestore: create geopackage tables")
	}

	const srsInsert = `INSERT INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		VALUES (?, ?, ?, ?, ?, ?)`
	srs := [][]any{
		{"Undefined cartesian SRS", -1, "NONE", -1, "undefined", "undefined cartesian coordinate reference system"},
		{"Undefined geographic SRS", 0, "NONE", 0, "undefined", "undefined geographic coordinate reference system"},
		{"WGS 84 geodetic", SRID, "EPSG", SRID, proj.WGS84WKT, "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid"},
	}
	for _, args := range srs {
		if _, err := tx.ExecContext(ctx, srsInsert, args...); err != nil {
			return eris.Wrap(err, "featurestore: insert spatial reference")
		}
	}

	defs := []string{
		quoteIdent("fid") + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL",
		quoteIdent("geom") + " POINT",
	}
	for _, f := range fields {
		typ, err := gpkgType(f.Type)
		if err != nil {
			return eris.Wrapf(err, "field %s", f.Name)
		}
		defs = append(defs, quoteIdent(f.Name)+" "+typ)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(g.layer), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "featurestore: create layer %s", g.layer)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)`,
		g.layer, g.layer, SRID,
	); err != nil {
		return eris.Wrap(err, "featurestore: register layer contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', 'POINT', ?, 0, 0)`,
		g.layer, SRID,
	); err != nil {
		return eris.Wrap(err, "featurestore: register geometry column")
	}
	return nil
}

func gpkgType(t schema.FieldType) (string, error) {
	switch t {
	case schema.Text:
		return "TEXT", nil
	case schema.Double:
		return "DOUBLE", nil
	case schema.Long:
		return "INTEGER", nil
	}
	return "", eris.Wrapf(schema.ErrUnsupportedType, "type %s", t)
}

// Insert implements Destination.
func (g *GeoPackage) Insert(ctx context.Context, f Feature) error {
	if g.insert == nil {
		return eris.New("featurestore: geopackage insert before create")
	}
	values, err := attrValues(f, g.fields)
	if err != nil {
		return err
	}
	pt := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{f.Lon, f.Lat})
	blob, err := gpkgGeometry(pt)
	if err != nil {
		return eris.Wrapf(err, "featurestore: feature %s", f.Key)
	}
	if _, err := g.insert.ExecContext(ctx, append([]any{blob}, values...)...); err != nil {
		return eris.Wrapf(err, "featurestore: insert feature %s", f.Key)
	}
	g.bounds.Extend(pt)
	g.rows++
	return nil
}

// gpkgGeometry encodes a GeoPackage geometry blob: the "GP" header with a
// little-endian flag and no envelope, the SRS id, then standard WKB.
func gpkgGeometry(g geom.T) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode wkb")
	}
	header := []byte{'G', 'P', 0, 0x01, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(header[4:], uint32(SRID))
	return append(header, body...), nil
}

// Close records the layer extent, commits and closes the database.
func (g *GeoPackage) Close() error {
	if g.db == nil {
		return nil
	}
	defer func() {
		g.db.Close() //nolint:errcheck
		g.db, g.tx, g.insert = nil, nil, nil
	}()

	g.insert.Close() //nolint:errcheck
	if !g.bounds.IsEmpty() {
		if _, err := g.tx.Exec(
			`UPDATE gpkg_contents SET min_x = ?, min_y = ?, max_x = ?, max_y = ? WHERE table_name = ?`,
			g.bounds.Min(0), g.bounds.Min(1), g.bounds.Max(0), g.bounds.Max(1), g.layer,
		); err != nil {
			g.tx.Rollback() //nolint:errcheck
			return eris.Wrap(err, "featurestore: update layer extent")
		}
	}
	if err := g.tx.Commit(); err != nil {
		return eris.Wrapf(err, "featurestore: commit %s", g.path)
	}
	return nil
}

// Abort implements Destination. The transaction is rolled back and the file
// removed.
func (g *GeoPackage) Abort() error {
	if g.db == nil {
		return nil
	}
	g.insert.Close() //nolint:errcheck
	g.tx.Rollback()  //nolint:errcheck
	g.db.Close()     //nolint:errcheck
	g.db, g.tx, g.insert = nil, nil, nil
	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "featurestore: remove %s", g.path)
	}
	return nil
}

// Rows returns the number of features written.
func (g *GeoPackage) Rows() int { return g.rows }

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
