package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// DefaultSchema is used when a table name has no schema part.
const DefaultSchema = "public"

// TableName is a schema-qualified table name.
type TableName struct {
	Schema string
	Table  string
}

// ParseTableName splits "schema.table" or "table". Names are used as given;
// they are quoted when rendered into SQL.
func ParseTableName(s string) (TableName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TableName{}, eris.New("db: empty table name")
	}
	schema, table, found := strings.Cut(s, ".")
	if !found {
		return TableName{Schema: DefaultSchema, Table: s}, nil
	}
	if schema == "" || table == "" || strings.Contains(table, ".") {
		return TableName{}, eris.Errorf("db: invalid table name %q (want schema.table)", s)
	}
	return TableName{Schema: schema, Table: table}, nil
}

// Sanitize returns the quoted, schema-qualified name.
func (n TableName) Sanitize() string {
	return pgx.Identifier{n.Schema, n.Table}.Sanitize()
}

func (n TableName) String() string {
	return n.Schema + "." + n.Table
}

// Column is one column of a table definition. Type is raw SQL.
type Column struct {
	Name string
	Type string
}

// TableExists reports whether the table is present.
func TableExists(ctx context.Context, q Querier, name TableName) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		name.Schema, name.Table,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "db: check table %s", name)
	}
	return exists, nil
}

// DropTable drops the table if it exists.
func DropTable(ctx context.Context, q Querier, name TableName) error {
	if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS "+name.Sanitize()); err != nil {
		return eris.Wrapf(err, "db: drop table %s", name)
	}
	return nil
}

// CreateTable creates the table with the given columns.
func CreateTable(ctx context.Context, q Querier, name TableName, columns []Column) error {
	if len(columns) == 0 {
		return eris.Errorf("db: create table %s: no columns", name)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)
	}
	sql := fmt.Sprintf("CREATE TABLE %s (%s)", name.Sanitize(), strings.Join(defs, ", "))
	if _, err := q.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "db: create table %s", name)
	}
	return nil
}

// ReplaceTable creates the table in one transaction, dropping any existing
// table first when overwrite is set.
func ReplaceTable(ctx context.Context, pool Pool, name TableName, columns []Column, overwrite bool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if overwrite {
		if err := DropTable(ctx, tx, name); err != nil {
			return err
		}
	}
	if err := CreateTable(ctx, tx, name, columns); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "db: commit create table %s", name)
	}
	return nil
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
