package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Inserter inserts single rows with a prepared INSERT statement text.
// Each Insert runs in its own implicit transaction so a rejected row does
// not affect the others.
type Inserter struct {
	q     Querier
	name  TableName
	sql   string
	nargs int
}

// NewInserter builds the INSERT for columns. wrap optionally maps a column
// to an SQL expression around its placeholder, with %s standing for the
// placeholder (e.g. "ST_GeomFromEWKB(%s)").
func NewInserter(q Querier, name TableName, columns []string, wrap map[string]string) *Inserter {
	values := make([]string, len(columns))
	for i, c := range columns {
		ph := fmt.Sprintf("$%d", i+1)
		if expr, ok := wrap[c]; ok {
			ph = fmt.Sprintf(expr, ph)
		}
		values[i] = ph
	}
	return &Inserter{
		q:     q,
		name:  name,
		nargs: len(columns),
		sql: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			name.Sanitize(), quoteAndJoin(columns), strings.Join(values, ", ")),
	}
}

// SQL returns the statement text.
func (in *Inserter) SQL() string { return in.sql }

// Insert writes one row. args must match the columns in order.
func (in *Inserter) Insert(ctx context.Context, args ...any) error {
	if len(args) != in.nargs {
		return eris.Errorf("db: insert into %s: got %d values for %d columns", in.name, len(args), in.nargs)
	}
	if _, err := in.q.Exec(ctx, in.sql, args...); err != nil {
		return eris.Wrapf(err, "db: insert into %s", in.name)
	}
	return nil
}
