// Package table holds the in-memory station table produced by the RDB parser.
package table

import (
	"github.com/rotisserie/eris"
)

// StorageType is the inferred storage type of a column.
type StorageType int

const (
	// Object holds generic text values.
	Object StorageType = iota
	Float64
	Int64
	Bool
)

func (t StorageType) String() string {
	switch t {
	case Object:
		return "object"
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	}
	return "unknown"
}

// IsNumeric reports whether the type holds numbers.
func (t StorageType) IsNumeric() bool {
	return t == Float64 || t == Int64
}

// Column is a single typed column. Only the slice matching Type is populated;
// Null marks missing cells.
type Column struct {
	Name  string
	Type  StorageType
	Text  []string
	Float []float64
	Int   []int64
	Bool  []bool
	Null  []bool
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	return len(c.Null)
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	return c.Null[i]
}

// Value returns the cell at row i as a Go value, or nil when missing.
func (c *Column) Value(i int) any {
	if c.Null[i] {
		return nil
	}
	switch c.Type {
	case Float64:
		return c.Float[i]
	case Int64:
		return c.Int[i]
	case Bool:
		return c.Bool[i]
	default:
		return c.Text[i]
	}
}

// NullCount returns the number of missing cells.
func (c *Column) NullCount() int {
	n := 0
	for _, null := range c.Null {
		if null {
			n++
		}
	}
	return n
}

func (c *Column) subset(keep []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type, Null: make([]bool, len(keep))}
	switch c.Type {
	case Float64:
		out.Float = make([]float64, len(keep))
	case Int64:
		out.Int = make([]int64, len(keep))
	case Bool:
		out.Bool = make([]bool, len(keep))
	default:
		out.Text = make([]string, len(keep))
	}
	for j, i := range keep {
		out.Null[j] = c.Null[i]
		switch c.Type {
		case Float64:
			out.Float[j] = c.Float[i]
		case Int64:
			out.Int[j] = c.Int[i]
		case Bool:
			out.Bool[j] = c.Bool[i]
		default:
			out.Text[j] = c.Text[i]
		}
	}
	return out
}

// Table is a rectangular set of columns sharing the same row count.
type Table struct {
	columns []*Column
	byName  map[string]int
	rows    int
}

// New builds a table from columns. All columns must have the same length and
// distinct names.
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: columns,
		byName:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.byName[c.Name]; dup {
			return nil, eris.Errorf("table: duplicate column %q", c.Name)
		}
		t.byName[c.Name] = i
		if i == 0 {
			t.rows = c.Len()
			continue
		}
		if c.Len() != t.rows {
			return nil, eris.Errorf("table: column %q has %d rows, want %d", c.Name, c.Len(), t.rows)
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.rows
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Names returns the column names in declaration order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Row returns the values of row i in column order; missing cells are nil.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Value(i)
	}
	return row
}

// NullCount returns the number of missing cells across the table.
func (t *Table) NullCount() int {
	n := 0
	for _, c := range t.columns {
		n += c.NullCount()
	}
	return n
}

// Filter returns a new table holding only the rows for which keep is true.
// Column types are left as they were.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var idx []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	cols := make([]*Column, len(t.columns))
	for j, c := range t.columns {
		cols[j] = c.subset(idx)
	}
	return &Table{columns: cols, byName: t.byName, rows: len(idx)}
}
