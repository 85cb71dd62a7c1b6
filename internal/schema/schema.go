// Package schema derives output feature fields from a station table.
package schema

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/usgs-gages/internal/table"
)

// MaxFieldNameLen is the legacy field-name limit applied by TruncateName.
const MaxFieldNameLen = 10

// FieldType is an output field category.
type FieldType string

// Output field categories.
const (
	Text   FieldType = "TEXT"
	Double FieldType = "DOUBLE"
	Long   FieldType = "LONG"
)

// ErrUnsupportedType is returned for storage types with no output category.
var ErrUnsupportedType = eris.New("schema: unsupported column type")

// Field is an output field definition.
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type" json:"type"`
}

// TypeFor maps a storage type to its output category. The mapping is closed:
// any type not listed is an error.
func TypeFor(t table.StorageType) (FieldType, error) {
	switch t {
	case table.Object:
		return Text, nil
	case table.Float64:
		return Double, nil
	case table.Int64:
		return Long, nil
	default:
		return "", eris.Wrapf(ErrUnsupportedType, "storage type %s", t)
	}
}

// TruncateName returns the first MaxFieldNameLen characters of name.
// Distinct names sharing a prefix truncate to the same result.
func TruncateName(name string) string {
	r := []rune(name)
	if len(r) <= MaxFieldNameLen {
		return name
	}
	return string(r[:MaxFieldNameLen])
}

// Fields returns one field per table column, in column order.
func Fields(t *table.Table, truncate bool) ([]Field, error) {
	fields := make([]Field, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		ft, err := TypeFor(c.Type)
		if err != nil {
			return nil, eris.Wrapf(err, "schema: column %q", c.Name)
		}
		name := c.Name
		if truncate {
			name = TruncateName(name)
		}
		fields = append(fields, Field{Name: name, Type: ft})
	}
	return fields, nil
}

// Names returns the field names in order.
func Names(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
