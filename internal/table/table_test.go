package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textCol(name string, vals ...string) *Column {
	c := &Column{Name: name, Type: Object, Text: vals, Null: make([]bool, len(vals))}
	for i, v := range vals {
		c.Null[i] = v == ""
	}
	return c
}

func floatCol(name string, vals []float64, nulls []bool) *Column {
	return &Column{Name: name, Type: Float64, Float: vals, Null: nulls}
}

func TestNew_DuplicateColumn(t *testing.T) {
	_, err := New(textCol("a", "x"), textCol("a", "y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestNew_RaggedColumns(t *testing.T) {
	_, err := New(textCol("a", "x", "y"), textCol("b", "z"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 1 rows, want 2")
}

func TestTable_RowAndLookup(t *testing.T) {
	tbl, err := New(
		textCol("site_no", "01646500", "02037500"),
		floatCol("dec_lat_va", []float64{37.65, 0}, []bool{false, true}),
		&Column{Name: "n", Type: Int64, Int: []int64{1, 2}, Null: []bool{false, false}},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"site_no", "dec_lat_va", "n"}, tbl.Names())
	assert.Equal(t, []any{"01646500", 37.65, int64(1)}, tbl.Row(0))
	assert.Equal(t, []any{"02037500", nil, int64(2)}, tbl.Row(1))

	c, ok := tbl.Column("dec_lat_va")
	require.True(t, ok)
	assert.Equal(t, Float64, c.Type)
	assert.True(t, c.IsNull(1))

	_, ok = tbl.Column("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.NullCount())
}

func TestTable_FilterKeepsTypes(t *testing.T) {
	tbl, err := New(
		textCol("site_no", "a", "b", "c"),
		floatCol("v", []float64{1, 2, 3}, []bool{false, false, false}),
	)
	require.NoError(t, err)

	out := tbl.Filter(func(i int) bool { return i != 1 })
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 3, tbl.Len())

	c, _ := out.Column("v")
	assert.Equal(t, Float64, c.Type)
	assert.Equal(t, []float64{1, 3}, c.Float)

	s, _ := out.Column("site_no")
	assert.Equal(t, []string{"a", "c"}, s.Text)
}

func TestTable_FilterNothing(t *testing.T) {
	tbl, err := New(textCol("a", "x"))
	require.NoError(t, err)

	out := tbl.Filter(func(int) bool { return false })
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"a"}, out.Names())
}

func TestStorageType_String(t *testing.T) {
	assert.Equal(t, "object", Object.String())
	assert.Equal(t, "float64", Float64.String())
	assert.Equal(t, "int64", Int64.String())
	assert.Equal(t, "bool", Bool.String())
	assert.Equal(t, "unknown", StorageType(42).String())
	assert.True(t, Int64.IsNumeric())
	assert.False(t, Bool.IsNumeric())
}

func TestNormalize_ReplacesNulls(t *testing.T) {
	tbl, err := New(
		textCol("station_nm", "A", "", "C", ""),
		floatCol("alt_va", []float64{10, 0, 0, 4}, []bool{false, true, true, false}),
		floatCol("drain_area_va", []float64{0, 2, 3, 4}, []bool{true, false, false, false}),
		&Column{Name: "flag", Type: Bool, Bool: []bool{true, false, true, false}, Null: make([]bool, 4)},
	)
	require.NoError(t, err)
	require.Equal(t, 5, tbl.NullCount())

	out := Normalize(tbl, DefaultSentinels())

	assert.Equal(t, 0, out.NullCount())
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, tbl.Names(), out.Names())

	numeric := 0
	text := 0
	for _, c := range out.Columns() {
		for i := 0; i < c.Len(); i++ {
			switch c.Type {
			case Float64:
				if c.Float[i] == DefaultNumericSentinel {
					numeric++
				}
			case Object:
				if c.Text[i] == "" {
					text++
				}
			}
		}
	}
	assert.Equal(t, 3, numeric)
	assert.Equal(t, 2, text)

	// source is untouched
	assert.Equal(t, 5, tbl.NullCount())
}

func TestNormalize_CustomSentinels(t *testing.T) {
	tbl, err := New(
		textCol("a", ""),
		floatCol("b", []float64{0}, []bool{true}),
		&Column{Name: "c", Type: Int64, Int: []int64{0}, Null: []bool{true}},
	)
	require.NoError(t, err)

	out := Normalize(tbl, Sentinels{Numeric: -1, Text: "n/a"})
	assert.Equal(t, []any{"n/a", -1.0, int64(-1)}, out.Row(0))
}
