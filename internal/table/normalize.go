package table

// DefaultNumericSentinel replaces missing numbers in formats without nulls.
const DefaultNumericSentinel = -9999

// Sentinels are the values substituted for missing cells.
type Sentinels struct {
	Numeric float64
	Text    string
}

// DefaultSentinels returns -9999 for numbers and the empty string for text.
func DefaultSentinels() Sentinels {
	return Sentinels{Numeric: DefaultNumericSentinel, Text: ""}
}

// Normalize returns a copy of t with every missing numeric cell set to
// s.Numeric and every missing text cell set to s.Text. Column types and row
// count are unchanged. Boolean columns never hold nulls and are copied as is.
func Normalize(t *Table, s Sentinels) *Table {
	all := make([]int, t.rows)
	for i := range all {
		all[i] = i
	}

	cols := make([]*Column, len(t.columns))
	for j, c := range t.columns {
		out := c.subset(all)
		for i, null := range out.Null {
			if !null {
				continue
			}
			switch out.Type {
			case Float64:
				out.Float[i] = s.Numeric
			case Int64:
				out.Int[i] = int64(s.Numeric)
			case Object:
				out.Text[i] = s.Text
			default:
				continue
			}
			out.Null[i] = false
		}
		cols[j] = out
	}
	return &Table{columns: cols, byName: t.byName, rows: t.rows}
}
