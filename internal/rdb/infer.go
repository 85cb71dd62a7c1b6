package rdb

import (
	"strconv"

	"github.com/sells-group/usgs-gages/internal/table"
)

// naValues are the cell contents read as missing.
var naValues = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

var boolValues = map[string]bool{
	"True":  true,
	"TRUE":  true,
	"true":  true,
	"False": false,
	"FALSE": false,
	"false": false,
}

// IsMissing reports whether a raw cell reads as a missing value.
func IsMissing(v string) bool {
	return naValues[v]
}

// InferType picks the storage type for a column from its raw values.
// Integers with gaps widen to Float64 and booleans with gaps fall back to
// Object, so only Float64 and Object columns carry nulls.
func InferType(values []string, forceText bool) table.StorageType {
	if forceText || len(values) == 0 {
		return table.Object
	}

	var present, ints, floats, bools int
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		present++
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			ints++
			floats++
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			floats++
			continue
		}
		if _, ok := boolValues[v]; ok {
			bools++
		}
	}

	switch {
	case present == 0:
		return table.Float64
	case ints == present && present == len(values):
		return table.Int64
	case floats == present:
		return table.Float64
	case bools == present && present == len(values):
		return table.Bool
	default:
		return table.Object
	}
}

func buildColumn(name string, values []string, forceText bool) *table.Column {
	c := &table.Column{
		Name: name,
		Type: InferType(values, forceText),
		Null: make([]bool, len(values)),
	}

	switch c.Type {
	case table.Int64:
		c.Int = make([]int64, len(values))
	case table.Float64:
		c.Float = make([]float64, len(values))
	case table.Bool:
		c.Bool = make([]bool, len(values))
	default:
		c.Text = make([]string, len(values))
	}

	for i, v := range values {
		if IsMissing(v) {
			c.Null[i] = true
			continue
		}
		switch c.Type {
		case table.Int64:
			c.Int[i], _ = strconv.ParseInt(v, 10, 64)
		case table.Float64:
			c.Float[i], _ = strconv.ParseFloat(v, 64)
		case table.Bool:
			c.Bool[i] = boolValues[v]
		default:
			c.Text[i] = v
		}
	}
	return c
}
