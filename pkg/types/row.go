package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ColumnType describes how a column's values are compared and displayed
type ColumnType string

const (
	ColumnString      ColumnType = "string"
	ColumnNumber      ColumnType = "number"
	ColumnDate        ColumnType = "date"
	ColumnCategorical ColumnType = "categorical"
)

// Valid reports whether t is one of the known column types
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnString, ColumnNumber, ColumnDate, ColumnCategorical:
		return true
	}
	return false
}

// Row is a single record keyed by column key. Values are scalars:
// strings, Go numeric types, time.Time, bool or nil.
type Row map[string]any

// Column describes one field of the dataset schema
type Column struct {
	Key  string
	Type ColumnType
}

// Validate checks if the column definition is valid
func (c Column) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return ErrEmptyColumnKey
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownColumnType, c.Type)
	}
	return nil
}

// Dataset is a fully materialized table: an ordered row sequence plus its schema
type Dataset struct {
	Name    string
	Columns []Column
	Rows    []Row
}

// Validate checks the schema for empty, unknown or duplicate columns
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Columns))
	for _, col := range d.Columns {
		if err := col.Validate(); err != nil {
			return err
		}
		if seen[col.Key] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, col.Key)
		}
		seen[col.Key] = true
	}
	return nil
}

// InferColumns derives string columns from the sorted union of row keys.
// Used when a collaborator supplies rows without a schema.
func InferColumns(rows []Row) []Column {
	keys := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			keys[k] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	columns := make([]Column, len(sorted))
	for i, k := range sorted {
		columns[i] = Column{Key: k, Type: ColumnString}
	}
	return columns
}

// FormatValue stringifies a field value the same way for indexing, scanning
// and canonical filter keys. nil becomes the empty string.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// ToNumber parses v as a float64. Missing, boolean and non-numeric values
// yield NaN so that every ordered comparison against them is false.
func ToNumber(v any) float64 {
	switch val := v.(type) {
	case nil, bool:
		return math.NaN()
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return math.NaN()
		}
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return math.NaN()
		}
		return f
	}

	if f, ok := numericValue(v); ok {
		return f
	}
	return math.NaN()
}

// ToTime parses v as a date. Strings accept the layouts understood by
// cast (RFC3339, 2006-01-02, 2006-01-02 15:04:05, ...); numbers are Unix
// milliseconds. The boolean result is false when v is not a date.
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil, bool:
		return time.Time{}, false
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	if f, ok := numericValue(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Time{}, false
}

// ValuesEqual is strict equality between two field values: numbers compare
// by value across Go numeric types, everything else requires the same kind.
// A string never equals a number.
func ValuesEqual(a, b any) bool {
	if af, ok := numericValue(a); ok {
		bf, ok := numericValue(b)
		return ok && af == bf
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return false
}

// IsNumeric reports whether v holds a Go numeric type
func IsNumeric(v any) bool {
	_, ok := numericValue(v)
	return ok
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
