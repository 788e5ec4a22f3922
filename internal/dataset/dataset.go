package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Common errors
var (
	ErrNoHeader          = errors.New("table has no header row")
	ErrUnsupportedFormat = errors.New("unsupported table format")
)

// A column is categorical when it has at least categoricalMinRows values
// and at most one distinct value per categoricalRatio of them
const (
	categoricalMinRows = 10
	categoricalRatio   = 4
)

// ReadFile loads a table from path, choosing the reader by extension
// (.csv, .tsv, .xls). An empty name defaults to the file's base name.
func ReadFile(path, name string) (*types.Dataset, error) {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f, name, ',')
	case ".tsv":
		return ReadCSV(f, name, '\t')
	case ".xls":
		return ReadXLS(f, name, 0)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// fromRecords builds a typed dataset from a header and string cells.
// Columns whose non-empty cells are all numbers written in canonical form
// become number columns with float64 values; all dates become date columns; low-cardinality text
// becomes categorical. Empty cells in number and date columns are nil.
func fromRecords(name string, header []string, records [][]string) (*types.Dataset, error) {
	if len(header) == 0 {
		return nil, ErrNoHeader
	}

	columns := make([]types.Column, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := strings.TrimSpace(h)
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = types.Column{Key: key, Type: inferType(records, i)}
	}

	ds := &types.Dataset{Name: name, Columns: columns}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	ds.Rows = make([]types.Row, 0, len(records))
	for _, rec := range records {
		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col.Key] = convertCell(cell(rec, i), col.Type)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func inferType(records [][]string, col int) types.ColumnType {
	nonEmpty := 0
	numeric, dated := true, true
	distinct := make(map[string]struct{})

	for _, rec := range records {
		v := strings.TrimSpace(cell(rec, col))
		if v == "" {
			continue
		}
		nonEmpty++
		distinct[v] = struct{}{}

		if numeric && !isCanonicalNumber(v) {
			numeric = false
		}
		if dated {
			if _, ok := types.ToTime(v); !ok {
				dated = false
			}
		}
	}

	switch {
	case nonEmpty == 0:
		return types.ColumnString
	case numeric:
		return types.ColumnNumber
	case dated:
		return types.ColumnDate
	case nonEmpty >= categoricalMinRows && len(distinct)*categoricalRatio <= nonEmpty:
		return types.ColumnCategorical
	}
	return types.ColumnString
}

// isCanonicalNumber reports whether v parses as a number that formats back
// to exactly v. Codes such as "01001", "+5" or "1e3" and over-precise
// integers fail, so their columns keep the text as written.
func isCanonicalNumber(v string) bool {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return false
	}
	return strconv.FormatFloat(f, 'f', -1, 64) == v
}

func convertCell(raw string, typ types.ColumnType) any {
	v := strings.TrimSpace(raw)
	switch typ {
	case types.ColumnNumber:
		if v == "" {
			return nil
		}
		return cast.ToFloat64(v)
	case types.ColumnDate:
		if v == "" {
			return nil
		}
		return v
	}
	return v
}

// cell returns rec[i], or "" for short records
func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
