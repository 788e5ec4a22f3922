package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// ReadCSV reads a delimited table whose first record is the header.
// Records may be ragged; missing cells are empty.
func ReadCSV(r io.Reader, name string, delimiter rune) (*types.Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(records)+1, err)
		}
		if isEmptyRecord(rec) {
			continue
		}
		records = append(records, rec)
	}

	return fromRecords(name, header, records)
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
