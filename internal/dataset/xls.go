package dataset

import (
	"fmt"
	"io"

	"github.com/shakinm/xlsReader/xls"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// ReadXLS reads one sheet of a legacy Excel (BIFF) workbook. The first row
// of the sheet is the header.
func ReadXLS(r io.ReadSeeker, name string, sheetIndex int) (ds *types.Dataset, err error) {
	// xlsReader panics on some malformed workbooks
	defer func() {
		if rec := recover(); rec != nil {
			ds = nil
			err = fmt.Errorf("failed to parse xls: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse xls: %w", err)
	}
	if sheetIndex < 0 || sheetIndex >= wb.GetNumberSheets() {
		return nil, fmt.Errorf("sheet %d out of range (workbook has %d)", sheetIndex, wb.GetNumberSheets())
	}

	sheet, err := wb.GetSheet(sheetIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %d: %w", sheetIndex, err)
	}

	var (
		header  []string
		records [][]string
	)
	for i := 0; i < sheet.GetNumberRows(); i++ {
		row, err := sheet.GetRow(i)
		if err != nil || row == nil {
			continue
		}

		cols := row.GetCols()
		rec := make([]string, len(cols))
		for j, c := range cols {
			rec[j] = c.GetString()
		}
		if isEmptyRecord(rec) {
			continue
		}

		if header == nil {
			header = rec
			continue
		}
		records = append(records, rec)
	}

	if header == nil {
		return nil, ErrNoHeader
	}
	return fromRecords(name, header, records)
}
