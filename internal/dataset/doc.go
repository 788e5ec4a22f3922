// Package dataset loads tabular files into typed datasets ready for
// indexing. CSV and TSV files go through encoding/csv; legacy Excel
// workbooks through xlsReader. Column types are inferred from the cells:
// number, date, categorical or string.
package dataset
