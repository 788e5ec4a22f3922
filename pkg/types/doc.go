// Package types provides shared type definitions for the tablesearch MCP server.
//
// This package defines the tabular data model used across the indexer,
// searcher, filter engine and storage layer.
//
// # Core Types
//
// A Dataset is an ordered sequence of rows plus a column schema:
//
//	ds := &types.Dataset{
//	    Name: "fees",
//	    Columns: []types.Column{
//	        {Key: "code", Type: types.ColumnString},
//	        {Key: "points", Type: types.ColumnNumber},
//	    },
//	    Rows: []types.Row{
//	        {"code": "A1", "points": 100},
//	        {"code": "A2", "points": 200},
//	    },
//	}
//
// Rows are addressed by their position in Dataset.Rows. The index and the
// caches only ever store these positions, never copies of the rows.
//
// # Value Semantics
//
// Row values are untyped scalars. Three helpers give every component the
// same view of them:
//
//	types.FormatValue(v)    // stringification used for tokens and scans
//	types.ToNumber(v)       // NaN for missing or non-numeric values
//	types.ToTime(v)         // false for values that are not dates
//
// NaN is deliberate: a row with a missing or malformed numeric field simply
// fails numeric comparisons instead of being treated as zero.
package types
