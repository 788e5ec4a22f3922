// Package mcp implements the Model Context Protocol (MCP) server for tablesearch.
//
// The MCP server exposes the search engine to AI assistants:
//   - load_dataset: Import a CSV/TSV/XLS file or load a stored dataset, then index it
//   - list_datasets: List datasets saved in the dataset store
//   - search_rows: Keyword search, optionally refining a previous keyword
//   - filter_rows: Structured filtering with conditions and ranges
//   - suggest_terms: Prefix suggestions from the index vocabulary
//   - get_status: Index statistics and cache counters
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Tool results are indented JSON text. Failures are returned as *MCPError
// with a JSON-RPC style code.
//
// # Tool: load_dataset
//
//	Request:
//	{
//	  "name": "load_dataset",
//	  "arguments": {
//	    "path": "/data/scores.csv",
//	    "name": "scores"
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "handle_id": "0b6f6c9e-...",
//	  "dataset": "scores",
//	  "rows": 3,
//	  "columns": [{"key": "name", "type": "string"}, ...],
//	  "tokens": 57,
//	  "persisted": true,
//	  "duration_ms": 1
//	}
//
// Imported files are saved to the dataset store unless persist is false.
// Loading by name alone reads the stored dataset, or a database table of
// that name when no dataset is stored under it.
//
// # Tool: search_rows
//
//	Request:
//	{
//	  "name": "search_rows",
//	  "arguments": {
//	    "keyword": "redd",
//	    "previous_keyword": "red",
//	    "limit": 20
//	  }
//	}
//
//	Response:
//	{
//	  "keyword": "redd",
//	  "source": "index",
//	  "incremental": true,
//	  "total": 1,
//	  "returned": 1,
//	  "truncated": false,
//	  "elapsed_ms": 0.04,
//	  "indices": [4],
//	  "rows": [{"name": "Reddy", "points": 95, "team": "blue"}]
//	}
//
// source is one of cache, index or scan, or fuzzy when the server runs with
// TABLESEARCH_FUZZY=true and nothing matched exactly. With previous_keyword,
// a keyword that extends it is answered by rescanning only the previous
// matches.
//
// # Tool: filter_rows
//
//	Request:
//	{
//	  "name": "filter_rows",
//	  "arguments": {
//	    "logic": "AND",
//	    "conditions": [{"field": "team", "operator": "eq", "value": "red"}],
//	    "numeric_ranges": {"points": {"min": 100, "max": 150}}
//	  }
//	}
//
//	Response:
//	{
//	  "key": "logic:AND|team:eq:\"red\"|points:numeric:100-150",
//	  "cached": false,
//	  "total": 2,
//	  ...
//	}
//
// Each call replaces the active filters. Identical filter sets are served
// from the filter cache.
//
// # Error Codes
//
//	-32602  Invalid params
//	-32603  Internal error
//	-32001  Dataset not found
//	-32002  Indexing in progress
//	-32003  No dataset indexed
//	-32004  Empty keyword or prefix
//	-32005  Invalid filter
package mcp
