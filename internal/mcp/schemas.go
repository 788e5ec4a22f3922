package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// loadDatasetTool returns the tool definition for load_dataset
func loadDatasetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "load_dataset",
		Description: "Load a table from a file, the dataset store or a database table and index it for keyword search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .csv, .tsv or .xls file. The first row is the header.",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Dataset name. With path, names the imported dataset (default: file name). Alone, loads a stored dataset or table of that name.",
				},
				"table": map[string]interface{}{
					"type":        "string",
					"description": "Name of an existing table in the database to load as a dataset",
				},
				"persist": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, save a file import to the dataset store",
					"default":     true,
				},
			},
		},
	}
}

// listDatasetsTool returns the tool definition for list_datasets
func listDatasetsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_datasets",
		Description: "List datasets saved in the dataset store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchRowsTool returns the tool definition for search_rows
func searchRowsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_rows",
		Description: "Find rows whose cells contain a keyword (case-insensitive, CJK aware). Pass the previous keyword when refining a search as the user types.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"keyword": map[string]interface{}{
					"type":        "string",
					"description": "Keyword to search for",
				},
				"previous_keyword": map[string]interface{}{
					"type":        "string",
					"description": "Keyword of the previous search. When keyword extends it, only the previous matches are rescanned.",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rows to return (1-1000)",
					"default":     defaultRowLimit,
					"minimum":     1,
					"maximum":     maxRowLimit,
				},
			},
			Required: []string{"keyword"},
		},
	}
}

// filterRowsTool returns the tool definition for filter_rows
func filterRowsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "filter_rows",
		Description: "Filter rows with field conditions, value lists, date ranges and numeric ranges. Replaces any previously applied filters.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"logic": map[string]interface{}{
					"type":        "string",
					"description": "How conditions combine",
					"enum":        []string{"AND", "OR"},
					"default":     "AND",
				},
				"conditions": map[string]interface{}{
					"type":        "array",
					"description": "Field conditions",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"field": map[string]interface{}{
								"type": "string",
							},
							"operator": map[string]interface{}{
								"type": "string",
								"enum": []string{"eq", "contains", "gt", "gte", "lt", "lte", "between", "in", "date-between"},
							},
							"value": map[string]interface{}{
								"description": "Scalar, or a list for between and date-between ([min, max]) and in",
							},
						},
						"required": []string{"field", "operator", "value"},
					},
				},
				"column_filters": map[string]interface{}{
					"type":        "object",
					"description": "Per-field lists of allowed values, e.g. {\"team\": [\"red\", \"blue\"]}",
					"additionalProperties": map[string]interface{}{
						"type": "array",
					},
				},
				"date_ranges": map[string]interface{}{
					"type":        "object",
					"description": "Per-field inclusive date ranges, e.g. {\"admitted\": {\"start\": \"2024-01-01\", \"end\": \"2024-03-31\"}}",
					"additionalProperties": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"start": map[string]interface{}{"type": "string"},
							"end":   map[string]interface{}{"type": "string"},
						},
					},
				},
				"numeric_ranges": map[string]interface{}{
					"type":        "object",
					"description": "Per-field inclusive numeric ranges, e.g. {\"points\": {\"min\": 100, \"max\": 150}}",
					"additionalProperties": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"min": map[string]interface{}{"type": "number"},
							"max": map[string]interface{}{"type": "number"},
						},
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rows to return (1-1000)",
					"default":     defaultRowLimit,
					"minimum":     1,
					"maximum":     maxRowLimit,
				},
			},
		},
	}
}

// suggestTermsTool returns the tool definition for suggest_terms
func suggestTermsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest_terms",
		Description: "Suggest indexed terms starting with a prefix, most frequent first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Term prefix",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"prefix"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the indexed dataset, index statistics and cache counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
