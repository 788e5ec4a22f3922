package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/tablesearch-mcp/internal/cache"
	"github.com/dshills/tablesearch-mcp/internal/dataset"
	"github.com/dshills/tablesearch-mcp/internal/engine"
	"github.com/dshills/tablesearch-mcp/internal/filter"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/internal/storage"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeDatasetNotFound    = -32001 // No stored dataset or table with that name
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // No dataset indexed yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeInvalidFilter      = -32005 // Filter spec is malformed
)

// Result limits
const (
	defaultRowLimit = 20
	maxRowLimit     = 1000
)

// loadRequest selects where load_dataset reads its rows from
type loadRequest struct {
	Path    string
	Name    string
	Table   string
	Persist bool
}

// loadResult summarizes a completed load
type loadResult struct {
	HandleID  string
	Dataset   string
	Rows      int
	Columns   []types.Column
	Tokens    int
	Duration  time.Duration
	Persisted bool
}

// handleLoadDataset handles the load_dataset tool invocation
func (s *Server) handleLoadDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req := loadRequest{
		Path:    strings.TrimSpace(getStringDefault(args, "path", "")),
		Name:    strings.TrimSpace(getStringDefault(args, "name", "")),
		Table:   strings.TrimSpace(getStringDefault(args, "table", "")),
		Persist: getBoolDefault(args, "persist", true),
	}

	if req.Path == "" && req.Name == "" && req.Table == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "one of path, name or table is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if req.Path != "" && req.Table != "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path and table are mutually exclusive", map[string]interface{}{
			"param":  "table",
			"reason": "conflicts with path",
		})
	}

	if req.Path != "" {
		if err := validatePath(req.Path); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
	}

	res, err := s.loadDataset(ctx, req)
	if err != nil {
		return nil, toolError("loading failed", err)
	}

	columns := make([]map[string]interface{}, len(res.Columns))
	for i, col := range res.Columns {
		columns[i] = map[string]interface{}{
			"key":  col.Key,
			"type": string(col.Type),
		}
	}

	// Format response
	response := map[string]interface{}{
		"indexed":     true,
		"handle_id":   res.HandleID,
		"dataset":     res.Dataset,
		"rows":        res.Rows,
		"columns":     columns,
		"tokens":      res.Tokens,
		"persisted":   res.Persisted,
		"duration_ms": res.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// loadDataset reads a dataset from a file, the dataset store or a table,
// indexes it and records the build. A name with no stored dataset falls
// back to a table of that name.
func (s *Server) loadDataset(ctx context.Context, req loadRequest) (*loadResult, error) {
	var (
		ds        *types.Dataset
		err       error
		persisted bool
	)

	switch {
	case req.Path != "":
		ds, err = dataset.ReadFile(req.Path, req.Name)
		if err != nil {
			return nil, err
		}
		if req.Persist {
			if _, err := s.storage.SaveDataset(ctx, ds); err != nil {
				return nil, fmt.Errorf("failed to persist dataset: %w", err)
			}
			persisted = true
		}
	case req.Table != "":
		ds, err = s.storage.LoadTable(ctx, req.Table)
		if err != nil {
			return nil, err
		}
	default:
		ds, err = s.storage.LoadDataset(ctx, req.Name)
		persisted = err == nil
		if errors.Is(err, storage.ErrNotFound) {
			ds, err = s.storage.LoadTable(ctx, req.Name)
		}
		if err != nil {
			return nil, err
		}
	}

	h, err := s.engine.BuildDataset(ctx, ds)
	if err != nil {
		return nil, err
	}

	st := h.Status()
	build := &storage.BuildRecord{
		Dataset:  h.Dataset(),
		HandleID: h.ID(),
		Rows:     st.Build.RowsIndexed,
		Columns:  st.Build.ColumnsIndexed,
		Tokens:   st.Build.DistinctTokens,
		Duration: st.Build.Duration,
		BuiltAt:  st.BuiltAt,
	}
	if err := s.storage.RecordBuild(ctx, build); err != nil {
		// The index is live; history is best effort
		s.logger.Warn("failed to record build", "handle", h.ID(), "error", err)
	}

	return &loadResult{
		HandleID:  h.ID(),
		Dataset:   h.Dataset(),
		Rows:      st.Build.RowsIndexed,
		Columns:   h.Columns(),
		Tokens:    st.Build.DistinctTokens,
		Duration:  st.Build.Duration,
		Persisted: persisted,
	}, nil
}

// handleListDatasets handles the list_datasets tool invocation
func (s *Server) handleListDatasets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.storage.ListDatasets(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list datasets", map[string]interface{}{
			"error": err.Error(),
		})
	}

	datasets := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		keys := make([]string, len(info.Columns))
		for i, col := range info.Columns {
			keys[i] = col.Key
		}
		datasets = append(datasets, map[string]interface{}{
			"name":       info.Name,
			"rows":       info.RowCount,
			"columns":    keys,
			"updated_at": info.UpdatedAt.Format(time.RFC3339),
			"updated":    humanize.Time(info.UpdatedAt),
		})
	}

	response := map[string]interface{}{
		"count":    len(datasets),
		"datasets": datasets,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchRows handles the search_rows tool invocation
func (s *Server) handleSearchRows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	keyword, ok := args["keyword"].(string)
	if !ok || strings.TrimSpace(keyword) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "keyword parameter is required and cannot be empty", map[string]interface{}{
			"param":  "keyword",
			"reason": "missing or empty",
		})
	}

	limit, err := parseLimit(args)
	if err != nil {
		return nil, err
	}

	var result types.QueryResult
	if prev := getStringDefault(args, "previous_keyword", ""); prev != "" {
		result, err = s.engine.IncrementalQuery(prev, keyword)
	} else {
		result, err = s.engine.Query(keyword)
	}
	if err != nil {
		return nil, toolError("search failed", err)
	}

	total := len(result.Indices)
	n := min(total, limit)

	// Format response
	response := map[string]interface{}{
		"keyword":     result.Keyword,
		"source":      string(result.Source),
		"incremental": result.IsIncremental,
		"total":       total,
		"returned":    n,
		"truncated":   n < total,
		"elapsed_ms":  result.ElapsedMillis(),
		"indices":     result.Indices[:n],
		"rows":        result.Rows[:n],
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFilterRows handles the filter_rows tool invocation
func (s *Server) handleFilterRows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	limit, err := parseLimit(args)
	if err != nil {
		return nil, err
	}

	spec, err := parseFilterSpec(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidFilter, "invalid filter", map[string]interface{}{
			"error": err.Error(),
		})
	}

	result, err := s.engine.ApplyFilters(spec)
	if err != nil {
		return nil, toolError("filter failed", err)
	}

	total := len(result.Indices)
	n := min(total, limit)

	response := map[string]interface{}{
		"key":        result.Key,
		"cached":     result.Cached,
		"total":      total,
		"returned":   n,
		"truncated":  n < total,
		"elapsed_ms": result.ElapsedMillis(),
		"indices":    result.Indices[:n],
		"rows":       result.Rows[:n],
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseFilterSpec decodes the tool arguments into a filter spec
func parseFilterSpec(args map[string]interface{}) (filter.Spec, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return filter.Spec{}, err
	}

	// Unknown keys such as limit are ignored
	var spec filter.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return filter.Spec{}, err
	}
	return spec, nil
}

// handleSuggestTerms handles the suggest_terms tool invocation
func (s *Server) handleSuggestTerms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	prefix, ok := args["prefix"].(string)
	if !ok || strings.TrimSpace(prefix) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "prefix parameter is required and cannot be empty", map[string]interface{}{
			"param":  "prefix",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	suggestions, err := s.engine.Suggest(prefix, limit)
	if err != nil {
		return nil, toolError("suggest failed", err)
	}

	terms := make([]map[string]interface{}, len(suggestions))
	for i, sg := range suggestions {
		terms[i] = suggestionJSON(sg)
	}

	response := map[string]interface{}{
		"prefix":      prefix,
		"suggestions": terms,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func suggestionJSON(sg indexer.Suggestion) map[string]interface{} {
	return map[string]interface{}{
		"term":      sg.Term,
		"frequency": sg.Frequency,
	}
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status()
	if errors.Is(err, engine.ErrNotIndexed) {
		// Nothing indexed yet
		response := map[string]interface{}{
			"indexed":  false,
			"indexing": s.engine.Indexing(),
			"message":  "No dataset indexed. Use load_dataset tool to index a dataset.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var recent []map[string]interface{}
	if status.Dataset != "" {
		builds, err := s.storage.ListBuilds(ctx, status.Dataset, 5)
		if err != nil {
			s.logger.Warn("failed to list builds", "dataset", status.Dataset, "error", err)
		}
		for _, b := range builds {
			recent = append(recent, map[string]interface{}{
				"handle_id":   b.HandleID,
				"rows":        b.Rows,
				"duration_ms": b.Duration.Milliseconds(),
				"built":       humanize.Time(b.BuiltAt),
			})
		}
	}

	// Format response
	response := map[string]interface{}{
		"indexed":  true,
		"indexing": status.Indexing,
		"handle": map[string]interface{}{
			"id":       status.ID,
			"dataset":  status.Dataset,
			"built_at": status.BuiltAt.Format(time.RFC3339),
			"built":    humanize.Time(status.BuiltAt),
		},
		"index": map[string]interface{}{
			"rows":               status.Index.Rows,
			"columns":            status.Index.Columns,
			"tokens":             status.Index.Tokens,
			"postings":           status.Index.Postings,
			"avg_tokens_per_row": fmt.Sprintf("%.2f", status.Index.AvgTokensPerRow),
			"size":               humanize.Bytes(status.Index.SizeBytes),
			"build_duration_ms":  status.Index.BuildDuration.Milliseconds(),
		},
		"search": map[string]interface{}{
			"searches":      humanize.Comma(int64(status.Search.Searches)),
			"incremental":   humanize.Comma(int64(status.Search.Incremental)),
			"index_lookups": humanize.Comma(int64(status.Search.IndexLookups)),
			"rows_scanned":  humanize.Comma(int64(status.Search.RowsScanned)),
			"fuzzy":         humanize.Comma(int64(status.Search.Fuzzy)),
			"cache":         cacheJSON(status.Search.Cache),
		},
		"filter": map[string]interface{}{
			"conditions":          status.Filter.Conditions,
			"column_filters":      status.Filter.ColumnFilters,
			"date_ranges":         status.Filter.DateRanges,
			"numeric_ranges":      status.Filter.NumericRanges,
			"evaluations":         status.Filter.Composite.Evaluations,
			"short_circuits":      status.Filter.Composite.ShortCircuits,
			"short_circuit_ratio": fmt.Sprintf("%.2f", status.Filter.Composite.ShortCircuitRate()),
			"cache":               cacheJSON(status.Filter.Cache),
		},
	}
	if len(recent) > 0 {
		response["recent_builds"] = recent
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func cacheJSON(st cache.Stats) map[string]interface{} {
	return map[string]interface{}{
		"size":      st.Size,
		"capacity":  st.Capacity,
		"hits":      st.Hits,
		"misses":    st.Misses,
		"evictions": st.Evictions,
		"hit_rate":  fmt.Sprintf("%.2f", st.HitRate()),
	}
}

// Helper functions

// toolError maps engine, storage and loader errors to MCP errors
func toolError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, engine.ErrNotIndexed):
		return newMCPError(ErrorCodeNotIndexed, "no dataset indexed", data)
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", data)
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeDatasetNotFound, "dataset not found", data)
	case isFilterError(err):
		return newMCPError(ErrorCodeInvalidFilter, "invalid filter", data)
	case errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrNoHeader),
		errors.Is(err, types.ErrDuplicateColumn),
		errors.Is(err, types.ErrEmptyColumnKey):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	}
	return newMCPError(ErrorCodeInternalError, message, data)
}

func isFilterError(err error) bool {
	for _, target := range []error{
		filter.ErrUnknownOperator,
		filter.ErrUnknownLogic,
		filter.ErrInvalidArity,
		filter.ErrInvalidValue,
		filter.ErrInvalidRange,
		filter.ErrEmptyField,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path names a readable table file
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		return ErrIsDirectory
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".xls":
	default:
		return ErrUnsupportedFile
	}

	// Check if file is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// parseLimit reads the optional row limit
func parseLimit(args map[string]interface{}) (int, error) {
	limit := getIntDefault(args, "limit", defaultRowLimit)
	if limit < 1 || limit > maxRowLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxRowLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrUnsupportedFile = errors.New("file must be .csv, .tsv or .xls")
)
