package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tablesearch-mcp/internal/engine"
)

const scoresCSV = "name,team,points\nAlice,red,120\nBob,blue,80\nCarol,red,150\n"

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	server, err := NewServer(t.TempDir(), engine.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()

	var request mcp.CallToolRequest
	request.Params.Arguments = args

	result, err := handler(context.Background(), request)
	if err != nil {
		return nil, err
	}
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	var text string
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content type %T", result.Content[0])
	}

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &response))
	return response, nil
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func loadScores(t *testing.T, s *Server) map[string]interface{} {
	t.Helper()

	path := writeCSV(t, "scores.csv", scoresCSV)
	response, err := callTool(t, s.handleLoadDataset, map[string]interface{}{"path": path})
	require.NoError(t, err)
	return response
}

func TestServer_Initialization(t *testing.T) {
	t.Run("custom path creates database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")

		server, err := NewServer(dir, engine.DefaultConfig(), nil)
		require.NoError(t, err)
		defer server.Close()

		_, err = os.Stat(filepath.Join(dir, DBFileName))
		assert.NoError(t, err)
	})

	t.Run("server has all required components", func(t *testing.T) {
		server := setupTestServer(t)

		assert.NotNil(t, server.mcp, "MCP server should be initialized")
		assert.NotNil(t, server.storage, "Storage should be initialized")
		assert.NotNil(t, server.engine, "Engine should be initialized")
		assert.NotNil(t, server.logger, "Logger should default to a no-op logger")
		assert.Same(t, server.engine, server.Engine())
	})

	t.Run("invalid engine config", func(t *testing.T) {
		cfg := engine.DefaultConfig()
		cfg.MinGram = 0

		_, err := NewServer(t.TempDir(), cfg, nil)
		assert.ErrorIs(t, err, engine.ErrInvalidConfig)
	})
}

func TestLoadDataset(t *testing.T) {
	server := setupTestServer(t)

	response := loadScores(t, server)
	assert.Equal(t, true, response["indexed"])
	assert.Equal(t, "scores", response["dataset"])
	assert.Equal(t, float64(3), response["rows"])
	assert.Equal(t, true, response["persisted"])
	assert.NotEmpty(t, response["handle_id"])

	columns, ok := response["columns"].([]interface{})
	require.True(t, ok)
	require.Len(t, columns, 3)
	points := columns[2].(map[string]interface{})
	assert.Equal(t, "points", points["key"])
	assert.Equal(t, "number", points["type"])

	t.Run("reload stored dataset by name", func(t *testing.T) {
		reloaded, err := callTool(t, server.handleLoadDataset, map[string]interface{}{"name": "scores"})
		require.NoError(t, err)
		assert.Equal(t, float64(3), reloaded["rows"])
		assert.Equal(t, true, reloaded["persisted"])
		assert.NotEqual(t, response["handle_id"], reloaded["handle_id"])
	})

	t.Run("list datasets", func(t *testing.T) {
		list, err := callTool(t, server.handleListDatasets, map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, float64(1), list["count"])
	})
}

func TestLoadDataset_NotPersisted(t *testing.T) {
	server := setupTestServer(t)

	path := writeCSV(t, "scratch.csv", scoresCSV)
	response, err := callTool(t, server.handleLoadDataset, map[string]interface{}{
		"path":    path,
		"name":    "scratch",
		"persist": false,
	})
	require.NoError(t, err)
	assert.Equal(t, "scratch", response["dataset"])
	assert.Equal(t, false, response["persisted"])

	_, err = callTool(t, server.handleLoadDataset, map[string]interface{}{"name": "scratch"})
	requireMCPError(t, err, ErrorCodeDatasetNotFound)
}

func TestLoadDataset_InvalidParams(t *testing.T) {
	server := setupTestServer(t)
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0644))

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"no source", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "scores.csv"}, ErrorCodeInvalidParams},
		{"missing file", map[string]interface{}{"path": filepath.Join(dir, "nope.csv")}, ErrorCodeInvalidParams},
		{"directory", map[string]interface{}{"path": dir}, ErrorCodeInvalidParams},
		{"unsupported extension", map[string]interface{}{"path": txt}, ErrorCodeInvalidParams},
		{"path and table", map[string]interface{}{"path": txt, "table": "t"}, ErrorCodeInvalidParams},
		{"unknown name", map[string]interface{}{"name": "missing"}, ErrorCodeDatasetNotFound},
		{"unknown table", map[string]interface{}{"table": "missing"}, ErrorCodeDatasetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, server.handleLoadDataset, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestSearchRows(t *testing.T) {
	server := setupTestServer(t)

	t.Run("not indexed", func(t *testing.T) {
		_, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "red"})
		requireMCPError(t, err, ErrorCodeNotIndexed)
	})

	loadScores(t, server)

	t.Run("keyword", func(t *testing.T) {
		response, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "RED"})
		require.NoError(t, err)
		assert.Equal(t, float64(2), response["total"])
		assert.Equal(t, []interface{}{float64(0), float64(2)}, response["indices"])
		assert.Equal(t, false, response["incremental"])

		rows := response["rows"].([]interface{})
		require.Len(t, rows, 2)
		assert.Equal(t, "Alice", rows[0].(map[string]interface{})["name"])
	})

	t.Run("repeat is served from cache", func(t *testing.T) {
		response, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "red"})
		require.NoError(t, err)
		assert.Equal(t, "cache", response["source"])
	})

	t.Run("limit truncates", func(t *testing.T) {
		response, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "red", "limit": float64(1)})
		require.NoError(t, err)
		assert.Equal(t, float64(2), response["total"])
		assert.Equal(t, float64(1), response["returned"])
		assert.Equal(t, true, response["truncated"])
	})

	t.Run("incremental", func(t *testing.T) {
		_, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "ca"})
		require.NoError(t, err)

		response, err := callTool(t, server.handleSearchRows, map[string]interface{}{
			"keyword":          "car",
			"previous_keyword": "ca",
		})
		require.NoError(t, err)
		assert.Equal(t, true, response["incremental"])
		assert.Equal(t, []interface{}{float64(2)}, response["indices"])
	})

	t.Run("empty keyword", func(t *testing.T) {
		_, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "  "})
		requireMCPError(t, err, ErrorCodeEmptyQuery)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "red", "limit": float64(0)})
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestSearchRows_CodeColumn(t *testing.T) {
	server := setupTestServer(t)

	path := writeCSV(t, "codes.csv", "code,name\n01001,Adams\n01002,Baker\n02001,Clark\n")
	_, err := callTool(t, server.handleLoadDataset, map[string]interface{}{"path": path})
	require.NoError(t, err)

	response, err := callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "01001"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(0)}, response["indices"])
	rows := response["rows"].([]interface{})
	assert.Equal(t, "01001", rows[0].(map[string]interface{})["code"])

	response, err = callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "010"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(0), float64(1)}, response["indices"])

	response, err = callTool(t, server.handleFilterRows, map[string]interface{}{
		"conditions": []interface{}{
			map[string]interface{}{"field": "code", "operator": "eq", "value": "02001"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(2)}, response["indices"])
}

func TestFilterRows(t *testing.T) {
	server := setupTestServer(t)
	loadScores(t, server)

	args := map[string]interface{}{
		"numeric_ranges": map[string]interface{}{
			"points": map[string]interface{}{"min": float64(100), "max": float64(150)},
		},
	}

	response, err := callTool(t, server.handleFilterRows, args)
	require.NoError(t, err)
	assert.Equal(t, "points:numeric:100-150", response["key"])
	assert.Equal(t, []interface{}{float64(0), float64(2)}, response["indices"])
	assert.Equal(t, false, response["cached"])

	t.Run("same filters hit the cache", func(t *testing.T) {
		again, err := callTool(t, server.handleFilterRows, args)
		require.NoError(t, err)
		assert.Equal(t, true, again["cached"])
		assert.Equal(t, response["indices"], again["indices"])
	})

	t.Run("conditions with OR", func(t *testing.T) {
		response, err := callTool(t, server.handleFilterRows, map[string]interface{}{
			"logic": "OR",
			"conditions": []interface{}{
				map[string]interface{}{"field": "team", "operator": "eq", "value": "blue"},
				map[string]interface{}{"field": "points", "operator": "gte", "value": float64(150)},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{float64(1), float64(2)}, response["indices"])
	})

	t.Run("invalid operator", func(t *testing.T) {
		_, err := callTool(t, server.handleFilterRows, map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"field": "team", "operator": "like", "value": "r"},
			},
		})
		requireMCPError(t, err, ErrorCodeInvalidFilter)
	})

	t.Run("malformed spec", func(t *testing.T) {
		_, err := callTool(t, server.handleFilterRows, map[string]interface{}{
			"numeric_ranges": "points",
		})
		requireMCPError(t, err, ErrorCodeInvalidFilter)
	})
}

func TestSuggestTerms(t *testing.T) {
	server := setupTestServer(t)
	loadScores(t, server)

	response, err := callTool(t, server.handleSuggestTerms, map[string]interface{}{"prefix": "re"})
	require.NoError(t, err)

	suggestions := response["suggestions"].([]interface{})
	var terms []string
	for _, s := range suggestions {
		terms = append(terms, s.(map[string]interface{})["term"].(string))
	}
	assert.Contains(t, terms, "red")

	_, err = callTool(t, server.handleSuggestTerms, map[string]interface{}{"prefix": ""})
	requireMCPError(t, err, ErrorCodeEmptyQuery)
}

func TestGetStatus(t *testing.T) {
	server := setupTestServer(t)

	response, err := callTool(t, server.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, false, response["indexed"])

	loadScores(t, server)
	_, err = callTool(t, server.handleSearchRows, map[string]interface{}{"keyword": "red"})
	require.NoError(t, err)

	response, err = callTool(t, server.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, response["indexed"])

	handle := response["handle"].(map[string]interface{})
	assert.Equal(t, "scores", handle["dataset"])

	index := response["index"].(map[string]interface{})
	assert.Equal(t, float64(3), index["rows"])

	search := response["search"].(map[string]interface{})
	assert.Equal(t, "1", search["searches"])

	builds, ok := response["recent_builds"].([]interface{})
	require.True(t, ok)
	assert.Len(t, builds, 1)
}

func TestPreload(t *testing.T) {
	dir := t.TempDir()

	first, err := NewServer(dir, engine.DefaultConfig(), nil)
	require.NoError(t, err)
	loadScores(t, first)
	require.NoError(t, first.Close())

	second, err := NewServer(dir, engine.DefaultConfig(), nil)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.Preload(context.Background(), "scores"))
	h, err := second.Engine().Current()
	require.NoError(t, err)
	assert.Equal(t, "scores", h.Dataset())
	assert.Len(t, h.Rows(), 3)

	assert.Error(t, second.Preload(context.Background(), "missing"))
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeCSV(t, "ok.csv", scoresCSV)

	assert.NoError(t, validatePath(csvPath))
	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("ok.csv"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validatePath(filepath.Join(dir, "missing.csv")), ErrPathNotFound)
	assert.ErrorIs(t, validatePath(dir), ErrIsDirectory)
}
