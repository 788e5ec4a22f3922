package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/tablesearch-mcp/internal/engine"
	"github.com/dshills/tablesearch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "tablesearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.tablesearch"
	// DBFileName is the database file created inside the database directory
	DBFileName = "tablesearch.db"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	engine  *engine.Engine
	logger  *slog.Logger
}

// NewServer creates a new MCP server instance storing datasets under dbPath
func NewServer(dbPath string, cfg engine.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = engine.NoopLogger()
	}

	// Expand home directory if needed
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".tablesearch")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(filepath.Join(dbPath, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		storage: store,
		engine:  eng,
		logger:  logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Engine returns the search engine served by s
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Preload indexes a stored dataset (or, failing that, a table of the
// database) before the server starts taking requests
func (s *Server) Preload(ctx context.Context, name string) error {
	res, err := s.loadDataset(ctx, loadRequest{Name: name})
	if err != nil {
		return err
	}
	s.logger.Info("dataset preloaded", "dataset", res.Dataset, "rows", res.Rows, "handle", res.HandleID)
	return nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases the storage without serving
func (s *Server) Close() error {
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(loadDatasetTool(), s.handleLoadDataset)
	s.mcp.AddTool(listDatasetsTool(), s.handleListDatasets)
	s.mcp.AddTool(searchRowsTool(), s.handleSearchRows)
	s.mcp.AddTool(filterRowsTool(), s.handleFilterRows)
	s.mcp.AddTool(suggestTermsTool(), s.handleSuggestTerms)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	return nil
}
