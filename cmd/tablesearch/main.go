package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/tablesearch-mcp/internal/engine"
	"github.com/dshills/tablesearch-mcp/internal/mcp"
	"github.com/dshills/tablesearch-mcp/internal/storage"
)

// Environment variables read at startup
const (
	EnvDBPath  = "TABLESEARCH_DB_PATH"
	EnvDataset = "TABLESEARCH_DATASET"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("TableSearch MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	// Log to stderr (stdout reserved for MCP protocol)
	logger, err := engine.NewLoggerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Info("TableSearch MCP Server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
	)

	cfg, err := engine.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Get database path from environment or use default
	dbPath := os.Getenv(EnvDBPath)
	if dbPath == "" {
		dbPath = mcp.DefaultDBPath
	}

	// Create MCP server
	server, err := mcp.NewServer(dbPath, cfg, logger)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Index a stored dataset before accepting requests
	if name := os.Getenv(EnvDataset); name != "" {
		if err := server.Preload(ctx, name); err != nil {
			logger.Error("failed to preload dataset", "dataset", name, "error", err)
			_ = server.Close()
			os.Exit(1)
		}
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
