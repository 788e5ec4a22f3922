// Command tablesearch-import saves a CSV, TSV or XLS file to the dataset
// store so the MCP server can load it by name.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dshills/tablesearch-mcp/internal/dataset"
	"github.com/dshills/tablesearch-mcp/internal/engine"
	"github.com/dshills/tablesearch-mcp/internal/mcp"
	"github.com/dshills/tablesearch-mcp/internal/storage"
)

func main() {
	dbPath := flag.String("db", "", "database directory (default $TABLESEARCH_DB_PATH or ~/.tablesearch)")
	name := flag.String("name", "", "dataset name (default: file name without extension)")
	list := flag.Bool("list", false, "list stored datasets and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-db dir] [-name dataset] <file.csv|file.tsv|file.xls>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := engine.NewLoggerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		os.Exit(1)
	}

	dir, err := resolveDBDir(*dbPath)
	if err != nil {
		logger.Error("failed to resolve database directory", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, mcp.DBFileName))
	if err != nil {
		logger.Error("failed to open storage", "path", dir, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if *list {
		if err := listDatasets(ctx, store); err != nil {
			logger.Error("failed to list datasets", "error", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	start := time.Now()
	ds, err := dataset.ReadFile(flag.Arg(0), *name)
	if err != nil {
		logger.Error("failed to read table", "file", flag.Arg(0), "error", err)
		os.Exit(1)
	}

	info, err := store.SaveDataset(ctx, ds)
	if err != nil {
		logger.Error("failed to save dataset", "dataset", ds.Name, "error", err)
		os.Exit(1)
	}

	logger.Info("dataset imported",
		"dataset", info.Name,
		"rows", info.RowCount,
		"columns", len(info.Columns),
		"duration", time.Since(start),
	)
}

// resolveDBDir applies the flag, environment and default in that order
func resolveDBDir(flagValue string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = os.Getenv("TABLESEARCH_DB_PATH")
	}
	if dir == "" || dir == mcp.DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".tablesearch")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dir, nil
}

func listDatasets(ctx context.Context, store storage.Storage) error {
	infos, err := store.ListDatasets(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%-24s %10s rows  %2d columns  updated %s\n",
			info.Name, humanize.Comma(int64(info.RowCount)), len(info.Columns), humanize.Time(info.UpdatedAt))
	}
	return nil
}
