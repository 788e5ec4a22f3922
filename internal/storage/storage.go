package storage

import (
	"context"
	"time"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Storage defines the interface for persisting datasets and index history
type Storage interface {
	// Dataset operations
	SaveDataset(ctx context.Context, ds *types.Dataset) (*DatasetInfo, error)
	GetDataset(ctx context.Context, name string) (*DatasetInfo, error)
	LoadDataset(ctx context.Context, name string) (*types.Dataset, error)
	ListDatasets(ctx context.Context) ([]*DatasetInfo, error)
	DeleteDataset(ctx context.Context, name string) error

	// LoadTable reads any table of the database as a dataset, typing
	// columns from their declared SQL types
	LoadTable(ctx context.Context, table string) (*types.Dataset, error)

	// Build history operations
	RecordBuild(ctx context.Context, build *BuildRecord) error
	ListBuilds(ctx context.Context, dataset string, limit int) ([]*BuildRecord, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// DatasetInfo describes a stored dataset without its rows
type DatasetInfo struct {
	ID        int64
	Name      string
	Columns   []types.Column
	RowCount  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuildRecord is one completed index build
type BuildRecord struct {
	ID       int64
	Dataset  string // Empty for anonymous datasets
	HandleID string
	Rows     int
	Columns  int
	Tokens   int
	Duration time.Duration
	BuiltAt  time.Time
}
