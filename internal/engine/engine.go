package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dshills/tablesearch-mcp/internal/filter"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/internal/tokenizer"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// ErrNotIndexed is returned by queries issued before the first build
var ErrNotIndexed = errors.New("no dataset has been indexed")

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger (discarded by default)
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine owns the current indexed dataset. Each build publishes a new
// Handle; queries in flight keep using the handle they started with.
type Engine struct {
	cfg     Config
	indexer *indexer.Indexer
	current atomic.Pointer[Handle]
	logger  *slog.Logger
}

// New creates an engine with the given configuration
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(tokenizer.Config{
		MinGram:  cfg.MinGram,
		MaxGram:  cfg.MaxGram,
		Variants: cfg.Variants,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		indexer: indexer.New(tok),
		logger:  NoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// BuildIndex indexes rows and makes the result the current handle. Nil
// columns are inferred from the rows. The engine keeps a reference to rows;
// callers must not modify them afterwards. A build started while another is
// running fails with indexer.ErrIndexingInProgress and leaves the current
// handle in place.
func (e *Engine) BuildIndex(ctx context.Context, rows []types.Row, columns []types.Column) (*Handle, error) {
	return e.build(ctx, "", rows, columns)
}

// BuildDataset is BuildIndex for a named dataset
func (e *Engine) BuildDataset(ctx context.Context, ds *types.Dataset) (*Handle, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	return e.build(ctx, ds.Name, ds.Rows, ds.Columns)
}

func (e *Engine) build(ctx context.Context, name string, rows []types.Row, columns []types.Column) (*Handle, error) {
	ix, stats, err := e.indexer.Build(ctx, rows, columns, &indexer.Config{
		Workers:   e.cfg.Workers,
		BatchSize: e.cfg.BatchSize,
	})
	if err != nil {
		if errors.Is(err, indexer.ErrIndexingInProgress) {
			e.logger.Warn("index build rejected", "dataset", name, "reason", err)
		}
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	h := newHandle(name, rows, ix, stats, e.cfg)
	if prev := e.current.Swap(h); prev != nil {
		e.logger.Debug("index handle replaced", "previous", prev.ID(), "current", h.ID())
	}

	e.logger.Info("index built",
		"handle", h.ID(),
		"dataset", name,
		"rows", stats.RowsIndexed,
		"columns", stats.ColumnsIndexed,
		"tokens", stats.DistinctTokens,
		"batches", stats.Batches,
		"duration", stats.Duration,
	)
	return h, nil
}

// Current returns the most recently built handle
func (e *Engine) Current() (*Handle, error) {
	h := e.current.Load()
	if h == nil {
		return nil, ErrNotIndexed
	}
	return h, nil
}

// Indexing reports whether a build is in progress
func (e *Engine) Indexing() bool {
	return e.indexer.Building()
}

// Query runs Handle.Query on the current handle
func (e *Engine) Query(keyword string) (types.QueryResult, error) {
	h, err := e.Current()
	if err != nil {
		return types.QueryResult{}, err
	}
	return h.Query(keyword), nil
}

// IncrementalQuery runs Handle.IncrementalQuery on the current handle
func (e *Engine) IncrementalQuery(prev, next string) (types.QueryResult, error) {
	h, err := e.Current()
	if err != nil {
		return types.QueryResult{}, err
	}
	return h.IncrementalQuery(prev, next), nil
}

// ApplyFilters runs Handle.ApplyFilters on the current handle
func (e *Engine) ApplyFilters(spec filter.Spec) (types.FilterResult, error) {
	h, err := e.Current()
	if err != nil {
		return types.FilterResult{}, err
	}
	return h.ApplyFilters(spec)
}

// Suggest runs Handle.Suggest on the current handle
func (e *Engine) Suggest(prefix string, limit int) ([]indexer.Suggestion, error) {
	h, err := e.Current()
	if err != nil {
		return nil, err
	}
	return h.Suggest(prefix, limit), nil
}

// Status reports on the current handle
func (e *Engine) Status() (Status, error) {
	h, err := e.Current()
	if err != nil {
		return Status{}, err
	}
	st := h.Status()
	st.Indexing = e.Indexing()
	return st, nil
}
