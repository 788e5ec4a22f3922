package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tablesearch-mcp/internal/tokenizer"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// DefaultBatchSize is the number of rows tokenized per worker task
const DefaultBatchSize = 512

var (
	// ErrIndexingInProgress is returned when a build is already running
	ErrIndexingInProgress = errors.New("indexing already in progress")
	// ErrTooManyRows is returned when row ids would not fit in 32 bits
	ErrTooManyRows = errors.New("dataset exceeds maximum row count")
)

// Indexer builds inverted indexes from materialized datasets
type Indexer struct {
	tokenizer *tokenizer.Tokenizer
	lock      IndexLock
}

// Config contains configuration for a build
type Config struct {
	Workers   int // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize int // Rows per worker task (default: 512)
}

// Statistics contains statistics about a build
type Statistics struct {
	RowsIndexed    int
	ColumnsIndexed int
	TokensEmitted  int // Sum of distinct tokens per row
	DistinctTokens int
	Batches        int
	Duration       time.Duration
}

// New creates a new Indexer using the given tokenizer
func New(tok *tokenizer.Tokenizer) *Indexer {
	if tok == nil {
		tok = tokenizer.Default()
	}
	return &Indexer{tokenizer: tok}
}

// Tokenizer returns the tokenizer shared by every index this Indexer builds
func (idx *Indexer) Tokenizer() *tokenizer.Tokenizer {
	return idx.tokenizer
}

// Building reports whether a build is running
func (idx *Indexer) Building() bool {
	return idx.lock.Held()
}

// Build tokenizes every column value of every row and returns a new
// immutable index. Nil columns are inferred from the rows. An empty dataset
// yields a valid empty index. Only one build may run at a time; a second
// concurrent call fails with ErrIndexingInProgress.
func (idx *Indexer) Build(ctx context.Context, rows []types.Row, columns []types.Column, config *Config) (*Index, *Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if uint64(len(rows)) > math.MaxUint32 {
		return nil, nil, fmt.Errorf("%w: %d rows", ErrTooManyRows, len(rows))
	}

	if columns == nil {
		columns = types.InferColumns(rows)
	}

	startTime := time.Now()
	rowTokens := make([]int, len(rows))

	batchCount := (len(rows) + batchSize - 1) / batchSize
	partials := make([]map[string][]uint32, batchCount)

	var emitted atomic.Int64

	// Use errgroup for concurrent tokenization with cancellation
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for b := 0; b < batchCount; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[b] = idx.indexBatch(rows, columns, start, end, rowTokens, &emitted)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to tokenize rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	postings := mergePartials(partials)

	terms := make([]string, 0, len(postings))
	for term := range postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	duration := time.Since(startTime)
	ix := &Index{
		tokenizer: idx.tokenizer,
		columns:   columns,
		postings:  postings,
		terms:     terms,
		rowTokens: rowTokens,
		builtAt:   time.Now(),
		duration:  duration,
	}

	stats := &Statistics{
		RowsIndexed:    len(rows),
		ColumnsIndexed: len(columns),
		TokensEmitted:  int(emitted.Load()),
		DistinctTokens: len(postings),
		Batches:        batchCount,
		Duration:       duration,
	}

	return ix, stats, nil
}

// indexBatch tokenizes rows[start:end] into a partial posting map. Row ids
// are appended in ascending order so partials merge cheaply.
func (idx *Indexer) indexBatch(rows []types.Row, columns []types.Column, start, end int,
	rowTokens []int, emitted *atomic.Int64) map[string][]uint32 {

	partial := make(map[string][]uint32)
	keywords := make(map[string]struct{})

	for i := start; i < end; i++ {
		clear(keywords)
		for _, col := range columns {
			idx.tokenizer.AppendTokens(keywords, types.FormatValue(rows[i][col.Key]))
		}

		for tok := range keywords {
			partial[tok] = append(partial[tok], uint32(i))
		}

		// Each index is written by exactly one batch
		rowTokens[i] = len(keywords)
		emitted.Add(int64(len(keywords)))
	}

	return partial
}

// mergePartials folds per-batch postings into bitmaps in batch order
func mergePartials(partials []map[string][]uint32) map[string]*roaring.Bitmap {
	postings := make(map[string]*roaring.Bitmap)
	for _, partial := range partials {
		for tok, ids := range partial {
			bm, ok := postings[tok]
			if !ok {
				bm = roaring.New()
				postings[tok] = bm
			}
			bm.AddMany(ids)
		}
	}

	for _, bm := range postings {
		bm.RunOptimize()
	}
	return postings
}
