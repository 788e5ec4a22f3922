package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/tablesearch-mcp/internal/filter"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/internal/searcher"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Handle is one immutable indexed dataset together with the caches that
// serve it. Caches live and die with the handle, so a rebuild never serves
// results computed on other rows. A Handle is safe for concurrent use.
type Handle struct {
	id       string
	dataset  string
	rows     []types.Row
	index    *indexer.Index
	stats    *indexer.Statistics
	searcher *searcher.Searcher
	filter   *filter.Advanced
}

func newHandle(dataset string, rows []types.Row, ix *indexer.Index, stats *indexer.Statistics, cfg Config) *Handle {
	return &Handle{
		id:      uuid.NewString(),
		dataset: dataset,
		rows:    rows,
		index:   ix,
		stats:   stats,
		searcher: searcher.New(ix, rows, searcher.Options{
			CacheSize:         cfg.SearchCacheSize,
			SubstringFallback: cfg.SubstringFallback,
			Fuzzy:             cfg.Fuzzy,
			MinSimilarity:     cfg.MinSimilarity,
		}),
		filter: filter.NewAdvanced(cfg.FilterCacheSize),
	}
}

// ID returns the unique id of this build
func (h *Handle) ID() string {
	return h.id
}

// Dataset returns the dataset name, empty for anonymous builds
func (h *Handle) Dataset() string {
	return h.dataset
}

// Rows returns the indexed rows. They must not be modified.
func (h *Handle) Rows() []types.Row {
	return h.rows
}

// Columns returns the indexed columns
func (h *Handle) Columns() []types.Column {
	return h.index.Columns()
}

// Query returns the rows matching keyword, ordered by row index
func (h *Handle) Query(keyword string) types.QueryResult {
	resp := h.searcher.Search(keyword)
	return h.queryResult(resp)
}

// IncrementalQuery answers next by narrowing the cached result of prev when
// next extends prev. IsIncremental reports whether that path was taken;
// the rows are the same as Query(next) either way.
func (h *Handle) IncrementalQuery(prev, next string) types.QueryResult {
	resp := h.searcher.IncrementalSearch(prev, next)
	return h.queryResult(resp)
}

func (h *Handle) queryResult(resp searcher.Response) types.QueryResult {
	ids := resp.Rows.ToArray()
	indices := make([]int, len(ids))
	for i, id := range ids {
		indices[i] = int(id)
	}

	return types.QueryResult{
		Keyword:       resp.Keyword,
		Indices:       indices,
		Rows:          h.pick(indices),
		Elapsed:       resp.Duration,
		Source:        resp.Source,
		IsIncremental: resp.IsIncremental,
	}
}

// ApplyFilters replaces the handle's active filters with spec and returns
// the matching rows in row order. Malformed specs fail before any row is
// evaluated.
func (h *Handle) ApplyFilters(spec filter.Spec) (types.FilterResult, error) {
	start := time.Now()
	res, err := h.filter.Apply(h.rows, spec)
	if err != nil {
		return types.FilterResult{}, err
	}

	return types.FilterResult{
		Key:     res.Key,
		Indices: res.Indices,
		Rows:    h.pick(res.Indices),
		Elapsed: time.Since(start),
		Cached:  res.Cached,
	}, nil
}

// Suggest returns indexed terms starting with prefix, most frequent first
func (h *Handle) Suggest(prefix string, limit int) []indexer.Suggestion {
	return h.index.Suggest(prefix, limit)
}

// Status describes a handle
type Status struct {
	ID       string
	Dataset  string
	BuiltAt  time.Time
	Indexing bool // A newer build is running
	Index    indexer.IndexStats
	Build    indexer.Statistics
	Search   searcher.Stats
	Filter   filter.AdvancedStats
}

// Status returns index statistics and cache counters
func (h *Handle) Status() Status {
	ixStats := h.index.Stats()
	return Status{
		ID:      h.id,
		Dataset: h.dataset,
		BuiltAt: ixStats.BuiltAt,
		Index:   ixStats,
		Build:   *h.stats,
		Search:  h.searcher.Stats(),
		Filter:  h.filter.Stats(),
	}
}

func (h *Handle) pick(indices []int) []types.Row {
	rows := make([]types.Row, len(indices))
	for i, idx := range indices {
		rows[i] = h.rows[idx]
	}
	return rows
}
