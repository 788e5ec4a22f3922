package searcher

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dshills/tablesearch-mcp/internal/cache"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Options configures a Searcher
type Options struct {
	// CacheSize bounds the keyword cache (cache.DefaultSize when <= 0)
	CacheSize int

	// SubstringFallback makes keywords outside the n-gram window match as
	// substrings by verifying index candidates. When false such keywords
	// only match whole field values.
	SubstringFallback bool

	// Fuzzy answers a keyword with no exact match with the rows of indexed
	// terms at least MinSimilarity percent similar to it. Off by default so
	// unknown keywords match nothing.
	Fuzzy bool

	// MinSimilarity is the fuzzy threshold in percent
	// (indexer.DefaultMinSimilarity when <= 0)
	MinSimilarity int
}

// DefaultOptions returns the default searcher options
func DefaultOptions() Options {
	return Options{
		CacheSize:         cache.DefaultSize,
		SubstringFallback: true,
		MinSimilarity:     indexer.DefaultMinSimilarity,
	}
}

// Response contains the rows matching a keyword and how they were found.
// Rows is shared with the cache and must not be modified.
type Response struct {
	Keyword       string // Normalized keyword
	Rows          *roaring.Bitmap
	Source        types.Source
	Duration      time.Duration
	IsIncremental bool
}

// Stats reports searcher activity
type Stats struct {
	Cache        cache.Stats
	Searches     uint64 // Search and IncrementalSearch calls
	Incremental  uint64 // Calls answered by rescanning a previous result
	IndexLookups uint64
	RowsScanned  uint64 // Rows verified by containment scans
	Fuzzy        uint64 // Searches answered from similar terms
}

// Searcher answers keyword queries against one index and the rows it was
// built from, in the order cache, incremental rescan, index.
// It is safe for concurrent use.
type Searcher struct {
	index   *indexer.Index
	rows    []types.Row
	columns []string
	cache   *cache.SearchCache[*roaring.Bitmap]
	opts    Options

	searches     atomic.Uint64
	incremental  atomic.Uint64
	indexLookups atomic.Uint64
	rowsScanned  atomic.Uint64
	fuzzy        atomic.Uint64
}

// New creates a searcher over an index and the rows it indexed
func New(index *indexer.Index, rows []types.Row, opts Options) *Searcher {
	columns := make([]string, 0, len(index.Columns()))
	for _, col := range index.Columns() {
		columns = append(columns, col.Key)
	}

	return &Searcher{
		index:   index,
		rows:    rows,
		columns: columns,
		cache:   cache.NewSearchCache[*roaring.Bitmap](opts.CacheSize),
		opts:    opts,
	}
}

// Index returns the index the searcher reads from
func (s *Searcher) Index() *indexer.Index {
	return s.index
}

// Search returns the rows matching keyword. A cached result is returned
// as is; otherwise the index is consulted and the result cached. Empty
// keywords match nothing and are never cached.
func (s *Searcher) Search(keyword string) Response {
	start := time.Now()
	s.searches.Add(1)

	norm := s.index.Tokenizer().Normalize(keyword)
	resp := s.search(norm)
	resp.Duration = time.Since(start)
	return resp
}

// IncrementalSearch answers next by rescanning only the rows that matched
// prev. It applies when prev is non-empty, next extends it and prev's
// result is still cached; otherwise it behaves like Search. A cached result
// for next always wins.
func (s *Searcher) IncrementalSearch(prev, next string) Response {
	start := time.Now()
	s.searches.Add(1)

	tok := s.index.Tokenizer()
	prevNorm, nextNorm := tok.Normalize(prev), tok.Normalize(next)

	if _, cached := s.cache.Peek(nextNorm); !cached && s.extends(prevNorm, nextNorm) {
		if prevRows, ok := s.cache.Get(prevNorm); ok {
			rows := s.scan(prevRows, s.matcher(nextNorm))
			if rows.IsEmpty() && s.opts.Fuzzy {
				// No exact match anywhere; let search try similar terms
				resp := s.search(nextNorm)
				resp.Duration = time.Since(start)
				return resp
			}
			s.cache.Set(nextNorm, rows)
			s.incremental.Add(1)
			return Response{
				Keyword:       nextNorm,
				Rows:          rows,
				Source:        types.SourceScan,
				Duration:      time.Since(start),
				IsIncremental: true,
			}
		}
	}

	resp := s.search(nextNorm)
	resp.Duration = time.Since(start)
	return resp
}

func (s *Searcher) search(norm string) Response {
	if norm == "" {
		return Response{Rows: roaring.New(), Source: types.SourceIndex}
	}

	if rows, ok := s.cache.Get(norm); ok {
		return Response{Keyword: norm, Rows: rows, Source: types.SourceCache}
	}

	var (
		rows   *roaring.Bitmap
		source = types.SourceIndex
	)
	switch {
	case s.inWindow(norm) || !s.opts.SubstringFallback:
		rows = s.index.Search(norm)
		s.indexLookups.Add(1)
	case s.index.Tokenizer().RuneLen(norm) > s.index.Tokenizer().MaxGram():
		rows = s.scan(s.index.Candidates(norm), s.matcher(norm))
		source = types.SourceScan
	default:
		// Shorter than MinGram but longer than one rune: no grams to narrow with
		all := roaring.New()
		all.AddRange(0, uint64(len(s.rows)))
		rows = s.scan(all, s.matcher(norm))
		source = types.SourceScan
	}

	if rows.IsEmpty() && s.opts.Fuzzy {
		if similar := s.similarRows(norm); !similar.IsEmpty() {
			rows, source = similar, types.SourceFuzzy
			s.fuzzy.Add(1)
		}
	}

	s.cache.Set(norm, rows)
	return Response{Keyword: norm, Rows: rows, Source: source}
}

// similarRows unions the postings of every term similar to norm
func (s *Searcher) similarRows(norm string) *roaring.Bitmap {
	terms := s.index.Similar(norm, s.opts.MinSimilarity)
	if len(terms) == 0 {
		return roaring.New()
	}

	postings := make([]*roaring.Bitmap, len(terms))
	for i, t := range terms {
		postings[i] = s.index.Search(t.Term)
	}
	rows := roaring.FastOr(postings...)
	rows.RunOptimize()
	return rows
}

// extends reports whether next can be answered from prev's result: next
// strictly extends prev, and prev matched by containment so every row
// containing next is among prev's rows
func (s *Searcher) extends(prev, next string) bool {
	if prev == "" || len(next) <= len(prev) || !strings.HasPrefix(next, prev) {
		return false
	}
	return s.inWindow(prev) || s.opts.SubstringFallback
}

// inWindow reports whether every substring of this length is an indexed token
func (s *Searcher) inWindow(norm string) bool {
	tok := s.index.Tokenizer()
	l := tok.RuneLen(norm)
	return l == 1 || (l >= tok.MinGram() && l <= tok.MaxGram())
}

// matcher returns the row predicate equivalent to an index lookup of norm.
// Keywords inside the n-gram window, or any keyword with the substring
// fallback on, match by containment; others only match whole values.
func (s *Searcher) matcher(norm string) func(types.Row) bool {
	tok := s.index.Tokenizer()
	substring := s.inWindow(norm) || s.opts.SubstringFallback

	return func(row types.Row) bool {
		for _, col := range s.columns {
			value := tok.Normalize(types.FormatValue(row[col]))
			if substring && strings.Contains(value, norm) {
				return true
			}
			if !substring && value == norm {
				return true
			}
		}
		return false
	}
}

// scan verifies every candidate row and returns the matching ones
func (s *Searcher) scan(candidates *roaring.Bitmap, match func(types.Row) bool) *roaring.Bitmap {
	out := roaring.New()
	var scanned uint64

	it := candidates.Iterator()
	for it.HasNext() {
		i := it.Next()
		scanned++
		if int(i) < len(s.rows) && match(s.rows[i]) {
			out.Add(i)
		}
	}

	s.rowsScanned.Add(scanned)
	out.RunOptimize()
	return out
}

// Stats returns cache statistics and activity counters
func (s *Searcher) Stats() Stats {
	return Stats{
		Cache:        s.cache.Stats(),
		Searches:     s.searches.Load(),
		Incremental:  s.incremental.Load(),
		IndexLookups: s.indexLookups.Load(),
		RowsScanned:  s.rowsScanned.Load(),
		Fuzzy:        s.fuzzy.Load(),
	}
}

// ClearCache drops every cached keyword result
func (s *Searcher) ClearCache() {
	s.cache.Clear()
}

// HitCount returns how often the cached result for keyword was reused, or
// -1 if it is not cached
func (s *Searcher) HitCount(keyword string) int {
	return s.cache.HitCount(s.index.Tokenizer().Normalize(keyword))
}
