package types

import "time"

// Source identifies which path produced a keyword query result
type Source string

const (
	SourceCache Source = "cache" // Served from the search cache
	SourceIndex Source = "index" // Exact token lookup in the inverted index
	SourceScan  Source = "scan"  // Candidate scan for keywords longer than the n-gram window
	SourceFuzzy Source = "fuzzy" // Rows of similar terms when nothing matched exactly
)

// Validate checks if the source is one of the known values
func (s Source) Validate() error {
	switch s {
	case SourceCache, SourceIndex, SourceScan, SourceFuzzy:
		return nil
	}
	return ErrUnknownSource
}

// QueryResult is the outcome of a keyword query against an indexed dataset
type QueryResult struct {
	Keyword string
	Indices []int // Row indices, ascending
	Rows    []Row // Rows in the same order as Indices
	Elapsed time.Duration
	Source  Source

	// Set only by incremental queries
	IsIncremental bool
}

// FilterResult is the outcome of applying a structured filter
type FilterResult struct {
	Key     string // Canonical filter key
	Indices []int
	Rows    []Row
	Elapsed time.Duration
	Cached  bool
}

// ElapsedMillis reports the elapsed time in fractional milliseconds
func (r *QueryResult) ElapsedMillis() float64 {
	return float64(r.Elapsed.Microseconds()) / 1000
}

// ElapsedMillis reports the elapsed time in fractional milliseconds
func (r *FilterResult) ElapsedMillis() float64 {
	return float64(r.Elapsed.Microseconds()) / 1000
}
