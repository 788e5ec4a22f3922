package indexer

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dshills/tablesearch-mcp/internal/tokenizer"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// DefaultSuggestLimit caps Suggest when the caller passes no limit
const DefaultSuggestLimit = 10

// Index is an immutable inverted index from token to row ids. It never
// holds row data, only positions into the dataset it was built from.
// All methods are safe for concurrent use.
type Index struct {
	tokenizer *tokenizer.Tokenizer
	columns   []types.Column
	postings  map[string]*roaring.Bitmap
	terms     []string // sorted keys of postings, for prefix scans
	rowTokens []int    // distinct tokens per row, reporting only
	builtAt   time.Time
	duration  time.Duration
}

// Suggestion is an indexed token matching a prefix
type Suggestion struct {
	Term      string
	Frequency int // Number of rows containing the term
}

// IndexStats summarizes an index for status reporting
type IndexStats struct {
	Rows            int
	Columns         int
	Tokens          int
	Postings        uint64
	AvgTokensPerRow float64
	SizeBytes       uint64
	BuiltAt         time.Time
	BuildDuration   time.Duration
}

// Tokenizer returns the tokenizer used to build the index
func (ix *Index) Tokenizer() *tokenizer.Tokenizer {
	return ix.tokenizer
}

// Columns returns the columns that were tokenized
func (ix *Index) Columns() []types.Column {
	return ix.columns
}

// Rows returns the number of rows in the indexed dataset
func (ix *Index) Rows() int {
	return len(ix.rowTokens)
}

// RowTokenCount returns the number of distinct tokens recorded for a row
func (ix *Index) RowTokenCount(row int) int {
	if row < 0 || row >= len(ix.rowTokens) {
		return 0
	}
	return ix.rowTokens[row]
}

// Has reports whether the normalized keyword is an indexed token
func (ix *Index) Has(keyword string) bool {
	_, ok := ix.postings[ix.tokenizer.Normalize(keyword)]
	return ok
}

// Search returns the rows whose values produced exactly the normalized
// keyword as a token. Unknown or empty keywords yield an empty bitmap.
// The returned bitmap is shared with the index and must not be modified.
func (ix *Index) Search(keyword string) *roaring.Bitmap {
	norm := ix.tokenizer.Normalize(keyword)
	if norm == "" {
		return roaring.New()
	}
	if bm, ok := ix.postings[norm]; ok {
		return bm
	}
	return roaring.New()
}

// Candidates returns a superset of the rows containing keyword by
// intersecting the postings of all its longest n-grams. Every row holding
// the keyword as a substring holds each of those n-grams, so no match is
// lost; callers must still verify candidates. The result is a fresh bitmap.
//
// Grams with edge whitespace are not indexed and are looked up by their
// trimmed form. A keyword with no usable gram yields every row.
func (ix *Index) Candidates(keyword string) *roaring.Bitmap {
	grams := ix.tokenizer.Grams(keyword, ix.tokenizer.MaxGram())
	if len(grams) == 0 {
		return roaring.New()
	}

	lists := make([]*roaring.Bitmap, 0, len(grams))
	for _, g := range grams {
		g = strings.TrimSpace(g)
		if l := utf8.RuneCountInString(g); l == 0 || (l > 1 && l < ix.tokenizer.MinGram()) {
			continue
		}
		bm, ok := ix.postings[g]
		if !ok {
			return roaring.New()
		}
		lists = append(lists, bm)
	}
	if len(lists) == 0 {
		all := roaring.New()
		all.AddRange(0, uint64(ix.Rows()))
		return all
	}

	// Smallest posting first keeps the running intersection small
	sort.Slice(lists, func(i, j int) bool {
		return lists[i].GetCardinality() < lists[j].GetCardinality()
	})

	result := lists[0].Clone()
	for _, bm := range lists[1:] {
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Suggest returns indexed tokens starting with prefix, most frequent first
func (ix *Index) Suggest(prefix string, limit int) []Suggestion {
	norm := ix.tokenizer.Normalize(prefix)
	if norm == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}

	var suggestions []Suggestion
	for i := sort.SearchStrings(ix.terms, norm); i < len(ix.terms); i++ {
		term := ix.terms[i]
		if !strings.HasPrefix(term, norm) {
			break
		}
		suggestions = append(suggestions, Suggestion{
			Term:      term,
			Frequency: int(ix.postings[term].GetCardinality()),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Frequency != suggestions[j].Frequency {
			return suggestions[i].Frequency > suggestions[j].Frequency
		}
		return suggestions[i].Term < suggestions[j].Term
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// Stats returns size and shape statistics for the index
func (ix *Index) Stats() IndexStats {
	stats := IndexStats{
		Rows:          len(ix.rowTokens),
		Columns:       len(ix.columns),
		Tokens:        len(ix.postings),
		BuiltAt:       ix.builtAt,
		BuildDuration: ix.duration,
	}

	for term, bm := range ix.postings {
		stats.Postings += bm.GetCardinality()
		stats.SizeBytes += bm.GetSizeInBytes() + uint64(len(term))
	}

	if stats.Rows > 0 {
		total := 0
		for _, n := range ix.rowTokens {
			total += n
		}
		stats.AvgTokensPerRow = float64(total) / float64(stats.Rows)
	}

	return stats
}
