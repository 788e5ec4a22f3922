// Package searcher answers keyword queries over an inverted index.
//
// Every query is normalized by the index's tokenizer and resolved in this
// order:
//
//  1. Cache: a previously computed result for the same normalized keyword
//  2. Incremental: when the caller passes the previous keyword and the new
//     one extends it, only the rows that matched the previous keyword are
//     rescanned
//  3. Index: an exact token lookup, or for keywords outside the n-gram
//     window a containment scan over index candidates
//
// # Basic Usage
//
//	s := searcher.New(ix, rows, searcher.DefaultOptions())
//
//	resp := s.Search("a")                    // Source: index
//	resp = s.Search("a")                     // Source: cache
//	resp = s.IncrementalSearch("a", "a1")    // IsIncremental: true
//
//	for it := resp.Rows.Iterator(); it.HasNext(); {
//	    fmt.Println(rows[it.Next()])
//	}
//
// # Incremental Search
//
// Typing into a search box issues a sequence of keywords each extending
// the last. Any row containing the longer keyword also contains the
// shorter one, so its result is a subset of the previous result. The
// rescan costs O(previous results x columns) instead of a full lookup,
// and returns the same rows Search would.
//
// The keyword cache evicts the least-used entry when full (see package
// cache). Results are shared bitmaps and must be treated as read-only.
package searcher
