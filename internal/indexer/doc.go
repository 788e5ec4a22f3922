// Package indexer builds the in-memory inverted index over a tabular dataset.
//
// The index maps every token produced by the tokenizer to the set of row
// ids whose values produced it. Posting lists are roaring bitmaps, so
// lookups are a hash probe and results iterate in row order.
//
// # Basic Usage
//
//	idx := indexer.New(tokenizer.Default())
//
//	ix, stats, err := idx.Build(ctx, rows, columns, &indexer.Config{
//	    Workers:   runtime.NumCPU(),
//	    BatchSize: 512,
//	})
//	if err != nil {
//	    return err
//	}
//
//	fmt.Printf("Indexed %d rows, %d tokens in %v\n",
//	    stats.RowsIndexed, stats.DistinctTokens, stats.Duration)
//
//	rows := ix.Search("a1") // *roaring.Bitmap of row ids
//
// # Build Pipeline
//
// Building runs in three stages:
//
//  1. Batching: rows are split into fixed-size batches
//  2. Tokenize: batches are tokenized concurrently (errgroup, bounded by Workers)
//     into partial posting maps
//  3. Merge: partials are folded into bitmaps in batch order and run-optimized
//
// The result does not depend on Workers or BatchSize. Only one build runs at
// a time per Indexer; a concurrent call fails with ErrIndexingInProgress.
//
// # Lookup Semantics
//
// Search is an exact token lookup after normalization. Keywords up to four
// characters match any row containing them as a substring; longer keywords
// match only when they equal a whole field value. Candidates narrows longer
// keywords to rows holding all their 4-grams, which callers verify with a
// containment scan.
//
// An index is immutable once built. A changed dataset needs a new build.
package indexer
