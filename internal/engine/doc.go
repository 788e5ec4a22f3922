// Package engine is the entry point of the search and filter engine.
//
// An Engine turns a dataset into a Handle: an immutable inverted index plus
// the keyword cache and filter state that serve it. Rebuilding publishes a
// new handle atomically; callers holding the old one finish against it.
//
//	eng, err := engine.New(engine.DefaultConfig(), engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	h, err := eng.BuildIndex(ctx, rows, columns)
//	if err != nil {
//	    return err
//	}
//
//	res := h.Query("a")                  // rows containing "a"
//	res = h.IncrementalQuery("a", "a1")  // narrows the cached "a" result
//
//	filtered, err := h.ApplyFilters(filter.Spec{
//	    NumericRanges: map[string]filter.NumericRange{"points": {Min: 100, Max: 150}},
//	})
//
// Keyword search and structured filters are independent; combining their
// row sets is left to the caller.
package engine
