// Package cache provides the two bounded result caches of the engine.
//
// The caches use different eviction strategies on purpose and must not be
// unified, since each one's hit behavior is observable:
//
//   - SearchCache evicts the entry with the lowest hit count (ties go to
//     the earliest inserted). Keyword results that users return to survive.
//   - FilterCache evicts the oldest inserted key (FIFO), regardless of reads.
//
// Both default to 20 entries and are safe for concurrent use.
package cache
