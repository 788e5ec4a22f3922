package engine

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cast"

	"github.com/dshills/tablesearch-mcp/internal/cache"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/internal/tokenizer"
)

// Environment variables read by ConfigFromEnv
const (
	EnvSearchCacheSize   = "TABLESEARCH_SEARCH_CACHE_SIZE"
	EnvFilterCacheSize   = "TABLESEARCH_FILTER_CACHE_SIZE"
	EnvMinGram           = "TABLESEARCH_MIN_GRAM"
	EnvMaxGram           = "TABLESEARCH_MAX_GRAM"
	EnvSubstringFallback = "TABLESEARCH_SUBSTRING_FALLBACK"
	EnvFuzzy             = "TABLESEARCH_FUZZY"
	EnvMinSimilarity     = "TABLESEARCH_MIN_SIMILARITY"
	EnvWorkers           = "TABLESEARCH_WORKERS"
	EnvBatchSize         = "TABLESEARCH_BATCH_SIZE"
)

// ErrInvalidConfig is returned for out-of-range configuration values
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Config holds engine tuning knobs
type Config struct {
	SearchCacheSize   int               // Keyword cache entries (least-used eviction)
	FilterCacheSize   int               // Filter cache entries (FIFO eviction)
	MinGram           int               // Shortest n-gram indexed
	MaxGram           int               // Longest n-gram indexed
	SubstringFallback bool              // Match keywords outside the n-gram window as substrings
	Fuzzy             bool              // Answer unmatched keywords from similar indexed terms
	MinSimilarity     int               // Fuzzy threshold in percent
	Workers           int               // Concurrent tokenizer workers during a build
	BatchSize         int               // Rows per build batch
	Variants          map[string]string // Variant -> standard text replacements
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SearchCacheSize:   cache.DefaultSize,
		FilterCacheSize:   cache.DefaultSize,
		MinGram:           tokenizer.DefaultMinGram,
		MaxGram:           tokenizer.DefaultMaxGram,
		SubstringFallback: true,
		MinSimilarity:     indexer.DefaultMinSimilarity,
		Workers:           runtime.NumCPU(),
		BatchSize:         indexer.DefaultBatchSize,
		Variants:          tokenizer.DefaultVariants,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by any TABLESEARCH_*
// variables that are set
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvSearchCacheSize, &cfg.SearchCacheSize},
		{EnvFilterCacheSize, &cfg.FilterCacheSize},
		{EnvMinGram, &cfg.MinGram},
		{EnvMaxGram, &cfg.MaxGram},
		{EnvWorkers, &cfg.Workers},
		{EnvBatchSize, &cfg.BatchSize},
		{EnvMinSimilarity, &cfg.MinSimilarity},
	}
	for _, v := range ints {
		raw, ok := lookupEnv(v.name)
		if !ok {
			continue
		}
		n, err := cast.ToIntE(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, v.name, raw, err)
		}
		*v.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvSubstringFallback, &cfg.SubstringFallback},
		{EnvFuzzy, &cfg.Fuzzy},
	}
	for _, v := range bools {
		raw, ok := lookupEnv(v.name)
		if !ok {
			continue
		}
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, v.name, raw, err)
		}
		*v.dst = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values
func (c Config) Validate() error {
	if c.SearchCacheSize < 0 {
		return fmt.Errorf("%w: search cache size %d", ErrInvalidConfig, c.SearchCacheSize)
	}
	if c.FilterCacheSize < 0 {
		return fmt.Errorf("%w: filter cache size %d", ErrInvalidConfig, c.FilterCacheSize)
	}
	if c.MinGram < 1 || c.MaxGram < c.MinGram {
		return fmt.Errorf("%w: n-gram window [%d, %d]", ErrInvalidConfig, c.MinGram, c.MaxGram)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 100 {
		return fmt.Errorf("%w: min similarity %d", ErrInvalidConfig, c.MinSimilarity)
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}
