package tokenizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default n-gram window
const (
	DefaultMinGram = 2
	DefaultMaxGram = 4
)

// ErrInvalidConfig is returned when the n-gram window is not usable
var ErrInvalidConfig = errors.New("invalid tokenizer config")

// DefaultVariants maps variant character sequences to their standard form.
// Applied to both indexed text and queries so either spelling matches.
var DefaultVariants = map[string]string{
	"腫廇": "腫瘤",
	"檢驗": "檢查",
}

// Config holds tokenizer configuration
type Config struct {
	MinGram  int               // Shortest n-gram emitted (default: 2)
	MaxGram  int               // Longest n-gram emitted (default: 4)
	Variants map[string]string // Variant -> standard replacements (default: DefaultVariants)
}

// DefaultConfig returns the default tokenizer configuration
func DefaultConfig() Config {
	return Config{
		MinGram:  DefaultMinGram,
		MaxGram:  DefaultMaxGram,
		Variants: DefaultVariants,
	}
}

// Tokenizer turns field text into searchable tokens: single characters,
// n-grams inside the configured window, and the whole normalized value.
// A Tokenizer is immutable and safe for concurrent use.
type Tokenizer struct {
	minGram  int
	maxGram  int
	replacer *strings.Replacer
}

// New creates a tokenizer with the given configuration
func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinGram < 1 {
		return nil, fmt.Errorf("%w: min gram %d must be >= 1", ErrInvalidConfig, cfg.MinGram)
	}
	if cfg.MaxGram < cfg.MinGram {
		return nil, fmt.Errorf("%w: max gram %d is below min gram %d", ErrInvalidConfig, cfg.MaxGram, cfg.MinGram)
	}

	t := &Tokenizer{
		minGram: cfg.MinGram,
		maxGram: cfg.MaxGram,
	}

	if len(cfg.Variants) > 0 {
		// Longest variants first so overlapping entries resolve deterministically
		variants := make([]string, 0, len(cfg.Variants))
		for v := range cfg.Variants {
			if v != "" {
				variants = append(variants, v)
			}
		}
		sort.Slice(variants, func(i, j int) bool {
			if len(variants[i]) != len(variants[j]) {
				return len(variants[i]) > len(variants[j])
			}
			return variants[i] < variants[j]
		})

		pairs := make([]string, 0, len(variants)*2)
		for _, v := range variants {
			pairs = append(pairs, v, cfg.Variants[v])
		}
		t.replacer = strings.NewReplacer(pairs...)
	}

	return t, nil
}

// Default returns a tokenizer with DefaultConfig
func Default() *Tokenizer {
	t, err := New(DefaultConfig())
	if err != nil {
		// DefaultConfig is always valid
		panic(fmt.Sprintf("default tokenizer: %v", err))
	}
	return t
}

// MinGram returns the shortest n-gram length
func (t *Tokenizer) MinGram() int { return t.minGram }

// MaxGram returns the longest n-gram length
func (t *Tokenizer) MaxGram() int { return t.maxGram }

// Normalize applies variant replacement, case folding and trimming
func (t *Tokenizer) Normalize(text string) string {
	if t.replacer != nil {
		text = t.replacer.Replace(text)
	}
	return strings.TrimSpace(strings.ToLower(text))
}

// Tokenize returns the token set for text. For a normalized value of L
// runes this is every rune, every substring of MinGram..MaxGram runes and
// the whole value. Substrings starting or ending in whitespace are never
// emitted: normalized keywords are trimmed and could not reach them.
func (t *Tokenizer) Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	t.AppendTokens(tokens, text)
	return tokens
}

// AppendTokens adds the tokens of text to an existing set and returns the
// number of tokens produced for text (including ones already present).
func (t *Tokenizer) AppendTokens(tokens map[string]struct{}, text string) int {
	norm := t.Normalize(text)
	if norm == "" {
		return 0
	}

	runes := []rune(norm)
	n := 0
	add := func(s string) {
		if !IsTrimmed(s) {
			return
		}
		tokens[s] = struct{}{}
		n++
	}

	for _, r := range runes {
		add(string(r))
	}
	for size := t.minGram; size <= t.maxGram; size++ {
		if size == 1 {
			continue
		}
		for i := 0; i+size <= len(runes); i++ {
			add(string(runes[i : i+size]))
		}
	}
	// The whole value is already covered when it fits inside the window
	if l := len(runes); l > t.maxGram || (l > 1 && l < t.minGram) {
		add(norm)
	}

	return n
}

// Grams returns the distinct n-grams of size n in the normalized text, in
// order of first appearance. Text shorter than n yields nil.
func (t *Tokenizer) Grams(text string, n int) []string {
	runes := []rune(t.Normalize(text))
	if n < 1 || len(runes) < n {
		return nil
	}

	seen := make(map[string]bool)
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		g := string(runes[i : i+n])
		if seen[g] {
			continue
		}
		seen[g] = true
		grams = append(grams, g)
	}
	return grams
}

// RuneLen returns the length in runes of the normalized text
func (t *Tokenizer) RuneLen(text string) int {
	return len([]rune(t.Normalize(text)))
}

// IsTrimmed reports whether s is non-empty and neither starts nor ends
// with whitespace, the shape of every emitted token
func IsTrimmed(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return s != "" && !unicode.IsSpace(first) && !unicode.IsSpace(last)
}
