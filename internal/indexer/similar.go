package indexer

import (
	"sort"
	"unicode/utf8"
)

// DefaultMinSimilarity is the similarity, in percent, a term needs to
// count as a fuzzy match
const DefaultMinSimilarity = 80

// SimilarTerm is an indexed token close to a keyword
type SimilarTerm struct {
	Term       string
	Similarity float64 // Percent, see Similarity
	Frequency  int     // Number of rows containing the term
}

// Similarity returns how alike a and b are, in percent: twice the length
// of their longest common rune subsequence over their combined rune
// length. Identical strings score 100, strings sharing no rune score 0.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcsLen(ra, rb)) / float64(total)
}

// Similar returns the indexed terms at least minSimilarity percent similar
// to the normalized keyword, most similar first, then most frequent. The
// keyword itself is never returned. minSimilarity <= 0 means
// DefaultMinSimilarity.
func (ix *Index) Similar(keyword string, minSimilarity int) []SimilarTerm {
	norm := ix.tokenizer.Normalize(keyword)
	if norm == "" {
		return nil
	}
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	kr := []rune(norm)
	var similar []SimilarTerm
	for _, term := range ix.terms {
		if term == norm {
			continue
		}
		// The common subsequence is at most the shorter length, which
		// bounds the score before any comparison
		tl := utf8.RuneCountInString(term)
		if 200*min(tl, len(kr)) < minSimilarity*(tl+len(kr)) {
			continue
		}
		tr := []rune(term)
		common := lcsLen(kr, tr)
		if 200*common < minSimilarity*(len(tr)+len(kr)) {
			continue
		}
		similar = append(similar, SimilarTerm{
			Term:       term,
			Similarity: 200 * float64(common) / float64(len(tr)+len(kr)),
			Frequency:  int(ix.postings[term].GetCardinality()),
		})
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		if similar[i].Frequency != similar[j].Frequency {
			return similar[i].Frequency > similar[j].Frequency
		}
		return similar[i].Term < similar[j].Term
	})
	return similar
}

// lcsLen returns the length of the longest common subsequence of a and b
func lcsLen(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
