// Package tokenizer splits field values into the tokens stored in the
// inverted index.
//
// For a normalized value of L characters the tokenizer emits every single
// character, every contiguous substring of 2 to 4 characters (the window is
// configurable) and the whole value. Single-character tokens keep CJK text
// searchable without word segmentation; short n-grams make substring
// queries a hash lookup. The token count per value is O(L).
//
// Normalization folds case, trims whitespace and rewrites variant character
// sequences (DefaultVariants) to their standard form, so the same function
// must be applied to indexed text and to queries.
package tokenizer
