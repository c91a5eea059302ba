// Package textutil provides the small text helpers shared by the stages:
// term-frequency fingerprints with cosine similarity (used to drop
// near-duplicate key points) and filename sanitizing for deck downloads.
//
// Tokenization lowercases text, splits on non-alphanumeric characters, and
// drops tokens shorter than 3 characters.
package textutil
