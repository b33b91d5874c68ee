// Package textutil compares book titles. Titles are folded to lowercase
// ASCII-ish tokens (diacritics stripped, punctuation dropped) and compared as
// term-frequency vectors with cosine similarity.
package textutil
