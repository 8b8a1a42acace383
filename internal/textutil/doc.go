// Package textutil provides the text primitives behind title matching and
// filename generation.
//
// The primary use cases are:
//   - Folding text to a comparable form (diacritics removed, case folded)
//   - Creating token-based fingerprints and comparing them with cosine similarity
//   - Scoring two strings with an edit-based ratio
//
// Fingerprints use term frequency vectors. Tokenization folds the text,
// splits on non-alphanumeric characters, and filters tokens shorter than
// three characters.
package textutil
