// Package matcher finds duplicate and near-duplicate records.
//
// FindSimilar compares every unordered pair of reference records, so its cost
// grows with the square of the library size. That is acceptable for personal
// libraries of a few thousand documents; larger collections would need
// blocking by author before scoring.
package matcher

import (
	"sort"
	"unicode/utf8"

	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
	"bibkeep/internal/textutil"
)

// DefaultThreshold is the minimum title score for a similar pair.
const DefaultThreshold = 0.70

// Pair is two records whose titles score at or above the threshold.
// A sorts before B by filename.
type Pair struct {
	A     refstore.Record
	B     refstore.Record
	Score float64
}

type candidate struct {
	record      refstore.Record
	title       string
	titleLen    int
	fingerprint *textutil.Fingerprint
	surnames    map[string]struct{}
}

// FindSimilar returns every pair of reference records with a title score
// of at least threshold and overlapping author surnames. Records with
// unknown authors only pair with each other. Records sharing a content hash
// are left to ExactGroups. Pairs are ordered by score, highest first, then
// by filenames.
func FindSimilar(records []refstore.Record, threshold float64) []Pair {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	candidates := make([]candidate, 0, len(records))
	for _, record := range records {
		if record.Status != refstore.StatusReference {
			continue
		}
		title := normalize.ComparableTitle(record.Title)
		candidates = append(candidates, candidate{
			record:      record,
			title:       title,
			titleLen:    utf8.RuneCountInString(title),
			fingerprint: textutil.NewFingerprint(title),
			surnames:    record.Surnames(),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].record.Filename < candidates[j].record.Filename
	})

	var pairs []Pair
	for i := 0; i < len(candidates); i++ {
		a := &candidates[i]
		for j := i + 1; j < len(candidates); j++ {
			b := &candidates[j]
			if a.record.ContentHash == b.record.ContentHash {
				continue
			}
			if !surnamesOverlap(a.surnames, b.surnames) {
				continue
			}
			score, ok := scoreCandidates(a, b, threshold)
			if !ok {
				continue
			}
			pairs = append(pairs, Pair{A: a.record, B: b.record, Score: score})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		if pairs[i].A.Filename != pairs[j].A.Filename {
			return pairs[i].A.Filename < pairs[j].A.Filename
		}
		return pairs[i].B.Filename < pairs[j].B.Filename
	})
	return pairs
}

func scoreCandidates(a, b *candidate, threshold float64) (float64, bool) {
	cosine := textutil.CosineSimilarity(a.fingerprint, b.fingerprint)
	bound := textutil.EditRatioBound(a.titleLen, b.titleLen)
	if cosine < threshold && bound < threshold {
		return 0, false
	}
	score := cosine
	if bound > score {
		score = max(score, textutil.EditRatio(a.title, b.title))
	}
	if score >= threshold {
		return score, true
	}
	return 0, false
}

// Score returns the title similarity of two raw titles: the larger of the
// edit ratio and the token cosine of their comparable forms.
func Score(titleA, titleB string) float64 {
	a := normalize.ComparableTitle(titleA)
	b := normalize.ComparableTitle(titleB)
	cosine := textutil.CosineSimilarity(textutil.NewFingerprint(a), textutil.NewFingerprint(b))
	return max(cosine, textutil.EditRatio(a, b))
}

// AuthorsOverlap reports whether two records share a surname, treating two
// all-unknown author lists as overlapping.
func AuthorsOverlap(a, b refstore.Record) bool {
	return surnamesOverlap(a.Surnames(), b.Surnames())
}

func surnamesOverlap(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	for name := range a {
		if _, ok := b[name]; ok {
			return true
		}
	}
	return false
}

// Group is a set of records that share one content hash.
type Group struct {
	ContentHash string
	Records     []refstore.Record
}

// ExactGroups returns every content hash held by more than one record, in
// order of first appearance. Within a group records keep store order.
func ExactGroups(records []refstore.Record) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, record := range records {
		i, ok := index[record.ContentHash]
		if !ok {
			i = len(groups)
			index[record.ContentHash] = i
			groups = append(groups, Group{ContentHash: record.ContentHash})
		}
		groups[i].Records = append(groups[i].Records, record)
	}
	out := groups[:0]
	for _, group := range groups {
		if len(group.Records) > 1 {
			out = append(out, group)
		}
	}
	return out
}
