package refstore

import (
	"fmt"
	"sort"
	"strings"

	"bibkeep/internal/contenthash"
)

// Problem kinds reported by Check.
const (
	ProblemDuplicateHash     = "duplicate_hash"
	ProblemDuplicateFilename = "duplicate_filename"
	ProblemInvalidHash       = "invalid_hash"
	ProblemEmptyTitle        = "empty_title"
	ProblemEmptyAuthors      = "empty_authors"
	ProblemInvalidStatus     = "invalid_status"
	ProblemFilenameMismatch  = "filename_mismatch"
)

// Problem is a single invariant violation found in the store.
type Problem struct {
	Kind   string `json:"kind"`
	Record Ref    `json:"record"`
	Detail string `json:"detail"`
}

// Check validates record-level invariants. maxFilenameLength feeds the
// canonical filename comparison. Problems are ordered by store position.
func (s *Store) Check(maxFilenameLength int) []Problem {
	var problems []Problem
	byHash := make(map[string][]int)
	byName := make(map[string][]int)
	for i, record := range s.records {
		byHash[record.ContentHash] = append(byHash[record.ContentHash], i)
		byName[record.Filename] = append(byName[record.Filename], i)
	}

	for i, record := range s.records {
		ref := record.Ref()
		if !contenthash.Valid(record.ContentHash) {
			problems = append(problems, Problem{Kind: ProblemInvalidHash, Record: ref,
				Detail: fmt.Sprintf("content hash %q is not a lowercase sha256 hex digest", record.ContentHash)})
		} else if peers := byHash[record.ContentHash]; len(peers) > 1 && peers[0] != i {
			problems = append(problems, Problem{Kind: ProblemDuplicateHash, Record: ref,
				Detail: "same content as " + s.records[peers[0]].Filename})
		}
		if peers := byName[record.Filename]; len(peers) > 1 && peers[0] != i {
			problems = append(problems, Problem{Kind: ProblemDuplicateFilename, Record: ref,
				Detail: "filename also used by " + s.records[peers[0]].ContentHash})
		}
		if strings.TrimSpace(record.Title) == "" {
			problems = append(problems, Problem{Kind: ProblemEmptyTitle, Record: ref, Detail: "title is empty"})
		}
		if len(record.Authors) == 0 {
			problems = append(problems, Problem{Kind: ProblemEmptyAuthors, Record: ref, Detail: "authors list is empty"})
		}
		if !record.Status.Valid() {
			problems = append(problems, Problem{Kind: ProblemInvalidStatus, Record: ref,
				Detail: fmt.Sprintf("unknown status %q", record.Status)})
		}
		if want := record.CanonicalFilename(maxFilenameLength); record.Filename != want {
			problems = append(problems, Problem{Kind: ProblemFilenameMismatch, Record: ref,
				Detail: "expected " + want})
		}
	}
	return problems
}

// CountByKind summarizes problems for status output.
func CountByKind(problems []Problem) map[string]int {
	counts := make(map[string]int)
	for _, p := range problems {
		counts[p.Kind]++
	}
	return counts
}

// Kinds returns the sorted kinds present in counts.
func Kinds(counts map[string]int) []string {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
