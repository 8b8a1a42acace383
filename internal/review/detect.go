package review

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"bibkeep/internal/matcher"
	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
)

// Issue kinds, one per category.
const (
	KindBrokenTitle      = "broken_title"
	KindUnknownAuthor    = "unknown_author"
	KindExactDuplicate   = "exact_duplicate"
	KindSimilarTitle     = "similar_title"
	KindFilenameMismatch = "filename_mismatch"
)

// Detect builds the proposal for category from records. It never mutates
// its input and the result depends only on the records and rules.
func Detect(category Category, records []refstore.Record, rules Rules) (*Proposal, error) {
	if _, err := ParseCategory(string(category)); err != nil {
		return nil, err
	}
	rules = rules.withDefaults()

	var entries []Entry
	switch category {
	case CategoryBrokenTitles:
		entries = detectBrokenTitles(records, rules)
	case CategoryUnknownAuthors:
		entries = detectUnknownAuthors(records)
	case CategoryExactDuplicates:
		entries = detectExactDuplicates(records)
	case CategorySimilarPairs:
		entries = detectSimilarPairs(records, rules.Threshold)
	case CategoryMismatchedFilenames:
		entries = detectMismatchedFilenames(records, rules.MaxFilenameLength)
	}

	p := &Proposal{Category: category, Entries: entries}
	if p.Entries == nil {
		p.Entries = []Entry{}
	}
	if category == CategorySimilarPairs {
		p.Threshold = rules.Threshold
	}
	p.assignID()
	p.Refresh()
	return p, nil
}

func newEntry(record refstore.Record, issue Issue) Entry {
	ref := record.Ref()
	return Entry{
		Key:      entryKey(ref),
		Record:   ref,
		Snapshot: snapshotOf(record),
		Issue:    issue,
		State:    StateProposed,
	}
}

func referenceRecords(records []refstore.Record) []refstore.Record {
	out := make([]refstore.Record, 0, len(records))
	for _, record := range records {
		if record.Status == refstore.StatusReference {
			out = append(out, record)
		}
	}
	return out
}

func sortByFilename(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Record.Filename), strings.ToLower(b.Record.Filename)),
			cmp.Compare(a.Record.Filename, b.Record.Filename),
			cmp.Compare(a.Record.ContentHash, b.Record.ContentHash),
		)
	})
}

func detectBrokenTitles(records []refstore.Record, rules Rules) []Entry {
	var entries []Entry
	for _, record := range referenceRecords(records) {
		reasons := rules.BrokenTitleReasons(record.Title)
		if len(reasons) == 0 {
			continue
		}
		entries = append(entries, newEntry(record, Issue{Kind: KindBrokenTitle, Reasons: reasons}))
	}
	sortByFilename(entries)
	return entries
}

func detectUnknownAuthors(records []refstore.Record) []Entry {
	var entries []Entry
	for _, record := range referenceRecords(records) {
		if !normalize.IsUnknownAuthors(record.Authors) {
			continue
		}
		entries = append(entries, newEntry(record, Issue{
			Kind:    KindUnknownAuthor,
			Reasons: []string{"no known author"},
		}))
	}
	sortByFilename(entries)
	return entries
}

func detectExactDuplicates(records []refstore.Record) []Entry {
	groups := matcher.ExactGroups(referenceRecords(records))
	slices.SortFunc(groups, func(a, b matcher.Group) int {
		return cmp.Compare(a.ContentHash, b.ContentHash)
	})

	var entries []Entry
	for _, group := range groups {
		members := slices.Clone(group.Records)
		slices.SortFunc(members, func(a, b refstore.Record) int {
			return cmp.Compare(a.Filename, b.Filename)
		})
		for i, record := range members {
			var related []refstore.Ref
			for j, other := range members {
				if j != i {
					related = append(related, other.Ref())
				}
			}
			entries = append(entries, newEntry(record, Issue{
				Kind:    KindExactDuplicate,
				Reasons: []string{fmt.Sprintf("same content as %d other record(s)", len(related))},
				Group:   group.ContentHash,
				Related: related,
			}))
		}
	}
	return entries
}

// detectSimilarPairs emits one entry per record involved in any pair. Records
// linked through pairs share a group named after the smallest filename of
// the connected set.
func detectSimilarPairs(records []refstore.Record, threshold float64) []Entry {
	pairs := matcher.FindSimilar(records, threshold)
	if len(pairs) == 0 {
		return nil
	}

	type node struct {
		record  refstore.Record
		related []refstore.Ref
		reasons []string
		score   float64
	}
	nodes := make(map[refstore.Ref]*node)
	parent := make(map[refstore.Ref]refstore.Ref)
	var find func(refstore.Ref) refstore.Ref
	find = func(ref refstore.Ref) refstore.Ref {
		if parent[ref] != ref {
			parent[ref] = find(parent[ref])
		}
		return parent[ref]
	}
	touch := func(record refstore.Record) *node {
		ref := record.Ref()
		n, ok := nodes[ref]
		if !ok {
			n = &node{record: record}
			nodes[ref] = n
			parent[ref] = ref
		}
		return n
	}
	link := func(n *node, other refstore.Record, score float64) {
		n.related = append(n.related, other.Ref())
		n.reasons = append(n.reasons, fmt.Sprintf("title similarity %.2f with %s", score, other.Filename))
		n.score = max(n.score, score)
	}

	for _, pair := range pairs {
		a, b := touch(pair.A), touch(pair.B)
		link(a, pair.B, pair.Score)
		link(b, pair.A, pair.Score)
		ra, rb := find(pair.A.Ref()), find(pair.B.Ref())
		if ra != rb {
			if rb.Filename < ra.Filename {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	groupName := make(map[refstore.Ref]string)
	for ref := range nodes {
		root := find(ref)
		if current, ok := groupName[root]; !ok || ref.Filename < current {
			groupName[root] = ref.Filename
		}
	}

	entries := make([]Entry, 0, len(nodes))
	for ref, n := range nodes {
		entries = append(entries, newEntry(n.record, Issue{
			Kind:    KindSimilarTitle,
			Reasons: n.reasons,
			Group:   groupName[find(ref)],
			Score:   roundScore(n.score),
			Related: n.related,
		}))
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Issue.Group, b.Issue.Group),
			cmp.Compare(a.Record.Filename, b.Record.Filename),
			cmp.Compare(a.Record.ContentHash, b.Record.ContentHash),
		)
	})
	return entries
}

func roundScore(score float64) float64 {
	return float64(int(score*10000+0.5)) / 10000
}

func detectMismatchedFilenames(records []refstore.Record, maxLen int) []Entry {
	var entries []Entry
	for _, record := range referenceRecords(records) {
		expected := record.CanonicalFilename(maxLen)
		if record.Filename == expected {
			continue
		}
		reasons := []string{"expected " + expected}
		if normalize.HasNumericSuffix(record.Filename) {
			reasons = append(reasons, "numeric suffix in filename")
		}
		if normalize.IsSuspectFilename(record.Filename) {
			reasons = append(reasons, "filename looks machine generated")
		}
		entries = append(entries, newEntry(record, Issue{Kind: KindFilenameMismatch, Reasons: reasons}))
	}
	sortByFilename(entries)
	return entries
}

// conditionHolds reports whether the issue that produced entry is still
// present for record in store.
func conditionHolds(category Category, entry Entry, record refstore.Record, store *refstore.Store, rules Rules) bool {
	switch category {
	case CategoryBrokenTitles:
		return len(rules.BrokenTitleReasons(record.Title)) > 0
	case CategoryUnknownAuthors:
		return normalize.IsUnknownAuthors(record.Authors)
	case CategoryExactDuplicates:
		for _, other := range store.Records() {
			if other.ContentHash == record.ContentHash && other.Filename != record.Filename &&
				other.Status == refstore.StatusReference {
				return true
			}
		}
		return false
	case CategorySimilarPairs:
		for _, ref := range entry.Issue.Related {
			other, ok := store.Get(ref)
			if !ok || other.Status != refstore.StatusReference {
				continue
			}
			if matcher.AuthorsOverlap(record, other) && matcher.Score(record.Title, other.Title) >= rules.Threshold {
				return true
			}
		}
		return false
	case CategoryMismatchedFilenames:
		return record.Filename != record.CanonicalFilename(rules.MaxFilenameLength)
	}
	return false
}
