package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
)

// Category names one detection scan and its proposal file.
type Category string

const (
	CategoryBrokenTitles        Category = "broken_titles"
	CategoryUnknownAuthors      Category = "unknown_authors"
	CategoryExactDuplicates     Category = "exact_duplicates"
	CategorySimilarPairs        Category = "similar_pairs"
	CategoryMismatchedFilenames Category = "mismatched_filenames"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryBrokenTitles,
		CategoryUnknownAuthors,
		CategoryExactDuplicates,
		CategorySimilarPairs,
		CategoryMismatchedFilenames,
	}
}

// ParseCategory validates a category name.
func ParseCategory(value string) (Category, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, category := range Categories() {
		if string(category) == value {
			return category, nil
		}
	}
	names := make([]string, 0, len(Categories()))
	for _, category := range Categories() {
		names = append(names, string(category))
	}
	return "", faults.Wrap(faults.ErrValidation, "review", "category",
		fmt.Sprintf("unknown category %q (want one of %s)", value, strings.Join(names, ", ")), nil)
}

// Decision is the human verdict on an entry.
type Decision string

const (
	DecisionNone       Decision = ""
	DecisionFix        Decision = "fix"
	DecisionQuarantine Decision = "quarantine"
	DecisionKeep       Decision = "keep"
)

// Valid reports whether d is a recognised non-empty decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionFix, DecisionQuarantine, DecisionKeep:
		return true
	}
	return false
}

// MarshalJSON writes an absent decision as null.
func (d Decision) MarshalJSON() ([]byte, error) {
	if d == DecisionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts null or a string.
func (d *Decision) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = DecisionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decision must be a string or null: %w", err)
	}
	*d = Decision(strings.ToLower(strings.TrimSpace(s)))
	return nil
}

// State is the lifecycle position of an entry or a whole proposal.
type State string

const (
	StateProposed State = "proposed"
	StateDecided  State = "decided"
	StateApplied  State = "applied"
	StateRejected State = "rejected"
)

// Snapshot is the record as detect saw it.
type Snapshot struct {
	Authors []string        `json:"authors"`
	Title   string          `json:"title"`
	Year    *int            `json:"year"`
	Status  refstore.Status `json:"status"`
}

func snapshotOf(r refstore.Record) Snapshot {
	c := r.Clone()
	return Snapshot{Authors: c.Authors, Title: c.Title, Year: c.Year, Status: c.Status}
}

// Matches reports whether r still carries the snapshot fields.
func (s Snapshot) Matches(r refstore.Record) bool {
	return slices.Equal(s.Authors, r.Authors) &&
		s.Title == r.Title &&
		refstore.EqualYear(s.Year, r.Year) &&
		s.Status == r.Status
}

// Issue describes why an entry was proposed.
type Issue struct {
	Kind    string         `json:"kind"`
	Reasons []string       `json:"reasons"`
	Group   string         `json:"group,omitempty"`
	Score   float64        `json:"score,omitempty"`
	Related []refstore.Ref `json:"related,omitempty"`
}

// AuthorList is a suggested author list. Humans may write it as a JSON
// array or as a single string such as "Smith and Jones"; null means no
// change.
type AuthorList []string

// UnmarshalJSON accepts null, a string or an array of strings.
func (a *AuthorList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = AuthorList{}
			return nil
		}
		*a = AuthorList(normalize.SplitAuthors(s))
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("suggested_authors must be a string, an array or null: %w", err)
	}
	out := make(AuthorList, 0, len(items))
	for _, item := range items {
		if item = strings.Join(strings.Fields(item), " "); item != "" {
			out = append(out, item)
		}
	}
	*a = out
	return nil
}

// Entry is one proposed change.
type Entry struct {
	Key              string       `json:"key"`
	Record           refstore.Ref `json:"record"`
	Snapshot         Snapshot     `json:"snapshot"`
	Issue            Issue        `json:"issue"`
	SuggestedAuthors AuthorList   `json:"suggested_authors"`
	SuggestedTitle   *string      `json:"suggested_title"`
	SuggestedYear    *int         `json:"suggested_year"`
	Decision         Decision     `json:"decision"`
	State            State        `json:"state"`
	Note             string       `json:"note"`

	// invalid explains why the annotation as written cannot be applied.
	invalid string
}

type entryFields Entry

var knownEntryKeys = map[string]struct{}{
	"key": {}, "record": {}, "snapshot": {}, "issue": {},
	"suggested_authors": {}, "suggested_title": {}, "suggested_year": {},
	"decision": {}, "state": {}, "note": {}, "quarantine": {},
}

// UnmarshalJSON accepts "quarantine": true as shorthand for a quarantine
// decision. Keys it does not recognise mark the entry invalid rather than
// vanishing on the next rewrite.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields entryFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields.invalid = ""

	var unknown []string
	for key := range raw {
		if _, ok := knownEntryKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if value, ok := raw["quarantine"]; ok {
		var flag *bool
		switch err := json.Unmarshal(value, &flag); {
		case err != nil:
			fields.invalid = fmt.Sprintf("quarantine must be true or false, got %s", value)
		case flag == nil || !*flag:
		case fields.Decision == DecisionNone:
			fields.Decision = DecisionQuarantine
		case fields.Decision != DecisionQuarantine:
			fields.invalid = fmt.Sprintf("quarantine: true conflicts with decision %q", fields.Decision)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		fields.invalid = "unrecognised fields: " + strings.Join(unknown, ", ")
	}
	*e = Entry(fields)
	return nil
}

// HasSuggestion reports whether any suggested_* field is non-null.
func (e Entry) HasSuggestion() bool {
	return e.SuggestedAuthors != nil || e.SuggestedTitle != nil || e.SuggestedYear != nil
}

// Proposal is the content of one category's proposal file.
type Proposal struct {
	ID        string   `json:"id"`
	Category  Category `json:"category"`
	State     State    `json:"state"`
	Threshold float64  `json:"threshold,omitempty"`
	Entries   []Entry  `json:"entries"`
}

// proposalNamespace seeds the name-based proposal ids.
var proposalNamespace = uuid.MustParse("8f4d8a8e-3f3c-5b7e-9a57-0c6b1f0e2d41")

// assignID derives the proposal id from its category and detected content,
// so an unchanged store always produces the same id.
func (p *Proposal) assignID() {
	var b strings.Builder
	b.WriteString(string(p.Category))
	fmt.Fprintf(&b, "|%g", p.Threshold)
	for _, entry := range p.Entries {
		b.WriteString("|")
		b.WriteString(entry.Key)
		b.WriteString("|")
		b.WriteString(entry.Issue.Kind)
		b.WriteString("|")
		b.WriteString(strings.Join(entry.Issue.Reasons, ";"))
	}
	p.ID = uuid.NewSHA1(proposalNamespace, []byte(b.String())).String()
}

// Refresh recomputes entry states from decisions and the proposal state
// from its entries.
func (p *Proposal) Refresh() {
	var decided, applied int
	for i := range p.Entries {
		entry := &p.Entries[i]
		switch entry.State {
		case StateApplied:
			applied++
			continue
		case StateRejected:
			continue
		}
		if entry.Decision != DecisionNone {
			entry.State = StateDecided
			decided++
		} else {
			entry.State = StateProposed
		}
	}
	switch {
	case decided > 0:
		p.State = StateDecided
	case applied > 0:
		p.State = StateApplied
	default:
		p.State = StateProposed
	}
}

// PendingDecisions reports whether any entry carries a decision or an
// annotation that apply has not settled yet.
func (p *Proposal) PendingDecisions() bool {
	for _, entry := range p.Entries {
		if entry.State == StateApplied || entry.State == StateRejected {
			continue
		}
		if entry.Decision != DecisionNone || entry.invalid != "" {
			return true
		}
	}
	return false
}

// EncodeProposal writes p as indented JSON with a trailing newline.
func EncodeProposal(w io.Writer, p *Proposal) error {
	if p.Entries == nil {
		p.Entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// LoadProposal reads a proposal file. A missing file returns
// faults.ErrNotFound.
func LoadProposal(path string) (*Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "review", "load proposal", path, err)
		}
		return nil, faults.Wrap(faults.ErrIO, "review", "load proposal", path, err)
	}
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "review", "parse proposal", path, err)
	}
	return &p, nil
}

// SaveProposal atomically writes p to path.
func SaveProposal(path string, p *Proposal) error {
	if err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return EncodeProposal(w, p)
	}); err != nil {
		return faults.Wrap(faults.ErrIO, "review", "save proposal", path, err)
	}
	return nil
}

func entryKey(ref refstore.Ref) string {
	hash := ref.ContentHash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return hash + ":" + ref.Filename
}
