package refstore

import (
	"bytes"
	"encoding/json"
	"maps"
	"path/filepath"
	"slices"

	"bibkeep/internal/normalize"
)

// Status places a record in the library tree.
type Status string

const (
	StatusReference  Status = "reference"
	StatusQuarantine Status = "quarantine"
	StatusTodo       Status = "todo"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReference, StatusQuarantine, StatusTodo:
		return true
	}
	return false
}

// Record is one bibliographic entry.
type Record struct {
	ContentHash      string   `json:"content_hash"`
	Authors          []string `json:"authors"`
	Title            string   `json:"title"`
	Year             *int     `json:"year"`
	Publisher        string   `json:"publisher,omitempty"`
	Filename         string   `json:"filename"`
	Status           Status   `json:"status"`
	OriginalFilename string   `json:"original_filename,omitempty"`

	// Extra holds keys this version does not model. They are written back
	// after the known fields, sorted by key.
	Extra map[string]json.RawMessage `json:"-"`
}

// recordFields is the JSON shape of Record without its methods.
type recordFields Record

var knownRecordKeys = map[string]struct{}{
	"content_hash":      {},
	"authors":           {},
	"title":             {},
	"year":              {},
	"publisher":         {},
	"filename":          {},
	"status":            {},
	"original_filename": {},
}

// UnmarshalJSON decodes the known fields and keeps every other key in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields recordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields.Extra = nil
	for key, value := range raw {
		if _, ok := knownRecordKeys[key]; ok {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[key] = value
	}
	*r = Record(fields)
	return nil
}

// MarshalJSON writes the known fields in declaration order followed by Extra.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(recordFields(r)); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(r.Extra) == 0 {
		return out, nil
	}
	out = out[:len(out)-1]
	for _, key := range slices.Sorted(maps.Keys(r.Extra)) {
		if _, ok := knownRecordKeys[key]; ok {
			continue
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		out = append(out, ',')
		out = append(out, name...)
		out = append(out, ':')
		out = append(out, r.Extra[key]...)
	}
	return append(out, '}'), nil
}

// Ref identifies a record by the pair that proposals and reports carry.
// The content hash alone is not enough for legacy stores holding duplicates.
type Ref struct {
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
}

// Ref returns the identifying pair of r.
func (r Record) Ref() Ref {
	return Ref{ContentHash: r.ContentHash, Filename: r.Filename}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.Authors = slices.Clone(r.Authors)
	out.Extra = maps.Clone(r.Extra)
	if r.Year != nil {
		year := *r.Year
		out.Year = &year
	}
	return out
}

// Citation returns the fields used to render a bibliography line.
func (r Record) Citation() normalize.Citation {
	return normalize.Citation{
		Authors:   r.Authors,
		Year:      r.Year,
		Title:     r.Title,
		Publisher: r.Publisher,
	}
}

// Extension returns the lower-cased extension of the record filename.
func (r Record) Extension() string {
	return normalize.NormalizeExtension(filepath.Ext(r.Filename))
}

// CanonicalFilename re-derives the filename from authors and title.
func (r Record) CanonicalFilename(maxLength int) string {
	return normalize.CanonicalFilename(r.Authors, r.Title, r.Extension(), maxLength)
}

// Surnames returns the lower-cased surname set used for author overlap.
// Unknown authors contribute nothing.
func (r Record) Surnames() map[string]struct{} {
	names, _ := normalize.RealAuthors(r.Authors)
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		if normalize.IsUnknownAuthor(name) {
			continue
		}
		if surname := normalize.Surname(name); surname != "" {
			out[normalizeKey(surname)] = struct{}{}
		}
	}
	return out
}

// EqualYear compares two optional years.
func EqualYear(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
