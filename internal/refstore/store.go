package refstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
	"bibkeep/internal/textutil"
)

// Store is an in-memory view of references.json. It is not safe for
// concurrent mutation; writers serialize through the store lock.
type Store struct {
	path    string
	records []Record
}

// New builds a store bound to path holding records.
func New(path string, records []Record) *Store {
	s := &Store{path: path}
	s.records = make([]Record, 0, len(records))
	for _, record := range records {
		s.records = append(s.records, record.Clone())
	}
	return s
}

// Load reads the store at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(path, nil), nil
		}
		return nil, faults.Wrap(faults.ErrIO, "store", "load", path, err)
	}
	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "store", "parse", path, err)
	}
	return &Store{path: path, records: records}, nil
}

// Decode parses a JSON array of records.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after record array")
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Encode writes records as a 2-space indented JSON array with a trailing
// newline. HTML characters are not escaped so titles stay readable.
func Encode(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// Save atomically replaces the store file.
func (s *Store) Save() error {
	if err := fileutil.WriteAtomic(s.path, 0o644, func(w io.Writer) error {
		return Encode(w, s.records)
	}); err != nil {
		return faults.Wrap(faults.ErrIO, "store", "save", s.path, err)
	}
	return nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Records returns a copy of every record in store order.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	for i, record := range s.records {
		out[i] = record.Clone()
	}
	return out
}

// Clone returns an independent copy used to stage mutations.
func (s *Store) Clone() *Store {
	return New(s.path, s.records)
}

// ByHash returns the first record with hash.
func (s *Store) ByHash(hash string) (Record, bool) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	for _, record := range s.records {
		if record.ContentHash == hash {
			return record.Clone(), true
		}
	}
	return Record{}, false
}

// ByFilename returns the first record named filename.
func (s *Store) ByFilename(filename string) (Record, bool) {
	for _, record := range s.records {
		if record.Filename == filename {
			return record.Clone(), true
		}
	}
	return Record{}, false
}

// Get returns the record identified by ref.
func (s *Store) Get(ref Ref) (Record, bool) {
	if i := s.index(ref); i >= 0 {
		return s.records[i].Clone(), true
	}
	return Record{}, false
}

func (s *Store) index(ref Ref) int {
	for i, record := range s.records {
		if record.ContentHash == ref.ContentHash && record.Filename == ref.Filename {
			return i
		}
	}
	return -1
}

// Insert appends a record. A second record with the same content hash or
// the same filename is refused with faults.ErrConflict.
func (s *Store) Insert(record Record) error {
	record.ContentHash = strings.ToLower(strings.TrimSpace(record.ContentHash))
	if record.ContentHash == "" {
		return faults.Wrap(faults.ErrValidation, "store", "insert", "record has no content hash", nil)
	}
	if existing, ok := s.ByHash(record.ContentHash); ok {
		return faults.Wrap(faults.ErrConflict, "store", "insert",
			fmt.Sprintf("content hash already recorded as %s", existing.Filename), nil)
	}
	if record.Filename != "" {
		if existing, ok := s.ByFilename(record.Filename); ok {
			return faults.Wrap(faults.ErrConflict, "store", "insert",
				fmt.Sprintf("filename %s already held by %s", record.Filename, existing.ContentHash), nil)
		}
	}
	if record.Status == "" {
		record.Status = StatusReference
	}
	s.records = append(s.records, record.Clone())
	return nil
}

// Update applies fn to the record identified by ref. A rename onto a
// filename held by another record is refused.
func (s *Store) Update(ref Ref, fn func(*Record) error) error {
	i := s.index(ref)
	if i < 0 {
		return faults.Wrap(faults.ErrNotFound, "store", "update", ref.Filename, nil)
	}
	next := s.records[i].Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if next.ContentHash != s.records[i].ContentHash {
		return faults.Wrap(faults.ErrValidation, "store", "update", "content hash is immutable", nil)
	}
	if next.Filename != s.records[i].Filename {
		for j, other := range s.records {
			if j != i && other.Filename == next.Filename {
				return faults.Wrap(faults.ErrConflict, "store", "update",
					fmt.Sprintf("filename %s already held by %s", next.Filename, other.ContentHash), nil)
			}
		}
	}
	s.records[i] = next
	return nil
}

// FilenameTaken reports whether a record other than ref already uses filename.
func (s *Store) FilenameTaken(filename string, except Ref) bool {
	for _, record := range s.records {
		if record.Filename == filename && record.Ref() != except {
			return true
		}
	}
	return false
}

func normalizeKey(value string) string {
	return textutil.Fold(value)
}
