package refstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bibkeep/internal/contenthash"
	"bibkeep/internal/faults"
	"bibkeep/internal/normalize"
)

// LegacyEntry is one element of the flat references.json written by the
// earlier scripts: a single author string and a string year.
type LegacyEntry struct {
	Author           string     `json:"author"`
	Year             looseValue `json:"year"`
	Title            string     `json:"title"`
	Publisher        string     `json:"publisher"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	FileHash         string     `json:"file_hash"`
}

// looseValue accepts a JSON string, number or null.
type looseValue string

func (v *looseValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = looseValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("year must be a string or number: %w", err)
	}
	*v = looseValue(n.String())
	return nil
}

// ImportSkip names a legacy entry that could not be converted.
type ImportSkip struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ImportResult summarizes a legacy conversion.
type ImportResult struct {
	Records      []Record     `json:"-"`
	Imported     int          `json:"imported"`
	HashesFilled int          `json:"hashes_filled"`
	Skipped      []ImportSkip `json:"skipped"`
}

// DecodeLegacy parses the flat legacy array.
func DecodeLegacy(r io.Reader) ([]LegacyEntry, error) {
	var entries []LegacyEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ImportLegacy converts legacy entries into records. Entries without a hash
// are hashed from referenceDir; entries whose file is missing, or which
// repeat a hash or filename already converted, are skipped and reported.
// Filenames are kept as they are so the tree does not move; mismatches
// surface later through the mismatched_filenames review.
func ImportLegacy(entries []LegacyEntry, referenceDir string) ImportResult {
	result := ImportResult{Records: make([]Record, 0, len(entries))}
	seenHash := make(map[string]string)
	seenName := make(map[string]struct{})

	for _, entry := range entries {
		filename := strings.TrimSpace(entry.Filename)
		if filename == "" {
			result.Skipped = append(result.Skipped, ImportSkip{Reason: "entry has no filename"})
			continue
		}
		if _, dup := seenName[filename]; dup {
			result.Skipped = append(result.Skipped, ImportSkip{Filename: filename, Reason: "filename repeated"})
			continue
		}

		hash := strings.ToLower(strings.TrimSpace(entry.FileHash))
		path := filepath.Join(referenceDir, filename)
		if _, err := os.Stat(path); err != nil {
			result.Skipped = append(result.Skipped, ImportSkip{Filename: filename, Reason: "file not found in reference directory"})
			continue
		}
		if hash == "" {
			computed, err := contenthash.File(path)
			if err != nil {
				result.Skipped = append(result.Skipped, ImportSkip{Filename: filename, Reason: err.Error()})
				continue
			}
			hash = computed
			result.HashesFilled++
		}
		if first, dup := seenHash[hash]; dup {
			result.Skipped = append(result.Skipped, ImportSkip{Filename: filename, Reason: "same content as " + first})
			continue
		}

		title, _ := normalize.NormalizeTitle(entry.Title, strings.TrimSuffix(filename, filepath.Ext(filename)))
		record := Record{
			ContentHash:      hash,
			Authors:          normalize.SplitAuthors(entry.Author),
			Title:            title,
			Year:             normalize.ParseYear(string(entry.Year)),
			Publisher:        strings.Join(strings.Fields(entry.Publisher), " "),
			Filename:         filename,
			Status:           StatusReference,
			OriginalFilename: strings.TrimSpace(entry.OriginalFilename),
		}
		seenHash[hash] = filename
		seenName[filename] = struct{}{}
		result.Records = append(result.Records, record)
	}
	result.Imported = len(result.Records)
	return result
}

// ImportLegacyFile reads a legacy file and converts it.
func ImportLegacyFile(path, referenceDir string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, faults.Wrap(faults.ErrIO, "import", "open legacy store", path, err)
	}
	defer f.Close()
	entries, err := DecodeLegacy(f)
	if err != nil {
		return ImportResult{}, faults.Wrap(faults.ErrValidation, "import", "parse legacy store", path, err)
	}
	return ImportLegacy(entries, referenceDir), nil
}

// FormatYear renders an optional year for tables.
func FormatYear(year *int) string {
	if year == nil {
		return "n.d."
	}
	return strconv.Itoa(*year)
}
