// Package bibliography renders references.md, the human-readable view of
// the record store. The file is derived and can be regenerated at any time.
package bibliography

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"bibkeep/internal/fileutil"
	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
)

const header = "# References\n"

// Render returns the markdown bibliography for the reference records, one
// Harvard line per record followed by its file, ordered by filename.
func Render(records []refstore.Record) string {
	refs := make([]refstore.Record, 0, len(records))
	for _, record := range records {
		if record.Status == refstore.StatusReference {
			refs = append(refs, record)
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		a, b := strings.ToLower(refs[i].Filename), strings.ToLower(refs[j].Filename)
		if a != b {
			return a < b
		}
		return refs[i].Filename < refs[j].Filename
	})

	var b strings.Builder
	b.WriteString(header)
	for _, record := range refs {
		b.WriteByte('\n')
		b.WriteString(normalize.HarvardReference(record.Citation()))
		b.WriteString("\n**File**: ")
		b.WriteString(record.Filename)
		b.WriteByte('\n')
	}
	return b.String()
}

// Write atomically replaces path with the rendered bibliography.
func Write(path string, records []refstore.Record) error {
	content := Render(records)
	if err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	}); err != nil {
		return fmt.Errorf("write bibliography: %w", err)
	}
	return nil
}
