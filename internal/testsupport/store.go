package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bibkeep/internal/config"
	"bibkeep/internal/contenthash"
	"bibkeep/internal/journal"
	"bibkeep/internal/refstore"
)

// Doc describes a library document seeded by SeedLibrary.
type Doc struct {
	Filename string
	Content  string
	Authors  []string
	Title    string
	Year     *int
	Status   refstore.Status
	// NoFile skips writing the document to disk.
	NoFile bool
}

// SeedLibrary writes each document into the reference or quarantine tree,
// saves a store holding one record per document and returns the records.
func SeedLibrary(t testing.TB, cfg *config.Config, docs ...Doc) []refstore.Record {
	t.Helper()

	records := make([]refstore.Record, 0, len(docs))
	for _, doc := range docs {
		status := doc.Status
		if status == "" {
			status = refstore.StatusReference
		}
		content := doc.Content
		if content == "" {
			content = "content of " + doc.Filename
		}
		authors := doc.Authors
		if len(authors) == 0 {
			authors = []string{"Unknown"}
		}
		if !doc.NoFile {
			dir := cfg.Paths.ReferenceDir
			if status == refstore.StatusQuarantine {
				dir = cfg.Paths.QuarantineDir
			}
			if err := os.WriteFile(filepath.Join(dir, doc.Filename), []byte(content), 0o644); err != nil {
				t.Fatalf("write %s: %v", doc.Filename, err)
			}
		}
		records = append(records, refstore.Record{
			ContentHash: contenthash.Bytes([]byte(content)),
			Authors:     authors,
			Title:       doc.Title,
			Year:        doc.Year,
			Filename:    doc.Filename,
			Status:      status,
		})
	}

	if err := refstore.New(cfg.Paths.StorePath, records).Save(); err != nil {
		t.Fatalf("save store: %v", err)
	}
	return records
}

// MustLoadStore loads the configured store.
func MustLoadStore(t testing.TB, cfg *config.Config) *refstore.Store {
	t.Helper()

	store, err := refstore.Load(cfg.Paths.StorePath)
	if err != nil {
		t.Fatalf("refstore.Load: %v", err)
	}
	return store
}

// MustOpenJournal opens the configured journal and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j
}
