package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"bibkeep/internal/fileutil"
	"bibkeep/internal/refstore"
)

// Conflict kinds.
const (
	ConflictExactDuplicate    = "exact_duplicate"
	ConflictFilenameCollision = "filename_collision"
)

// ConflictsFile is the proposal-directory file listing the last run's conflicts.
const ConflictsFile = "ingestion_conflicts.json"

// Placed is a file moved into the reference tree.
type Placed struct {
	Source string          `json:"source"`
	Record refstore.Record `json:"record"`
}

// Conflict is a file left in the inbox because its content or name clashes
// with the library.
type Conflict struct {
	Kind             string       `json:"kind"`
	Source           string       `json:"source"`
	ContentHash      string       `json:"content_hash"`
	ProposedFilename string       `json:"proposed_filename"`
	Existing         refstore.Ref `json:"existing"`
	ExistingTitle    string       `json:"existing_title,omitempty"`
	ExtractedTitle   string       `json:"extracted_title"`
	ExtractedAuthors []string     `json:"extracted_authors"`
	Message          string       `json:"message"`
}

// Skipped is an inbox entry that was not considered.
type Skipped struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Failure is a file whose processing hit an I/O error.
type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Degradation records a fallback value used for a placed or conflicted file.
type Degradation struct {
	Source string `json:"source"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// Report summarizes one ingestion run.
type Report struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Placed    []Placed      `json:"placed"`
	Conflicts []Conflict    `json:"conflicts"`
	Skipped   []Skipped     `json:"skipped"`
	Failed    []Failure     `json:"failed"`
	Degraded  []Degradation `json:"degraded"`
}

// Processed counts files that reached a terminal state.
func (r Report) Processed() int {
	return len(r.Placed) + len(r.Conflicts) + len(r.Failed)
}

type conflictsDocument struct {
	RunID     string     `json:"run_id"`
	Conflicts []Conflict `json:"conflicts"`
}

// writeConflicts records the run's conflicts for review. A run without
// conflicts clears a previous file.
func writeConflicts(path, runID string, conflicts []Conflict) error {
	if len(conflicts) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(conflictsDocument{RunID: runID, Conflicts: conflicts})
	})
}
