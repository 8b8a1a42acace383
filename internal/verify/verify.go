// Package verify compares the reference store with the library tree.
//
// Verification is read-only: it reports records whose file is gone, files
// nobody recorded and, in deep mode, files whose content no longer matches
// the recorded hash. Fixing any of them is left to the operator.
package verify

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"bibkeep/internal/config"
	"bibkeep/internal/contenthash"
	"bibkeep/internal/faults"
	"bibkeep/internal/logging"
	"bibkeep/internal/refstore"
)

// Options tune a verification run.
type Options struct {
	// Deep rehashes every recorded file.
	Deep bool
	// Workers bounds concurrent hashing in deep mode. Zero uses the CPU count.
	Workers int
}

// Mismatch is a recorded file whose content hash changed.
type Mismatch struct {
	Record refstore.Ref `json:"record"`
	Path   string       `json:"path"`
	Actual string       `json:"actual"`
}

// Report lists every inconsistency found.
type Report struct {
	Records           int            `json:"records"`
	Files             int            `json:"files"`
	Deep              bool           `json:"deep"`
	Missing           []refstore.Ref `json:"missing"`
	Orphans           []string       `json:"orphans"`
	QuarantineMissing []refstore.Ref `json:"quarantine_missing"`
	HashMismatches    []Mismatch     `json:"hash_mismatches,omitempty"`
}

// Clean reports whether no inconsistency was found.
func (r Report) Clean() bool {
	return len(r.Missing) == 0 && len(r.Orphans) == 0 &&
		len(r.QuarantineMissing) == 0 && len(r.HashMismatches) == 0
}

// Problems counts every reported inconsistency.
func (r Report) Problems() int {
	return len(r.Missing) + len(r.Orphans) + len(r.QuarantineMissing) + len(r.HashMismatches)
}

// Verifier checks one configured library.
type Verifier struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New returns a verifier for cfg.
func New(cfg *config.Config, logger *slog.Logger) *Verifier {
	return &Verifier{cfg: cfg, logger: logging.NewComponentLogger(logger, "verify")}
}

// Run loads the store and compares it with the reference and quarantine
// directories.
func (v *Verifier) Run(ctx context.Context, opts Options) (Report, error) {
	store, err := refstore.Load(v.cfg.Paths.StorePath)
	if err != nil {
		return Report{}, err
	}
	return v.Check(ctx, store.Records(), opts)
}

// Check compares records with the library tree.
func (v *Verifier) Check(ctx context.Context, records []refstore.Record, opts Options) (Report, error) {
	report := Report{Records: len(records), Deep: opts.Deep}

	files, err := listFiles(v.cfg.Paths.ReferenceDir)
	if err != nil {
		return report, err
	}
	report.Files = len(files)

	recorded := make(map[string]struct{}, len(records))
	var present []refstore.Record
	for _, record := range records {
		switch record.Status {
		case refstore.StatusQuarantine:
			if !fileExists(v.path(record)) {
				report.QuarantineMissing = append(report.QuarantineMissing, record.Ref())
				continue
			}
		case refstore.StatusReference:
			recorded[record.Filename] = struct{}{}
			if _, ok := files[record.Filename]; !ok {
				report.Missing = append(report.Missing, record.Ref())
				continue
			}
		default:
			// todo records wait in the inbox and have no place in either tree.
			continue
		}
		present = append(present, record)
	}
	for name := range files {
		if _, ok := recorded[name]; !ok {
			report.Orphans = append(report.Orphans, name)
		}
	}
	slices.Sort(report.Orphans)

	if opts.Deep {
		report.HashMismatches, err = v.rehash(ctx, present, opts.Workers)
		if err != nil {
			return report, err
		}
	}

	logger := logging.WithContext(ctx, v.logger)
	if report.Clean() {
		logger.Info("library consistent",
			logging.String(logging.FieldEventType, "verify_clean"),
			logging.Int("records", report.Records),
			logging.Bool("deep", opts.Deep))
	} else {
		logging.WarnWithContext(logger, "library inconsistent", "verify_problems",
			logging.Int("missing", len(report.Missing)),
			logging.Int("orphans", len(report.Orphans)),
			logging.Int("quarantine_missing", len(report.QuarantineMissing)),
			logging.Int("hash_mismatches", len(report.HashMismatches)),
			logging.String(logging.FieldErrorHint, "restore the files or re-ingest them"),
			logging.String(logging.FieldImpact, "affected records do not match the library tree"))
	}
	return report, nil
}

func (v *Verifier) path(record refstore.Record) string {
	if record.Status == refstore.StatusQuarantine {
		return filepath.Join(v.cfg.Paths.QuarantineDir, record.Filename)
	}
	return filepath.Join(v.cfg.Paths.ReferenceDir, record.Filename)
}

func (v *Verifier) rehash(ctx context.Context, records []refstore.Record, workers int) ([]Mismatch, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	actual := make([]string, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, record := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := contenthash.File(v.path(record))
			if err != nil {
				return err
			}
			actual[i] = hash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, faults.Wrap(faults.ErrIO, "verify", "rehash", "deep verification aborted", err)
	}

	var mismatches []Mismatch
	for i, record := range records {
		if actual[i] != record.ContentHash {
			mismatches = append(mismatches, Mismatch{Record: record.Ref(), Path: v.path(record), Actual: actual[i]})
		}
	}
	return mismatches, nil
}

// listFiles returns the visible regular files directly under dir. A missing
// directory holds no files.
func listFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, faults.Wrap(faults.ErrIO, "verify", "list files", dir, err)
	}
	files := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		files[name] = struct{}{}
	}
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
