package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bibkeep/internal/bibliography"
	"bibkeep/internal/config"
	"bibkeep/internal/contenthash"
	"bibkeep/internal/extract"
	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
	"bibkeep/internal/journal"
	"bibkeep/internal/logging"
	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
)

// EventRecorder persists audit events. *journal.Journal satisfies it.
type EventRecorder interface {
	Record(ctx context.Context, events ...journal.Event) error
}

// Options tune a single run.
type Options struct {
	// DryRun reports what would happen without moving files or writing
	// the store.
	DryRun bool
}

// Pipeline ingests the configured inbox.
type Pipeline struct {
	cfg       *config.Config
	extractor extract.Extractor
	journal   EventRecorder
	logger    *slog.Logger

	move func(src, dst string) error
	save func(store *refstore.Store) error
}

// New builds a pipeline. A nil extractor uses extract.Default; a nil
// recorder disables journaling.
func New(cfg *config.Config, extractor extract.Extractor, recorder EventRecorder, logger *slog.Logger) *Pipeline {
	if extractor == nil {
		extractor = extract.Default()
	}
	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		journal:   recorder,
		logger:    logging.NewComponentLogger(logger, "ingest"),
		move:      fileutil.MoveNoClobber,
	}
	p.save = p.commit
	return p
}

// candidate is an inbox file that passed admission.
type candidate struct {
	source   string
	path     string
	metadata extract.Metadata
	authors  []string
	title    string
	year     *int
	filename string
	hash     string
}

// Run processes every admissible inbox file. Per-file problems are
// reported and do not stop the batch; a store write failure undoes the
// run's moves and is returned.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)
	report := Report{RunID: runID, DryRun: opts.DryRun}

	store, err := refstore.Load(p.cfg.Paths.StorePath)
	if err != nil {
		return report, err
	}

	entries, err := os.ReadDir(p.cfg.Paths.InboxDir)
	if err != nil {
		return report, faults.Wrap(faults.ErrIO, "ingest", "scan inbox", p.cfg.Paths.InboxDir, err)
	}

	var moved [][2]string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c, skip := p.admit(entry)
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)
			continue
		}

		p.normalize(&c, &report)

		c.hash, err = contenthash.File(c.path)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Source: c.source, Error: err.Error()})
			continue
		}

		if conflict, ok := p.checkConflicts(store, c); ok {
			report.Conflicts = append(report.Conflicts, conflict)
			logger.Info("ingest conflict",
				logging.String(logging.FieldEventType, "ingest_conflict"),
				logging.String("kind", conflict.Kind),
				logging.String("source", c.source),
				logging.String("existing", conflict.Existing.Filename))
			continue
		}

		record := refstore.Record{
			ContentHash:      c.hash,
			Authors:          c.authors,
			Title:            c.title,
			Year:             c.year,
			Publisher:        c.metadata.Publisher,
			Filename:         c.filename,
			Status:           refstore.StatusReference,
			OriginalFilename: c.source,
		}
		target := filepath.Join(p.cfg.Paths.ReferenceDir, c.filename)
		if !opts.DryRun {
			if err := p.move(c.path, target); err != nil {
				if errors.Is(err, fileutil.ErrDestinationExists) {
					report.Conflicts = append(report.Conflicts, p.collision(c, refstore.Ref{Filename: c.filename}, ""))
					continue
				}
				report.Failed = append(report.Failed, Failure{Source: c.source, Error: err.Error()})
				continue
			}
			moved = append(moved, [2]string{c.path, target})
		}
		if err := store.Insert(record); err != nil {
			if !opts.DryRun {
				p.undo(logger, [][2]string{{c.path, target}})
				moved = moved[:len(moved)-1]
			}
			report.Failed = append(report.Failed, Failure{Source: c.source, Error: err.Error()})
			continue
		}
		report.Placed = append(report.Placed, Placed{Source: c.source, Record: record})
		logger.Debug("placed document",
			logging.String(logging.FieldEventType, "ingest_placed"),
			logging.String(logging.FieldFilename, c.filename),
			logging.String(logging.FieldContentHash, c.hash))
	}

	if opts.DryRun {
		return report, nil
	}

	if len(report.Placed) > 0 {
		if err := p.save(store); err != nil {
			p.undo(logger, moved)
			report.Placed = nil
			return report, err
		}
		if err := bibliography.Write(p.cfg.Paths.BibliographyPath, store.Records()); err != nil {
			logging.WarnWithContext(logger, "bibliography not regenerated", "bibliography_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run bibkeep bibliography"),
				logging.String(logging.FieldImpact, "references.md is out of date"))
		}
	}

	if err := writeConflicts(filepath.Join(p.cfg.Paths.ProposalDir, ConflictsFile), runID, report.Conflicts); err != nil {
		logging.WarnWithContext(logger, "ingestion conflicts not written", "ingest_conflicts_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "conflicts are only listed in this run's output"))
	}
	p.recordEvents(ctx, logger, runID, report)

	logger.Info("ingest complete",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("placed", len(report.Placed)),
		logging.Int("conflicts", len(report.Conflicts)),
		logging.Int("skipped", len(report.Skipped)),
		logging.Int("failed", len(report.Failed)))
	return report, nil
}

func (p *Pipeline) admit(entry os.DirEntry) (candidate, *Skipped) {
	name := entry.Name()
	if entry.IsDir() {
		return candidate{}, &Skipped{Source: name, Reason: "directory"}
	}
	if strings.HasPrefix(name, ".") {
		return candidate{}, &Skipped{Source: name, Reason: "hidden file"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !p.allowedExtension(ext) {
		return candidate{}, &Skipped{Source: name, Reason: fmt.Sprintf("unsupported extension %q", ext)}
	}
	info, err := entry.Info()
	if err != nil {
		return candidate{}, &Skipped{Source: name, Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return candidate{}, &Skipped{Source: name, Reason: "not a regular file"}
	}
	if limit := p.cfg.MaxFileSizeBytes(); limit > 0 && info.Size() > limit {
		return candidate{}, &Skipped{Source: name,
			Reason: fmt.Sprintf("file is %d bytes, limit is %d MB", info.Size(), p.cfg.Ingest.MaxFileSizeMB)}
	}
	return candidate{
		source: name,
		path:   filepath.Join(p.cfg.Paths.InboxDir, name),
	}, nil
}

func (p *Pipeline) allowedExtension(ext string) bool {
	for _, allowed := range p.cfg.Ingest.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (p *Pipeline) normalize(c *candidate, report *Report) {
	c.metadata = p.extractor.Extract(c.path)
	stem := strings.TrimSuffix(c.source, filepath.Ext(c.source))

	c.authors = normalize.SplitAuthors(c.metadata.Author)
	if normalize.IsUnknownAuthors(c.authors) {
		report.Degraded = append(report.Degraded, Degradation{Source: c.source, Field: "authors",
			Detail: "no usable author, recorded as Unknown"})
	}

	var degraded bool
	c.title, degraded = normalize.NormalizeTitle(c.metadata.Title, stem)
	if degraded {
		report.Degraded = append(report.Degraded, Degradation{Source: c.source, Field: "title",
			Detail: fmt.Sprintf("no title metadata, using %q", c.title)})
	}

	c.year = normalize.ParseYear(c.metadata.Year)
	if c.year == nil {
		report.Degraded = append(report.Degraded, Degradation{Source: c.source, Field: "year",
			Detail: "no year found"})
	}

	c.filename = normalize.CanonicalFilename(c.authors, c.title, filepath.Ext(c.source), p.cfg.Ingest.MaxFilenameLength)
}

func (p *Pipeline) checkConflicts(store *refstore.Store, c candidate) (Conflict, bool) {
	if existing, ok := store.ByHash(c.hash); ok {
		return Conflict{
			Kind:             ConflictExactDuplicate,
			Source:           c.source,
			ContentHash:      c.hash,
			ProposedFilename: c.filename,
			Existing:         existing.Ref(),
			ExistingTitle:    existing.Title,
			ExtractedTitle:   c.title,
			ExtractedAuthors: c.authors,
			Message:          "content already recorded as " + existing.Filename,
		}, true
	}
	if existing, ok := store.ByFilename(c.filename); ok {
		return p.collision(c, existing.Ref(), existing.Title), true
	}
	if ok, _ := fileutil.Exists(filepath.Join(p.cfg.Paths.ReferenceDir, c.filename)); ok {
		return p.collision(c, refstore.Ref{Filename: c.filename}, ""), true
	}
	return Conflict{}, false
}

func (p *Pipeline) collision(c candidate, existing refstore.Ref, existingTitle string) Conflict {
	return Conflict{
		Kind:             ConflictFilenameCollision,
		Source:           c.source,
		ContentHash:      c.hash,
		ProposedFilename: c.filename,
		Existing:         existing,
		ExistingTitle:    existingTitle,
		ExtractedTitle:   c.title,
		ExtractedAuthors: c.authors,
		Message:          "canonical filename " + c.filename + " is held by different content",
	}
}

func (p *Pipeline) commit(store *refstore.Store) error {
	if p.cfg.Backup.Enabled {
		backups := refstore.Backups{Dir: p.cfg.Backup.Dir, Keep: p.cfg.Backup.Keep}
		if _, _, err := backups.Create(store.Path()); err != nil {
			return err
		}
	}
	return store.Save()
}

// undo moves placed files back to the inbox, newest first. Failures are
// logged and left for the verifier to surface.
func (p *Pipeline) undo(logger *slog.Logger, moved [][2]string) {
	for i := len(moved) - 1; i >= 0; i-- {
		source, target := moved[i][0], moved[i][1]
		if err := p.move(target, source); err != nil {
			logging.ErrorWithContext(logger, "rollback move failed", "ingest_rollback_failed",
				logging.Error(err),
				logging.String(logging.FieldPath, target),
				logging.String(logging.FieldErrorHint, "move the file back to the inbox by hand and run bibkeep verify"))
		}
	}
}

func (p *Pipeline) recordEvents(ctx context.Context, logger *slog.Logger, runID string, report Report) {
	if p.journal == nil {
		return
	}
	events := make([]journal.Event, 0, len(report.Placed)+len(report.Conflicts))
	for _, placed := range report.Placed {
		events = append(events, journal.Event{
			RunID:       runID,
			Operation:   journal.OpPlaced,
			ContentHash: placed.Record.ContentHash,
			Filename:    placed.Record.Filename,
			Detail:      "from " + placed.Source,
		})
	}
	for _, conflict := range report.Conflicts {
		events = append(events, journal.Event{
			RunID:       runID,
			Operation:   journal.OpConflict,
			Category:    conflict.Kind,
			ContentHash: conflict.ContentHash,
			Filename:    conflict.Source,
			Detail:      conflict.Message,
		})
	}
	if err := p.journal.Record(ctx, events...); err != nil {
		logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history is missing this run"))
	}
}
