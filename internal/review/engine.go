package review

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"

	"bibkeep/internal/config"
	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
	"bibkeep/internal/journal"
	"bibkeep/internal/logging"
	"bibkeep/internal/refstore"
)

// EventRecorder persists audit events. *journal.Journal satisfies it.
type EventRecorder interface {
	Record(ctx context.Context, events ...journal.Event) error
}

// Engine runs detection and application against one configured library.
type Engine struct {
	cfg     *config.Config
	rules   Rules
	journal EventRecorder
	logger  *slog.Logger

	move func(src, dst string) error
	save func(store *refstore.Store) error
}

// NewEngine compiles the detection rules of cfg. A nil recorder disables
// journaling.
func NewEngine(cfg *config.Config, recorder EventRecorder, logger *slog.Logger) (*Engine, error) {
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		rules:   rules,
		journal: recorder,
		logger:  logging.NewComponentLogger(logger, "review"),
		move:    fileutil.MoveNoClobber,
	}
	e.save = e.commit
	return e, nil
}

// DetectOptions tune a detection run.
type DetectOptions struct {
	// Force replaces a proposal that still carries unapplied decisions.
	Force bool
	// DryRun builds the proposal without writing it.
	DryRun bool
}

// DetectResult describes a detection run.
type DetectResult struct {
	Proposal  *Proposal `json:"proposal"`
	Path      string    `json:"path"`
	Written   bool      `json:"written"`
	Unchanged bool      `json:"unchanged"`
}

// Detect scans the store for category and writes its proposal file.
func (e *Engine) Detect(ctx context.Context, category Category, opts DetectOptions) (DetectResult, error) {
	ctx = logging.WithCategory(ctx, string(category))
	logger := logging.WithContext(ctx, e.logger)
	path := e.cfg.ProposalPath(string(category))
	result := DetectResult{Path: path}

	store, err := refstore.Load(e.cfg.Paths.StorePath)
	if err != nil {
		return result, err
	}
	proposal, err := Detect(category, store.Records(), e.rules)
	if err != nil {
		return result, err
	}
	result.Proposal = proposal

	var encoded bytes.Buffer
	if err := EncodeProposal(&encoded, proposal); err != nil {
		return result, faults.Wrap(faults.ErrIO, "review", "encode proposal", path, err)
	}

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, encoded.Bytes()) {
			result.Unchanged = true
			logger.Info("proposal unchanged",
				logging.String(logging.FieldEventType, "detect_unchanged"),
				logging.Int("entries", len(proposal.Entries)))
			return result, nil
		}
		if !opts.Force {
			current, loadErr := LoadProposal(path)
			if loadErr != nil {
				return result, faults.Wrap(faults.ErrConflict, "review", "detect",
					"existing proposal is unreadable; fix it or rerun with --force", loadErr)
			}
			if current.PendingDecisions() {
				return result, faults.Wrap(faults.ErrConflict, "review", "detect",
					"existing proposal carries unapplied decisions; apply it or rerun with --force", nil)
			}
		}
	case !errors.Is(err, os.ErrNotExist):
		return result, faults.Wrap(faults.ErrIO, "review", "read proposal", path, err)
	}

	if opts.DryRun {
		return result, nil
	}
	if err := fileutil.WriteFileAtomic(path, encoded.Bytes(), 0o644); err != nil {
		return result, faults.Wrap(faults.ErrIO, "review", "write proposal", path, err)
	}
	result.Written = true
	logger.Info("proposal written",
		logging.String(logging.FieldEventType, "detect_complete"),
		logging.String(logging.FieldPath, path),
		logging.String("proposal_id", proposal.ID),
		logging.Int("entries", len(proposal.Entries)))
	return result, nil
}

func (e *Engine) commit(store *refstore.Store) error {
	if e.cfg.Backup.Enabled {
		backups := refstore.Backups{Dir: e.cfg.Backup.Dir, Keep: e.cfg.Backup.Keep}
		snapshot, created, err := backups.Create(store.Path())
		if err != nil {
			return err
		}
		if created {
			e.logger.Debug("store snapshot taken",
				logging.String(logging.FieldEventType, "backup_created"),
				logging.String("backup", snapshot.Name))
		}
	}
	return store.Save()
}
