package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"bibkeep/internal/bibliography"
	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
	"bibkeep/internal/journal"
	"bibkeep/internal/logging"
	"bibkeep/internal/refstore"
)

// Year bounds accepted in suggested_year.
const (
	minSuggestedYear = 1000
	maxSuggestedYear = 2999
)

// ApplyOptions tune an apply run.
type ApplyOptions struct {
	// DryRun validates every entry and reports the outcome without moving
	// files or writing the store or the proposal.
	DryRun bool
}

// Outcome is the result of one entry.
type Outcome struct {
	Key      string       `json:"key"`
	Record   refstore.Ref `json:"record"`
	Decision Decision     `json:"decision"`
	State    State        `json:"state"`
	Filename string       `json:"filename,omitempty"`
	Note     string       `json:"note,omitempty"`
}

// ApplyReport summarises an apply run.
type ApplyReport struct {
	RunID          string    `json:"run_id"`
	ProposalID     string    `json:"proposal_id"`
	Category       Category  `json:"category"`
	DryRun         bool      `json:"dry_run"`
	Applied        int       `json:"applied"`
	AlreadyApplied int       `json:"already_applied"`
	Pending        int       `json:"pending"`
	Rejected       int       `json:"rejected"`
	Outcomes       []Outcome `json:"outcomes"`
}

type fileMove struct {
	src, dst string
}

// entryResult is the verdict on one entry. op is empty when nothing was
// changed in this run.
type entryResult struct {
	state    State
	note     string
	op       string
	filename string
	detail   string
}

func rejected(format string, args ...any) entryResult {
	return entryResult{state: StateRejected, note: fmt.Sprintf(format, args...)}
}

// applyRun holds the mutable state of one Apply call.
type applyRun struct {
	category Category
	rules    Rules
	staged   *refstore.Store
	dryRun   bool
	moves    []fileMove
}

// Apply executes the decided entries of category's proposal. Entry-level
// problems reject the entry and the run continues; a filesystem failure
// or a failed store write undoes this run's moves and is returned with the
// store and proposal untouched.
func (e *Engine) Apply(ctx context.Context, category Category, opts ApplyOptions) (ApplyReport, error) {
	runID := uuid.NewString()
	ctx = logging.WithCategory(logging.WithRunID(ctx, runID), string(category))
	logger := logging.WithContext(ctx, e.logger)
	report := ApplyReport{RunID: runID, Category: category, DryRun: opts.DryRun}

	path := e.cfg.ProposalPath(string(category))
	proposal, err := LoadProposal(path)
	if err != nil {
		return report, err
	}
	if proposal.Category != category {
		return report, faults.Wrap(faults.ErrValidation, "review", "apply",
			fmt.Sprintf("%s holds a %q proposal", path, proposal.Category), nil)
	}
	report.ProposalID = proposal.ID

	store, err := refstore.Load(e.cfg.Paths.StorePath)
	if err != nil {
		return report, err
	}
	run := &applyRun{
		category: category,
		rules:    e.rules,
		staged:   store.Clone(),
		dryRun:   opts.DryRun,
	}
	if proposal.Threshold > 0 {
		run.rules.Threshold = proposal.Threshold
	}

	var events []journal.Event
	for i := range proposal.Entries {
		if err := ctx.Err(); err != nil {
			e.undo(logger, run.moves)
			return report, err
		}
		entry := &proposal.Entries[i]
		if entry.State == StateApplied {
			report.AlreadyApplied++
			report.Outcomes = append(report.Outcomes, Outcome{Key: entry.Key, Record: entry.Record,
				Decision: entry.Decision, State: StateApplied, Note: entry.Note})
			continue
		}

		result, err := e.applyEntry(run, *entry)
		if err != nil {
			e.undo(logger, run.moves)
			return report, err
		}

		entry.State = result.state
		entry.Note = result.note
		outcome := Outcome{Key: entry.Key, Record: entry.Record, Decision: entry.Decision,
			State: result.state, Filename: result.filename, Note: result.note}
		report.Outcomes = append(report.Outcomes, outcome)

		switch {
		case result.state == StateRejected:
			report.Rejected++
			logger.Info("proposal entry rejected",
				logging.String(logging.FieldEventType, "apply_rejected"),
				logging.String(logging.FieldFilename, entry.Record.Filename),
				logging.String("reason", result.note))
		case result.state == StateApplied && result.op == "":
			report.AlreadyApplied++
		case result.state == StateApplied:
			report.Applied++
			events = append(events, journal.Event{
				RunID:       runID,
				Operation:   result.op,
				Category:    string(category),
				ContentHash: entry.Record.ContentHash,
				Filename:    result.filename,
				Detail:      result.detail,
			})
		default:
			report.Pending++
		}
	}

	if opts.DryRun {
		return report, nil
	}

	if report.Applied > 0 {
		if err := e.save(run.staged); err != nil {
			e.undo(logger, run.moves)
			return report, err
		}
	}

	proposal.Refresh()
	if err := SaveProposal(path, proposal); err != nil {
		logging.WarnWithContext(logger, "proposal states not recorded", "proposal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldPath, path),
			logging.String(logging.FieldImpact, "the next apply re-checks these entries against the store"))
	}

	if report.Applied > 0 {
		if err := bibliography.Write(e.cfg.Paths.BibliographyPath, run.staged.Records()); err != nil {
			logging.WarnWithContext(logger, "bibliography not regenerated", "bibliography_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run bibkeep bibliography"),
				logging.String(logging.FieldImpact, "references.md is out of date"))
		}
		e.recordEvents(ctx, logger, events)
	}

	logger.Info("apply complete",
		logging.String(logging.FieldEventType, "apply_complete"),
		logging.String("proposal_id", proposal.ID),
		logging.Int("applied", report.Applied),
		logging.Int("already_applied", report.AlreadyApplied),
		logging.Int("rejected", report.Rejected),
		logging.Int("pending", report.Pending))
	return report, nil
}

// applyEntry validates one entry against the staged store and, when it is
// sound, stages the change. Only filesystem failures are returned as errors.
func (e *Engine) applyEntry(run *applyRun, entry Entry) (entryResult, error) {
	if entry.invalid != "" {
		return rejected("%s", entry.invalid), nil
	}
	decision := entry.Decision
	if decision == DecisionNone {
		if !entry.HasSuggestion() {
			return entryResult{state: StateProposed}, nil
		}
		if e.cfg.Review.RequireDecision {
			return rejected("decision required: set fix, quarantine or keep"), nil
		}
		decision = DecisionFix
	}
	if !decision.Valid() {
		return rejected("unknown decision %q", decision), nil
	}

	record, ok := run.staged.Get(entry.Record)
	if !ok {
		if reflectsDecision(run, entry, decision) {
			return entryResult{state: StateApplied, note: "already reflected in the store"}, nil
		}
		return rejected("stale: record %s no longer exists", entry.Record.Filename), nil
	}
	if !entry.Snapshot.Matches(record) {
		if reflectsDecision(run, entry, decision) {
			return entryResult{state: StateApplied, note: "already reflected in the store"}, nil
		}
		return rejected("stale: record changed since detection"), nil
	}

	if decision == DecisionKeep {
		return entryResult{state: StateApplied, op: journal.OpKeep, filename: record.Filename, detail: "kept as is"}, nil
	}
	if !conditionHolds(run.category, entry, record, run.staged, run.rules) {
		return rejected("stale: %s no longer applies", entry.Issue.Kind), nil
	}

	updated, err := withSuggestions(record, entry)
	if err != nil {
		return rejected("%v", err), nil
	}

	switch decision {
	case DecisionQuarantine:
		return e.quarantine(run, record, updated)
	default:
		return e.fix(run, record, updated, entry.HasSuggestion())
	}
}

func (e *Engine) quarantine(run *applyRun, record, updated refstore.Record) (entryResult, error) {
	if record.Status != refstore.StatusReference {
		return rejected("record is %s, not a reference", record.Status), nil
	}
	updated.Status = refstore.StatusQuarantine
	move := fileMove{
		src: filepath.Join(e.cfg.Paths.ReferenceDir, record.Filename),
		dst: filepath.Join(e.cfg.Paths.QuarantineDir, record.Filename),
	}
	if result, done, err := e.stage(run, record, updated, &move); done || err != nil {
		return result, err
	}
	return entryResult{
		state:    StateApplied,
		op:       journal.OpQuarantine,
		filename: record.Filename,
		detail:   describeChange(record, updated),
	}, nil
}

func (e *Engine) fix(run *applyRun, record, updated refstore.Record, suggested bool) (entryResult, error) {
	updated.Filename = updated.CanonicalFilename(run.rules.MaxFilenameLength)
	if !suggested && updated.Filename == record.Filename {
		return rejected("fix needs a suggested_authors, suggested_title or suggested_year value"), nil
	}
	if sameFields(record, updated) && updated.Filename == record.Filename {
		return rejected("fix changes nothing"), nil
	}

	var move *fileMove
	if updated.Filename != record.Filename {
		if run.staged.FilenameTaken(updated.Filename, record.Ref()) {
			return rejected("conflict: %s is already recorded", updated.Filename), nil
		}
		dir := e.cfg.Paths.ReferenceDir
		if record.Status == refstore.StatusQuarantine {
			dir = e.cfg.Paths.QuarantineDir
		}
		move = &fileMove{src: filepath.Join(dir, record.Filename), dst: filepath.Join(dir, updated.Filename)}
	}
	if result, done, err := e.stage(run, record, updated, move); done || err != nil {
		return result, err
	}
	return entryResult{
		state:    StateApplied,
		op:       journal.OpFix,
		filename: updated.Filename,
		detail:   describeChange(record, updated),
	}, nil
}

// stage moves the file, if any, and writes updated into the staged store.
// done is true when the entry was rejected.
func (e *Engine) stage(run *applyRun, record, updated refstore.Record, move *fileMove) (entryResult, bool, error) {
	if move != nil {
		exists, err := fileutil.Exists(move.dst)
		if err != nil {
			return entryResult{}, true, faults.Wrap(faults.ErrIO, "review", "check destination", move.dst, err)
		}
		if exists {
			return rejected("conflict: %s already exists", move.dst), true, nil
		}
		if !run.dryRun {
			if err := e.move(move.src, move.dst); err != nil {
				if errors.Is(err, fileutil.ErrDestinationExists) {
					return rejected("conflict: %s already exists", move.dst), true, nil
				}
				return entryResult{}, true, err
			}
			run.moves = append(run.moves, *move)
		}
	}
	err := run.staged.Update(record.Ref(), func(r *refstore.Record) error {
		*r = updated
		return nil
	})
	if err != nil {
		if move != nil && !run.dryRun {
			if undoErr := e.move(move.dst, move.src); undoErr != nil {
				return entryResult{}, true, errors.Join(err, undoErr)
			}
			run.moves = run.moves[:len(run.moves)-1]
		}
		return rejected("%v", err), true, nil
	}
	return entryResult{}, false, nil
}

// withSuggestions returns record with the entry's non-null suggestions
// applied after validation.
func withSuggestions(record refstore.Record, entry Entry) (refstore.Record, error) {
	updated := record.Clone()
	if entry.SuggestedAuthors != nil {
		if len(entry.SuggestedAuthors) == 0 {
			return record, errors.New("invalid: suggested_authors is empty")
		}
		updated.Authors = slices.Clone([]string(entry.SuggestedAuthors))
	}
	if entry.SuggestedTitle != nil {
		title := strings.Join(strings.Fields(*entry.SuggestedTitle), " ")
		if title == "" {
			return record, errors.New("invalid: suggested_title is empty")
		}
		updated.Title = title
	}
	if entry.SuggestedYear != nil {
		year := *entry.SuggestedYear
		if year < minSuggestedYear || year > maxSuggestedYear {
			return record, fmt.Errorf("invalid: suggested_year %d is out of range", year)
		}
		updated.Year = &year
	}
	return updated, nil
}

// reflectsDecision reports whether the store already carries the outcome of
// entry, which happens when a previous apply committed the store but could
// not record the entry state.
func reflectsDecision(run *applyRun, entry Entry, decision Decision) bool {
	base := refstore.Record{
		ContentHash: entry.Record.ContentHash,
		Authors:     entry.Snapshot.Authors,
		Title:       entry.Snapshot.Title,
		Year:        entry.Snapshot.Year,
		Filename:    entry.Record.Filename,
		Status:      entry.Snapshot.Status,
	}
	expected, err := withSuggestions(base, entry)
	if err != nil {
		return false
	}
	switch decision {
	case DecisionQuarantine:
		expected.Status = refstore.StatusQuarantine
	case DecisionFix:
		expected.Filename = expected.CanonicalFilename(run.rules.MaxFilenameLength)
	default:
		return false
	}
	current, ok := run.staged.Get(refstore.Ref{ContentHash: expected.ContentHash, Filename: expected.Filename})
	return ok && sameFields(current, expected) && current.Status == expected.Status
}

func sameFields(a, b refstore.Record) bool {
	return slices.Equal(a.Authors, b.Authors) && a.Title == b.Title && refstore.EqualYear(a.Year, b.Year)
}

func describeChange(before, after refstore.Record) string {
	var parts []string
	if !slices.Equal(before.Authors, after.Authors) {
		parts = append(parts, fmt.Sprintf("authors %q -> %q",
			strings.Join(before.Authors, "; "), strings.Join(after.Authors, "; ")))
	}
	if before.Title != after.Title {
		parts = append(parts, fmt.Sprintf("title %q -> %q", before.Title, after.Title))
	}
	if !refstore.EqualYear(before.Year, after.Year) {
		parts = append(parts, fmt.Sprintf("year %s -> %s", refstore.FormatYear(before.Year), refstore.FormatYear(after.Year)))
	}
	if before.Filename != after.Filename {
		parts = append(parts, fmt.Sprintf("renamed from %s", before.Filename))
	}
	if before.Status != after.Status {
		parts = append(parts, fmt.Sprintf("status %s -> %s", before.Status, after.Status))
	}
	return strings.Join(parts, ", ")
}

// undo reverses this run's moves, newest first. Failures are logged and
// left for the verifier to surface.
func (e *Engine) undo(logger *slog.Logger, moves []fileMove) {
	for i := len(moves) - 1; i >= 0; i-- {
		if err := e.move(moves[i].dst, moves[i].src); err != nil {
			logging.ErrorWithContext(logger, "rollback move failed", "apply_rollback_failed",
				logging.Error(err),
				logging.String(logging.FieldPath, moves[i].dst),
				logging.String(logging.FieldErrorHint, "move the file back by hand and run bibkeep verify"))
		}
	}
}

func (e *Engine) recordEvents(ctx context.Context, logger *slog.Logger, events []journal.Event) {
	if e.journal == nil || len(events) == 0 {
		return
	}
	if err := e.journal.Record(ctx, events...); err != nil {
		logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history is missing this run"))
	}
}
