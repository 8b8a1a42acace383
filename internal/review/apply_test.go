package review

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bibkeep/internal/config"
	"bibkeep/internal/journal"
	"bibkeep/internal/refstore"
	"bibkeep/internal/testsupport"
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// detectAndEdit runs detection for category and lets edit annotate the
// written proposal.
func detectAndEdit(t *testing.T, e *Engine, cfg *config.Config, category Category, edit func(p *Proposal)) {
	t.Helper()
	if _, err := e.Detect(context.Background(), category, DetectOptions{}); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	path := cfg.ProposalPath(string(category))
	p, err := LoadProposal(path)
	if err != nil {
		t.Fatalf("LoadProposal: %v", err)
	}
	edit(p)
	if err := SaveProposal(path, p); err != nil {
		t.Fatalf("SaveProposal: %v", err)
	}
}

func seedDraft(t *testing.T, cfg *config.Config) {
	t.Helper()
	testsupport.SeedLibrary(t, cfg,
		testsupport.Doc{Filename: "Bishop_draft.pdf", Title: "draft_v2", Authors: []string{"Christopher Bishop"}},
		testsupport.Doc{Filename: "Smith_Notes.pdf", Title: "Notes", Authors: []string{"Jane Smith"}},
	)
}

func suggestTitle(title string) func(p *Proposal) {
	return func(p *Proposal) {
		p.Entries[0].SuggestedTitle = &title
		p.Entries[0].SuggestedYear = intPtr(2006)
		p.Entries[0].Decision = DecisionFix
	}
}

func TestApplyFixRenamesAndIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	j := testsupport.MustOpenJournal(t, cfg)
	e, err := NewEngine(cfg, j, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition and Machine Learning"))

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 || report.Rejected != 0 {
		t.Fatalf("report = %+v", report)
	}

	const renamed = "Bishop_Pattern_Recognition_Machine_Learning.pdf"
	if exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_draft.pdf")) || !exists(filepath.Join(cfg.Paths.ReferenceDir, renamed)) {
		t.Fatal("file not renamed")
	}
	store := testsupport.MustLoadStore(t, cfg)
	got, ok := store.ByFilename(renamed)
	if !ok || got.Title != "Pattern Recognition and Machine Learning" || got.Year == nil || *got.Year != 2006 {
		t.Fatalf("record = %+v", got)
	}
	p, err := LoadProposal(cfg.ProposalPath(string(CategoryBrokenTitles)))
	if err != nil {
		t.Fatalf("LoadProposal: %v", err)
	}
	if p.State != StateApplied || p.Entries[0].State != StateApplied {
		t.Fatalf("proposal state = %s, entry state = %s", p.State, p.Entries[0].State)
	}
	md, _ := os.ReadFile(cfg.Paths.BibliographyPath)
	if !strings.Contains(string(md), renamed) {
		t.Fatalf("bibliography not regenerated:\n%s", md)
	}
	events, err := j.List(context.Background(), journal.Filter{RunID: report.RunID})
	if err != nil || len(events) != 1 || events[0].Operation != journal.OpFix || !strings.Contains(events[0].Detail, "renamed from Bishop_draft.pdf") {
		t.Fatalf("events = %+v, err %v", events, err)
	}

	storeBefore, _ := os.ReadFile(cfg.Paths.StorePath)
	again, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if again.Applied != 0 || again.AlreadyApplied != 1 {
		t.Fatalf("second report = %+v", again)
	}
	storeAfter, _ := os.ReadFile(cfg.Paths.StorePath)
	if string(storeBefore) != string(storeAfter) {
		t.Fatal("store changed on second apply")
	}
}

func TestApplyRecognisesCommittedEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition and Machine Learning"))
	path := cfg.ProposalPath(string(CategoryBrokenTitles))
	decided, _ := os.ReadFile(path)

	if _, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Simulate a run that committed the store but lost the proposal write.
	if err := os.WriteFile(path, decided, 0o644); err != nil {
		t.Fatal(err)
	}
	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 0 || report.AlreadyApplied != 1 || report.Rejected != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestApplyRequiresDecision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, func(p *Proposal) {
		title := "Pattern Recognition"
		p.Entries[0].SuggestedTitle = &title
	})
	before, _ := os.ReadFile(cfg.Paths.StorePath)

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Rejected != 1 || report.Applied != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Outcomes[0].Note, "decision required") {
		t.Fatalf("note = %q", report.Outcomes[0].Note)
	}
	after, _ := os.ReadFile(cfg.Paths.StorePath)
	if string(before) != string(after) {
		t.Fatal("store modified by rejected entry")
	}
}

func TestApplyLegacyModeTreatsSuggestionAsFix(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLegacyDecisions())
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, func(p *Proposal) {
		title := "Pattern Recognition"
		p.Entries[0].SuggestedTitle = &title
	})

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_Pattern_Recognition.pdf")) {
		t.Fatal("file not renamed")
	}
}

func TestApplyRejectsStaleEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition"))

	store := testsupport.MustLoadStore(t, cfg)
	ref := refstore.Ref{ContentHash: hashOf("content of Bishop_draft.pdf"), Filename: "Bishop_draft.pdf"}
	if err := store.Update(ref, func(r *refstore.Record) error {
		r.Title = "Edited Elsewhere"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Rejected != 1 || !strings.HasPrefix(report.Outcomes[0].Note, "stale") {
		t.Fatalf("report = %+v", report)
	}
	p, _ := LoadProposal(cfg.ProposalPath(string(CategoryBrokenTitles)))
	if p.Entries[0].State != StateRejected || p.Entries[0].Note == "" {
		t.Fatalf("entry = %+v", p.Entries[0])
	}
	if !exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_draft.pdf")) {
		t.Fatal("stale entry moved a file")
	}
}

func TestApplyQuarantinesDuplicateButNotAllCopies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.SeedLibrary(t, cfg,
		testsupport.Doc{Filename: "Smith_Notes.pdf", Content: "same", Title: "Notes", Authors: []string{"Jane Smith"}},
		testsupport.Doc{Filename: "Smith_Notes_copy.pdf", Content: "same", Title: "Notes", Authors: []string{"Jane Smith"}},
	)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryExactDuplicates, func(p *Proposal) {
		for i := range p.Entries {
			p.Entries[i].Decision = DecisionQuarantine
		}
	})

	report, err := e.Apply(context.Background(), CategoryExactDuplicates, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 || report.Rejected != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !exists(filepath.Join(cfg.Paths.QuarantineDir, "Smith_Notes.pdf")) || !exists(filepath.Join(cfg.Paths.ReferenceDir, "Smith_Notes_copy.pdf")) {
		t.Fatal("unexpected file layout after quarantine")
	}
	store := testsupport.MustLoadStore(t, cfg)
	quarantined, _ := store.ByFilename("Smith_Notes.pdf")
	if quarantined.Status != refstore.StatusQuarantine {
		t.Fatalf("status = %s", quarantined.Status)
	}
}

func TestApplyRollsBackMovesWhenSaveFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	e.save = func(*refstore.Store) error { return errors.New("disk full") }
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition"))
	proposalBefore, _ := os.ReadFile(cfg.ProposalPath(string(CategoryBrokenTitles)))

	if _, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{}); err == nil {
		t.Fatal("expected save error")
	}
	if !exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_draft.pdf")) || exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_Pattern_Recognition.pdf")) {
		t.Fatal("move not rolled back")
	}
	store := testsupport.MustLoadStore(t, cfg)
	if _, ok := store.ByFilename("Bishop_draft.pdf"); !ok {
		t.Fatal("store changed")
	}
	proposalAfter, _ := os.ReadFile(cfg.ProposalPath(string(CategoryBrokenTitles)))
	if string(proposalBefore) != string(proposalAfter) {
		t.Fatal("proposal rewritten after failed commit")
	}
}

func TestApplyDryRunChangesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition"))
	before, _ := os.ReadFile(cfg.Paths.StorePath)

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 || report.Outcomes[0].Filename != "Bishop_Pattern_Recognition.pdf" {
		t.Fatalf("report = %+v", report)
	}
	after, _ := os.ReadFile(cfg.Paths.StorePath)
	if string(before) != string(after) || !exists(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_draft.pdf")) {
		t.Fatal("dry run mutated the library")
	}
}

func TestApplyRejectsRenameConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seedDraft(t, cfg)
	if err := os.WriteFile(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_Pattern_Recognition.pdf"), []byte("other"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryBrokenTitles, suggestTitle("Pattern Recognition"))

	report, err := e.Apply(context.Background(), CategoryBrokenTitles, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Rejected != 1 || !strings.HasPrefix(report.Outcomes[0].Note, "conflict") {
		t.Fatalf("report = %+v", report)
	}
	data, _ := os.ReadFile(filepath.Join(cfg.Paths.ReferenceDir, "Bishop_Pattern_Recognition.pdf"))
	if string(data) != "other" {
		t.Fatal("existing file overwritten")
	}
}

func TestApplyMismatchedFilenameFixWithoutSuggestion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.SeedLibrary(t, cfg,
		testsupport.Doc{Filename: "paper1.pdf", Title: "Pattern Recognition", Authors: []string{"John Smith"}},
	)
	e := newEngine(t, cfg)
	detectAndEdit(t, e, cfg, CategoryMismatchedFilenames, func(p *Proposal) {
		p.Entries[0].Decision = DecisionFix
	})

	report, err := e.Apply(context.Background(), CategoryMismatchedFilenames, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 || !exists(filepath.Join(cfg.Paths.ReferenceDir, "Smith_Pattern_Recognition.pdf")) {
		t.Fatalf("report = %+v", report)
	}
}

// annotateRaw sets key on the first entry of the proposal file without going
// through Entry, the way a human editing the JSON would.
func annotateRaw(t *testing.T, path, key string, value any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	entries, ok := doc["entries"].([]any)
	if !ok || len(entries) == 0 {
		t.Fatalf("no entries in %s", path)
	}
	entries[0].(map[string]any)[key] = value
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestApplyQuarantineFlagAnnotations(t *testing.T) {
	tests := []struct {
		name         string
		decision     Decision
		key          string
		wantApplied  int
		wantRejected int
		wantNote     string
	}{
		{name: "flag quarantines", key: "quarantine", wantApplied: 1},
		{name: "flag matches decision", decision: DecisionQuarantine, key: "quarantine", wantApplied: 1},
		{name: "flag conflicts with keep", decision: DecisionKeep, key: "quarantine", wantRejected: 1,
			wantNote: `quarantine: true conflicts with decision "keep"`},
		{name: "misspelled key", key: "quarrantine", wantRejected: 1,
			wantNote: "unrecognised fields: quarrantine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			testsupport.SeedLibrary(t, cfg,
				testsupport.Doc{Filename: "Unknown_Notes.pdf", Title: "Notes", Authors: []string{"Unknown"}},
			)
			e := newEngine(t, cfg)
			detectAndEdit(t, e, cfg, CategoryUnknownAuthors, func(p *Proposal) {
				p.Entries[0].Decision = tt.decision
			})
			path := cfg.ProposalPath(string(CategoryUnknownAuthors))
			annotateRaw(t, path, tt.key, true)

			if _, err := e.Detect(context.Background(), CategoryUnknownAuthors, DetectOptions{}); err == nil {
				t.Fatal("detect overwrote an annotated proposal")
			}

			report, err := e.Apply(context.Background(), CategoryUnknownAuthors, ApplyOptions{})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if report.Applied != tt.wantApplied || report.Rejected != tt.wantRejected || report.Pending != 0 {
				t.Fatalf("report = %+v", report)
			}
			if tt.wantNote != "" && report.Outcomes[0].Note != tt.wantNote {
				t.Fatalf("note = %q, want %q", report.Outcomes[0].Note, tt.wantNote)
			}

			quarantined := exists(filepath.Join(cfg.Paths.QuarantineDir, "Unknown_Notes.pdf"))
			if quarantined != (tt.wantApplied == 1) {
				t.Fatalf("quarantined = %v", quarantined)
			}
			p, err := LoadProposal(path)
			if err != nil {
				t.Fatalf("LoadProposal: %v", err)
			}
			if tt.wantApplied == 1 && (p.Entries[0].Decision != DecisionQuarantine || p.Entries[0].State != StateApplied) {
				t.Fatalf("entry after rewrite = %+v", p.Entries[0])
			}
		})
	}
}
