package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bibkeep/internal/config"
	"bibkeep/internal/contenthash"
	"bibkeep/internal/journal"
	"bibkeep/internal/refstore"
	"bibkeep/internal/testsupport"
)

func newPipeline(t *testing.T, cfg *config.Config) (*Pipeline, *journal.Journal) {
	t.Helper()
	j := testsupport.MustOpenJournal(t, cfg)
	return New(cfg, nil, j, nil), j
}

func inboxPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Paths.InboxDir, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunPlacesNewDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WritePDF(t, inboxPath(cfg, "esl-print.pdf"), testsupport.PDFInfo{
		Title:  "The Elements of Statistical Learning",
		Author: "Trevor Hastie and Robert Tibshirani and Jerome Friedman",
		Year:   2009,
	})
	p, j := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Placed) != 1 || len(report.Conflicts) != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	const want = "Hastie_et_al_Elements_Statistical_Learning.pdf"
	record := report.Placed[0].Record
	if record.Filename != want {
		t.Fatalf("filename = %q, want %q", record.Filename, want)
	}
	if record.Year == nil || *record.Year != 2009 || record.OriginalFilename != "esl-print.pdf" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if exists(inboxPath(cfg, "esl-print.pdf")) {
		t.Fatal("source still in inbox")
	}
	if !exists(filepath.Join(cfg.Paths.ReferenceDir, want)) {
		t.Fatal("file not placed in reference dir")
	}

	store := testsupport.MustLoadStore(t, cfg)
	if store.Len() != 1 {
		t.Fatalf("store has %d records", store.Len())
	}
	md, err := os.ReadFile(cfg.Paths.BibliographyPath)
	if err != nil {
		t.Fatalf("bibliography: %v", err)
	}
	if !strings.Contains(string(md), "Hastie, T. et al. (2009) The Elements of Statistical Learning.") {
		t.Fatalf("bibliography missing entry:\n%s", md)
	}
	events, err := j.List(context.Background(), journal.Filter{RunID: report.RunID})
	if err != nil || len(events) != 1 || events[0].Operation != journal.OpPlaced {
		t.Fatalf("journal events = %+v, err %v", events, err)
	}
}

func TestRunExactDuplicateStaysInInbox(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seeded := testsupport.SeedLibrary(t, cfg, testsupport.Doc{
		Filename: "Berk_Statistical_Learning_Regression_Perspective.pdf",
		Content:  "the same bytes",
		Authors:  []string{"Richard A. Berk"},
		Title:    "Statistical Learning from a Regression Perspective",
	})
	if err := os.WriteFile(inboxPath(cfg, "download (1).pdf"), []byte("the same bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].Kind != ConflictExactDuplicate {
		t.Fatalf("expected exact duplicate conflict, got %+v", report.Conflicts)
	}
	if report.Conflicts[0].Existing != seeded[0].Ref() {
		t.Fatalf("conflict names %+v, want %+v", report.Conflicts[0].Existing, seeded[0].Ref())
	}
	if !exists(inboxPath(cfg, "download (1).pdf")) {
		t.Fatal("duplicate was moved out of the inbox")
	}
	if store := testsupport.MustLoadStore(t, cfg); store.Len() != 1 {
		t.Fatalf("store grew to %d records", store.Len())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Paths.ProposalDir, ConflictsFile))
	if err != nil {
		t.Fatalf("conflicts file: %v", err)
	}
	var doc conflictsDocument
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Conflicts) != 1 {
		t.Fatalf("conflicts file = %s (%v)", data, err)
	}
}

func TestRunDuplicateWithinBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	info := testsupport.PDFInfo{Title: "Deep Learning", Author: "Ian Goodfellow", Year: 2016}
	testsupport.WritePDF(t, inboxPath(cfg, "a.pdf"), info)
	testsupport.WritePDF(t, inboxPath(cfg, "b.pdf"), info)
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Placed) != 1 || len(report.Conflicts) != 1 {
		t.Fatalf("expected one placed and one conflict, got %+v", report)
	}
	if report.Placed[0].Source != "a.pdf" || report.Conflicts[0].Source != "b.pdf" {
		t.Fatalf("inbox not processed in name order: %+v", report)
	}
	if report.Conflicts[0].Kind != ConflictExactDuplicate {
		t.Fatalf("kind = %s", report.Conflicts[0].Kind)
	}
}

func TestRunFilenameCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.SeedLibrary(t, cfg, testsupport.Doc{
		Filename: "Smith_Bayesian_Methods.pdf",
		Authors:  []string{"John Smith"},
		Title:    "Bayesian Methods",
	})
	testsupport.WritePDF(t, inboxPath(cfg, "other-bayes.pdf"), testsupport.PDFInfo{
		Title: "Bayesian Methods", Author: "Jane Smith", Body: "different edition",
	})
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].Kind != ConflictFilenameCollision {
		t.Fatalf("expected filename collision, got %+v", report)
	}
	if !exists(inboxPath(cfg, "other-bayes.pdf")) {
		t.Fatal("colliding file left the inbox")
	}
}

func TestRunCollisionWithUnrecordedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Paths.ReferenceDir, "Goodfellow_Deep_Learning.pdf"), []byte("orphan"), 0o644); err != nil {
		t.Fatal(err)
	}
	testsupport.WritePDF(t, inboxPath(cfg, "dl.pdf"), testsupport.PDFInfo{Title: "Deep Learning", Author: "Ian Goodfellow"})
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Conflicts) != 1 || report.Conflicts[0].Existing.ContentHash != "" {
		t.Fatalf("expected collision with unrecorded file, got %+v", report.Conflicts)
	}
	got, _ := os.ReadFile(filepath.Join(cfg.Paths.ReferenceDir, "Goodfellow_Deep_Learning.pdf"))
	if string(got) != "orphan" {
		t.Fatal("existing file was overwritten")
	}
}

func TestRunSkipsAndDegrades(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxFileSizeMB(1))
	if err := os.WriteFile(inboxPath(cfg, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, inboxPath(cfg, "huge.pdf"), 2<<20)
	if err := os.WriteFile(inboxPath(cfg, "scan.PDF"), []byte("not really a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected txt and oversize skipped, got %+v", report.Skipped)
	}
	if len(report.Placed) != 1 {
		t.Fatalf("expected scan placed, got %+v", report)
	}
	record := report.Placed[0].Record
	if record.Filename != "Unknown_scan.pdf" {
		t.Fatalf("filename = %q", record.Filename)
	}
	if record.ContentHash != contenthash.Bytes([]byte("not really a pdf")) {
		t.Fatal("hash mismatch")
	}
	fields := map[string]bool{}
	for _, d := range report.Degraded {
		fields[d.Field] = true
	}
	if !fields["authors"] || !fields["title"] || !fields["year"] {
		t.Fatalf("missing degradations: %+v", report.Degraded)
	}
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WritePDF(t, inboxPath(cfg, "dl.pdf"), testsupport.PDFInfo{Title: "Deep Learning", Author: "Ian Goodfellow"})
	p, _ := newPipeline(t, cfg)

	report, err := p.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Placed) != 1 || !report.DryRun {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !exists(inboxPath(cfg, "dl.pdf")) || exists(cfg.Paths.StorePath) {
		t.Fatal("dry run modified the library")
	}
}

func TestRunRollsBackMovesWhenStoreWriteFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WritePDF(t, inboxPath(cfg, "a.pdf"), testsupport.PDFInfo{Title: "Deep Learning", Author: "Ian Goodfellow"})
	testsupport.WritePDF(t, inboxPath(cfg, "b.pdf"), testsupport.PDFInfo{Title: "Pattern Recognition", Author: "Christopher Bishop"})
	p, j := newPipeline(t, cfg)
	boom := errors.New("disk full")
	p.save = func(*refstore.Store) error { return boom }

	report, err := p.Run(context.Background(), Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store write error, got %v", err)
	}
	if len(report.Placed) != 0 {
		t.Fatal("report still lists placements after rollback")
	}
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if !exists(inboxPath(cfg, name)) {
			t.Fatalf("%s not restored to inbox", name)
		}
	}
	entries, _ := os.ReadDir(cfg.Paths.ReferenceDir)
	if len(entries) != 0 {
		t.Fatalf("reference dir not empty after rollback: %d entries", len(entries))
	}
	if events, _ := j.List(context.Background(), journal.Filter{}); len(events) != 0 {
		t.Fatalf("journal recorded a failed run: %+v", events)
	}
}
