// Package testsupport builds throwaway libraries for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"bibkeep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose library lives in a unique temp
// directory. Every directory exists when it returns.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	root := filepath.Join(base, "library")
	cfgVal.Paths = config.Paths{
		LibraryRoot:      root,
		InboxDir:         filepath.Join(root, "inbox"),
		ReferenceDir:     filepath.Join(root, "references"),
		QuarantineDir:    filepath.Join(root, "quarantine"),
		ProposalDir:      filepath.Join(root, "proposals"),
		StorePath:        filepath.Join(root, "references.json"),
		BibliographyPath: filepath.Join(root, "references.md"),
		StateDir:         filepath.Join(base, "state"),
		LogDir:           filepath.Join(base, "state", "logs"),
	}
	cfgVal.Backup.Dir = filepath.Join(base, "state", "backups")
	cfgVal.Journal.Path = filepath.Join(base, "state", "journal.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithThreshold overrides the similarity threshold.
func WithThreshold(threshold float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.SimilarityThreshold = threshold
	}
}

// WithLegacyDecisions disables the explicit-decision requirement.
func WithLegacyDecisions() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Review.RequireDecision = false
	}
}

// WithOffTopicPatterns sets the off-topic title patterns.
func WithOffTopicPatterns(patterns ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Review.OffTopicPatterns = patterns
	}
}

// WithoutBackups disables store snapshots.
func WithoutBackups() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backup.Enabled = false
	}
}

// WithMaxFileSizeMB overrides the ingest size limit.
func WithMaxFileSizeMB(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.MaxFileSizeMB = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LibraryRoot)
}
