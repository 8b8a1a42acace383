package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeReview()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("BIBKEEP_LIBRARY_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.LibraryRoot = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.LibraryRoot) == "" {
		c.Paths.LibraryRoot = defaultLibraryRoot
	}
	var err error
	if c.Paths.LibraryRoot, err = expandPath(c.Paths.LibraryRoot); err != nil {
		return fmt.Errorf("paths.library_root: %w", err)
	}

	root := c.Paths.LibraryRoot
	derived := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.inbox_dir", &c.Paths.InboxDir, defaultInboxDir},
		{"paths.reference_dir", &c.Paths.ReferenceDir, defaultReferenceDir},
		{"paths.quarantine_dir", &c.Paths.QuarantineDir, defaultQuarantineDir},
		{"paths.proposal_dir", &c.Paths.ProposalDir, defaultProposalDir},
		{"paths.store_path", &c.Paths.StorePath, defaultStoreFile},
		{"paths.bibliography_path", &c.Paths.BibliographyPath, defaultBibliographyFile},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = entry.fallback
		}
		if *entry.value, err = expandUnder(root, *entry.value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIngest() {
	exts := make([]string, 0, len(c.Ingest.Extensions))
	seen := make(map[string]struct{}, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Ingest.Extensions = exts
	if c.Ingest.MaxFilenameLength == 0 {
		c.Ingest.MaxFilenameLength = defaultMaxFilenameLength
	}
}

func (c *Config) normalizeReview() {
	patterns := c.Review.OffTopicPatterns[:0]
	for _, pattern := range c.Review.OffTopicPatterns {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Review.OffTopicPatterns = patterns
}

func (c *Config) normalizeState() error {
	var err error
	if strings.TrimSpace(c.Backup.Dir) == "" {
		c.Backup.Dir = defaultBackupDir
	}
	if c.Backup.Dir, err = expandUnder(c.Paths.StateDir, c.Backup.Dir); err != nil {
		return fmt.Errorf("backup.dir: %w", err)
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = defaultJournalFile
	}
	if c.Journal.Path, err = expandUnder(c.Paths.StateDir, c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("BIBKEEP_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
