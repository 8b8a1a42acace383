package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryRoot == "" {
		return errors.New("paths.library_root must be set")
	}
	dirs := map[string]string{
		"paths.inbox_dir":      c.Paths.InboxDir,
		"paths.reference_dir":  c.Paths.ReferenceDir,
		"paths.quarantine_dir": c.Paths.QuarantineDir,
	}
	seen := make(map[string]string, len(dirs))
	for _, key := range []string{"paths.inbox_dir", "paths.reference_dir", "paths.quarantine_dir"} {
		dir := filepath.Clean(dirs[key])
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("%s must differ from %s", key, other)
		}
		seen[dir] = key
	}
	if filepath.Ext(c.Paths.StorePath) != ".json" {
		return errors.New("paths.store_path must name a .json file")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxFileSizeMB < 0 {
		return errors.New("ingest.max_file_size_mb must be >= 0 (0 disables the limit)")
	}
	if c.Ingest.MaxFilenameLength < 32 {
		return errors.New("ingest.max_filename_length must be at least 32")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.SimilarityThreshold <= 0 || c.Matching.SimilarityThreshold > 1 {
		return errors.New("matching.similarity_threshold must be between 0 (exclusive) and 1")
	}
	return nil
}

func (c *Config) validateReview() error {
	for _, pattern := range c.Review.OffTopicPatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("review.off_topic_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.Enabled && c.Backup.Keep < 1 {
		return errors.New("backup.keep must be >= 1 when backup.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
