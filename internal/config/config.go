package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the library layout. Relative entries resolve against
// LibraryRoot; StateDir and LogDir resolve against the working directory.
type Paths struct {
	LibraryRoot      string `toml:"library_root"`
	InboxDir         string `toml:"inbox_dir"`
	ReferenceDir     string `toml:"reference_dir"`
	QuarantineDir    string `toml:"quarantine_dir"`
	ProposalDir      string `toml:"proposal_dir"`
	StorePath        string `toml:"store_path"`
	BibliographyPath string `toml:"bibliography_path"`
	StateDir         string `toml:"state_dir"`
	LogDir           string `toml:"log_dir"`
}

// Ingest contains inbox admission rules.
type Ingest struct {
	Extensions        []string `toml:"extensions"`
	MaxFileSizeMB     int      `toml:"max_file_size_mb"`
	MaxFilenameLength int      `toml:"max_filename_length"`
}

// Matching contains near-duplicate detection knobs.
type Matching struct {
	// SimilarityThreshold is the minimum title score for two records by a
	// shared author to be reported as a similar pair. Default: 0.70
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Review contains proposal workflow settings.
type Review struct {
	// RequireDecision demands an explicit decision on every entry before
	// apply touches it. Disabling it treats a non-null suggestion as "fix".
	RequireDecision bool `toml:"require_decision"`
	// OffTopicPatterns are case-insensitive regular expressions; titles that
	// match are proposed as broken so they can be quarantined.
	OffTopicPatterns []string `toml:"off_topic_patterns"`
}

// Backup contains store snapshot settings.
type Backup struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Keep    int    `toml:"keep"`
}

// Journal contains audit history settings.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bibkeep.
//
// Configuration sections:
//   - Paths: library root and the directories derived from it
//   - Ingest: which inbox files are admitted
//   - Matching: similarity threshold for near-duplicates
//   - Review: proposal decision policy and off-topic title patterns
//   - Backup: compressed store snapshots taken before apply
//   - Journal: SQLite audit history
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Ingest   Ingest   `toml:"ingest"`
	Matching Matching `toml:"matching"`
	Review   Review   `toml:"review"`
	Backup   Backup   `toml:"backup"`
	Journal  Journal  `toml:"journal"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bibkeep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	loadDotEnv()
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads ./.env when present. Variables already set in the
// environment win.
func loadDotEnv() {
	if info, err := os.Stat(".env"); err != nil || info.IsDir() {
		return
	}
	_ = godotenv.Load(".env")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bibkeep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the library tree and state directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.LibraryRoot,
		c.Paths.InboxDir,
		c.Paths.ReferenceDir,
		c.Paths.QuarantineDir,
		c.Paths.ProposalDir,
		c.Paths.StateDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.StorePath),
	}
	if c.Backup.Enabled {
		dirs = append(dirs, c.Backup.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProposalPath returns the proposal file for a review category.
func (c *Config) ProposalPath(category string) string {
	return filepath.Join(c.Paths.ProposalDir, category+".json")
}

// LockPath returns the advisory lock guarding the reference store.
func (c *Config) LockPath() string {
	return c.Paths.StorePath + ".lock"
}

// MaxFileSizeBytes returns the ingest size limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Ingest.MaxFileSizeMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// expandUnder expands pathValue, resolving relative values against base.
func expandUnder(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" || strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) {
		return expandPath(pathValue)
	}
	return expandPath(filepath.Join(base, pathValue))
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
