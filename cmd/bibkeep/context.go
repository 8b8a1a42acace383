package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bibkeep/internal/config"
	"bibkeep/internal/journal"
	"bibkeep/internal/logging"
	"bibkeep/internal/storelock"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	journal *journal.Journal
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// log returns the shared logger. A logger that cannot be built falls back
// to stderr-only output so commands still run.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: "info", Format: "console"})
			logging.WarnWithContext(logger, "log file unavailable", "logger_fallback",
				logging.Error(err),
				logging.String(logging.FieldImpact, "logs only go to stderr"))
		}
		c.logger = logger
	})
	return c.logger
}

// eventRecorder is the journal surface shared by ingest and review.
type eventRecorder interface {
	Record(ctx context.Context, events ...journal.Event) error
}

// openJournal opens the journal on first use.
func (c *commandContext) openJournal() (*journal.Journal, error) {
	if c.journal != nil {
		return c.journal, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	c.journal = j
	return j, nil
}

// recorder returns the journal for mutating commands, or nil when it is
// disabled. A journal that cannot be opened disables history for the
// command instead of failing it.
func (c *commandContext) recorder() eventRecorder {
	if c.config == nil || !c.config.Journal.Enabled {
		return nil
	}
	j, err := c.openJournal()
	if err != nil {
		logging.WarnWithContext(c.log(), "journal unavailable", "journal_open_failed",
			logging.Error(err),
			logging.String(logging.FieldPath, c.config.Journal.Path),
			logging.String(logging.FieldImpact, "this run is not recorded in history"))
		return nil
	}
	return j
}

// withLock runs fn while holding the store lock.
func (c *commandContext) withLock(fn func(cfg *config.Config) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := storelock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	return errors.Join(fn(cfg), lock.Release())
}

func (c *commandContext) close() error {
	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func newRunID() string {
	return uuid.NewString()
}
