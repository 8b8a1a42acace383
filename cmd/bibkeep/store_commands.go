package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bibkeep/internal/bibliography"
	"bibkeep/internal/config"
	"bibkeep/internal/faults"
	"bibkeep/internal/journal"
	"bibkeep/internal/logging"
	"bibkeep/internal/refstore"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Reference store maintenance",
	}

	storeCmd.AddCommand(newStoreCheckCommand(ctx))
	storeCmd.AddCommand(newStoreImportCommand(ctx))
	storeCmd.AddCommand(newStoreBackupsCommand(ctx))
	storeCmd.AddCommand(newStoreRestoreCommand(ctx))

	return storeCmd
}

func backupsFor(cfg *config.Config) refstore.Backups {
	return refstore.Backups{Dir: cfg.Backup.Dir, Keep: cfg.Backup.Keep}
}

func newStoreCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate record invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := refstore.Load(cfg.Paths.StorePath)
			if err != nil {
				return err
			}
			problems := store.Check(cfg.Ingest.MaxFilenameLength)
			if problems == nil {
				problems = []refstore.Problem{}
			}
			if err := ctx.emit(cmd, problems, func(out io.Writer, colorize bool) {
				printSection(out, "Store check", colorize)
				fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d", store.Len()), colorize))
				fmt.Fprintln(out, countLine("Problems", len(problems), statusWarn, colorize))
				rows := make([][]string, 0, len(problems))
				for _, p := range problems {
					rows = append(rows, []string{p.Kind, p.Record.Filename, p.Detail})
				}
				printTable(out, "Problems", []string{"Kind", "Filename", "Detail"}, rows)
			}); err != nil {
				return err
			}
			if len(problems) > 0 {
				return faults.Wrap(faults.ErrValidation, "store", "check", fmt.Sprintf("%d problems found", len(problems)), nil)
			}
			return nil
		},
	}
}

type importSummary struct {
	Source string `json:"source"`
	DryRun bool   `json:"dry_run"`
	refstore.ImportResult
}

func newStoreImportCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <legacy.json>",
		Short: "Convert a flat legacy references file into the store",
		Long: "Reads the legacy array of {author, title, year, publisher, filename,\n" +
			"file_hash, original_filename} objects. Missing hashes are computed from\n" +
			"the reference tree and entries without a file are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			summary := importSummary{Source: source, DryRun: dryRun}
			err = ctx.withLock(func(cfg *config.Config) error {
				current, err := refstore.Load(cfg.Paths.StorePath)
				if err != nil {
					return err
				}
				if current.Len() > 0 && !force {
					return faults.Wrap(faults.ErrConflict, "store", "import",
						fmt.Sprintf("store already holds %d records (use --force to replace it)", current.Len()), nil)
				}
				summary.ImportResult, err = refstore.ImportLegacyFile(source, cfg.Paths.ReferenceDir)
				if err != nil {
					return err
				}
				if dryRun {
					return nil
				}
				if cfg.Backup.Enabled {
					if _, _, err := backupsFor(cfg).Create(cfg.Paths.StorePath); err != nil {
						return err
					}
				}
				if err := refstore.New(cfg.Paths.StorePath, summary.Records).Save(); err != nil {
					return err
				}
				ctx.afterStoreReplaced(cmd.Context(), cfg, summary.Records, journal.Event{
					Operation: journal.OpImport,
					Filename:  source,
					Detail:    fmt.Sprintf("imported %d records, %d skipped", summary.Imported, len(summary.Skipped)),
				})
				return nil
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, summary, func(out io.Writer, colorize bool) {
				title := "Import"
				if dryRun {
					title += " (dry run)"
				}
				printSection(out, title, colorize)
				fmt.Fprintln(out, renderStatusLine("Imported", statusOK, fmt.Sprintf("%d", summary.Imported), colorize))
				fmt.Fprintln(out, renderStatusLine("Hashes computed", statusInfo, fmt.Sprintf("%d", summary.HashesFilled), colorize))
				fmt.Fprintln(out, countLine("Skipped", len(summary.Skipped), statusWarn, colorize))
				rows := make([][]string, 0, len(summary.Skipped))
				for _, s := range summary.Skipped {
					rows = append(rows, []string{s.Filename, s.Reason})
				}
				printTable(out, "Skipped", []string{"Filename", "Reason"}, rows)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace a non-empty store")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the conversion without writing the store")
	return cmd
}

// afterStoreReplaced regenerates derived output and journals event once the
// whole store was rewritten. Both are best effort.
func (c *commandContext) afterStoreReplaced(ctx context.Context, cfg *config.Config, records []refstore.Record, event journal.Event) {
	logger := c.log()
	if err := bibliography.Write(cfg.Paths.BibliographyPath, records); err != nil {
		logging.WarnWithContext(logger, "bibliography not regenerated", "bibliography_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run bibkeep bibliography"))
	}
	recorder := c.recorder()
	if recorder == nil {
		return
	}
	event.RunID = newRunID()
	if err := recorder.Record(ctx, event); err != nil {
		logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history is missing this run"))
	}
}

func newStoreBackupsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List store snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshots, err := backupsFor(cfg).List()
			if err != nil {
				return err
			}
			if snapshots == nil {
				snapshots = []refstore.Snapshot{}
			}
			return ctx.emit(cmd, snapshots, func(out io.Writer, colorize bool) {
				if len(snapshots) == 0 {
					fmt.Fprintln(out, "No backups")
					return
				}
				rows := make([][]string, 0, len(snapshots))
				for _, s := range snapshots {
					rows = append(rows, []string{s.Name, s.Created.Local().Format(time.DateTime), fmt.Sprintf("%d", s.Size)})
				}
				fmt.Fprintln(out, renderTable([]string{"Name", "Created", "Bytes"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
			})
		},
	}
}

func newStoreRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the store with a snapshot",
		Long:  "The current store is snapshotted first, so a restore can itself be undone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := struct {
				Restored string            `json:"restored"`
				Previous refstore.Snapshot `json:"previous"`
			}{Restored: args[0]}
			err := ctx.withLock(func(cfg *config.Config) error {
				var err error
				result.Previous, err = backupsFor(cfg).Restore(args[0], cfg.Paths.StorePath)
				if err != nil {
					return err
				}
				store, err := refstore.Load(cfg.Paths.StorePath)
				if err != nil {
					return err
				}
				ctx.afterStoreReplaced(cmd.Context(), cfg, store.Records(), journal.Event{
					Operation: journal.OpRestore,
					Filename:  args[0],
					Detail:    fmt.Sprintf("restored %d records", store.Len()),
				})
				return nil
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, result, func(out io.Writer, colorize bool) {
				fmt.Fprintf(out, "Restored store from %s\n", result.Restored)
				if result.Previous.Name != "" {
					fmt.Fprintf(out, "Previous store saved as %s\n", result.Previous.Name)
				}
				fmt.Fprintln(out, "Run bibkeep verify to compare it with the files on disk.")
			})
		},
	}
}
