package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bibkeep/internal/faults"
	"bibkeep/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var deep bool
	var workers int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the store with the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := verify.New(cfg, ctx.log()).Run(cmd.Context(), verify.Options{Deep: deep, Workers: workers})
			if err != nil {
				return err
			}
			if err := ctx.emit(cmd, report, func(out io.Writer, colorize bool) {
				renderVerifyReport(out, report, colorize)
			}); err != nil {
				return err
			}
			if !report.Clean() {
				return faults.Wrap(faults.ErrConflict, "verify", "", fmt.Sprintf("%d inconsistencies found", report.Problems()), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "Rehash every recorded file")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent hashes in deep mode (default: CPU count)")
	return cmd
}

func renderVerifyReport(out io.Writer, report verify.Report, colorize bool) {
	printSection(out, "Verify", colorize)
	fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d", report.Records), colorize))
	fmt.Fprintln(out, renderStatusLine("Reference files", statusInfo, fmt.Sprintf("%d", report.Files), colorize))
	fmt.Fprintln(out, countLine("Missing files", len(report.Missing), statusError, colorize))
	fmt.Fprintln(out, countLine("Orphan files", len(report.Orphans), statusWarn, colorize))
	fmt.Fprintln(out, countLine("Quarantine missing", len(report.QuarantineMissing), statusError, colorize))
	if report.Deep {
		fmt.Fprintln(out, countLine("Hash mismatches", len(report.HashMismatches), statusError, colorize))
	}

	var rows [][]string
	for _, ref := range report.Missing {
		rows = append(rows, []string{"missing", ref.Filename, shortHash(ref.ContentHash)})
	}
	for _, name := range report.Orphans {
		rows = append(rows, []string{"orphan", name, ""})
	}
	for _, ref := range report.QuarantineMissing {
		rows = append(rows, []string{"quarantine missing", ref.Filename, shortHash(ref.ContentHash)})
	}
	for _, m := range report.HashMismatches {
		rows = append(rows, []string{"hash mismatch", m.Record.Filename, shortHash(m.Record.ContentHash) + " != " + shortHash(m.Actual)})
	}
	printTable(out, "Problems", []string{"Kind", "Filename", "Hash"}, rows)
}
