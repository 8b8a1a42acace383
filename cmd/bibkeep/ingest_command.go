package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bibkeep/internal/config"
	"bibkeep/internal/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Move new inbox documents into the library",
		Long: "Extracts metadata from every admissible inbox file, derives a canonical\n" +
			"filename and moves the file into the reference tree. Duplicates and name\n" +
			"collisions stay in the inbox and are listed in ingestion_conflicts.json.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report ingest.Report
			err := ctx.withLock(func(cfg *config.Config) error {
				var err error
				report, err = ingest.New(cfg, nil, ctx.recorder(), ctx.log()).Run(cmd.Context(), ingest.Options{DryRun: dryRun})
				return err
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, report, func(out io.Writer, colorize bool) {
				renderIngestReport(out, report, colorize)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would happen without moving files")
	return cmd
}

func renderIngestReport(out io.Writer, report ingest.Report, colorize bool) {
	title := "Ingest"
	if report.DryRun {
		title += " (dry run)"
	}
	printSection(out, title, colorize)
	fmt.Fprintln(out, renderStatusLine("Processed", statusInfo, fmt.Sprintf("%d", report.Processed()), colorize))
	fmt.Fprintln(out, renderStatusLine("Placed", statusOK, fmt.Sprintf("%d", len(report.Placed)), colorize))
	fmt.Fprintln(out, countLine("Conflicts", len(report.Conflicts), statusWarn, colorize))
	fmt.Fprintln(out, countLine("Skipped", len(report.Skipped), statusInfo, colorize))
	fmt.Fprintln(out, countLine("Failed", len(report.Failed), statusError, colorize))
	fmt.Fprintln(out, countLine("Degraded", len(report.Degraded), statusWarn, colorize))

	placed := make([][]string, 0, len(report.Placed))
	for _, p := range report.Placed {
		placed = append(placed, []string{p.Source, p.Record.Filename, shortHash(p.Record.ContentHash)})
	}
	printTable(out, "Placed", []string{"Source", "Filename", "Hash"}, placed)

	conflicts := make([][]string, 0, len(report.Conflicts))
	for _, c := range report.Conflicts {
		conflicts = append(conflicts, []string{c.Source, c.Kind, c.Existing.Filename})
	}
	printTable(out, "Conflicts", []string{"Source", "Kind", "Existing"}, conflicts)

	var problems [][]string
	for _, s := range report.Skipped {
		problems = append(problems, []string{s.Source, "skipped", s.Reason})
	}
	for _, f := range report.Failed {
		problems = append(problems, []string{f.Source, "failed", f.Error})
	}
	for _, d := range report.Degraded {
		problems = append(problems, []string{d.Source, "degraded " + d.Field, d.Detail})
	}
	printTable(out, "Notes", []string{"Source", "Outcome", "Detail"}, problems)

	if len(report.Conflicts) > 0 && !report.DryRun {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Conflicting files were left in the inbox; see %s in the proposal directory.\n", ingest.ConflictsFile)
	}
}
