package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"bibkeep/internal/config"
	"bibkeep/internal/review"
)

func categoryNames() []string {
	names := make([]string, 0, len(review.Categories()))
	for _, category := range review.Categories() {
		names = append(names, string(category))
	}
	return names
}

func categoryArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return fmt.Errorf("%w (categories: %s)", err, strings.Join(categoryNames(), ", "))
	}
	return nil
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:       "detect <category>",
		Short:     "Write a review proposal for one problem category",
		Long:      "Categories: " + strings.Join(categoryNames(), ", "),
		Args:      categoryArg,
		ValidArgs: categoryNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := review.ParseCategory(args[0])
			if err != nil {
				return err
			}
			var result review.DetectResult
			err = ctx.withLock(func(cfg *config.Config) error {
				engine, err := review.NewEngine(cfg, nil, ctx.log())
				if err != nil {
					return err
				}
				result, err = engine.Detect(cmd.Context(), category, review.DetectOptions{Force: force, DryRun: dryRun})
				return err
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, result, func(out io.Writer, colorize bool) {
				renderDetectResult(out, result, colorize)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace a proposal that still carries unapplied decisions")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the findings without writing the proposal")
	return cmd
}

func renderDetectResult(out io.Writer, result review.DetectResult, colorize bool) {
	p := result.Proposal
	printSection(out, "Detect "+string(p.Category), colorize)
	fmt.Fprintln(out, countLine("Entries", len(p.Entries), statusWarn, colorize))
	switch {
	case result.Unchanged:
		fmt.Fprintln(out, renderStatusLine("Proposal", statusInfo, "unchanged "+result.Path, colorize))
	case result.Written:
		fmt.Fprintln(out, renderStatusLine("Proposal", statusOK, "written "+result.Path, colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Proposal", statusInfo, "not written (dry run)", colorize))
	}

	rows := make([][]string, 0, len(p.Entries))
	for _, entry := range p.Entries {
		rows = append(rows, []string{entry.Record.Filename, entry.Snapshot.Title, strings.Join(entry.Issue.Reasons, "; ")})
	}
	printTable(out, "Findings", []string{"Filename", "Title", "Reasons"}, rows)
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:       "apply <category>",
		Short:     "Execute the decided entries of a review proposal",
		Long:      "Categories: " + strings.Join(categoryNames(), ", "),
		Args:      categoryArg,
		ValidArgs: categoryNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := review.ParseCategory(args[0])
			if err != nil {
				return err
			}
			var report review.ApplyReport
			err = ctx.withLock(func(cfg *config.Config) error {
				engine, err := review.NewEngine(cfg, ctx.recorder(), ctx.log())
				if err != nil {
					return err
				}
				report, err = engine.Apply(cmd.Context(), category, review.ApplyOptions{DryRun: dryRun})
				return err
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, report, func(out io.Writer, colorize bool) {
				renderApplyReport(out, report, colorize)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and report without changing anything")
	return cmd
}

func renderApplyReport(out io.Writer, report review.ApplyReport, colorize bool) {
	title := "Apply " + string(report.Category)
	if report.DryRun {
		title += " (dry run)"
	}
	printSection(out, title, colorize)
	fmt.Fprintln(out, renderStatusLine("Applied", statusOK, fmt.Sprintf("%d", report.Applied), colorize))
	fmt.Fprintln(out, renderStatusLine("Already applied", statusInfo, fmt.Sprintf("%d", report.AlreadyApplied), colorize))
	fmt.Fprintln(out, renderStatusLine("Undecided", statusInfo, fmt.Sprintf("%d", report.Pending), colorize))
	fmt.Fprintln(out, countLine("Rejected", report.Rejected, statusWarn, colorize))

	var rows [][]string
	for _, outcome := range report.Outcomes {
		if outcome.State == review.StateProposed {
			continue
		}
		filename := outcome.Record.Filename
		if outcome.Filename != "" && outcome.Filename != filename {
			filename += " -> " + outcome.Filename
		}
		rows = append(rows, []string{filename, string(outcome.Decision), string(outcome.State), outcome.Note})
	}
	printTable(out, "Entries", []string{"Record", "Decision", "State", "Note"}, rows)
}
