package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"bibkeep/internal/bibliography"
	"bibkeep/internal/config"
	"bibkeep/internal/faults"
	"bibkeep/internal/journal"
	"bibkeep/internal/normalize"
	"bibkeep/internal/refstore"
	"bibkeep/internal/review"
)

func newBibliographyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bibliography",
		Short: "Regenerate the markdown bibliography from the store",
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
			if err := bibliography.Write(cfg.Paths.BibliographyPath, store.Records()); err != nil {
				return err
			}
			result := struct {
				Path    string `json:"path"`
				Records int    `json:"records"`
			}{cfg.Paths.BibliographyPath, countStatus(store.Records(), refstore.StatusReference)}
			return ctx.emit(cmd, result, func(out io.Writer, colorize bool) {
				fmt.Fprintf(out, "Wrote %d references to %s\n", result.Records, result.Path)
			})
		},
	}
}

func countStatus(records []refstore.Record, status refstore.Status) int {
	n := 0
	for _, record := range records {
		if record.Status == status {
			n++
		}
	}
	return n
}

type proposalSummary struct {
	Category review.Category `json:"category"`
	State    review.State    `json:"state,omitempty"`
	Entries  int             `json:"entries"`
	Decided  int             `json:"decided"`
	Error    string          `json:"error,omitempty"`
}

type statusSummary struct {
	StorePath  string            `json:"store_path"`
	Records    int               `json:"records"`
	ByStatus   map[string]int    `json:"by_status"`
	Problems   map[string]int    `json:"problems"`
	InboxFiles int               `json:"inbox_files"`
	Backups    int               `json:"backups"`
	Proposals  []proposalSummary `json:"proposals"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarise the store, inbox and open proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			summary, err := collectStatus(cfg)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, summary, func(out io.Writer, colorize bool) {
				renderStatus(out, summary, colorize)
			})
		},
	}
}

func collectStatus(cfg *config.Config) (statusSummary, error) {
	store, err := refstore.Load(cfg.Paths.StorePath)
	if err != nil {
		return statusSummary{}, err
	}
	summary := statusSummary{
		StorePath: cfg.Paths.StorePath,
		Records:   store.Len(),
		ByStatus:  make(map[string]int),
		Problems:  refstore.CountByKind(store.Check(cfg.Ingest.MaxFilenameLength)),
	}
	for _, record := range store.Records() {
		summary.ByStatus[string(record.Status)]++
	}

	entries, err := os.ReadDir(cfg.Paths.InboxDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return summary, faults.Wrap(faults.ErrIO, "status", "scan inbox", cfg.Paths.InboxDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			summary.InboxFiles++
		}
	}

	if cfg.Backup.Enabled {
		snapshots, err := refstore.Backups{Dir: cfg.Backup.Dir, Keep: cfg.Backup.Keep}.List()
		if err != nil {
			return summary, err
		}
		summary.Backups = len(snapshots)
	}

	for _, category := range review.Categories() {
		p, err := review.LoadProposal(cfg.ProposalPath(string(category)))
		if err != nil {
			if errors.Is(err, faults.ErrNotFound) {
				continue
			}
			summary.Proposals = append(summary.Proposals, proposalSummary{Category: category, Error: err.Error()})
			continue
		}
		ps := proposalSummary{Category: category, State: p.State, Entries: len(p.Entries)}
		for _, entry := range p.Entries {
			if entry.Decision != review.DecisionNone && entry.State != review.StateApplied {
				ps.Decided++
			}
		}
		summary.Proposals = append(summary.Proposals, ps)
	}
	return summary, nil
}

func renderStatus(out io.Writer, s statusSummary, colorize bool) {
	printSection(out, "Library", colorize)
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, s.StorePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d (%d reference, %d quarantine, %d todo)",
		s.Records, s.ByStatus[string(refstore.StatusReference)], s.ByStatus[string(refstore.StatusQuarantine)],
		s.ByStatus[string(refstore.StatusTodo)]), colorize))
	fmt.Fprintln(out, countLine("Inbox files", s.InboxFiles, statusInfo, colorize))
	fmt.Fprintln(out, renderStatusLine("Backups", statusInfo, fmt.Sprintf("%d", s.Backups), colorize))

	problems := 0
	for _, n := range s.Problems {
		problems += n
	}
	fmt.Fprintln(out, countLine("Store problems", problems, statusWarn, colorize))
	var problemRows [][]string
	for _, kind := range refstore.Kinds(s.Problems) {
		problemRows = append(problemRows, []string{kind, fmt.Sprintf("%d", s.Problems[kind])})
	}
	printTable(out, "Store problems", []string{"Kind", "Count"}, problemRows, alignLeft, alignRight)

	var rows [][]string
	for _, p := range s.Proposals {
		if p.Error != "" {
			rows = append(rows, []string{string(p.Category), "unreadable", "", "", p.Error})
			continue
		}
		rows = append(rows, []string{string(p.Category), string(p.State), fmt.Sprintf("%d", p.Entries), fmt.Sprintf("%d", p.Decided), ""})
	}
	printTable(out, "Proposals", []string{"Category", "State", "Entries", "Decided", "Note"}, rows,
		alignLeft, alignLeft, alignRight, alignRight, alignLeft)
}

type searchHit struct {
	Score    int             `json:"score"`
	Filename string          `json:"filename"`
	Status   refstore.Status `json:"status"`
	Citation string          `json:"citation"`
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var all bool

	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Fuzzy-search records by author and title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := refstore.Load(cfg.Paths.StorePath)
			if err != nil {
				return err
			}
			hits := searchRecords(store.Records(), strings.Join(args, " "), limit, all)
			return ctx.emit(cmd, hits, func(out io.Writer, colorize bool) {
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches")
					return
				}
				rows := make([][]string, 0, len(hits))
				for _, hit := range hits {
					rows = append(rows, []string{fmt.Sprintf("%d", hit.Score), hit.Filename, hit.Citation})
				}
				fmt.Fprintln(out, renderTable([]string{"Score", "Filename", "Reference"}, rows, []columnAlignment{alignRight}))
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum matches to print")
	cmd.Flags().BoolVar(&all, "all", false, "Include quarantined and todo records")
	return cmd
}

// searchRecords ranks records whose "authors title" string fuzzy-matches
// pattern.
func searchRecords(records []refstore.Record, pattern string, limit int, all bool) []searchHit {
	var pool []refstore.Record
	for _, record := range records {
		if all || record.Status == refstore.StatusReference {
			pool = append(pool, record)
		}
	}
	haystack := make([]string, len(pool))
	for i, record := range pool {
		haystack[i] = strings.Join(record.Authors, " ") + " " + record.Title
	}
	matches := fuzzy.Find(pattern, haystack)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	hits := make([]searchHit, 0, len(matches))
	for _, match := range matches {
		record := pool[match.Index]
		hits = append(hits, searchHit{
			Score:    match.Score,
			Filename: record.Filename,
			Status:   record.Status,
			Citation: normalize.HarvardReference(record.Citation()),
		})
	}
	return hits
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var filter journal.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent journal events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return faults.Wrap(faults.ErrConfiguration, "history", "", "journal is disabled in the configuration", nil)
			}
			events, err := listEvents(cmd.Context(), ctx, filter)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, events, func(out io.Writer, colorize bool) {
				if len(events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{
						e.Time.Local().Format("2006-01-02 15:04:05"),
						e.Operation,
						e.Category,
						e.Filename,
						e.Detail,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Operation", "Category", "Filename", "Detail"}, rows, nil))
			})
		},
	}

	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Maximum events to list")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only events from this run id")
	cmd.Flags().StringVar(&filter.ContentHash, "hash", "", "Only events for this content hash")
	cmd.Flags().StringVar(&filter.Operation, "op", "", "Only events with this operation")
	return cmd
}

func listEvents(ctx context.Context, c *commandContext, filter journal.Filter) ([]journal.Event, error) {
	j, err := c.openJournal()
	if err != nil {
		return nil, err
	}
	return j.List(ctx, filter)
}
