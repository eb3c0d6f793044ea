package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"clipgif/internal/history"
)

var knownStatuses = []history.Status{
	history.StatusRunning,
	history.StatusCompleted,
	history.StatusAborted,
	history.StatusFailed,
}

type runJSON struct {
	RunID       string    `json:"run_id"`
	Clip        string    `json:"clip,omitempty"`
	Backend     string    `json:"backend"`
	Status      string    `json:"status"`
	StartMs     float64   `json:"start_ms"`
	EndMs       float64   `json:"end_ms"`
	FrameRate   float64   `json:"frame_rate"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Quality     int       `json:"quality"`
	Frames      int       `json:"frames"`
	Bytes       int       `json:"bytes"`
	Output      string    `json:"output,omitempty"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

func toRunJSON(r *history.Run) runJSON {
	return runJSON{
		RunID:       r.RunID,
		Clip:        r.Clip,
		Backend:     r.Backend,
		Status:      string(r.Status),
		StartMs:     r.StartMs,
		EndMs:       r.EndMs,
		FrameRate:   r.FrameRate,
		Width:       r.Width,
		Height:      r.Height,
		Quality:     r.Quality,
		Frames:      r.Frames,
		Bytes:       r.Bytes,
		Output:      r.OutputPath,
		FailureKind: r.FailureKind,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded capture runs",
	}
	list := newHistoryListCommand(ctx)
	historyCmd.RunE = list.RunE
	historyCmd.Flags().AddFlagSet(list.Flags())

	historyCmd.AddCommand(list)
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func (c *commandContext) withHistory(cmd *cobra.Command, fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cmd.Context(), cfg.Paths.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withHistory(cmd, func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit, filter...)
				if err != nil {
					return err
				}
				if asJSON {
					items := make([]runJSON, 0, len(runs))
					for _, r := range runs {
						items = append(items, toRunJSON(r))
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRunTable(runs))

				counts, err := store.Counts(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, summarizeCounts(counts))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show runs with these statuses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a single run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(cmd, func(store *history.Store) error {
				run, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, toRunJSON(run))
				}
				out := cmd.OutOrStdout()
				title := cases.Title(language.English)
				p := message.NewPrinter(language.English)
				lines := [][2]string{
					{"Run", run.RunID},
					{"Clip", run.Clip},
					{"Status", title.String(string(run.Status))},
					{"Backend", run.Backend},
					{"Range", fmt.Sprintf("%.0fms - %.0fms @ %g fps", run.StartMs, run.EndMs, run.FrameRate)},
					{"Size", fmt.Sprintf("%dx%d q%d", run.Width, run.Height, run.Quality)},
					{"Frames", p.Sprintf("%d", run.Frames)},
					{"Output bytes", humanize.IBytes(uint64(max(run.Bytes, 0)))},
					{"Output", run.OutputPath},
					{"Started", run.StartedAt.Local().Format(time.RFC3339)},
				}
				if !run.FinishedAt.IsZero() {
					lines = append(lines, [2]string{"Duration", run.Duration().Round(time.Millisecond).String()})
				}
				if run.Error != "" {
					lines = append(lines, [2]string{"Error", fmt.Sprintf("%s (%s)", run.Error, run.FailureKind)})
				}
				for _, l := range lines {
					if l[1] == "" {
						continue
					}
					fmt.Fprintf(out, "%-14s %s\n", l[0]+":", l[1])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return ctx.withHistory(cmd, func(store *history.Store) error {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				p := message.NewPrinter(language.English)
				fmt.Fprintln(cmd.OutOrStdout(), p.Sprintf("Pruned %d runs", n))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}

func parseStatuses(values []string) ([]history.Status, error) {
	out := make([]history.Status, 0, len(values))
	for _, v := range values {
		status := history.Status(strings.ToLower(strings.TrimSpace(v)))
		if status == "" {
			continue
		}
		if !slices.Contains(knownStatuses, status) {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		out = append(out, status)
	}
	return out, nil
}

func renderRunTable(runs []*history.Run) string {
	title := cases.Title(language.English)
	p := message.NewPrinter(language.English)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		size := ""
		if r.Bytes > 0 {
			size = humanize.IBytes(uint64(r.Bytes))
		}
		rows = append(rows, []string{
			id,
			r.Clip,
			title.String(string(r.Status)),
			p.Sprintf("%d", r.Frames),
			size,
			humanize.Time(r.StartedAt),
			r.OutputPath,
		})
	}
	return renderTable(
		[]string{"Run", "Clip", "Status", "Frames", "Size", "Started", "Output"},
		rows,
		3, 4,
	)
}

func summarizeCounts(counts map[history.Status]int) string {
	p := message.NewPrinter(language.English)
	parts := make([]string, 0, len(knownStatuses))
	total := 0
	for _, status := range knownStatuses {
		n := counts[status]
		total += n
		if n > 0 {
			parts = append(parts, p.Sprintf("%d %s", n, status))
		}
	}
	summary := p.Sprintf("%d runs total", total)
	if len(parts) == 0 {
		return summary
	}
	return summary + ": " + strings.Join(parts, ", ")
}
