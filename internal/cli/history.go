package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/coloop/internal/journal"
	"github.com/me/coloop/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		journalPath string
		filter      string
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled runs, or the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("journal") {
				cfg.JournalPath = journalPath
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured (set --journal or journal: in the config file)")
			}

			j, err := journal.NewSQLiteJournal(cfg.JournalPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()
			if err := j.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate journal: %w", err)
			}

			opts := model.ListOptions{Limit: limit, Offset: offset, Status: filter}
			opts.Clamp()
			if len(args) == 0 {
				return printRuns(cmd.Context(), cmd.OutOrStdout(), j, opts)
			}
			if filter != "" {
				if _, ok := model.ParseStepStatus(filter); !ok {
					return fmt.Errorf("unknown step status %q", filter)
				}
			}
			return printSteps(cmd.Context(), cmd.OutOrStdout(), j, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (overrides config)")
	cmd.Flags().StringVar(&filter, "status", "", "Filter: run state for runs, step status for steps")
	cmd.Flags().IntVar(&limit, "limit", model.DefaultPageSize, "Maximum rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")

	return cmd
}

func printRuns(ctx context.Context, w io.Writer, j journal.Journal, opts model.ListOptions) error {
	opts.Status = strings.ToUpper(opts.Status)
	runs, total, err := j.ListRuns(ctx, opts)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	fmt.Fprintf(w, "%-14s  %-10s  %8s  %8s  %-16s  %s\n", "RUN", "STATE", "STEPS", "FAILURES", "STARTED", "SCRIPT")
	for _, r := range runs {
		fmt.Fprintf(w, "%-14s  %-10s  %8s  %8s  %-16s  %s\n",
			r.RunID, r.State, humanize.Comma(int64(r.Steps)), humanize.Comma(int64(r.Failures)),
			humanize.Time(r.StartedAt), r.Script)
	}
	printMore(w, opts.Page(total), len(runs))
	return nil
}

func printSteps(ctx context.Context, w io.Writer, j journal.Journal, runID string, opts model.ListOptions) error {
	run, err := j.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return model.NewNotFoundError("run", runID)
	}

	fmt.Fprintf(w, "Run:      %s\n", run.RunID)
	fmt.Fprintf(w, "Script:   %s\n", run.Script)
	fmt.Fprintf(w, "State:    %s\n", run.State)
	fmt.Fprintf(w, "Started:  %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), humanize.Time(run.StartedAt))
	if run.EndedAt != nil {
		fmt.Fprintf(w, "Duration: %s\n", run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	fmt.Fprintf(w, "Steps:    %s (%s failed)\n\n", humanize.Comma(int64(run.Steps)), humanize.Comma(int64(run.Failures)))

	steps, total, err := j.ListSteps(ctx, runID, opts)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	if len(steps) == 0 {
		fmt.Fprintln(w, "No steps recorded.")
		return nil
	}

	fmt.Fprintf(w, "%6s  %-12s  %-20s  %10s  %s\n", "SEQ", "STATUS", "THREAD", "DURATION", "DETAIL")
	for _, st := range steps {
		thread := st.ThreadName
		if thread == "" {
			thread = st.ThreadID
		}
		detail := st.Result
		if st.Message != "" {
			detail = firstLine(st.Message)
		}
		fmt.Fprintf(w, "%6d  %-12s  %-20s  %10s  %s\n", st.Seq, st.StatusName, thread, st.Duration.Round(time.Microsecond), detail)
	}
	printMore(w, opts.Page(total), len(steps))
	return nil
}

// printMore notes a partial listing and where the next page starts.
func printMore(w io.Writer, pg *model.Page, shown int) {
	if shown == pg.Total {
		return
	}
	fmt.Fprintf(w, "\n(rows %d-%d of %d", pg.Offset+1, pg.Offset+shown, pg.Total)
	if pg.NextOffset != nil {
		fmt.Fprintf(w, "; next page: --offset %d", *pg.NextOffset)
	}
	fmt.Fprintln(w, ")")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
