package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/model"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent apply runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := billing.NewSyncRuns(pool).List(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 && outputFormat == "table" {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		return render(os.Stdout, outputFormat, runs, func(w io.Writer) { formatRunsList(w, runs) })
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE\tBY\tSTATUS\tROWS\tFAILED\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			truncate(r.SourceFile, 30),
			r.UploadedBy,
			r.Status,
			r.RowsTotal,
			r.RowsFailed,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
