package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/reconcile"
)

var previewValidate bool

var previewCmd = &cobra.Command{
	Use:   "preview <tracker.xlsx>",
	Short: "Show what an apply would change without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("validate") {
			cfg.Sync.Validate = previewValidate
		}
		if err := cfg.Validate("preview"); err != nil {
			return err
		}
		ctx := cmd.Context()

		data, _, err := readWorkbook(args[0])
		if err != nil {
			return err
		}
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := newService(pool).Preview(ctx, data, reconcile.PreviewOptions{Validate: cfg.Sync.Validate})
		if err != nil {
			return err
		}
		return render(os.Stdout, outputFormat, res, func(w io.Writer) { formatPreview(w, res) })
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewValidate, "validate", false, "ask the LLM validator to review parsed fee text")
	rootCmd.AddCommand(previewCmd)
}

func formatPreview(out io.Writer, res *model.PreviewResult) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", s.TotalRows)
	_, _ = fmt.Fprintf(w, "Matched C/M:\t%d\n", s.MatchedCMNumbers)
	_, _ = fmt.Fprintf(w, "New C/M:\t%d\n", s.NewCMNumbers)
	_, _ = fmt.Fprintf(w, "Skipped C/M:\t%d\n", s.SkippedCMNumbers)
	_, _ = fmt.Fprintf(w, "Milestones to create:\t%d\n", s.MilestonesToCreate)
	_, _ = fmt.Fprintf(w, "Milestones to complete:\t%d\n", s.MilestonesToComplete)
	_, _ = fmt.Fprintf(w, "Financials to update:\t%d\n", s.FinancialsToUpdate)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "ROW\tC/M\tSTATUS\tPROJECT\tCHANGES")
	for _, c := range res.Changes {
		changes := ""
		for i, fc := range c.FinancialChanges {
			if i > 0 {
				changes += "; "
			}
			changes += fmt.Sprintf("%s %s -> %s", fc.Field, orDash(fc.OldValue), orDash(fc.NewValue))
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.RowIndex, c.CMNo, c.Status, truncate(c.ProjectName, 30), changes)
	}

	if v := res.Validation; v != nil {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "Validated:\t%t (%d checked, %d unchecked)\n", v.Validated, v.Checked, v.Unchecked)
		for _, is := range v.Issues {
			_, _ = fmt.Fprintf(w, "  [%s]\t%s\t%s\t%s\n", is.Severity, is.CMNo, is.EngagementTitle, is.Description)
		}
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
