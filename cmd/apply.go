package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/reconcile"
	"github.com/sells-group/billing-sync/internal/report"
)

var (
	applyDryRun bool
	applyReport string
	applyUser   string
)

var applyCmd = &cobra.Command{
	Use:   "apply <tracker.xlsx>",
	Short: "Apply the tracker workbook to the billing database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("apply"); err != nil {
			return err
		}
		ctx := cmd.Context()

		data, name, err := readWorkbook(args[0])
		if err != nil {
			return err
		}
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := newService(pool).Apply(ctx, data, reconcile.ApplyOptions{
			DryRun:     applyDryRun,
			UploadedBy: applyUser,
			SourceFile: name,
		})
		if err != nil {
			return err
		}

		if applyReport != "" {
			if err := writeReport(applyReport, res); err != nil {
				return err
			}
			zap.L().Info("apply report written", zap.String("path", applyReport))
		}
		return render(os.Stdout, outputFormat, res, func(w io.Writer) { formatApply(w, res) })
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "run every write in a transaction and roll it back")
	applyCmd.Flags().StringVar(&applyReport, "report", "", "write an xlsx audit report to this path")
	applyCmd.Flags().StringVar(&applyUser, "user", os.Getenv("USER"), "recorded as the uploader in the run log")
	rootCmd.AddCommand(applyCmd)
}

func writeReport(path string, res *model.ApplyResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report %s", path)
	}
	if err := report.WriteApplyReport(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "close report")
}

func formatApply(out io.Writer, res *model.ApplyResult) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.DryRun {
		_, _ = fmt.Fprintln(w, "DRY RUN: no changes were kept")
	} else if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	}
	_, _ = fmt.Fprintf(w, "Rows processed:\t%d\n", s.RowsProcessed)
	_, _ = fmt.Fprintf(w, "Projects created / updated:\t%d / %d\n", s.ProjectsCreated, s.ProjectsUpdated)
	_, _ = fmt.Fprintf(w, "Financials updated:\t%d\n", s.FinancialsUpdated)
	_, _ = fmt.Fprintf(w, "Engagements created / updated:\t%d / %d\n", s.EngagementsCreated, s.EngagementsUpdated)
	_, _ = fmt.Fprintf(w, "Fee arrangements created:\t%d\n", s.FeeArrangementsCreated)
	_, _ = fmt.Fprintf(w, "Milestones created / updated / completed:\t%d / %d / %d\n", s.MilestonesCreated, s.MilestonesUpdated, s.MilestonesCompleted)
	_, _ = fmt.Fprintf(w, "Finance comments:\t%d\n", s.FinanceComments)
	_, _ = fmt.Fprintf(w, "Staffing linked:\t%d\n", s.StaffingLinked)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", len(res.Skipped))
	_, _ = fmt.Fprintf(w, "Unlinked:\t%d\n", len(res.Unlinked))
	_, _ = fmt.Fprintf(w, "Failed rows:\t%d\n", len(res.FailedRows))
	for _, f := range res.FailedRows {
		_, _ = fmt.Fprintf(w, "  row %d\t%s\t%s\n", f.RowIndex, f.CMNo, f.Error)
	}
	_ = w.Flush()
}
