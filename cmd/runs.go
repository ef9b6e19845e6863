package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/site-density/internal/export"
	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/store"
)

var (
	runsStatus string
	runsLimit  int
	runsCSV    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored analysis runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "runs: list")
		}

		// Summaries only; full rows come from `runs show`.
		for i := range runs {
			if runs[i].Result != nil {
				runs[i].Result = &model.AnalysisResult{
					Summary:  runs[i].Result.Summary,
					Messages: runs[i].Result.Messages,
				}
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one stored run, optionally as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs: get")
		}

		if runsCSV {
			if run.Result == nil {
				return eris.Errorf("runs: run %s has no result", run.ID)
			}
			return export.WriteCSV(os.Stdout, run.Result.Sites)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "max runs to list (default 100)")
	runsShowCmd.Flags().BoolVar(&runsCSV, "csv", false, "print the enriched table as CSV")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
