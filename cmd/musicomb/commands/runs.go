package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alitavanaali/MusiComb/pkg/cli"
	"github.com/alitavanaali/MusiComb/pkg/runs"
)

var (
	runsQuery string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and show recorded runs",
	Long: `Every arrange run, including infeasible and timed out ones, is
recorded in the run index of the current context.

Examples:
  musicomb runs list --limit 10
  musicomb runs list --query '.outcome == "infeasible"'
  musicomb runs list --query '.bpm >= 120 and .present > 20' --json
  musicomb runs get 1f0c...`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *runs.Filter
		if runsQuery != "" {
			var err error
			if filter, err = runs.NewFilter(runsQuery); err != nil {
				return err
			}
		}
		return withIndex(func(index *runs.Index) error {
			recs, err := index.List(cmd.Context(), runs.ListOptions{Limit: runsLimit, Filter: filter})
			if err != nil {
				return err
			}
			if len(recs) == 0 && !outputJSON {
				cli.PrintInfo("No runs recorded")
				return nil
			}
			return printReport(cli.RunsReport(cli.NewStyles(cli.DefaultTheme), recs), recs)
		})
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(index *runs.Index) error {
			rec, err := index.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return outputResult(rec)
		})
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a run from the index",
	Long:  `Remove a run record. Files already written are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(index *runs.Index) error {
			if err := index.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cli.PrintSuccess("Run %q deleted", args[0])
			return nil
		})
	},
}

func init() {
	runsListCmd.Flags().StringVarP(&runsQuery, "query", "q", "", "jq expression selecting runs")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs, 0 for all")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

// withIndex opens the run index of the current context for fn.
func withIndex(fn func(*runs.Index) error) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	store, err := c.OpenIndex(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(runs.NewIndex(store))
}
