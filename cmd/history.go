package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/ledger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := ledger.Open(c.LedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
			return nil
		}
		tw := table.NewWriter()
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Started", "Input", "Provider", "Model", "Rows", "Charts", "Failed stages", "Elapsed", "Run"})
		for _, r := range runs {
			tw.AppendRow(table.Row{
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				filepath.Base(r.Input),
				r.Provider,
				r.Model,
				fmt.Sprintf("%d→%d", r.RowsIn, r.RowsOut),
				fmt.Sprintf("%d/%d", r.Charts, r.Charts+r.ChartFailures),
				r.Failed(),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				r.ID[:min(8, len(r.ID))],
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
