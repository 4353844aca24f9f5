package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

var (
	profLoad       loadFlags
	profOutput     string
	profSampleRows int
	profCorr       bool
	profOutliers   bool
	profOutlierThr float64
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Print a Markdown summary of a dataset: schema, statistics, correlations, outliers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := profLoad.options()
		if err != nil {
			return err
		}
		t, err := analysis.Load(args[0], opt)
		if err != nil {
			return err
		}
		popt := analysis.DefaultProfileOptions()
		if cmd.Flags().Changed("sample-rows") {
			popt.SampleRows = profSampleRows
		}
		if cmd.Flags().Changed("corr") {
			popt.Correlations = profCorr
		}
		if cmd.Flags().Changed("outliers") {
			popt.Outliers = profOutliers
		}
		if profOutlierThr > 0 {
			popt.OutlierThreshold = profOutlierThr
		}
		md := analysis.Profile(t, popt).Markdown()
		if profOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}
		if err := utils.SafeWriteFile(profOutput, []byte(md)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote summary to %s\n", profOutput)
		return nil
	},
}

func init() {
	profLoad.register(profileCmd)
	profileCmd.Flags().StringVarP(&profOutput, "output", "o", "", "write the summary to a file instead of stdout")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to include")
	profileCmd.Flags().BoolVar(&profCorr, "corr", true, "include correlations among numeric columns")
	profileCmd.Flags().BoolVar(&profOutliers, "outliers", true, "count robust z-score outliers")
	profileCmd.Flags().Float64Var(&profOutlierThr, "outlier-threshold", 0, "robust z-score threshold (default 3.5)")
	rootCmd.AddCommand(profileCmd)
}
