package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/clean"
	"github.com/KaramelBytes/datacrew-cli/internal/pipeline"
)

var (
	cleanLoad   loadFlags
	cleanOutput string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Run only the deterministic cleaner and write the cleaned CSV",
	Long: `Removes exact duplicate rows, fills missing numeric cells with the column mean
and missing categorical cells with the most frequent value ("Unknown" when a
column has no values), then writes the result as CSV. No provider is called.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := cleanLoad.options()
		if err != nil {
			return err
		}
		t, err := analysis.Load(args[0], opt)
		if err != nil {
			return err
		}
		cleaned, log := clean.Clean(t)
		out := cleanOutput
		if out == "" {
			out = pipeline.DefaultCleanedPath
			if cfg != nil && cfg.CleanedPath != "" {
				out = cfg.CleanedPath
			}
		}
		if err := clean.Persist(out, cleaned); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), log.Text())
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleaned dataset written to %s\n", out)
		return nil
	},
}

func init() {
	cleanLoad.register(cleanCmd)
	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "output CSV path (default: cleaned_path from config)")
	rootCmd.AddCommand(cleanCmd)
}
