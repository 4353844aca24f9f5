package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/datacrew-cli/internal/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect provider presets, models and pricing",
	Example: `  datacrew models show
  datacrew models show --provider groq
  datacrew models show --json`,
}

var (
	modelsProvider string
	modelsJSON     bool
)

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show provider presets and known models",
	RunE: func(cmd *cobra.Command, args []string) error {
		var presets []ai.Preset
		if modelsProvider != "" {
			p, ok := ai.LookupPreset(cfgpkg.NormalizeProvider(modelsProvider))
			if !ok {
				return fmt.Errorf("unknown provider %q (use one of: %s)", modelsProvider, strings.Join(ai.RegisteredRuntimes(), ", "))
			}
			presets = []ai.Preset{p}
		} else {
			presets = ai.Presets()
		}
		out := cmd.OutOrStdout()
		if modelsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(presets)
		}
		tw := table.NewWriter()
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Provider", "Model", "Default", "Context", "$/1K in", "$/1K out", "Credential"})
		for _, p := range presets {
			for _, m := range p.Models {
				def := ""
				if m == p.DefaultModel {
					def = "✓"
				}
				info, _ := ai.LookupModel(m)
				tw.AppendRow(table.Row{p.Provider, m, def, contextOrDash(info.ContextTokens), price(info.InputPerK), price(info.OutputPerK), credential(p.KeyEnv)})
			}
			tw.AppendSeparator()
		}
		fmt.Fprintln(out, tw.Render())
		return nil
	},
}

func contextOrDash(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func price(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.5f", p)
}

func credential(env string) string {
	if env == "" {
		return "none (local)"
	}
	return env
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsShowCmd.Flags().StringVar(&modelsProvider, "provider", "", "only show this provider")
	modelsShowCmd.Flags().BoolVar(&modelsJSON, "json", false, "print presets as JSON")
}
