package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/clean"
	cfgpkg "github.com/KaramelBytes/datacrew-cli/internal/config"
	"github.com/KaramelBytes/datacrew-cli/internal/ledger"
	"github.com/KaramelBytes/datacrew-cli/internal/pipeline"
	"github.com/KaramelBytes/datacrew-cli/internal/report"
	"github.com/KaramelBytes/datacrew-cli/internal/stage"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

// runFlags are shared by run and run-batch.
type runFlags struct {
	load         loadFlags
	provider     string
	model        string
	outputDir    string
	cleanedPath  string
	objective    string
	codegen      bool
	parallel     bool
	haltOnReject bool
	noLedger     bool
	dryRun       bool
	priorLimit   int
	quiet        bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	f.load.register(cmd)
	cmd.Flags().StringVar(&f.provider, "provider", "", "model provider (overrides config): "+strings.Join(cfgpkg.Providers(), "|"))
	cmd.Flags().StringVar(&f.model, "model", "", "model name (default: provider preset)")
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "directory for charts and reports (overrides config)")
	cmd.Flags().StringVar(&f.cleanedPath, "cleaned", "", "path for the cleaned dataset (overrides config)")
	cmd.Flags().StringVar(&f.objective, "objective", "", "analysis objective passed to every stage")
	cmd.Flags().BoolVar(&f.codegen, "codegen", false, "run the code generation stage and write op.py")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "run validate and relate concurrently")
	cmd.Flags().BoolVar(&f.haltOnReject, "halt-on-reject", false, "skip later stages when the validator rejects the dataset")
	cmd.Flags().BoolVar(&f.noLedger, "no-ledger", false, "do not record the run in the local history")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "load and clean, then print the stage prompts without calling the provider")
	cmd.Flags().IntVar(&f.priorLimit, "prior-limit", 0, "token budget for earlier findings sent to the insight stage (0 = unbounded)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress the summary table")
}

// resolve merges flags over the loaded config and validates the result.
func (f *runFlags) resolve(cmd *cobra.Command, c *cfgpkg.Global) (pipeline.Options, error) {
	fl := cmd.Flags()
	if f.provider != "" {
		c.Provider = cfgpkg.NormalizeProvider(f.provider)
	}
	if f.model != "" {
		c.Model = f.model
	}
	if f.outputDir != "" {
		c.OutputDir = f.outputDir
	}
	if f.cleanedPath != "" {
		c.CleanedPath = f.cleanedPath
	}
	if fl.Changed("codegen") {
		c.Codegen = f.codegen
	}
	if fl.Changed("parallel") {
		c.ParallelStages = f.parallel
	}
	if fl.Changed("halt-on-reject") {
		c.HaltOnReject = f.haltOnReject
	}
	if !f.dryRun {
		if err := c.Validate(); err != nil {
			return pipeline.Options{}, err
		}
	}
	load, err := f.load.options()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Provider:    c.Provider,
		OutputDir:   c.OutputDir,
		CleanedPath: c.CleanedPath,
		Load:        load,
		MetricsFile: c.MetricsFile,
		Stages: stage.Config{
			Model:           ai.ResolveModel(c.Provider, c.Model),
			Temperature:     c.Temperature,
			MaxTokens:       c.MaxTokens,
			Timeout:         time.Duration(c.StageTimeoutSec) * time.Second,
			Retries:         c.StageRetries,
			Parallel:        c.ParallelStages,
			HaltOnReject:    c.HaltOnReject,
			Codegen:         c.Codegen,
			Objective:       f.objective,
			PriorTokenLimit: f.priorLimit,
		},
	}, nil
}

// newRunner wires the runtime and the ledger. The returned close func
// releases the ledger.
func newRunner(c *cfgpkg.Global, opts pipeline.Options, noLedger bool) (*pipeline.Runner, func(), error) {
	rt, err := newRuntime(c)
	if err != nil {
		return nil, nil, err
	}
	var options []pipeline.Option
	closeFn := func() {}
	if !noLedger && c.LedgerPath != "" {
		store, err := ledger.Open(c.LedgerPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: run history disabled: %v\n", err)
		} else {
			options = append(options, pipeline.WithLedger(store))
			closeFn = func() { _ = store.Close() }
		}
	}
	return pipeline.NewRunner(rt, opts, logger, options...), closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Clean a dataset, run the analysis stages, render charts and write the report",
	Example: `  datacrew run data/employees.csv
  datacrew run sales.xlsx --sheet-name Q1 --provider ollama --model llama3
  datacrew run survey.csv --codegen --parallel -o outputs/survey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		opts, err := runOpts.resolve(cmd, c)
		if err != nil {
			return err
		}
		if runOpts.dryRun {
			return dryRun(cmd, args[0], opts)
		}
		runner, closeFn, err := newRunner(c, opts, runOpts.noLedger)
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := signalContext()
		defer cancel()
		b, err := runner.Run(ctx, args[0])
		if err != nil {
			return err
		}
		printRun(cmd, b, runOpts.quiet)
		return nil
	},
}

func printRun(cmd *cobra.Command, b *pipeline.Bundle, quiet bool) {
	out := cmd.OutOrStdout()
	if !quiet {
		report.Summary(out, b.ReportData())
	}
	failed := 0
	var usage ai.Usage
	for _, id := range stage.External() {
		r := b.Stages[id]
		if r.Status == stage.StatusFailed {
			failed++
		}
		usage.PromptTokens += r.Usage.PromptTokens
		usage.CompletionTokens += r.Usage.CompletionTokens
		usage.TotalTokens += r.Usage.TotalTokens
	}
	if usage.TotalTokens > 0 && !quiet {
		if cost, ok := ai.EstimateCostUSD(b.Model, usage.PromptTokens, usage.CompletionTokens); ok {
			fmt.Fprintf(out, "Tokens: %d (≈ $%.4f)\n", usage.TotalTokens, cost)
		} else {
			fmt.Fprintf(out, "Tokens: %d\n", usage.TotalTokens)
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %d stage(s) failed; placeholders were used\n", failed)
	}
	fmt.Fprintf(out, "✓ Cleaned dataset: %s\n", b.CleanedPath)
	for _, p := range b.Reports {
		fmt.Fprintf(out, "✓ Report: %s\n", p)
	}
}

// dryRun prints what each stage would send, with token estimates.
func dryRun(cmd *cobra.Command, input string, opts pipeline.Options) error {
	t, err := analysis.Load(input, opts.Load)
	if err != nil {
		return err
	}
	cleaned, cl := clean.Clean(t)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model: %s (provider %s)\n\n", opts.Stages.Model, opts.Provider)
	fmt.Fprintf(out, "## clean\n%s\n\n", cl.Text())
	req := stage.Request{Schema: cleaned.Schema(), Objective: opts.Stages.Objective, DataPath: opts.CleanedPath}
	for _, id := range stage.External() {
		if id == stage.Codegen && !opts.Stages.Codegen {
			continue
		}
		msgs := stage.Messages(id, req)
		sections := map[string]string{}
		for _, m := range msgs {
			sections[m.Role] = m.Content
		}
		counts := utils.TokenBreakdown(sections)
		roles := make([]string, 0, len(counts))
		for r := range counts {
			roles = append(roles, r)
		}
		sort.Strings(roles)
		var parts []string
		for _, r := range roles {
			parts = append(parts, fmt.Sprintf("%s≈%d", r, counts[r]))
		}
		fmt.Fprintf(out, "## %s (tokens %s)\n%s\n\n", id, strings.Join(parts, " "), msgs[1].Content)
	}
	return nil
}

var batchOpts runFlags

var runBatchCmd = &cobra.Command{
	Use:   "run-batch <files...>",
	Short: "Run the pipeline for several files (globs allowed), one output directory each",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		base, err := batchOpts.resolve(cmd, c)
		if err != nil {
			return err
		}
		if batchOpts.dryRun {
			return fmt.Errorf("--dry-run is only supported by run")
		}
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		var options []pipeline.Option
		if !batchOpts.noLedger && c.LedgerPath != "" {
			if store, err := ledger.Open(c.LedgerPath); err != nil {
				fmt.Fprintf(os.Stderr, "⚠ Warning: run history disabled: %v\n", err)
			} else {
				defer store.Close()
				options = append(options, pipeline.WithLedger(store))
			}
		}

		ctx, cancel := signalContext()
		defer cancel()
		slugs := map[string]int{}
		var failed []string
		for i, path := range files {
			if !batchOpts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] Processing %s...\n", i+1, len(files), filepath.Base(path))
			}
			slug := utils.SlugBase(path)
			slugs[slug]++
			if n := slugs[slug]; n > 1 {
				slug = fmt.Sprintf("%s__%d", slug, n)
			}
			opts := base
			opts.OutputDir = filepath.Join(base.OutputDir, slug)
			opts.CleanedPath = filepath.Join(opts.OutputDir, filepath.Base(base.CleanedPath))
			if opts.MetricsFile != "" {
				opts.MetricsFile = filepath.Join(opts.OutputDir, filepath.Base(base.MetricsFile))
			}
			b, err := pipeline.NewRunner(rt, opts, logger.With(zap.String("batch_item", slug)), options...).Run(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
				failed = append(failed, path)
				continue
			}
			printRun(cmd, b, true)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d file(s) failed", len(failed), len(files))
		}
		return nil
	},
}

// expandInputs resolves globs and literal paths, dropping duplicates.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	runOpts.register(runCmd)
	batchOpts.register(runBatchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runBatchCmd)
}
