package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/datacrew-cli/internal/config"
	"github.com/KaramelBytes/datacrew-cli/internal/logging"
)

var (
	// Global flags
	cfgFile  string
	debug    bool
	logLevel string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "datacrew",
	Short: "datacrew: clean a dataset, ask a language model about its schema, chart it and report",
	Long: `datacrew runs one tabular file through a fixed analysis pipeline: a deterministic
cleaning pass, a sequence of language-model stages (validate, relate, optional
codegen, insight) that only see the column schema, a battery of charts and a
consolidated HTML/Markdown report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.datacrew/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	// A .env in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to read .env: %v\n", err)
	}

	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	l, err := logging.New(cfg.LogLevel, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		return
	}
	logger = l
}

// requireConfig returns the loaded config or an error explaining why none is
// available.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	return cfg, nil
}

// newRuntime builds the language-model runtime for the configured provider.
func newRuntime(c *cfgpkg.Global) (ai.Runtime, error) {
	p := cfgpkg.NormalizeProvider(c.Provider)
	timeout := time.Duration(c.HTTPTimeoutSec) * time.Second
	if p == ai.ProviderOllama && c.OllamaTimeoutSec > 0 {
		timeout = time.Duration(c.OllamaTimeoutSec) * time.Second
	}
	return ai.NewRuntime(p, ai.RuntimeConfig{
		HTTPTimeout: timeout,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKeyFor(p),
		Host:        c.OllamaHost,
	})
}
