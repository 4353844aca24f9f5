package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/datacrew-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set datacrew configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if _, err := requireConfig(); err != nil {
			return err
		}
		fmt.Fprintf(out, "provider: %s\n", cfg.Provider)
		fmt.Fprintf(out, "model: %s\n", ai.ResolveModel(cfg.Provider, cfg.Model))
		for _, p := range cfgpkg.Providers() {
			if env, _ := cfgpkg.KeyEnvVar(p); env != "" {
				fmt.Fprintf(out, "%s_api_key: %s\n", p, mask(cfg.APIKeyFor(p)))
			}
		}
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Fprintf(out, "retry_base_delay_ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Fprintf(out, "retry_max_delay_ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		fmt.Fprintf(out, "stage_timeout_sec: %d\n", cfg.StageTimeoutSec)
		fmt.Fprintf(out, "stage_retries: %d\n", cfg.StageRetries)
		fmt.Fprintf(out, "parallel_stages: %t\n", cfg.ParallelStages)
		fmt.Fprintf(out, "halt_on_reject: %t\n", cfg.HaltOnReject)
		fmt.Fprintf(out, "codegen: %t\n", cfg.Codegen)
		fmt.Fprintf(out, "output_dir: %s\n", cfg.OutputDir)
		fmt.Fprintf(out, "cleaned_path: %s\n", cfg.CleanedPath)
		fmt.Fprintf(out, "ledger_path: %s\n", cfg.LedgerPath)
		if cfg.MetricsFile != "" {
			fmt.Fprintf(out, "metrics_file: %s\n", cfg.MetricsFile)
		}
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	if p, ok := strings.CutSuffix(key, "_api_key"); ok {
		return c.SetAPIKey(p, val)
	}
	intField := map[string]*int{
		"max_tokens":          &c.MaxTokens,
		"http_timeout_sec":    &c.HTTPTimeoutSec,
		"retry_max_attempts":  &c.RetryMaxAttempts,
		"retry_base_delay_ms": &c.RetryBaseDelayMs,
		"retry_max_delay_ms":  &c.RetryMaxDelayMs,
		"ollama_timeout_sec":  &c.OllamaTimeoutSec,
		"stage_timeout_sec":   &c.StageTimeoutSec,
		"stage_retries":       &c.StageRetries,
	}
	boolField := map[string]*bool{
		"parallel_stages": &c.ParallelStages,
		"halt_on_reject":  &c.HaltOnReject,
		"codegen":         &c.Codegen,
	}
	strField := map[string]*string{
		"model":        &c.Model,
		"ollama_host":  &c.OllamaHost,
		"output_dir":   &c.OutputDir,
		"cleaned_path": &c.CleanedPath,
		"ledger_path":  &c.LedgerPath,
		"metrics_file": &c.MetricsFile,
		"log_level":    &c.LogLevel,
	}
	switch {
	case key == "provider":
		p := cfgpkg.NormalizeProvider(val)
		if _, ok := cfgpkg.KeyEnvVar(p); !ok {
			return fmt.Errorf("invalid provider: %s (use one of: %s)", val, strings.Join(cfgpkg.Providers(), ", "))
		}
		c.Provider = p
	case key == "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v (use 0..2)", val)
		}
		c.Temperature = f
	case intField[key] != nil:
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*intField[key] = i
	case boolField[key] != nil:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		*boolField[key] = b
	case strField[key] != nil:
		*strField[key] = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
