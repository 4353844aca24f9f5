package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// Provider credentials. Each also reads the provider's conventional
	// environment variable (GROQ_API_KEY, OPENAI_API_KEY, ...).
	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key,omitempty"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	GroqAPIKey        string `mapstructure:"groq_api_key" yaml:"groq_api_key,omitempty"`
	AnthropicAPIKey   string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key,omitempty"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty"`
	MistralAPIKey     string `mapstructure:"mistral_api_key" yaml:"mistral_api_key,omitempty"`
	HuggingFaceAPIKey string `mapstructure:"huggingface_api_key" yaml:"huggingface_api_key,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Pipeline behavior
	StageTimeoutSec int  `mapstructure:"stage_timeout_sec" yaml:"stage_timeout_sec"`
	StageRetries    int  `mapstructure:"stage_retries" yaml:"stage_retries"`
	ParallelStages  bool `mapstructure:"parallel_stages" yaml:"parallel_stages"`
	HaltOnReject    bool `mapstructure:"halt_on_reject" yaml:"halt_on_reject"`
	Codegen         bool `mapstructure:"codegen" yaml:"codegen"`

	// Outputs
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	CleanedPath string `mapstructure:"cleaned_path" yaml:"cleaned_path"`
	LedgerPath  string `mapstructure:"ledger_path" yaml:"ledger_path,omitempty"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
}

// providerKeys maps provider name to the environment variable that carries
// its credential. An empty value means the provider needs no credential.
var providerKeys = map[string]string{
	"openrouter":  "OPENROUTER_API_KEY",
	"openai":      "OPENAI_API_KEY",
	"groq":        "GROQ_API_KEY",
	"anthropic":   "ANTHROPIC_API_KEY",
	"gemini":      "GEMINI_API_KEY",
	"mistral":     "MISTRAL_API_KEY",
	"huggingface": "HUGGINGFACE_API_KEY",
	"ollama":      "",
}

// Providers returns the supported provider names in sorted order.
func Providers() []string {
	out := make([]string, 0, len(providerKeys))
	for k := range providerKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeProvider lowercases and resolves aliases ("local" -> "ollama").
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "local":
		return "ollama"
	case "google":
		return "gemini"
	case "hf":
		return "huggingface"
	}
	return p
}

// KeyEnvVar returns the credential variable for a provider, and whether the
// provider is known.
func KeyEnvVar(provider string) (string, bool) {
	v, ok := providerKeys[NormalizeProvider(provider)]
	return v, ok
}

// APIKeyFor returns the configured credential for the given provider.
func (c *Global) APIKeyFor(provider string) string {
	switch NormalizeProvider(provider) {
	case "openrouter":
		return c.OpenRouterAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "groq":
		return c.GroqAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "mistral":
		return c.MistralAPIKey
	case "huggingface":
		return c.HuggingFaceAPIKey
	}
	return ""
}

// SetAPIKey stores a credential for the given provider.
func (c *Global) SetAPIKey(provider, key string) error {
	switch NormalizeProvider(provider) {
	case "openrouter":
		c.OpenRouterAPIKey = key
	case "openai":
		c.OpenAIAPIKey = key
	case "groq":
		c.GroqAPIKey = key
	case "anthropic":
		c.AnthropicAPIKey = key
	case "gemini":
		c.GeminiAPIKey = key
	case "mistral":
		c.MistralAPIKey = key
	case "huggingface":
		c.HuggingFaceAPIKey = key
	default:
		return fmt.Errorf("provider %q does not take an api key", provider)
	}
	return nil
}

// Validate reports configuration problems that would make every stage fail:
// an unknown provider or a missing credential.
func (c *Global) Validate() error {
	p := NormalizeProvider(c.Provider)
	env, ok := providerKeys[p]
	if !ok {
		return fmt.Errorf("unsupported provider %q (use one of: %s)", c.Provider, strings.Join(Providers(), ", "))
	}
	if env != "" && c.APIKeyFor(p) == "" {
		return fmt.Errorf("%s is not set (required for provider %s)", env, p)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %.2f", c.Temperature)
	}
	if c.StageRetries < 0 {
		return fmt.Errorf("stage_retries must be >= 0, got %d", c.StageRetries)
	}
	return nil
}

// Dir returns the per-user configuration directory (~/.datacrew).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datacrew"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datacrew/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATACREW")
	v.AutomaticEnv()

	// Conventional variable names are honored alongside the prefixed ones.
	binds := map[string]string{
		"provider":            "LLM_PROVIDER",
		"model":               "LLM_MODEL",
		"openrouter_api_key":  "OPENROUTER_API_KEY",
		"openai_api_key":      "OPENAI_API_KEY",
		"groq_api_key":        "GROQ_API_KEY",
		"anthropic_api_key":   "ANTHROPIC_API_KEY",
		"gemini_api_key":      "GEMINI_API_KEY",
		"mistral_api_key":     "MISTRAL_API_KEY",
		"huggingface_api_key": "HUGGINGFACE_API_KEY",
		"ollama_host":         "OLLAMA_BASE_URL",
	}
	for key, env := range binds {
		if err := v.BindEnv(key, "DATACREW_"+strings.ToUpper(key), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// Defaults
	v.SetDefault("provider", "groq")
	v.SetDefault("model", "")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.1)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Pipeline defaults
	v.SetDefault("stage_timeout_sec", 90)
	v.SetDefault("stage_retries", 1)
	v.SetDefault("parallel_stages", false)
	v.SetDefault("halt_on_reject", false)
	v.SetDefault("codegen", false)
	v.SetDefault("output_dir", "outputs")
	v.SetDefault("cleaned_path", filepath.Join("data", "cleaned_csv.csv"))
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_level", "warn")

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = NormalizeProvider(c.Provider)
	if c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(dir, "runs.db")
	}
	return &c, nil
}
