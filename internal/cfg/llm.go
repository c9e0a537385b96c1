package cfg

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported remote classifier backends.
const (
	ProviderAzure  = "azure"
	ProviderClaude = "claude"
)

const (
	DefaultAzureAPIVersion = "2024-06-01"
	DefaultClaudeModel     = "claude-sonnet-4-20250514"
)

// LLM selects and configures the remote classifier. It is shared by the
// server and the CLI.
type LLM struct {
	Provider        string  `yaml:"provider"`
	AzureEndpoint   string  `yaml:"azure_endpoint"`
	AzureAPIKey     string  `yaml:"azure_api_key"`
	AzureDeployment string  `yaml:"azure_deployment"`
	AzureAPIVersion string  `yaml:"azure_api_version"`
	ClaudeAPIKey    string  `yaml:"claude_api_key"`
	ClaudeModel     string  `yaml:"claude_model"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RPS             float64 `yaml:"rps"`
}

// RegisterFlags binds LLM fields to the given FlagSet with defaults inline
func (l *LLM) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&l.Provider, "llm-provider", ProviderAzure, "remote classifier backend (azure|claude)")
	fs.StringVar(&l.AzureEndpoint, "azure-endpoint", "", "Azure OpenAI resource endpoint, e.g. https://name.openai.azure.com")
	fs.StringVar(&l.AzureAPIKey, "azure-api-key", "", "Azure OpenAI API key")
	fs.StringVar(&l.AzureDeployment, "azure-deployment", "", "Azure OpenAI chat deployment name")
	fs.StringVar(&l.AzureAPIVersion, "azure-api-version", DefaultAzureAPIVersion, "Azure OpenAI REST API version")
	fs.StringVar(&l.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&l.ClaudeModel, "claude-model", DefaultClaudeModel, "Claude model to use")
	fs.IntVar(&l.TimeoutSeconds, "llm-timeout-seconds", 30, "per-item remote classification timeout (1..600)")
	fs.Float64Var(&l.RPS, "llm-rps", 0, "max remote classifier requests per second (0 = unlimited)")
}

// Validate checks field ranges. Missing credentials are not an error.
func (l *LLM) Validate() error {
	var errs []error
	switch l.Provider {
	case ProviderAzure, ProviderClaude:
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be %s or %s)", l.Provider, ProviderAzure, ProviderClaude))
	}
	if l.TimeoutSeconds <= 0 || l.TimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS %d (must be 1..600)", l.TimeoutSeconds))
	}
	if l.RPS < 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_RPS %v (must be >= 0)", l.RPS))
	}
	return errors.Join(errs...)
}

// Timeout returns the per-item timeout as a duration.
func (l *LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// llmFlags maps flag names to the fields they set, for file overlay.
func (l *LLM) llmFlags() map[string]func(from *LLM) {
	return map[string]func(from *LLM){
		"llm-provider":        func(f *LLM) { setString(&l.Provider, f.Provider) },
		"azure-endpoint":      func(f *LLM) { setString(&l.AzureEndpoint, f.AzureEndpoint) },
		"azure-api-key":       func(f *LLM) { setString(&l.AzureAPIKey, f.AzureAPIKey) },
		"azure-deployment":    func(f *LLM) { setString(&l.AzureDeployment, f.AzureDeployment) },
		"azure-api-version":   func(f *LLM) { setString(&l.AzureAPIVersion, f.AzureAPIVersion) },
		"claude-api-key":      func(f *LLM) { setString(&l.ClaudeAPIKey, f.ClaudeAPIKey) },
		"claude-model":        func(f *LLM) { setString(&l.ClaudeModel, f.ClaudeModel) },
		"llm-timeout-seconds": func(f *LLM) { setNonZero(&l.TimeoutSeconds, f.TimeoutSeconds) },
		"llm-rps":             func(f *LLM) { setNonZero(&l.RPS, f.RPS) },
	}
}

// LoadFile overlays values from a YAML file onto l. Fields whose flag was set
// explicitly on fs keep their flag value; zero values in the file are ignored.
func (l *LLM) LoadFile(path string, fs *flag.FlagSet) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return fmt.Errorf("read llm config: %w", err)
	}
	var file LLM
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse llm config %s: %w", path, err)
	}

	explicit := make(map[string]bool)
	if fs != nil {
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	}
	for name, apply := range l.llmFlags() {
		if !explicit[name] {
			apply(&file)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setNonZero[T int | float64](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}
