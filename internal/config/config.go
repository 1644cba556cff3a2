package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Reddit     Reddit     `yaml:"reddit"`
	Tracking   Tracking   `yaml:"tracking"`
	Classifier Classifier `yaml:"classifier"`
	LLM        LLM        `yaml:"llm"`
	Retry      Retry      `yaml:"retry"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Reddit struct {
	Subreddits []string `yaml:"subreddits"`
	UserAgent  string   `yaml:"user_agent"`
	PageSize   int      `yaml:"page_size"`
	// Epoch is the window start of the very first ingestion run, YYYY-MM-DD.
	Epoch string `yaml:"epoch"`
}

// TrackedModel is one product model the tracker watches for. A post matches
// when the model name appears in title+body, or when one of the aliases
// appears together with a context keyword. Exclusion phrases veto a match
// (e.g. "figure out" is not about Figure).
type TrackedModel struct {
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases"`
	Keywords   []string `yaml:"keywords"`
	Exclusions []string `yaml:"exclusions"`
}

type Tracking struct {
	Models []TrackedModel `yaml:"models"`
}

type Classifier struct {
	// Version gates reclassification: bumping it makes every post eligible
	// for classification again.
	Version int `yaml:"version"`
	// ModelConfidence is the fixed confidence recorded for LLM-based labels.
	ModelConfidence float64 `yaml:"model_confidence"`
}

type LLM struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	OpenAIModel    string `yaml:"openai_model"`
	AnthropicModel string `yaml:"anthropic_model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
}

type Retry struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for botwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "botwatch")
}

// DataDir returns the XDG data directory for botwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "botwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/botwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'botwatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Reddit: Reddit{
			UserAgent: "botwatch/1.0 (humanoid mention tracker)",
			PageSize:  100,
			Epoch:     "2024-12-01",
		},
		Classifier: Classifier{
			Version:         1,
			ModelConfidence: 0.7,
		},
		LLM: LLM{
			Provider:       "ollama",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-5-haiku-latest",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxTokens:      512,
		},
		Retry: Retry{
			MaxAttempts: 5,
			BaseDelayMS: 1000,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// EpochTime parses the configured epoch as midnight UTC.
func (c *Config) EpochTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Reddit.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing epoch %q: %w", c.Reddit.Epoch, err)
	}
	return t.UTC(), nil
}

// ModelNames returns the tracked model names in config order.
func (c *Config) ModelNames() []string {
	names := make([]string, len(c.Tracking.Models))
	for i, m := range c.Tracking.Models {
		names[i] = m.Name
	}
	return names
}

// RetryBaseDelay returns the configured base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
