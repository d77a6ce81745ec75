// Package config loads dossier's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smhanov/dossier"
	"github.com/smhanov/dossier/llm"
)

// Config holds all dossier configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Research ResearchConfig `yaml:"research"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig selects the model backend. The per-role models fall back to Model.
type LLMConfig struct {
	Provider     string      `yaml:"provider"` // ollama, openai, gemini
	APIKey       string      `yaml:"api_key,omitempty"`
	Model        string      `yaml:"model"`
	BaseURL      string      `yaml:"base_url,omitempty"` // provider default when empty
	Timeout      string      `yaml:"timeout"`
	PlannerModel string      `yaml:"planner_model,omitempty"`
	SearchModel  string      `yaml:"search_model,omitempty"`
	WriterModel  string      `yaml:"writer_model,omitempty"`
	Pricing      llm.Pricing `yaml:"pricing"`
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	Provider      string   `yaml:"provider"`           // duckduckgo, brave, tavily
	Fallback      []string `yaml:"fallback,omitempty"` // tried in order when Provider fails
	BraveAPIKey   string   `yaml:"brave_api_key,omitempty"`
	TavilyAPIKey  string   `yaml:"tavily_api_key,omitempty"`
	TavilyDepth   string   `yaml:"tavily_depth"`
	MaxResults    int      `yaml:"max_results"`
	Timeout       string   `yaml:"timeout"`
	CacheTTL      string   `yaml:"cache_ttl"`
	CacheSize     int      `yaml:"cache_size"` // 0 disables the cache
	FetchPages    bool     `yaml:"fetch_pages"`
	CostPerSearch float64  `yaml:"cost_per_search"`
}

// ResearchConfig tunes the Manager.
type ResearchConfig struct {
	MaxSearches   int    `yaml:"max_searches"`
	BatchSize     int    `yaml:"batch_size"`
	FailurePolicy string `yaml:"failure_policy"` // skip or abort
	SearchRetries int    `yaml:"search_retries"`
	RetryBackoff  string `yaml:"retry_backoff"`
	SearchDepth   int    `yaml:"search_depth"`
	RunTimeout    string `yaml:"run_timeout,omitempty"` // empty means no limit
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "qwen3:8b",
			Timeout:  "10m",
		},
		Search: SearchConfig{
			Provider:    "duckduckgo",
			TavilyDepth: "basic",
			MaxResults:  5,
			Timeout:     "15s",
			CacheTTL:    "30m",
			CacheSize:   500,
			FetchPages:  true,
		},
		Research: ResearchConfig{
			MaxSearches:   10,
			BatchSize:     5,
			FailurePolicy: string(dossier.FailSkip),
			SearchRetries: 1,
			RetryBackoff:  "500ms",
			SearchDepth:   1,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/dossier/config.yaml or the platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dossier.yaml"
	}
	return filepath.Join(dir, "dossier", "config.yaml")
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	provider := strings.ToLower(c.LLM.Provider)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && (provider == "openai" || provider == "") {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && (provider == "gemini" || provider == "") {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && provider == "ollama" {
		c.LLM.BaseURL = host
	}
	if model := os.Getenv("DOSSIER_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		c.Search.BraveAPIKey = key
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Search.TavilyAPIKey = key
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LLM.Provider) {
	case "ollama", "openai":
		if c.LLM.Model == "" {
			errs = append(errs, errors.New("llm.model is required"))
		}
	case "gemini":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key (or GEMINI_API_KEY) is required for gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of ollama, openai, gemini", c.LLM.Provider))
	}

	for _, p := range append([]string{c.Search.Provider}, c.Search.Fallback...) {
		if err := c.checkSearchProvider(p); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Research.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("research.batch_size must be at least 1, got %d", c.Research.BatchSize))
	}
	if c.Research.MaxSearches < 1 {
		errs = append(errs, fmt.Errorf("research.max_searches must be at least 1, got %d", c.Research.MaxSearches))
	}
	if c.Research.SearchRetries < 0 {
		errs = append(errs, fmt.Errorf("research.search_retries must not be negative, got %d", c.Research.SearchRetries))
	}
	if _, err := dossier.ParseFailurePolicy(c.Research.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("research.failure_policy: %w", err))
	}

	for name, v := range map[string]string{
		"llm.timeout":            c.LLM.Timeout,
		"search.timeout":         c.Search.Timeout,
		"search.cache_ttl":       c.Search.CacheTTL,
		"research.retry_backoff": c.Research.RetryBackoff,
		"research.run_timeout":   c.Research.RunTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not console or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) checkSearchProvider(name string) error {
	switch strings.ToLower(name) {
	case "duckduckgo":
	case "brave":
		if c.Search.BraveAPIKey == "" {
			return errors.New("search.brave_api_key (or BRAVE_API_KEY) is required for brave")
		}
	case "tavily":
		if c.Search.TavilyAPIKey == "" {
			return errors.New("search.tavily_api_key (or TAVILY_API_KEY) is required for tavily")
		}
	default:
		return fmt.Errorf("search provider %q is not one of duckduckgo, brave, tavily", name)
	}
	return nil
}

// ModelFor returns the model configured for role ("planner", "search",
// "writer"), falling back to LLM.Model.
func (c *Config) ModelFor(role string) string {
	var m string
	switch role {
	case "planner":
		m = c.LLM.PlannerModel
	case "search":
		m = c.LLM.SearchModel
	case "writer":
		m = c.LLM.WriterModel
	}
	if m == "" {
		return c.LLM.Model
	}
	return m
}

// LLMTimeout returns llm.timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 10*time.Minute)
}

// SearchTimeout returns search.timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 15*time.Second)
}

// CacheTTL returns search.cache_ttl as a duration.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Search.CacheTTL, 30*time.Minute)
}

// RetryBackoff returns research.retry_backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return parseDuration(c.Research.RetryBackoff, 500*time.Millisecond)
}

// RunTimeout returns research.run_timeout, or zero when unset.
func (c *Config) RunTimeout() time.Duration {
	return parseDuration(c.Research.RunTimeout, 0)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
