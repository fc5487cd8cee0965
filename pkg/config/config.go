package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	App         AppConfig                 `koanf:"app"`
	Log         LogConfig                 `koanf:"log"`
	Gateways    map[string]GatewayConfig  `koanf:"gateways"`
	Providers   map[string]ProviderConfig `koanf:"providers"`
	Memory      MemoryConfig              `koanf:"memory"`
	Retrieval   RetrievalConfig           `koanf:"retrieval"`
	Persistence PersistenceConfig         `koanf:"persistence"`
	Workflow    WorkflowConfig            `koanf:"workflow"`
	Server      ServerConfig              `koanf:"server"`
	Session     SessionConfig             `koanf:"session"`
}

type AppConfig struct {
	Name       string `koanf:"name"`
	Workspace  string `koanf:"workspace"`
	PromptsDir string `koanf:"prompts_dir"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	LLMPath string `koanf:"llm_path"`
}

type GatewayConfig struct {
	Token   string `koanf:"token"`
	Enabled bool   `koanf:"enabled"`
}

type ProviderConfig struct {
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
	BaseURL        string `koanf:"base_url"`
	Enabled        bool   `koanf:"enabled"`
}

type MemoryConfig struct {
	Type         string `koanf:"type"`
	Path         string `koanf:"path"`
	HistoryLimit int    `koanf:"history_limit"`
}

// RetrievalConfig controls the search backends behind the retrieval chain.
type RetrievalConfig struct {
	Order            []string `koanf:"order"`
	SerpAPIKey       string   `koanf:"serpapi_key"`
	MaxResults       int      `koanf:"max_results"`
	MaxPageChars     int      `koanf:"max_page_chars"`
	Browser          bool     `koanf:"browser"`
	RatePerSecond    float64  `koanf:"rate_per_second"`
	DenyPatterns     []string `koanf:"deny_patterns"`
	DisabledBackends []string `koanf:"disabled_backends"`
}

type PersistenceConfig struct {
	Backends []string       `koanf:"backends"`
	Markdown MarkdownConfig `koanf:"markdown"`
	Chromem  ChromemConfig  `koanf:"chromem"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
}

type MarkdownConfig struct {
	Dir string `koanf:"dir"`
}

type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// WorkflowConfig bounds the human-governed loops. Zero means unbounded.
type WorkflowConfig struct {
	MaxResearchRounds int `koanf:"max_research_rounds"`
	MaxPlanRounds     int `koanf:"max_plan_rounds"`
	MaxPolishRounds   int `koanf:"max_polish_rounds"`
	MaxQueries        int `koanf:"max_queries"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

type SessionConfig struct {
	StaleAfter    time.Duration `koanf:"stale_after"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// GetDefaultProvider returns the first enabled provider in a stable order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range knownProviders {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			return name, p
		}
	}
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}

var knownProviders = []string{"openai", "openrouter", "anthropic", "ollama"}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Workflow.MaxResearchRounds < 0 || c.Workflow.MaxPlanRounds < 0 || c.Workflow.MaxPolishRounds < 0 {
		errs = append(errs, errors.New("workflow round caps must not be negative"))
	}
	if c.Retrieval.RatePerSecond < 0 {
		errs = append(errs, errors.New("retrieval.rate_per_second must not be negative"))
	}
	for _, b := range c.Persistence.Backends {
		switch b {
		case "sqlite", "markdown", "chromem", "qdrant", "none":
		default:
			errs = append(errs, fmt.Errorf("unknown persistence backend %q", b))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}
