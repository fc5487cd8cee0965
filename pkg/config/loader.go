package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file values.
const EnvPrefix = "QUILL_"

const maxConfigFileSize = 1024 * 1024

// defaults is loaded before the user's file so explicit zero values in the
// file (for example an unbounded loop cap) are preserved.
const defaults = `
app:
  name: quill
  workspace: ./workspace
log:
  level: info
  format: json
  llm_path: logs/llm.jsonl
memory:
  type: sqlite
  path: quill.db
  history_limit: 10
retrieval:
  order: [page, serpapi, duckduckgo]
  max_results: 10
  max_page_chars: 50000
  rate_per_second: 2
persistence:
  backends: [sqlite]
  markdown:
    dir: ./workspace/content
  chromem:
    path: ./data/vectors
    collection: quill-content
  qdrant:
    host: localhost
    port: 6334
    collection: quill-content
    vector_size: 1536
workflow:
  max_research_rounds: 5
  max_plan_rounds: 5
  max_polish_rounds: 5
  max_queries: 3
server:
  host: localhost
  port: 8080
session:
  stale_after: 72h
  sweep_interval: 10m
`

// nestedSections hold maps or sub-structs, so their env keys carry one more
// level: QUILL_PROVIDERS_OPENAI_API_KEY -> providers.openai.api_key.
var nestedSections = map[string]bool{
	"gateways":    true,
	"providers":   true,
	"persistence": true,
}

// Load reads the YAML file at path (optional; a missing file is not an
// error), then applies QUILL_* environment overrides and validates.
//
// Precedence, highest first: environment, file, built-in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	return &cfg
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps QUILL_SECTION_FIELD_NAME to section.field_name. Sections in
// nestedSections split once more for the map key or sub-struct.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	section, rest := parts[0], parts[1]
	if nestedSections[section] {
		sub := strings.SplitN(rest, "_", 2)
		if len(sub) == 2 && sub[0] != "backends" {
			return section + "." + sub[0] + "." + sub[1]
		}
	}
	return section + "." + rest
}
