// Package config loads cafescout settings from an optional YAML file and
// CAFESCOUT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/cafescout/cafescout/pkg/logging"
)

// EnvPrefix is stripped from environment variable names before mapping.
const EnvPrefix = "CAFESCOUT_"

// Config is the full configuration tree.
type Config struct {
	Search  Search         `koanf:"search"`
	Filter  Filter         `koanf:"filter"`
	AI      AI             `koanf:"ai"`
	Auth    Auth           `koanf:"auth"`
	Content Content        `koanf:"content"`
	NATS    NATS           `koanf:"nats"`
	Neo4j   Neo4j          `koanf:"neo4j"`
	Metrics Metrics        `koanf:"metrics"`
	Log     logging.Config `koanf:"log"`
}

type Search struct {
	Keyword   string        `koanf:"keyword"`
	Scope     string        `koanf:"scope"`
	Sort      string        `koanf:"sort"`
	Recency   string        `koanf:"recency"`
	MaxItems  int           `koanf:"max_items"`
	PageDelay time.Duration `koanf:"page_delay"`
}

type Filter struct {
	Keywords     []string `koanf:"keywords"`
	AICommand    string   `koanf:"ai_command"`
	BatchSize    int      `koanf:"batch_size"`
	MaxBodyRunes int      `koanf:"max_body_runes"`
}

type AI struct {
	Provider     string        `koanf:"provider"` // openai or ollama
	APIKey       string        `koanf:"api_key"`
	Model        string        `koanf:"model"`
	BaseURL      string        `koanf:"base_url"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
	ChunkDelay   time.Duration `koanf:"chunk_delay"`
}

// Auth carries the session material supplied by whatever performed the login.
type Auth struct {
	Cookie    string            `koanf:"cookie"`
	UserAgent string            `koanf:"user_agent"`
	Headers   map[string]string `koanf:"headers"`
}

// HTTPHeaders merges Headers with the Cookie and UserAgent shorthands.
func (a Auth) HTTPHeaders() map[string]string {
	out := make(map[string]string, len(a.Headers)+2)
	for k, v := range a.Headers {
		out[k] = v
	}
	if a.Cookie != "" {
		out["Cookie"] = a.Cookie
	}
	if a.UserAgent != "" {
		out["User-Agent"] = a.UserAgent
	}
	return out
}

type Content struct {
	RetryBackoff      time.Duration `koanf:"retry_backoff"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

type NATS struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type Neo4j struct {
	URL      string `koanf:"url"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Database string `koanf:"database"`
}

type Metrics struct {
	Addr string `koanf:"addr"`
}

// defaults is the base layer under the file and the environment. Keys set
// by either override it, explicit zeros included.
var defaults = map[string]any{
	"search.scope":                "general",
	"search.sort":                 "relevance",
	"search.recency":              "1d",
	"search.max_items":            100,
	"search.page_delay":           time.Second,
	"filter.batch_size":           10,
	"filter.max_body_runes":       1000,
	"ai.provider":                 "openai",
	"ai.batch_timeout":            10 * time.Second,
	"ai.chunk_delay":              500 * time.Millisecond,
	"content.retry_backoff":       5 * time.Second,
	"content.requests_per_second": 2.0,
	"nats.subject_prefix":         "cafescout",
	"log.level":                   "info",
	"log.format":                  "console",
}

// Load layers defaults, then path (when non-empty and present), then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// CAFESCOUT_AI_API_KEY -> ai.api_key: the first segment is the section,
	// the rest is the field name.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyProviderDefaults(&cfg.AI)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyProviderDefaults fills the fields whose default depends on the provider.
func applyProviderDefaults(ai *AI) {
	if ai.Model == "" {
		if ai.Provider == "ollama" {
			ai.Model = "llama3.1"
		} else {
			ai.Model = "gpt-4o-mini"
		}
	}
	if ai.BaseURL == "" && ai.Provider == "ollama" {
		ai.BaseURL = "http://localhost:11434"
	}
}

// Validate checks the values that are not re-validated downstream.
// Query and filter semantics are checked by the pipeline at run start.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("ai.provider %q: must be openai or ollama", c.AI.Provider)
	}
	if c.Search.PageDelay < 0 {
		return fmt.Errorf("search.page_delay must not be negative")
	}
	if c.Filter.MaxBodyRunes < 0 {
		return fmt.Errorf("filter.max_body_runes must not be negative")
	}
	if c.Content.RequestsPerSecond < 0 {
		return fmt.Errorf("content.requests_per_second must not be negative")
	}
	if c.Neo4j.URL != "" && c.Neo4j.User == "" {
		return fmt.Errorf("neo4j.user is required when neo4j.url is set")
	}
	return c.Log.Validate()
}
