package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Providers   []ProviderConfig  `json:"providers"`
	Agent       AgentConfig       `json:"agent"`
	SQL         SQLConfig         `json:"sql"`
	Database    DatabaseConfig    `json:"database"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	VectorStore VectorStoreConfig `json:"vectorstore"`
	Cache       CacheConfig       `json:"cache"`
	History     HistoryConfig     `json:"history"`
	Templates   TemplatesConfig   `json:"templates"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// ProviderConfig describes one LLM backend. Type is one of
// "openai" (remote or a local OpenAI-compatible server), "anthropic", "gemini".
type ProviderConfig struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Endpoint    string            `json:"endpoint"`
	APIKey      string            `json:"api_key"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Extra       map[string]string `json:"extra,omitempty"`
	// Temperature is nil when unset so an explicit 0 is kept.
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`
}

// AgentConfig configures the planner loop. Provider selects the model used
// for planning; empty means the router default.
type AgentConfig struct {
	Provider         string   `json:"provider"`
	Fallbacks        []string `json:"fallbacks"`
	MaxIterations    int      `json:"max_iterations"`
	MaxExecutionTime Duration `json:"max_execution_time"`
	MaxParseErrors   int      `json:"max_parse_errors"`
	EarlyStopping    string   `json:"early_stopping"`
	Stop             []string `json:"stop"`
	ObservationLimit int      `json:"observation_token_limit"`
}

type SQLConfig struct {
	Provider   string   `json:"provider"`
	Fallbacks  []string `json:"fallbacks"`
	MaxRetries int      `json:"max_retries"`
}

type DatabaseConfig struct {
	Driver        string   `json:"driver"` // sqlite | postgres | mysql
	DSN           string   `json:"dsn"`
	IncludeTables []string `json:"include_tables"`
	SampleRows    int      `json:"sample_rows"`
	Seed          bool     `json:"seed"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // api | local | hash
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type VectorStoreConfig struct {
	Type       string  `json:"type"` // memory | qdrant
	Host       string  `json:"host"`
	Port       int     `json:"port"`
	Collection string  `json:"collection"`
	TopK       int     `json:"top_k"`
	FetchK     int     `json:"fetch_k"`
	Lambda     float64 `json:"lambda"`
}

type CacheConfig struct {
	RedisURL string   `json:"redis_url"`
	TTL      Duration `json:"ttl"`
}

// HistoryConfig enables run persistence when PostgresDSN is set. An empty
// MigrationsDir applies the built-in migrations.
type HistoryConfig struct {
	PostgresDSN   string `json:"postgres_dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

// TemplatesConfig points at prompt template files. Empty paths select the
// built-in templates.
type TemplatesConfig struct {
	Agent string `json:"agent"`
	SQL   string `json:"sql"`
}

// Duration unmarshals from a Go duration string such as "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON config after environment substitution and applies defaults.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration that runs fully in-process: seeded
// in-memory sqlite, hashed embeddings and an in-memory vector store. The
// only model provider is Gemini, keyed from the command line.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3220
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	// negative disables the ceiling
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 15
	}
	if c.Agent.MaxParseErrors == 0 {
		c.Agent.MaxParseErrors = 5
	}
	if c.Agent.ObservationLimit == 0 {
		c.Agent.ObservationLimit = 2000
	}
	if c.Agent.EarlyStopping == "" {
		c.Agent.EarlyStopping = "generate"
	}
	if len(c.Agent.Stop) == 0 {
		c.Agent.Stop = []string{"\nObservation:"}
	}
	if c.SQL.MaxRetries <= 0 {
		c.SQL.MaxRetries = 3
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
		c.Database.Seed = true
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "file::memory:?cache=shared"
	}
	if len(c.Database.IncludeTables) == 0 {
		c.Database.IncludeTables = []string{"members", "items", "campaigns", "transactions", "transaction_items"}
	}
	if c.Database.SampleRows == 0 {
		c.Database.SampleRows = 3
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "memory"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "schema_definitions"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
	if c.VectorStore.TopK == 0 {
		c.VectorStore.TopK = 3
	}
	if c.VectorStore.FetchK == 0 {
		c.VectorStore.FetchK = 20
	}
	if c.VectorStore.Lambda == 0 {
		c.VectorStore.Lambda = 0.5
	}
	if c.Cache.TTL.Duration == 0 {
		c.Cache.TTL.Duration = 24 * time.Hour
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{{ID: "gemini", Type: "gemini", Model: "models/gemini-2.0-flash"}}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ID == "" {
			p.ID = p.Type
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
}
