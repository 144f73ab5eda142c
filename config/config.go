// Package config loads lexgraph settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"
)

const DefaultFile = "lexgraph.yaml"

const (
	EnvProvider    = "LEXGRAPH_PROVIDER"
	EnvModel       = "LEXGRAPH_MODEL"
	EnvBaseURL     = "LEXGRAPH_BASE_URL"
	EnvTemperature = "LEXGRAPH_TEMPERATURE"
	EnvStoreDriver = "LEXGRAPH_STORE_DRIVER"
	EnvStoreDSN    = "LEXGRAPH_STORE_DSN"
	EnvLogFormat   = "LEXGRAPH_LOG_FORMAT"
	EnvLogLevel    = "LEXGRAPH_LOG_LEVEL"
)

// Supported providers.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// keyEnv maps each provider to the variable holding its API key.
var keyEnv = map[string]string{
	ProviderGroq:      "GROQ_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured
// for the selected provider.
var ErrMissingAPIKey = errors.New("missing API key")

// Config is the root configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Run      RunConfig      `yaml:"run"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig selects the generation backend.
type ProviderConfig struct {
	// Name is one of groq, openai, anthropic, google.
	Name string `yaml:"name"`

	// Model is the provider's model id. Empty selects the adapter default.
	Model string `yaml:"model"`

	// BaseURL overrides the endpoint of OpenAI-compatible providers.
	BaseURL string `yaml:"base_url"`

	Temperature float64 `yaml:"temperature"`

	// APIKey takes precedence over the provider's environment variable.
	// Prefer the environment.
	APIKey string `yaml:"api_key"`
}

// StoreConfig selects the passage store.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite and a go-sql-driver DSN for mysql.
	DSN string `yaml:"dsn"`

	// TopK is the number of passages retrieved per query.
	TopK int `yaml:"top_k"`
}

// IngestConfig controls how documents are split into passages.
type IngestConfig struct {
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is nil when unset; see Overlap. Zero disables overlap.
	ChunkOverlap *int `yaml:"chunk_overlap"`

	// Workers bounds the number of files read in parallel.
	Workers int `yaml:"workers"`
}

// RunConfig controls the executor.
type RunConfig struct {
	StepTimeout string `yaml:"step_timeout"`

	// RunTimeout bounds a whole query. Empty means no limit.
	RunTimeout string `yaml:"run_timeout"`

	// FanOut, when positive, runs every specialist the router selects
	// concurrently with at most FanOut at a time.
	FanOut int `yaml:"fan_out"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Format is text or json.
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// DefaultOverlap is the chunk overlap used when none is configured: 200
// characters, or a fifth of size for small chunks.
func DefaultOverlap(size int) int {
	return min(200, size/5)
}

// Overlap returns the configured chunk overlap, or DefaultOverlap when unset.
func (c IngestConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return DefaultOverlap(c.ChunkSize)
	}
	return *c.ChunkOverlap
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := base()
	c.loadDefaults()
	return c
}

// base holds the defaults that do not depend on other settings. The file is
// decoded on top of it, so an explicit zero survives.
func base() *Config {
	return &Config{
		Store:  StoreConfig{TopK: 4},
		Ingest: IngestConfig{ChunkSize: 1000, Workers: 4},
		Run:    RunConfig{StepTimeout: "30s"},
		Log:    LogConfig{Format: "text", Level: "info"},
	}
}

// Load reads path (or DefaultFile when path is empty), applies environment
// overrides and defaults, and validates the result.
//
// A missing DefaultFile is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := base()

	file := path
	if file == "" {
		file = DefaultFile
	}
	if _, err := os.Stat(file); err == nil || path != "" {
		if err := load(file, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	cfg.loadDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func load(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadDefaults fills the settings left empty by the file and environment,
// including those whose default depends on the provider or driver.
func (c *Config) loadDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderGroq
	}
	if c.Provider.Model == "" && c.Provider.Name == ProviderGroq {
		c.Provider.Model = "llama-3.3-70b-versatile"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = "./lexgraph.db"
	}
}

func (c *Config) loadEnv() error {
	set := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.Provider.Name, EnvProvider)
	set(&c.Provider.Model, EnvModel)
	set(&c.Provider.BaseURL, EnvBaseURL)
	set(&c.Store.Driver, EnvStoreDriver)
	set(&c.Store.DSN, EnvStoreDSN)
	set(&c.Log.Format, EnvLogFormat)
	set(&c.Log.Level, EnvLogLevel)

	if v := os.Getenv(EnvTemperature); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTemperature, err)
		}
		c.Provider.Temperature = t
	}
	return nil
}

// Validate checks the configuration for values no component can use.
func (c *Config) Validate() error {
	if _, ok := keyEnv[c.Provider.Name]; !ok {
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Provider.Temperature)
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store %s requires a dsn", c.Store.Driver)
	}
	if c.Store.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.Store.TopK)
	}

	if c.Ingest.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if overlap := c.Ingest.Overlap(); overlap < 0 || overlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", overlap)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Ingest.Workers)
	}

	if _, err := parseDuration(c.Run.StepTimeout); err != nil {
		return fmt.Errorf("invalid step_timeout: %w", err)
	}
	if _, err := parseDuration(c.Run.RunTimeout); err != nil {
		return fmt.Errorf("invalid run_timeout: %w", err)
	}
	if c.Run.FanOut < 0 {
		return fmt.Errorf("fan_out must not be negative, got %d", c.Run.FanOut)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// APIKey returns the key for the selected provider: the configured key, or
// else the provider's environment variable. It may be empty.
func (c *Config) APIKey() string {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey
	}
	return os.Getenv(keyEnv[c.Provider.Name])
}

// RequireAPIKey is APIKey but fails with ErrMissingAPIKey when no key is set.
func (c *Config) RequireAPIKey() (string, error) {
	key := c.APIKey()
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, keyEnv[c.Provider.Name])
	}
	return key, nil
}

// StepTimeout returns Run.StepTimeout as a duration. Zero means no limit.
func (c *Config) StepTimeout() time.Duration {
	d, _ := parseDuration(c.Run.StepTimeout)
	return d
}

// RunTimeout returns Run.RunTimeout as a duration. Zero means no limit.
func (c *Config) RunTimeout() time.Duration {
	d, _ := parseDuration(c.Run.RunTimeout)
	return d
}

// LogLevel returns the configured slog level, info when unparseable.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
