package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the homefinder configuration shared by the server and the ingestion job.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Agent     AgentConfig     `yaml:"agent"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty APIKeys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Valkey/Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig describes the listing vector index.
type IndexConfig struct {
	Name            string `yaml:"name"` // logical name; keys live under <key_prefix><name>:
	Dimensions      int    `yaml:"dimensions"`
	Metric          string `yaml:"metric"` // cosine, l2, ip
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	QueryTimeoutMs  int    `yaml:"query_timeout_ms"`
	WriteTimeoutMs  int    `yaml:"write_timeout_ms"`
	UpsertBatchSize int    `yaml:"upsert_batch_size"`
	// Cloud and Region are informational and only logged at startup.
	Cloud  string `yaml:"cloud"`
	Region string `yaml:"region"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider              string  `yaml:"provider"`
	APIKey                string  `yaml:"api_key"`
	BaseURL               string  `yaml:"base_url"`
	Model                 string  `yaml:"model"`
	Dimensions            int     `yaml:"dimensions"` // requested output size; 0 = model default
	TimeoutMs             int     `yaml:"timeout_ms"`
	MaxRetries            int     `yaml:"max_retries"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms"`
	RequestsPerSecond     float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// SearchConfig holds result-size settings for search_real_estate.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// IngestConfig holds settings for the offline ingestion job.
type IngestConfig struct {
	File            string `yaml:"file"`
	Workers         int    `yaml:"workers"`
	CacheEmbeddings bool   `yaml:"cache_embeddings"`
	CacheTTLHours   int    `yaml:"cache_ttl_hours"`
	UpsertRetries   int    `yaml:"upsert_retries"`
}

// AgentConfig holds conversation settings.
type AgentConfig struct {
	DefaultLanguage string `yaml:"default_language"`
	SessionTTLMin   int    `yaml:"session_ttl_min"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// QueryTimeout returns index.query_timeout_ms as a duration.
func (c IndexConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// WriteTimeout returns index.write_timeout_ms as a duration.
func (c IndexConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// Timeout returns embedding.timeout_ms as a duration.
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryInitialBackoff returns embedding.retry_initial_backoff_ms as a duration.
func (c EmbeddingConfig) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
}

// SessionTTL returns agent.session_ttl_min as a duration.
func (c AgentConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	c.Index.applyDefaults()
	c.Embedding.applyDefaults()
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 3
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 20
	}
	if c.Ingest.File == "" {
		c.Ingest.File = "data.json"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.CacheTTLHours <= 0 {
		c.Ingest.CacheTTLHours = 24 * 30
	}
	if c.Ingest.UpsertRetries < 0 {
		c.Ingest.UpsertRetries = 0
	} else if c.Ingest.UpsertRetries == 0 {
		c.Ingest.UpsertRetries = 2
	}
	if c.Agent.DefaultLanguage == "" {
		c.Agent.DefaultLanguage = "en"
	}
	if c.Agent.SessionTTLMin <= 0 {
		c.Agent.SessionTTLMin = 120
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "homefinder:"
	}
}

func (c *IndexConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "listings"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 1536
	}
	if c.Metric == "" {
		c.Metric = "cosine"
	}
	if c.HNSWM <= 0 {
		c.HNSWM = 16
	}
	if c.HNSWEFConstruct <= 0 {
		c.HNSWEFConstruct = 200
	}
	if c.QueryTimeoutMs <= 0 {
		c.QueryTimeoutMs = 3000
	}
	if c.WriteTimeoutMs <= 0 {
		c.WriteTimeoutMs = 10000
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = 100
	}
}

func (c *EmbeddingConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 5000
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryInitialBackoffMs <= 0 {
		c.RetryInitialBackoffMs = 200
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	if len(c.Database.Addrs) == 0 {
		errs = append(errs, errors.New("database.addrs is required"))
	}
	switch c.Index.Metric {
	case "cosine", "l2", "ip":
	default:
		errs = append(errs, fmt.Errorf("index.metric must be cosine, l2 or ip, got %q", c.Index.Metric))
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.Dimensions != c.Index.Dimensions {
		errs = append(errs, fmt.Errorf(
			"embedding.dimensions (%d) must match index.dimensions (%d)",
			c.Embedding.Dimensions, c.Index.Dimensions))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedding.requests_per_second must not be negative"))
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		errs = append(errs, fmt.Errorf(
			"search.default_top_k (%d) exceeds search.max_top_k (%d)",
			c.Search.DefaultTopK, c.Search.MaxTopK))
	}
	switch c.Agent.DefaultLanguage {
	case "en", "ja":
	default:
		errs = append(errs, fmt.Errorf("agent.default_language must be en or ja, got %q", c.Agent.DefaultLanguage))
	}
	return errors.Join(errs...)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package directories.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
