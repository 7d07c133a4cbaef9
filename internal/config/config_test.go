package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Index.Dimensions != 1536 || cfg.Index.Metric != "cosine" {
		t.Errorf("index defaults: %+v", cfg.Index)
	}
	if cfg.Index.UpsertBatchSize != 100 {
		t.Errorf("upsert batch size = %d, want 100", cfg.Index.UpsertBatchSize)
	}
	if cfg.Index.QueryTimeout() != 3*time.Second {
		t.Errorf("query timeout = %v", cfg.Index.QueryTimeout())
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Timeout() != 5*time.Second || cfg.Embedding.MaxRetries != 2 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Search.DefaultTopK != 3 || cfg.Search.MaxTopK != 20 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Ingest.File != "data.json" || cfg.Ingest.UpsertRetries != 2 {
		t.Errorf("ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Agent.DefaultLanguage != "en" || cfg.Agent.SessionTTL() != 2*time.Hour {
		t.Errorf("agent defaults: %+v", cfg.Agent)
	}
	if cfg.Storage.KeyPrefix != "homefinder:" {
		t.Errorf("key prefix = %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_NegativeRetriesDisable(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{MaxRetries: -1}, Ingest: IngestConfig{UpsertRetries: -1}}
	cfg.ApplyDefaults()
	if cfg.Embedding.MaxRetries != 0 || cfg.Ingest.UpsertRetries != 0 {
		t.Errorf("retries = %d/%d, want 0/0", cfg.Embedding.MaxRetries, cfg.Ingest.UpsertRetries)
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"metric", func(c *Config) { c.Index.Metric = "hamming" }, "index.metric"},
		{"dims", func(c *Config) { c.Embedding.Dimensions = 768 }, "embedding.dimensions"},
		{"rps", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }, "requests_per_second"},
		{"top_k", func(c *Config) { c.Search.DefaultTopK = 50 }, "search.default_top_k"},
		{"language", func(c *Config) { c.Agent.DefaultLanguage = "fr" }, "agent.default_language"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("HF_TEST_KEY", "sk-test")

	tests := []struct {
		in   string
		want string
	}{
		{"key: ${HF_TEST_KEY}", "key: sk-test"},
		{"key: ${HF_TEST_UNSET:-fallback}", "key: fallback"},
		{"key: ${HF_TEST_KEY:-fallback}", "key: sk-test"},
		{"key: ${HF_TEST_UNSET}", "key: "},
		{"no vars", "no vars"},
	}
	for _, tc := range tests {
		if got := string(expandEnvVars([]byte(tc.in))); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Setenv("HF_TEST_ADDR", "valkey:6379")

	cfg, err := Parse([]byte(`
http:
  port: 9000
database:
  addrs: ["${HF_TEST_ADDR}"]
search:
  default_top_k: 5
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Port != 9000 || cfg.Database.Addrs[0] != "valkey:6379" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Search.DefaultTopK != 5 || cfg.Search.MaxTopK != 20 {
		t.Errorf("search = %+v", cfg.Search)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Error("expected validation error for missing addrs")
	}
}

func TestLoad_LocalFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-local")
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load(local): %v", err)
	}
	if cfg.Embedding.APIKey != "sk-local" {
		t.Errorf("api key = %q", cfg.Embedding.APIKey)
	}
	if cfg.Index.Dimensions != 1536 {
		t.Errorf("dimensions = %d", cfg.Index.Dimensions)
	}
}
