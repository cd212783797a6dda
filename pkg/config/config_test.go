package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Retrieval.DefaultK != 3 {
		t.Errorf("Retrieval.DefaultK = %d, want 3", cfg.Retrieval.DefaultK)
	}
	if got := cfg.Retrieval.ConfidenceWeights; len(got) != 3 || got[0] != 0.5 || got[1] != 0.3 || got[2] != 0.2 {
		t.Errorf("Retrieval.ConfidenceWeights = %v, want [0.5 0.3 0.2]", got)
	}
	if cfg.Embedding.Provider != "local" || cfg.Embedding.Dimension != 384 {
		t.Errorf("Embedding = %+v, want local/384", cfg.Embedding)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from file", cfg.Logging.Level)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.SampleRate != 1 || cfg.Tracing.Endpoint != "localhost:4318" {
		t.Errorf("Tracing = %+v, want disabled, rate 1, localhost:4318", cfg.Tracing)
	}
}

func TestLoadFileOverridesAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
knowledgeBase:
  source: sqlite
retrieval:
  defaultK: 5
  confidenceWeights: [0.6, 0.25, 0.15]
`)
	t.Setenv("KBASSIST_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.KnowledgeBase.Source != "sqlite" {
		t.Errorf("KnowledgeBase.Source = %q, want sqlite", cfg.KnowledgeBase.Source)
	}
	if cfg.Retrieval.DefaultK != 5 {
		t.Errorf("Retrieval.DefaultK = %d, want 5", cfg.Retrieval.DefaultK)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model = %q, want env override", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM.APIKey = %q, want OPENAI_API_KEY fallback", cfg.LLM.APIKey)
	}
	if !cfg.LLM.GenerativeConfigured() {
		t.Error("GenerativeConfigured() = false with a key present")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:        ServerConfig{Port: 8000},
			KnowledgeBase: KnowledgeBaseConfig{Source: "dir", Path: "./kb"},
			Cache:         CacheConfig{Backend: "memory"},
			Embedding:     EmbeddingConfig{Provider: "local", Dimension: 384},
			LLM:           LLMConfig{TimeoutSec: 20},
			Retrieval: RetrievalConfig{
				DefaultK:             3,
				MaxK:                 50,
				PreviewLength:        200,
				ExcerptLength:        500,
				ConfidenceWeights:    []float64{0.5, 0.3, 0.2},
				ConfidenceSaturation: 0.5,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad source", func(c *Config) { c.KnowledgeBase.Source = "s3" }, "knowledgeBase.source"},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, "requires llm.apiKey"},
		{"zero k", func(c *Config) { c.Retrieval.DefaultK = 0 }, "defaultK"},
		{"weights sum", func(c *Config) { c.Retrieval.ConfidenceWeights = []float64{0.5, 0.4, 0.2} }, "sum to 1"},
		{"too many weights", func(c *Config) { c.Retrieval.ConfidenceWeights = []float64{0.4, 0.3, 0.2, 0.1} }, "1 to 3"},
		{"saturation", func(c *Config) { c.Retrieval.ConfidenceSaturation = 0 }, "confidenceSaturation"},
		{"tracing off ignores rate", func(c *Config) { c.Tracing.SampleRate = 5 }, ""},
		{"tracing sample rate", func(c *Config) {
			c.Tracing = TracingConfig{Enabled: true, Endpoint: "otel:4318", SampleRate: 1.5}
		}, "tracing.sampleRate"},
		{"tracing endpoint", func(c *Config) { c.Tracing = TracingConfig{Enabled: true, SampleRate: 1} }, "tracing.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
