package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "KBASSIST"

type Config struct {
	Server        ServerConfig
	KnowledgeBase KnowledgeBaseConfig
	SQLite        SQLiteConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Embedding     EmbeddingConfig
	LLM           LLMConfig
	Retrieval     RetrievalConfig
	History       HistoryConfig
	Logging       LoggingConfig
	Tracing       TracingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	RateLimitPerMinute int
	AllowedOrigins     []string
	Development        bool
}

type KnowledgeBaseConfig struct {
	// Source is "dir" (JSON/YAML files under Path) or "sqlite" (articles table).
	Source string
	Path   string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend    string
	TTLSeconds int
}

type EmbeddingConfig struct {
	// Provider is "local" (hashed TF-IDF) or "openai".
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Enabled      bool
	Model        string
	APIKey       string
	BaseURL      string
	Temperature  float32
	MaxTokens    int
	TimeoutSec   int
	SystemPrompt string
}

type RetrievalConfig struct {
	DefaultK             int
	MaxK                 int
	PreviewLength        int
	ExcerptLength        int
	ConfidenceWeights    []float64
	ConfidenceSaturation float64
}

type HistoryConfig struct {
	Enabled bool
}

type TracingConfig struct {
	Enabled bool
	// Endpoint is the OTLP/HTTP collector address, host:port.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Environment string
	SampleRate  float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// GenerativeConfigured reports whether the text-generation collaborator can be used.
func (c LLMConfig) GenerativeConfigured() bool {
	return c.Enabled && strings.TrimSpace(c.APIKey) != ""
}

// Load reads configuration from an explicit file (when path is non-empty) or from
// config.yaml in the usual search paths, then applies KBASSIST_* environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/kbassist")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fall back to the conventional OPENAI_API_KEY.
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = v.GetString("openai_api_key")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.rateLimitPerMinute", 120)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("knowledgeBase.source", "dir")
	v.SetDefault("knowledgeBase.path", "./kb_articles")

	v.SetDefault("sqlite.path", "./data/kbassist.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlSeconds", 300)

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.timeoutSec", 20)
	v.SetDefault("llm.systemPrompt", "You are a helpful assistant for a customer support knowledge base. "+
		"Answer user questions based on the provided knowledge base articles. "+
		"Be concise, accurate, and helpful. If the information isn't in the articles, say so.")

	v.SetDefault("retrieval.defaultK", 3)
	v.SetDefault("retrieval.maxK", 50)
	v.SetDefault("retrieval.previewLength", 200)
	v.SetDefault("retrieval.excerptLength", 500)
	v.SetDefault("retrieval.confidenceWeights", []float64{0.5, 0.3, 0.2})
	v.SetDefault("retrieval.confidenceSaturation", 0.5)

	v.SetDefault("history.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.serviceName", "kbassist")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampleRate", 1.0)

	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.KnowledgeBase.Source {
	case "dir", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("knowledgeBase.source must be dir or sqlite, got %q", c.KnowledgeBase.Source))
	}
	if c.KnowledgeBase.Source == "dir" && c.KnowledgeBase.Path == "" {
		errs = append(errs, errors.New("knowledgeBase.path is required for the dir source"))
	}

	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend))
	}

	switch c.Embedding.Provider {
	case "local", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be local or openai, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Provider == "openai" && strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, errors.New("embedding.provider openai requires llm.apiKey"))
	}

	r := c.Retrieval
	if r.DefaultK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.defaultK must be >= 1, got %d", r.DefaultK))
	}
	if r.MaxK < r.DefaultK {
		errs = append(errs, fmt.Errorf("retrieval.maxK %d is below defaultK %d", r.MaxK, r.DefaultK))
	}
	if r.PreviewLength <= 0 || r.ExcerptLength <= 0 {
		errs = append(errs, errors.New("retrieval.previewLength and retrieval.excerptLength must be positive"))
	}
	if r.ConfidenceSaturation <= 0 || r.ConfidenceSaturation > 1 {
		errs = append(errs, fmt.Errorf("retrieval.confidenceSaturation must be in (0,1], got %v", r.ConfidenceSaturation))
	}
	if len(r.ConfidenceWeights) == 0 || len(r.ConfidenceWeights) > 3 {
		errs = append(errs, fmt.Errorf("retrieval.confidenceWeights needs 1 to 3 values, got %d", len(r.ConfidenceWeights)))
	} else {
		var sum float64
		for _, w := range r.ConfidenceWeights {
			sum += w
		}
		if math.Abs(sum-1) > 1e-6 {
			errs = append(errs, fmt.Errorf("retrieval.confidenceWeights must sum to 1, got %v", sum))
		}
	}

	if c.LLM.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeoutSec must be positive, got %d", c.LLM.TimeoutSec))
	}

	if t := c.Tracing; t.Enabled {
		if t.Endpoint == "" {
			errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("tracing.sampleRate must be in [0,1], got %v", t.SampleRate))
		}
	}

	return errors.Join(errs...)
}
