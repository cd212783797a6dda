// Package app assembles the retrieval engine and its collaborators from
// configuration. Both the API server and the kb CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/cache/memory"
	"github.com/kbassist/backend/internal/cache/redis"
	"github.com/kbassist/backend/internal/confidence"
	"github.com/kbassist/backend/internal/embedding"
	"github.com/kbassist/backend/internal/ingestion"
	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/sqlite"
	"github.com/kbassist/backend/pkg/config"
	"github.com/kbassist/backend/pkg/logger"
)

// cache is what both cache backends offer.
type cache interface {
	query.ResponseCache
	embedding.Cache
}

type App struct {
	Config *config.Config
	Engine *query.Engine
	Source articles.Source
	// SQLite is nil unless the sqlite source or query history is enabled.
	SQLite *sqlite.Client

	closers []func() error
}

// New wires every component but does not build the index; call Initialize.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.KnowledgeBase.Source == "sqlite" || cfg.History.Enabled {
		db, err := OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.SQLite = db
		a.closers = append(a.closers, db.Close)
	}

	c, err := a.newCache()
	if err != nil {
		a.Close()
		return nil, err
	}

	var llmClient *llm.Client
	if cfg.LLM.GenerativeConfigured() || cfg.Embedding.Provider == "openai" {
		llmClient = llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.Embedding.Model,
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
			SystemPrompt:   cfg.LLM.SystemPrompt,
			RequestTimeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
	}

	provider, err := NewProvider(cfg.Embedding, llmClient, c)
	if err != nil {
		a.Close()
		return nil, err
	}

	estimator, err := confidence.New(cfg.Retrieval.ConfidenceWeights, cfg.Retrieval.ConfidenceSaturation)
	if err != nil {
		a.Close()
		return nil, err
	}

	var gen answer.Generator
	if cfg.LLM.GenerativeConfigured() {
		gen = llmClient
	}
	synth := answer.New(gen, answer.Config{
		Enabled:       cfg.LLM.GenerativeConfigured(),
		Timeout:       time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		ExcerptLength: cfg.Retrieval.ExcerptLength,
	})

	opts := []query.Option{
		query.WithPreviewLength(cfg.Retrieval.PreviewLength),
		query.WithLogger(logger.GetLogger()),
	}
	if c != nil {
		opts = append(opts, query.WithResponseCache(c, time.Duration(cfg.Cache.TTLSeconds)*time.Second))
	}
	if cfg.History.Enabled {
		opts = append(opts, query.WithHistory(a.SQLite))
	}

	a.Engine = query.NewEngine(provider, estimator, synth, opts...)

	a.Source, err = a.newSource()
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("Components wired",
		zap.String("kb_source", cfg.KnowledgeBase.Source),
		zap.String("embedding", provider.Name()),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("generative", synth.GenerativeEnabled()),
		zap.Bool("history", cfg.History.Enabled),
	)

	return a, nil
}

// Initialize reads the knowledge base and performs the first index build.
func (a *App) Initialize(ctx context.Context) error {
	records, err := a.Source.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read knowledge base: %w", err)
	}
	return a.Engine.Initialize(ctx, records)
}

// Reload re-reads the knowledge base and swaps in a new index.
func (a *App) Reload(ctx context.Context) error {
	records, err := a.Source.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read knowledge base: %w", err)
	}
	return a.Engine.Rebuild(ctx, records)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newCache() (cache, error) {
	ttl := time.Duration(a.Config.Cache.TTLSeconds) * time.Second

	switch a.Config.Cache.Backend {
	case "memory":
		return memory.New(ttl, 2*ttl), nil
	case "redis":
		r := a.Config.Redis
		client, err := redis.NewClient(r.Host, r.Port, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	}
	return nil, nil
}

func (a *App) newSource() (articles.Source, error) {
	switch a.Config.KnowledgeBase.Source {
	case "dir":
		return ingestion.NewDirSource(a.Config.KnowledgeBase.Path), nil
	case "sqlite":
		return a.SQLite, nil
	}
	return nil, fmt.Errorf("unknown knowledge base source %q", a.Config.KnowledgeBase.Source)
}

// NewProvider returns the configured embedding provider. Remote embeddings are
// cached when c is non-nil; the local provider is refitted per build and is
// never cached.
func NewProvider(cfg config.EmbeddingConfig, client *llm.Client, c embedding.Cache) (embedding.Provider, error) {
	switch cfg.Provider {
	case "local":
		return embedding.NewLocal(cfg.Dimension), nil
	case "openai":
		if client == nil {
			return nil, errors.New("openai embeddings need an llm client")
		}
		var p embedding.Provider = embedding.NewOpenAI(client, cfg.Model, cfg.Dimension)
		if c != nil {
			cached, err := embedding.NewCached(p, c)
			if err != nil {
				return nil, err
			}
			p = cached
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// OpenSQLite opens the database at path, creating its directory and schema.
func OpenSQLite(ctx context.Context, path string) (*sqlite.Client, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlite.NewClient(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
