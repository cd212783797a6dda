package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		slug TEXT PRIMARY KEY,
		position INTEGER NOT NULL DEFAULT 0,
		title TEXT,
		category TEXT,
		tags TEXT,
		content TEXT,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_position ON articles(position);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		k INTEGER NOT NULL,
		answer TEXT,
		answer_mode TEXT,
		confidence REAL,
		results_count INTEGER,
		top_article_title TEXT,
		top_score REAL,
		generation INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		k INTEGER NOT NULL,
		queries INTEGER NOT NULL,
		hit_rate REAL NOT NULL,
		mrr REAL NOT NULL,
		avg_confidence REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertArticle stores an article row. Nil fields are written as NULL.
func (c *Client) UpsertArticle(ctx context.Context, slug string, position int, rec articles.Record) error {
	var tags any
	if rec.Tags != nil {
		data, err := json.Marshal(rec.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		tags = string(data)
	}

	query := `
		INSERT INTO articles (slug, position, title, category, tags, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			position = excluded.position,
			title = excluded.title,
			category = excluded.category,
			tags = excluded.tags,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query,
		slug,
		position,
		rec.Title,
		rec.Category,
		tags,
		rec.Content,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}

	logger.Debug("Article stored", zap.String("slug", slug), zap.Int("position", position))
	return nil
}

// Records implements articles.Source over the articles table.
func (c *Client) Records(ctx context.Context) ([]articles.Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT title, category, tags, content, slug FROM articles ORDER BY position, slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var records []articles.Record
	for rows.Next() {
		var title, category, tags, content sql.NullString
		var slug string

		if err := rows.Scan(&title, &category, &tags, &content, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := articles.Record{
			Title:    nullable(title),
			Category: nullable(category),
			Content:  nullable(content),
			Source:   slug,
		}
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil || rec.Tags == nil {
				return nil, &articles.MalformedArticleError{
					Index:  len(records),
					Source: slug,
					Field:  "tags",
					Reason: "is not a JSON array",
				}
			}
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}

	logger.Info("Knowledge base rows read", zap.Int("records", len(records)))

	return records, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// RecordQuery implements the engine's history recorder.
func (c *Client) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, query_text, k, answer, answer_mode, confidence, results_count,
			top_article_title, top_score, generation, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.QueryText,
		record.K,
		record.Answer,
		record.AnswerMode,
		record.Confidence,
		record.ResultsCount,
		record.TopArticleTitle,
		record.TopScore,
		int64(record.Generation),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

// GetQueryHistory returns the most recent queries first.
func (c *Client) GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, query_text, k, answer, answer_mode, confidence, results_count,
			top_article_title, top_score, generation, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var generation, createdAt int64

		err := rows.Scan(&r.ID, &r.QueryText, &r.K, &r.Answer, &r.AnswerMode, &r.Confidence,
			&r.ResultsCount, &r.TopArticleTitle, &r.TopScore, &generation, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Generation = uint64(generation)
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) RecordEvaluation(ctx context.Context, run *models.EvaluationRun) error {
	query := `INSERT INTO evaluation_runs (dataset, k, queries, hit_rate, mrr, avg_confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		run.Dataset,
		run.K,
		run.Queries,
		run.HitRate,
		run.MRR,
		run.AvgConfidence,
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}

	logger.Info("Evaluation recorded",
		zap.String("dataset", run.Dataset),
		zap.Float64("hit_rate", run.HitRate),
		zap.Float64("mrr", run.MRR),
	)

	return nil
}
