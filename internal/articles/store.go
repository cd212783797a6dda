// Package articles validates knowledge-base records and holds the loaded articles.
package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kbassist/backend/internal/storage/models"
)

var ErrMalformedArticle = errors.New("malformed article")

// MalformedArticleError identifies the record that could not be loaded.
type MalformedArticleError struct {
	Index  int
	Source string
	Field  string
	Reason string
}

func (e *MalformedArticleError) Error() string {
	where := fmt.Sprintf("record %d", e.Index)
	if e.Source != "" {
		where += fmt.Sprintf(" (%s)", e.Source)
	}
	if e.Field != "" {
		return fmt.Sprintf("malformed article: %s: field %q %s", where, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed article: %s: %s", where, e.Reason)
}

func (e *MalformedArticleError) Is(target error) bool {
	return target == ErrMalformedArticle
}

// Record is a raw knowledge-base entry. Nil fields are treated as missing.
type Record struct {
	Title    *string  `json:"title" yaml:"title"`
	Category *string  `json:"category" yaml:"category"`
	Tags     []string `json:"tags" yaml:"tags"`
	Content  *string  `json:"content" yaml:"content"`
	Source   string   `json:"-" yaml:"-"`
}

// NewRecord builds a complete record; convenient for tests and programmatic sources.
func NewRecord(title, category string, tags []string, content string) Record {
	if tags == nil {
		tags = []string{}
	}
	return Record{Title: &title, Category: &category, Tags: tags, Content: &content}
}

// Source yields the ordered records of a knowledge base.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Load validates records and assigns article IDs in record order.
func Load(records []Record) ([]models.Article, error) {
	out := make([]models.Article, 0, len(records))
	for i, rec := range records {
		a, err := toArticle(i, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func toArticle(i int, rec Record) (models.Article, error) {
	malformed := func(field, reason string) error {
		return &MalformedArticleError{Index: i, Source: rec.Source, Field: field, Reason: reason}
	}

	switch {
	case rec.Title == nil:
		return models.Article{}, malformed("title", "is missing")
	case rec.Category == nil:
		return models.Article{}, malformed("category", "is missing")
	case rec.Tags == nil:
		return models.Article{}, malformed("tags", "is missing")
	case rec.Content == nil:
		return models.Article{}, malformed("content", "is missing")
	}

	title := strings.TrimSpace(*rec.Title)
	if title == "" {
		return models.Article{}, malformed("title", "is blank")
	}
	content := strings.TrimSpace(*rec.Content)
	if content == "" {
		return models.Article{}, malformed("content", "is blank")
	}

	tags := make([]string, 0, len(rec.Tags))
	for _, tag := range rec.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	return models.Article{
		ID:       i,
		Title:    title,
		Category: strings.TrimSpace(*rec.Category),
		Tags:     tags,
		Content:  content,
		Source:   rec.Source,
	}, nil
}

// Store is an immutable, ordered collection of articles.
type Store struct {
	articles []models.Article
}

func NewStore(articles []models.Article) *Store {
	cp := make([]models.Article, len(articles))
	copy(cp, articles)
	return &Store{articles: cp}
}

func (s *Store) Len() int {
	return len(s.articles)
}

func (s *Store) Get(id int) (models.Article, bool) {
	if id < 0 || id >= len(s.articles) {
		return models.Article{}, false
	}
	return s.articles[id], true
}

// Texts returns the embedding text of every article in ID order.
func (s *Store) Texts() []string {
	texts := make([]string, len(s.articles))
	for i, a := range s.articles {
		texts[i] = a.EmbeddingText()
	}
	return texts
}

// All returns a copy of the articles in ID order.
func (s *Store) All() []models.Article {
	cp := make([]models.Article, len(s.articles))
	copy(cp, s.articles)
	return cp
}
