// Package ingestion reads knowledge-base articles from a directory of JSON, YAML
// or HTML files.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/pkg/logger"
)

// DirSource loads every supported file directly under Dir in file-name order.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (d *DirSource) Records(ctx context.Context) ([]articles.Record, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml", ".html", ".htm":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []articles.Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(d.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		recs, err := parseFile(name, data)
		if err != nil {
			return nil, &articles.MalformedArticleError{
				Index:  len(records),
				Source: name,
				Reason: err.Error(),
			}
		}
		for i := range recs {
			recs[i].Source = name
			if recs[i].Content != nil {
				cleaned := CleanContent(*recs[i].Content)
				recs[i].Content = &cleaned
			}
		}
		records = append(records, recs...)
	}

	logger.Info("Knowledge base files read",
		zap.String("dir", d.Dir),
		zap.Int("files", len(names)),
		zap.Int("records", len(records)),
	)

	return records, nil
}

func parseFile(name string, data []byte) ([]articles.Record, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		title, category, tags, content, err := parseHTMLRecord(string(data))
		if err != nil {
			return nil, err
		}
		return []articles.Record{{Title: title, Category: category, Tags: tags, Content: &content}}, nil
	}
}

func parseJSON(data []byte) ([]articles.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var recs []articles.Record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return recs, nil
	}

	var rec articles.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []articles.Record{rec}, nil
}

func parseYAML(data []byte) ([]articles.Record, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("empty YAML document")
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var recs []articles.Record
		if err := root.Decode(&recs); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return recs, nil
	}

	var rec articles.Record
	if err := root.Decode(&rec); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return []articles.Record{rec}, nil
}
