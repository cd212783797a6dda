package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

type Querier interface {
	Run(ctx context.Context, req query.Request) (*query.Response, error)
}

type RunRecorder interface {
	RecordEvaluation(ctx context.Context, run *models.EvaluationRun) error
}

type Evaluator struct {
	engine   Querier
	recorder RunRecorder
}

type EvaluationDataset struct {
	Name  string        `json:"name"`
	Items []DatasetItem `json:"items"`
}

// DatasetItem labels a query with the title of the article that answers it.
type DatasetItem struct {
	Query         string `json:"query"`
	ExpectedTitle string `json:"expected_title"`
	Category      string `json:"category,omitempty"`
}

type ItemResult struct {
	Query          string
	ExpectedTitle  string
	Rank           int
	TopTitle       string
	TopScore       float64
	Confidence     float64
	Classification string
	Err            error
}

type EvaluationReport struct {
	Dataset                 string
	K                       int
	TotalQueries            int
	FailedQueries           int
	IrrelevantCount         int
	ModerateCount           int
	FullyRelevantCount      int
	HitRate                 float64
	MRR                     float64
	AvgConfidence           float64
	AvgTopScore             float64
	IrrelevantPercentage    float64
	ModeratePercentage      float64
	FullyRelevantPercentage float64
	Items                   []ItemResult
}

// NewEvaluator records finished runs when recorder is non-nil.
func NewEvaluator(engine Querier, recorder RunRecorder) *Evaluator {
	return &Evaluator{
		engine:   engine,
		recorder: recorder,
	}
}

// EvaluateQuery finds the 1-based rank of the expected article among the top k
// results; rank 0 means it was not retrieved.
func (e *Evaluator) EvaluateQuery(ctx context.Context, item DatasetItem, k int) ItemResult {
	result := ItemResult{Query: item.Query, ExpectedTitle: item.ExpectedTitle}

	resp, err := e.engine.Run(ctx, query.Request{Text: item.Query, K: k, Mode: answer.ModeExtractive})
	if err != nil {
		result.Err = err
		result.Classification = "failed"
		return result
	}

	result.Confidence = resp.Confidence
	if resp.Count > 0 {
		result.TopTitle = resp.Results[0].Title
		result.TopScore = resp.Results[0].Score
	}
	for _, r := range resp.Results {
		if strings.EqualFold(strings.TrimSpace(r.Title), strings.TrimSpace(item.ExpectedTitle)) {
			result.Rank = r.Rank
			break
		}
	}

	switch {
	case result.Rank == 1:
		result.Classification = "fully_relevant"
	case result.Rank > 1:
		result.Classification = "moderate"
	default:
		result.Classification = "irrelevant"
	}

	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset, k int) (*EvaluationReport, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", query.ErrInvalidArgument, k)
	}

	logger.Info("Running dataset evaluation", zap.String("dataset", dataset.Name), zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		Dataset:      dataset.Name,
		K:            k,
		TotalQueries: len(dataset.Items),
	}

	var reciprocalRanks, totalConfidence, totalTopScore float64
	hits := 0

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := e.EvaluateQuery(ctx, item, k)
		report.Items = append(report.Items, result)

		if result.Err != nil {
			logger.Error("Failed to evaluate query", zap.Int("index", i), zap.Error(result.Err))
			report.FailedQueries++
			continue
		}

		switch result.Classification {
		case "irrelevant":
			report.IrrelevantCount++
		case "moderate":
			report.ModerateCount++
		case "fully_relevant":
			report.FullyRelevantCount++
		}

		if result.Rank > 0 {
			hits++
			reciprocalRanks += 1 / float64(result.Rank)
		}
		totalConfidence += result.Confidence
		totalTopScore += result.TopScore
	}

	if report.TotalQueries > 0 {
		n := float64(report.TotalQueries)
		report.HitRate = float64(hits) / n
		report.MRR = reciprocalRanks / n
		report.AvgConfidence = totalConfidence / n
		report.AvgTopScore = totalTopScore / n

		report.IrrelevantPercentage = float64(report.IrrelevantCount) / n * 100
		report.ModeratePercentage = float64(report.ModerateCount) / n * 100
		report.FullyRelevantPercentage = float64(report.FullyRelevantCount) / n * 100
	}

	metrics.RetrievalHitRate.Set(report.HitRate)

	if e.recorder != nil {
		err := e.recorder.RecordEvaluation(ctx, &models.EvaluationRun{
			Dataset:       report.Dataset,
			K:             k,
			Queries:       report.TotalQueries,
			HitRate:       report.HitRate,
			MRR:           report.MRR,
			AvgConfidence: report.AvgConfidence,
			CreatedAt:     time.Now(),
		})
		if err != nil {
			logger.Warn("Failed to record evaluation run", zap.Error(err))
		}
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("irrelevant", report.IrrelevantCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("fully_relevant", report.FullyRelevantCount),
		zap.Float64("hit_rate", report.HitRate),
		zap.Float64("mrr", report.MRR),
	)

	return report, nil
}

func LoadDatasetFromJSON(data []byte) (*EvaluationDataset, error) {
	var dataset EvaluationDataset

	// A bare array of items is accepted as well as the wrapped form.
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &dataset.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
		}
	} else if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Query) == "" || strings.TrimSpace(item.ExpectedTitle) == "" {
			return nil, fmt.Errorf("dataset item %d needs query and expected_title", i)
		}
	}

	return &dataset, nil
}

func GenerateReport(report *EvaluationReport) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Dataset: %s (k=%d)
Total Queries: %d (failed: %d)

Classifications:
- Not retrieved: %d (%.1f%%)
- Retrieved below rank 1: %d (%.1f%%)
- Retrieved at rank 1: %d (%.1f%%)

Retrieval:
- Hit rate@%d: %.3f
- MRR: %.3f
- Average top similarity: %.3f
- Average confidence: %.3f
`,
		report.Dataset, report.K,
		report.TotalQueries, report.FailedQueries,
		report.IrrelevantCount, report.IrrelevantPercentage,
		report.ModerateCount, report.ModeratePercentage,
		report.FullyRelevantCount, report.FullyRelevantPercentage,
		report.K, report.HitRate,
		report.MRR,
		report.AvgTopScore,
		report.AvgConfidence,
	)
}
