package models

import "time"

// Article is one knowledge-base document. ID is the article's load position and
// doubles as its position in the vector index.
type Article struct {
	ID       int
	Title    string
	Category string
	Tags     []string
	Content  string
	Source   string
}

// EmbeddingText is the text an article is indexed under.
func (a Article) EmbeddingText() string {
	return a.Title + "\n\n" + a.Content
}

type QueryRecord struct {
	ID              string
	QueryText       string
	K               int
	Answer          string
	AnswerMode      string
	Confidence      float64
	ResultsCount    int
	TopArticleTitle string
	TopScore        float64
	Generation      uint64
	LatencyMS       int64
	CreatedAt       time.Time
}

type EvaluationRun struct {
	Dataset       string
	K             int
	Queries       int
	HitRate       float64
	MRR           float64
	AvgConfidence float64
	CreatedAt     time.Time
}
