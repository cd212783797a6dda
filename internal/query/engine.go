package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/confidence"
	"github.com/kbassist/backend/internal/embedding"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/internal/telemetry"
	"github.com/kbassist/backend/internal/vector"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/utils"
)

var (
	ErrEngineNotReady  = errors.New("retrieval engine is not ready")
	ErrInvalidArgument = errors.New("invalid argument")
)

const DefaultPreviewLength = 200

// ResponseCache is satisfied by the Redis and in-memory cache clients.
type ResponseCache interface {
	GetQuery(ctx context.Context, queryHash string, response any) (bool, error)
	SetQuery(ctx context.Context, queryHash string, response any, ttl time.Duration) error
	InvalidateQueries(ctx context.Context) error
}

type HistoryRecorder interface {
	RecordQuery(ctx context.Context, record *models.QueryRecord) error
}

type Request struct {
	Text string
	K    int
	Mode answer.Mode
}

type ResultItem struct {
	Rank      int      `json:"rank"`
	ArticleID int      `json:"article_id"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Score     float64  `json:"similarity_score"`
	Preview   string   `json:"content_preview"`
}

type Response struct {
	ID         string       `json:"id"`
	Query      string       `json:"query"`
	Results    []ResultItem `json:"retrieved_articles"`
	Answer     string       `json:"answer"`
	AnswerMode answer.Mode  `json:"answer_mode"`
	Confidence float64      `json:"confidence_score"`
	Count      int          `json:"num_retrieved"`
	LatencyMS  int64        `json:"latency_ms"`
	Generation uint64       `json:"generation"`
	Fallback   bool         `json:"fallback,omitempty"`
	Cached     bool         `json:"cached,omitempty"`
}

type Stats struct {
	ArticleCount      int       `json:"total_articles"`
	IndexDimension    int       `json:"embedding_dimension"`
	Ready             bool      `json:"ready"`
	Generation        uint64    `json:"generation"`
	Provider          string    `json:"model_name"`
	GenerativeEnabled bool      `json:"generative_enabled"`
	BuiltAt           time.Time `json:"built_at,omitempty"`
}

// snapshot is everything one query reads. It is never modified after publication.
type snapshot struct {
	store      *articles.Store
	index      *vector.Index
	encoder    embedding.Provider
	generation uint64
	builtAt    time.Time
}

type Engine struct {
	provider  embedding.Provider
	estimator *confidence.Estimator
	synth     *answer.Synthesizer

	current atomic.Pointer[snapshot]

	buildMu    sync.Mutex
	generation uint64

	cache         ResponseCache
	cacheTTL      time.Duration
	history       HistoryRecorder
	previewLength int
	log           *zap.Logger
}

type Option func(*Engine)

func WithResponseCache(cache ResponseCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheTTL = ttl
	}
}

func WithHistory(recorder HistoryRecorder) Option {
	return func(e *Engine) { e.history = recorder }
}

func WithPreviewLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.previewLength = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an engine in the uninitialized state. The provider must be
// ready to encode; it is fitted on each build when it implements embedding.Fitter.
func NewEngine(provider embedding.Provider, estimator *confidence.Estimator, synth *answer.Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		provider:      provider,
		estimator:     estimator,
		synth:         synth,
		previewLength: DefaultPreviewLength,
		log:           logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize performs the first build. Once the engine is ready further calls
// return nil without rebuilding; use Rebuild to reload.
func (e *Engine) Initialize(ctx context.Context, records []articles.Record) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if e.current.Load() != nil {
		return nil
	}
	return e.buildLocked(ctx, records)
}

// Rebuild replaces the serving snapshot. On failure the previous snapshot keeps
// serving.
func (e *Engine) Rebuild(ctx context.Context, records []articles.Record) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	return e.buildLocked(ctx, records)
}

func (e *Engine) buildLocked(ctx context.Context, records []articles.Record) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "kb.build", attribute.Int("records", len(records)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	snap, err := e.build(ctx, records)
	if err != nil {
		metrics.IndexBuilds.WithLabelValues("error").Inc()
		e.log.Error("Knowledge base build failed", zap.Error(err), zap.Bool("previous_serving", e.current.Load() != nil))
		return err
	}

	e.generation++
	snap.generation = e.generation
	snap.builtAt = time.Now()
	e.current.Store(snap)

	metrics.IndexBuilds.WithLabelValues("success").Inc()
	metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	metrics.ArticlesIndexed.Set(float64(snap.store.Len()))
	metrics.IndexGeneration.Set(float64(snap.generation))

	if e.cache != nil {
		if err := e.cache.InvalidateQueries(ctx); err != nil {
			e.log.Warn("Failed to invalidate response cache", zap.Error(err))
		}
	}

	e.log.Info("Knowledge base indexed",
		zap.Int("articles", snap.store.Len()),
		zap.Int("dimension", snap.encoder.Dimension()),
		zap.Uint64("generation", snap.generation),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (e *Engine) build(ctx context.Context, records []articles.Record) (*snapshot, error) {
	loaded, err := articles.Load(records)
	if err != nil {
		return nil, err
	}
	store := articles.NewStore(loaded)
	texts := store.Texts()

	encoder := e.provider
	if f, ok := encoder.(embedding.Fitter); ok {
		encoder, err = f.Fit(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to fit embedding provider: %w", err)
		}
	}

	var vecs [][]float32
	if len(texts) > 0 {
		vecs, err = encoder.Encode(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed articles: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: %d vectors for %d articles", embedding.ErrEncoding, len(vecs), len(texts))
		}
	}

	index, err := vector.Build(vecs)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	if index.Len() > 0 && index.Dimension() != encoder.Dimension() {
		return nil, fmt.Errorf("%w: provider reports %d, vectors have %d", vector.ErrDimensionMismatch, encoder.Dimension(), index.Dimension())
	}

	return &snapshot{store: store, index: index, encoder: encoder}, nil
}

// Query runs a request in ModeAuto.
func (e *Engine) Query(ctx context.Context, text string, k int) (*Response, error) {
	return e.Run(ctx, Request{Text: text, K: k, Mode: answer.ModeAuto})
}

func (e *Engine) Run(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()

	defer func() {
		metrics.QueryTotal.WithLabelValues(queryStatus(err)).Inc()
	}()

	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrInvalidArgument)
	}
	if req.K < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidArgument, req.K)
	}
	if req.Mode == "" {
		req.Mode = answer.ModeAuto
	}

	snap := e.current.Load()
	if snap == nil {
		return nil, ErrEngineNotReady
	}

	ctx, span := telemetry.StartSpan(ctx, "kb.query",
		attribute.Int("k", req.K),
		attribute.String("mode", string(req.Mode)),
		attribute.Int64("generation", int64(snap.generation)),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	queryID := uuid.New().String()
	cacheKey := utils.CacheKey("resp", strconv.FormatUint(snap.generation, 10), string(req.Mode), strconv.Itoa(req.K), req.Text)

	if cached := e.cachedResponse(ctx, cacheKey); cached != nil {
		cached.ID = queryID
		cached.Cached = true
		cached.LatencyMS = time.Since(start).Milliseconds()
		return cached, nil
	}

	e.log.Info("Processing query",
		zap.String("query_id", queryID),
		zap.Int("k", req.K),
		zap.String("mode", string(req.Mode)),
	)

	vecs, err := snap.encoder.Encode(ctx, []string{req.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := snap.index.Search(vecs[0], req.K)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	items := make([]ResultItem, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	passages := make([]answer.Passage, 0, len(hits))
	for i, h := range hits {
		a, ok := snap.store.Get(h.Position)
		if !ok {
			return nil, fmt.Errorf("index position %d has no article", h.Position)
		}
		items = append(items, ResultItem{
			Rank:      i + 1,
			ArticleID: a.ID,
			Title:     a.Title,
			Category:  a.Category,
			Tags:      a.Tags,
			Score:     h.Score,
			Preview:   answer.Truncate(a.Content, e.previewLength),
		})
		scores = append(scores, h.Score)
		passages = append(passages, answer.Passage{Title: a.Title, Content: a.Content})
	}

	conf := e.estimator.Estimate(scores)
	result := e.synth.Synthesize(ctx, req.Text, passages, req.Mode)

	resp = &Response{
		ID:         queryID,
		Query:      req.Text,
		Results:    items,
		Answer:     result.Text,
		AnswerMode: result.Mode,
		Confidence: conf,
		Count:      len(items),
		LatencyMS:  time.Since(start).Milliseconds(),
		Generation: snap.generation,
		Fallback:   result.Fallback,
	}

	e.observe(resp)

	// Fallback answers are not cached so the next request retries generation.
	if e.cache != nil && !resp.Fallback {
		if err := e.cache.SetQuery(ctx, cacheKey, resp, e.cacheTTL); err != nil {
			e.log.Warn("Failed to cache response", zap.Error(err))
		}
	}

	e.record(ctx, req, resp)

	e.log.Info("Query processed",
		zap.String("query_id", queryID),
		zap.Int("results", resp.Count),
		zap.Float64("confidence", conf),
		zap.String("answer_mode", string(resp.AnswerMode)),
		zap.Int64("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

func (e *Engine) cachedResponse(ctx context.Context, key string) *Response {
	if e.cache == nil {
		return nil
	}

	var cached Response
	hit, err := e.cache.GetQuery(ctx, key, &cached)
	if err != nil {
		e.log.Warn("Response cache read failed", zap.Error(err))
		return nil
	}
	if !hit {
		metrics.CacheMisses.WithLabelValues("response").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("response").Inc()
	return &cached
}

func (e *Engine) observe(resp *Response) {
	metrics.QueryDuration.WithLabelValues(string(resp.AnswerMode)).Observe(float64(resp.LatencyMS) / 1000)
	metrics.ConfidenceScore.Observe(resp.Confidence)
	metrics.ResultsCount.Observe(float64(resp.Count))
	if resp.Count > 0 {
		metrics.TopSimilarity.Observe(resp.Results[0].Score)
	}
	if resp.Fallback {
		metrics.GenerationFallbacks.Inc()
	}
}

func (e *Engine) record(ctx context.Context, req Request, resp *Response) {
	if e.history == nil {
		return
	}

	rec := &models.QueryRecord{
		ID:           resp.ID,
		QueryText:    resp.Query,
		K:            req.K,
		Answer:       resp.Answer,
		AnswerMode:   string(resp.AnswerMode),
		Confidence:   resp.Confidence,
		ResultsCount: resp.Count,
		Generation:   resp.Generation,
		LatencyMS:    resp.LatencyMS,
		CreatedAt:    time.Now(),
	}
	if resp.Count > 0 {
		rec.TopArticleTitle = resp.Results[0].Title
		rec.TopScore = resp.Results[0].Score
	}

	if err := e.history.RecordQuery(ctx, rec); err != nil {
		e.log.Warn("Failed to record query", zap.String("query_id", resp.ID), zap.Error(err))
	}
}

func (e *Engine) Stats() Stats {
	snap := e.current.Load()
	if snap == nil {
		return Stats{
			IndexDimension:    e.provider.Dimension(),
			Provider:          e.provider.Name(),
			GenerativeEnabled: e.synth.GenerativeEnabled(),
		}
	}

	return Stats{
		ArticleCount:      snap.store.Len(),
		IndexDimension:    snap.encoder.Dimension(),
		Ready:             true,
		Generation:        snap.generation,
		Provider:          snap.encoder.Name(),
		GenerativeEnabled: e.synth.GenerativeEnabled(),
		BuiltAt:           snap.builtAt,
	}
}

// Ready reports whether a snapshot is serving.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

func queryStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrEngineNotReady):
		return "not_ready"
	}
	return "error"
}
