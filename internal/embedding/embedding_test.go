package embedding

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var corpus = []string{
	"How to Configure Automations in Hiver\n\nAutomations let you run workflow rules automatically on incoming emails.",
	"Setting up SLAs\n\nService level agreements define response and resolution targets for shared inboxes.",
	"Managing Shared Inboxes\n\nInvite teammates, assign conversations and add notes inside a shared inbox.",
}

func TestTokenize(t *testing.T) {
	got, err := Tokenize("How do I configure the Automations? Routing rules!")
	if err != nil {
		t.Fatalf("Tokenize() = %v", err)
	}
	want := []string{"configure", "automation", "rout", "rule"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %q, want %q", got, want)
	}
}

func TestLocalEncodeIsDeterministic(t *testing.T) {
	p, err := NewLocal(128).Fit(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}

	first, err := p.Encode(context.Background(), []string{corpus[0], "configure automations"})
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	second, err := p.Encode(context.Background(), []string{corpus[0], "configure automations"})
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Encode() calls returned different vectors")
	}
	for i, v := range first {
		if len(v) != 128 {
			t.Errorf("vector %d has dimension %d", i, len(v))
		}
	}
	if p.Dimension() != 128 || p.Name() != LocalName {
		t.Errorf("Dimension() = %d, Name() = %q", p.Dimension(), p.Name())
	}
}

func TestLocalRanksRelevantArticleFirst(t *testing.T) {
	p, err := NewLocal(DefaultDimension).Fit(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	docs, err := p.Encode(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Encode(corpus) = %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"How do I configure automations in Hiver?", 0},
		{"What are SLA response targets?", 1},
		{"assign conversations to teammates", 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := p.Encode(context.Background(), []string{tt.query})
			if err != nil {
				t.Fatalf("Encode() = %v", err)
			}
			best, bestScore := -1, -2.0
			for i, d := range docs {
				if s := cosine(q[0], d); s > bestScore {
					best, bestScore = i, s
				}
			}
			if best != tt.want {
				t.Errorf("best match = %d (%.3f), want %d", best, bestScore, tt.want)
			}
		})
	}
}

func TestLocalFittedIgnoresUnseenFeatures(t *testing.T) {
	l := NewLocal(64)
	if l.Fitted() {
		t.Fatal("new encoder should be unfitted")
	}
	p, err := l.Fit(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Fit() = %v", err)
	}
	fitted := p.(*Local)
	if !fitted.Fitted() || fitted.VocabularySize() == 0 {
		t.Fatalf("fitted encoder reports Fitted=%v vocabulary=%d", fitted.Fitted(), fitted.VocabularySize())
	}
	if l.Fitted() {
		t.Error("Fit must not modify the receiver")
	}

	vecs, err := fitted.Encode(context.Background(), []string{"xyzzyq"})
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatalf("unseen term produced non-zero vector %v", vecs[0])
		}
	}

	raw, err := l.Encode(context.Background(), []string{"xyzzyq"})
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	nonZero := false
	for _, v := range raw[0] {
		nonZero = nonZero || v != 0
	}
	if !nonZero {
		t.Error("unfitted encoder should weight every feature")
	}
}

func TestEncodeRejectsBlankInput(t *testing.T) {
	providers := map[string]Provider{
		"local":  NewLocal(32),
		"openai": NewOpenAI(&fakeEmbedder{dim: 4}, "m", 4),
	}
	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			for _, in := range [][]string{nil, {""}, {"ok", "   \n"}} {
				if _, err := p.Encode(context.Background(), in); !errors.Is(err, ErrEncoding) {
					t.Errorf("Encode(%q) = %v, want ErrEncoding", in, err)
				}
			}
		})
	}
}

type fakeEmbedder struct {
	mu    sync.Mutex
	dim   int
	calls [][]string
	err   error
	short bool
}

func (f *fakeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		dim := f.dim
		if f.short {
			dim--
		}
		v := make([]float32, dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func TestOpenAIValidatesResponses(t *testing.T) {
	ok := NewOpenAI(&fakeEmbedder{dim: 3}, "text-embedding-3-small", 3)
	vecs, err := ok.Encode(context.Background(), []string{"abc", "de"})
	if err != nil || len(vecs) != 2 || vecs[0][0] != 3 || vecs[1][0] != 2 {
		t.Fatalf("Encode() = %v, %v", vecs, err)
	}
	if ok.Name() != "openai:text-embedding-3-small" {
		t.Errorf("Name() = %q", ok.Name())
	}

	failing := NewOpenAI(&fakeEmbedder{dim: 3, err: errors.New("boom")}, "m", 3)
	if _, err := failing.Encode(context.Background(), []string{"a"}); !errors.Is(err, ErrEncoding) {
		t.Errorf("backend failure = %v, want ErrEncoding", err)
	}

	wrongDim := NewOpenAI(&fakeEmbedder{dim: 3, short: true}, "m", 3)
	if _, err := wrongDim.Encode(context.Background(), []string{"a"}); !errors.Is(err, ErrEncoding) {
		t.Errorf("dimension mismatch = %v, want ErrEncoding", err)
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
	fail bool
}

func (m *mapCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, false, errors.New("cache down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) SetEmbedding(ctx context.Context, key string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.data[key] = vec
	return nil
}

func TestCachedEncodesOnlyMisses(t *testing.T) {
	backend := &fakeEmbedder{dim: 2}
	c, err := NewCached(NewOpenAI(backend, "m", 2), &mapCache{data: map[string][]float32{}})
	if err != nil {
		t.Fatalf("NewCached() = %v", err)
	}

	if _, err := c.Encode(context.Background(), []string{"alpha", "beta"}); err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	got, err := c.Encode(context.Background(), []string{"beta", "gamma!", "alpha"})
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}

	if len(backend.calls) != 2 || !reflect.DeepEqual(backend.calls[1], []string{"gamma!"}) {
		t.Errorf("backend calls = %q, want second call for the miss only", backend.calls)
	}
	if got[0][0] != 4 || got[1][0] != 6 || got[2][0] != 5 {
		t.Errorf("vectors out of order: %v", got)
	}
}

func TestCachedSurvivesCacheFailure(t *testing.T) {
	c, err := NewCached(NewOpenAI(&fakeEmbedder{dim: 2}, "m", 2), &mapCache{fail: true})
	if err != nil {
		t.Fatalf("NewCached() = %v", err)
	}
	if _, err := c.Encode(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("Encode() with failing cache = %v", err)
	}
}

func TestCachedRefusesFitter(t *testing.T) {
	if _, err := NewCached(NewLocal(8), &mapCache{}); !errors.Is(err, ErrNotCacheable) {
		t.Fatalf("NewCached(local) = %v, want ErrNotCacheable", err)
	}
}
