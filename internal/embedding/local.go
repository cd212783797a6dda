package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

const (
	LocalName        = "local-tfidf"
	DefaultDimension = 384

	trigramWeight = 0.3
)

// Local is a hashed TF-IDF encoder. Word stems and their character trigrams are
// weighted by sublinear term frequency and smoothed inverse document frequency,
// then folded into Dimension() buckets with signed FNV-1a hashing.
//
// An unfitted Local weights every feature with idf 1. Fit learns document
// frequencies from a corpus; a fitted encoder ignores features the corpus never
// contained.
type Local struct {
	dim  int
	docs int
	df   map[string]int
}

func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Local{dim: dim}
}

func (l *Local) Name() string   { return LocalName }
func (l *Local) Dimension() int { return l.dim }

// Fitted reports whether document frequencies have been learned.
func (l *Local) Fitted() bool { return l.df != nil }

// VocabularySize is the number of distinct features seen while fitting.
func (l *Local) VocabularySize() int { return len(l.df) }

func (l *Local) Fit(ctx context.Context, corpus []string) (Provider, error) {
	df := make(map[string]int)
	for i, text := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		feats, err := features(text)
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrEncoding, i, err)
		}
		for f := range feats {
			df[f]++
		}
	}
	return &Local{dim: l.dim, docs: len(corpus), df: df}, nil
}

func (l *Local) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateInput(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		feats, err := features(text)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrEncoding, i, err)
		}
		out[i] = l.vectorize(feats)
	}
	return out, nil
}

func (l *Local) idf(feature string) (float64, bool) {
	if l.df == nil {
		return 1, true
	}
	df := l.df[feature]
	if df == 0 {
		return 0, false
	}
	return math.Log(float64(1+l.docs)/float64(1+df)) + 1, true
}

func (l *Local) vectorize(feats map[string]int) []float32 {
	keys := make([]string, 0, len(feats))
	for f := range feats {
		keys = append(keys, f)
	}
	// Summation order is fixed so equal inputs give bit-identical vectors.
	sort.Strings(keys)

	acc := make([]float64, l.dim)
	for _, f := range keys {
		idf, ok := l.idf(f)
		if !ok {
			continue
		}
		weight := (1 + math.Log(float64(feats[f]))) * idf
		if strings.HasPrefix(f, "g:") {
			weight *= trigramWeight
		}

		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		bucket := int(sum % uint64(l.dim))
		if sum>>63 == 1 {
			weight = -weight
		}
		acc[bucket] += weight
	}

	vec := make([]float32, l.dim)
	for i, v := range acc {
		vec[i] = float32(v)
	}
	return vec
}

// features counts the word stems ("w:") and stem trigrams ("g:") of text.
func features(text string) (map[string]int, error) {
	terms, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	feats := make(map[string]int, len(terms)*4)
	for _, term := range terms {
		feats["w:"+term]++
		padded := []rune("^" + term + "$")
		for i := 0; i+3 <= len(padded); i++ {
			feats["g:"+string(padded[i:i+3])]++
		}
	}
	return feats, nil
}

// Tokenize returns the lower-cased, stop-word-free, stemmed terms of text.
func Tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	var terms []string
	for _, tok := range doc.Tokens() {
		parts := strings.FieldsFunc(strings.ToLower(tok.Text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, p := range parts {
			if len([]rune(p)) < 2 || stopWords[p] {
				continue
			}
			terms = append(terms, stem(p))
		}
	}
	return terms, nil
}

func stem(w string) string {
	n := len(w)
	switch {
	case n > 5 && strings.HasSuffix(w, "ing"):
		return w[:n-3]
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 4 && strings.HasSuffix(w, "ed"):
		return w[:n-2]
	case n > 4 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:n-1]
	}
	return w
}

var stopWords = func() map[string]bool {
	words := strings.Fields(`
a about above after again against all also am an and any are aren as at be because
been before being below between both but by can cannot could couldn did didn do does
doesn doing don down during each else etc ever every few for from further get got had
hadn has hasn have haven having he her here hers herself him himself his how however
i if in into is isn it its itself just let me might more most much must mustn my myself
no nor not now of off often on once only or other our ours ourselves out over own per
quite rather same shall she should shouldn since so some still such than that the their
theirs them themselves then there these they this those through thus to too under until
up upon us very via was wasn we were weren what when where whether which while who whom
whose why will with within without won would wouldn yet you your yours yourself yourselves`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
