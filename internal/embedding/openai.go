package embedding

import (
	"context"
	"fmt"
)

// BatchEmbedder is the part of the LLM client used for remote embeddings.
type BatchEmbedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAI encodes texts through an OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	client BatchEmbedder
	model  string
	dim    int
}

func NewOpenAI(client BatchEmbedder, model string, dim int) *OpenAI {
	return &OpenAI{client: client, model: model, dim: dim}
}

func (o *OpenAI) Name() string   { return "openai:" + o.model }
func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateInput(texts); err != nil {
		return nil, err
	}

	vecs, err := o.client.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEncoding, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != o.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEncoding, i, len(v), o.dim)
		}
	}
	return vecs, nil
}
