// Package embedding maps text to fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEncoding is returned when a text cannot be embedded: blank input, a backend
// failure, or a malformed backend response.
var ErrEncoding = errors.New("embedding failed")

// Provider encodes texts into vectors of Dimension() floats, one per input and in
// input order. The same text always yields the same vector.
type Provider interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// Fitter is a Provider whose vectors depend on the corpus it was fitted on. Fit
// returns a new provider and leaves the receiver untouched.
type Fitter interface {
	Provider
	Fit(ctx context.Context, corpus []string) (Provider, error)
}

func validateInput(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no input texts", ErrEncoding)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: input %d is blank", ErrEncoding, i)
		}
	}
	return nil
}
