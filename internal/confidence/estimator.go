// Package confidence turns top similarity scores into a single confidence value.
package confidence

import (
	"errors"
	"fmt"
	"math"
)

var (
	DefaultWeights = []float64{0.5, 0.3, 0.2}

	ErrInvalidWeights    = errors.New("invalid confidence weights")
	ErrInvalidSaturation = errors.New("invalid confidence saturation")
)

// DefaultSaturation is the cosine score at which a match counts as certain.
const DefaultSaturation = 0.5

// Estimator computes sum(w_i * clamp(s_i / saturation, 0, 1)) over the first
// len(weights) scores, clamped to [0, 1].
type Estimator struct {
	weights    []float64
	saturation float64
}

func New(weights []float64, saturation float64) (*Estimator, error) {
	if len(weights) == 0 || len(weights) > 3 {
		return nil, fmt.Errorf("%w: need 1 to 3 weights, got %d", ErrInvalidWeights, len(weights))
	}
	var sum float64
	for i, w := range weights {
		if !(w > 0) {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalidWeights, i, w)
		}
		if i > 0 && w >= weights[i-1] {
			return nil, fmt.Errorf("%w: weights must be strictly decreasing", ErrInvalidWeights)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return nil, fmt.Errorf("%w: weights sum to %v", ErrInvalidWeights, sum)
	}
	if !(saturation > 0 && saturation <= 1) {
		return nil, fmt.Errorf("%w: %v not in (0, 1]", ErrInvalidSaturation, saturation)
	}

	return &Estimator{
		weights:    append([]float64(nil), weights...),
		saturation: saturation,
	}, nil
}

// Default uses weights 0.5, 0.3, 0.2 and saturation 0.5.
func Default() *Estimator {
	e, err := New(DefaultWeights, DefaultSaturation)
	if err != nil {
		panic(err)
	}
	return e
}

// Estimate expects scores in rank order. Missing scores contribute nothing.
func (e *Estimator) Estimate(scores []float64) float64 {
	var total float64
	for i, w := range e.weights {
		if i >= len(scores) {
			break
		}
		total += w * e.calibrate(scores[i])
	}
	return clamp01(total)
}

func (e *Estimator) calibrate(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return clamp01(score / e.saturation)
}

func (e *Estimator) Weights() []float64 {
	return append([]float64(nil), e.weights...)
}

func (e *Estimator) Saturation() float64 { return e.saturation }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
