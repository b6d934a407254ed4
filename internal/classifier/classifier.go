// Package classifier wraps the trained wildfire model behind a small scoring
// interface. The model is opaque: it accepts one batch-of-one tensor in its
// declared layout and yields a probability of wildfire presence.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

var (
	// ErrScoring marks a classifier invocation that produced no usable score
	ErrScoring = errors.New("scoring failed")
	// ErrModelLoad marks a model that could not be opened or inspected
	ErrModelLoad = errors.New("model load failed")
)

// Classifier scores a prepared tensor
type Classifier interface {
	// InputShape is the declared input layout, read once when the model is loaded
	InputShape() []int64
	Score(t preprocess.Tensor) (float64, error)
	Close() error
}

// ScoreFromOutput takes element [0] of the first output as the score
func ScoreFromOutput(out []float32) (float64, error) {
	if len(out) == 0 {
		return 0, fmt.Errorf("%w: empty output", ErrScoring)
	}
	score := float64(out[0])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: non-finite score %v", ErrScoring, score)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: score %v outside [0,1]", ErrScoring, score)
	}
	return score, nil
}

// checkInput rejects tensors that do not match the declared element count
func checkInput(declared []int64, t preprocess.Tensor) error {
	want := int64(1)
	for _, d := range declared {
		if d > 0 {
			want *= d
		}
	}
	if int64(len(t.Data)) != want {
		return fmt.Errorf("%w: tensor has %d elements, model expects %d (%v)", ErrScoring, len(t.Data), want, declared)
	}
	return nil
}

type serialized struct {
	mu    sync.Mutex
	inner Classifier
}

// Serialize guards Score with a mutex for backends whose runtime handle is not
// safe for concurrent use. Wrapping an already serialized classifier is a no-op.
func Serialize(c Classifier) Classifier {
	if s, ok := c.(*serialized); ok {
		return s
	}
	return &serialized{inner: c}
}

func (s *serialized) InputShape() []int64 { return s.inner.InputShape() }

func (s *serialized) Score(t preprocess.Tensor) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Score(t)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

// Func adapts a plain scoring function, mostly for tests and fixtures
type Func struct {
	Shape []int64
	Fn    func(preprocess.Tensor) (float64, error)
}

func (f Func) InputShape() []int64 { return append([]int64(nil), f.Shape...) }

func (f Func) Score(t preprocess.Tensor) (float64, error) {
	if f.Fn == nil {
		return 0, fmt.Errorf("%w: no scoring function", ErrScoring)
	}
	return f.Fn(t)
}

func (f Func) Close() error { return nil }
