// Package decision turns a classifier score into a wildfire verdict
package decision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

// DefaultThreshold is the score a detection must strictly exceed
const DefaultThreshold = 0.5

const (
	LabelPositive = "Wildfire Detected"
	LabelNegative = "No Wildfire"
)

// ErrInvalidThreshold is returned for thresholds outside [0,1]
var ErrInvalidThreshold = errors.New("threshold must be within [0,1]")

// DetectionResult is the verdict for one request. It is never cached or reused.
type DetectionResult struct {
	ID         string                   `json:"id"`
	Verdict    bool                     `json:"verdict"`
	Confidence float64                  `json:"confidence"`
	Metadata   preprocess.ImageMetadata `json:"metadata"`
	InputShape []int                    `json:"input_shape"`
	Timestamp  time.Time                `json:"timestamp"`
}

// Label renders the verdict for people
func (r DetectionResult) Label() string {
	if r.Verdict {
		return LabelPositive
	}
	return LabelNegative
}

// ConfidencePercent is the confidence scaled to 0-100 for display
func (r DetectionResult) ConfidencePercent() float64 {
	return r.Confidence * 100
}

// Policy applies the threshold rule
type Policy struct {
	threshold float64
	now       func() time.Time
}

// Option customizes a Policy
type Option func(*Policy)

// WithClock replaces the wall clock used to stamp results
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPolicy builds a policy for threshold
func NewPolicy(threshold float64, opts ...Option) (*Policy, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	p := &Policy{threshold: threshold, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Policy) Threshold() float64 { return p.threshold }

// Decide produces a fresh result. A score equal to the threshold is negative.
func (p *Policy) Decide(t preprocess.Tensor, score float64, md preprocess.ImageMetadata) DetectionResult {
	return DetectionResult{
		ID:         uuid.NewString(),
		Verdict:    score > p.threshold,
		Confidence: score,
		Metadata:   md,
		InputShape: append([]int(nil), t.Shape...),
		Timestamp:  p.now(),
	}
}
