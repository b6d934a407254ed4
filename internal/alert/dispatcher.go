// Package alert notifies an operator when a wildfire is detected
package alert

import (
	"context"
	"errors"

	"github.com/anime-shed/smokesignal-go/internal/decision"
)

var (
	// ErrDispatch marks a notification that could not be delivered
	ErrDispatch = errors.New("alert dispatch failed")
	// ErrAuthentication marks a delivery rejected for bad credentials
	ErrAuthentication = errors.New("email authentication failed")
	// ErrCredentialsMissing is returned when sender settings are incomplete
	ErrCredentialsMissing = errors.New("email credentials not configured")
)

// Dispatcher delivers one alert per positive detection. Errors wrap ErrDispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, result decision.DetectionResult) error
}

// OptionsFor derives message options from a detection result
func OptionsFor(result decision.DetectionResult) Options {
	score := result.Confidence
	opts := Options{ConfidenceScore: &score}
	if !result.Metadata.IsZero() {
		opts.Metadata = result.Metadata.Map()
	}
	return opts
}
