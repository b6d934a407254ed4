package repository

import "errors"

var (
	// ErrInvalidImageURL indicates an invalid image reference
	ErrInvalidImageURL = errors.New("invalid image URL")

	// ErrRepositoryUnavailable indicates no fetcher serves the reference scheme
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
