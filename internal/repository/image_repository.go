package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
	"github.com/anime-shed/smokesignal-go/internal/storage"
)

// ImageRepository resolves image references into decoded sources
type ImageRepository interface {
	FetchImage(ctx context.Context, ref string) (preprocess.ImageSource, error)
	ValidateImageURL(ref string) error
}

// Validator checks a reference before it is fetched
type Validator interface {
	ValidateImageURL(ref string) error
}

// RoutingImageRepository dispatches references to a fetcher by URL scheme
type RoutingImageRepository struct {
	validator Validator
	fetchers  map[string]storage.ImageFetcher
}

// NewImageRepository routes http and https references to httpFetcher and
// azblob references to blobFetcher. blobFetcher may be nil.
func NewImageRepository(validator Validator, httpFetcher, blobFetcher storage.ImageFetcher) *RoutingImageRepository {
	r := &RoutingImageRepository{
		validator: validator,
		fetchers:  make(map[string]storage.ImageFetcher),
	}
	if httpFetcher != nil {
		r.fetchers["http"] = httpFetcher
		r.fetchers["https"] = httpFetcher
	}
	if blobFetcher != nil {
		r.fetchers[storage.BlobScheme] = blobFetcher
	}
	return r
}

// FetchImage validates ref and retrieves it with the fetcher for its scheme
func (r *RoutingImageRepository) FetchImage(ctx context.Context, ref string) (preprocess.ImageSource, error) {
	if err := r.ValidateImageURL(ref); err != nil {
		return preprocess.ImageSource{}, err
	}
	fetcher, err := r.fetcherFor(ref)
	if err != nil {
		return preprocess.ImageSource{}, err
	}
	return fetcher.FetchImage(ctx, ref)
}

// ValidateImageURL validates ref with the configured validator
func (r *RoutingImageRepository) ValidateImageURL(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrInvalidImageURL
	}
	if r.validator == nil {
		return nil
	}
	return r.validator.ValidateImageURL(ref)
}

func (r *RoutingImageRepository) fetcherFor(ref string) (storage.ImageFetcher, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	fetcher, ok := r.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher configured for %q references", ErrRepositoryUnavailable, scheme)
	}
	return fetcher, nil
}
