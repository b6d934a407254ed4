package validation

import (
	"net/url"
	"slices"
	"strings"

	apperrors "github.com/anime-shed/smokesignal-go/internal/errors"
)

// MaxURLLength bounds accepted image references
const MaxURLLength = 2048

// DefaultSchemes are the reference schemes the detector can retrieve from
var DefaultSchemes = []string{"http", "https", "azblob"}

// URLValidator checks image references before any network access
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator accepts http, https and azblob references on any host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: slices.Clone(DefaultSchemes),
	}
}

// NewURLValidatorWithOptions restricts schemes and hosts. An empty host list
// allows every host.
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateImageURL returns a validation AppError describing the first problem
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}
	if len(imageURL) > MaxURLLength {
		return apperrors.NewValidationError("URL is too long", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !slices.Contains(v.allowedSchemes, strings.ToLower(parsedURL.Scheme)) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	// for azblob references the host is the container name
	if parsedURL.Host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if len(v.allowedHosts) > 0 && !slices.Contains(v.allowedHosts, parsedURL.Hostname()) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}
