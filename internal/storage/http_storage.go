package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

// DefaultMaxImageBytes caps the size of a downloaded image
const DefaultMaxImageBytes int64 = 10 << 20

// ErrImageTooLarge is returned when a download exceeds the size cap
var ErrImageTooLarge = errors.New("image exceeds size limit")

// ImageFetcher retrieves a remote image and returns it decoded
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref string) (preprocess.ImageSource, error)
}

// HTTPOptions tunes the HTTP fetcher
type HTTPOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	Attempts int
	// Backoff returns the pause before retry n (1-based)
	Backoff func(n int) time.Duration
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxImageBytes
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff == nil {
		o.Backoff = func(n int) time.Duration { return time.Duration(n) * time.Second }
	}
	return o
}

// HTTPImageFetcher downloads images over HTTP with bounded retries on
// transient failures
type HTTPImageFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts HTTPOptions) *HTTPImageFetcher {
	opts = opts.withDefaults()

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
	}
}

// FetchImage downloads ref and decodes it. 4xx responses fail immediately;
// network errors and 5xx responses are retried.
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, ref string) (preprocess.ImageSource, error) {
	var lastErr error

	for attempt := 1; attempt <= h.opts.Attempts; attempt++ {
		data, retryable, err := h.attempt(ctx, ref)
		if err == nil {
			src, err := preprocess.FromBytes(data)
			if err != nil {
				return preprocess.ImageSource{}, fmt.Errorf("failed to decode image: %w", err)
			}
			return src, nil
		}

		lastErr = err
		if !retryable || attempt == h.opts.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return preprocess.ImageSource{}, fmt.Errorf("fetch cancelled: %w", ctx.Err())
		case <-time.After(h.opts.Backoff(attempt)):
		}
	}

	return preprocess.ImageSource{}, fmt.Errorf("failed to fetch image after %d attempts: %w", h.opts.Attempts, lastErr)
}

func (h *HTTPImageFetcher) attempt(ctx context.Context, ref string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "SmokeSignal/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.opts.MaxBytes)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrImageTooLarge, limit)
	}
	return data, nil
}
