package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/anime-shed/smokesignal-go/internal/preprocess"
)

// BlobScheme prefixes blob references: azblob://container/path/to/blob
const BlobScheme = "azblob"

// AzureBlobFetcher downloads images from an Azure storage account
type AzureBlobFetcher struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureBlobFetcher authenticates with a shared key. An empty serviceURL
// targets the public endpoint of the account.
func NewAzureBlobFetcher(accountName, accountKey, serviceURL string) (*AzureBlobFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credentials: %w", err)
	}

	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobFetcher{client: client, maxBytes: DefaultMaxImageBytes}, nil
}

// ParseBlobRef splits an azblob:// reference into container and blob name
func ParseBlobRef(ref string) (container, blob string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob reference: %w", err)
	}
	if u.Scheme != BlobScheme {
		return "", "", fmt.Errorf("invalid blob reference: scheme %q", u.Scheme)
	}
	container = u.Host
	blob = strings.TrimPrefix(u.Path, "/")
	if container == "" || blob == "" {
		return "", "", fmt.Errorf("invalid blob reference %q: want %s://container/blob", ref, BlobScheme)
	}
	return container, blob, nil
}

// FetchImage downloads and decodes the referenced blob
func (s *AzureBlobFetcher) FetchImage(ctx context.Context, ref string) (preprocess.ImageSource, error) {
	container, blob, err := ParseBlobRef(ref)
	if err != nil {
		return preprocess.ImageSource{}, err
	}

	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return preprocess.ImageSource{}, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	data, err := readLimited(body, s.maxBytes)
	if err != nil {
		return preprocess.ImageSource{}, err
	}
	src, err := preprocess.FromBytes(data)
	if err != nil {
		return preprocess.ImageSource{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return src, nil
}
