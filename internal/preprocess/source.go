package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SourceKind tags the active variant of an ImageSource
type SourceKind int

const (
	// SourceUnknown is the zero value and is never a valid source
	SourceUnknown SourceKind = iota
	// SourcePath reads and decodes a file on disk
	SourcePath
	// SourceDecoded wraps an image that is already in memory
	SourceDecoded
)

func (k SourceKind) String() string {
	switch k {
	case SourcePath:
		return "path"
	case SourceDecoded:
		return "decoded"
	default:
		return "unknown"
	}
}

// ImageSource is either a filesystem path or an already decoded image.
// Consumers hand it to the extractor and normalizer without caring which.
type ImageSource struct {
	kind   SourceKind
	origin SourceKind
	path   string
	img    image.Image
	format string
	bands  int
}

// FromPath creates a source that decodes the file at path on demand
func FromPath(path string) ImageSource {
	return ImageSource{kind: SourcePath, origin: SourcePath, path: path}
}

// FromImage wraps a decoded image. format is the codec name reported by
// image.Decode ("jpeg", "png", ...) and may be empty.
func FromImage(img image.Image, format string) ImageSource {
	return ImageSource{kind: SourceDecoded, origin: SourceDecoded, img: img, format: format}
}

// FromReader decodes r into a decoded source. Images larger than MaxPixels
// are rejected from their header with ErrDecode.
func FromReader(r io.Reader) (ImageSource, error) {
	d, err := decodeLimited(r)
	if err != nil {
		return ImageSource{}, err
	}
	src := FromImage(d.img, d.format)
	src.bands = d.bands
	return src, nil
}

// FromBytes decodes an in-memory payload such as an upload body
func FromBytes(data []byte) (ImageSource, error) {
	if len(data) == 0 {
		return ImageSource{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	return FromReader(bytes.NewReader(data))
}

// Kind reports the active variant
func (s ImageSource) Kind() SourceKind { return s.kind }

// Origin reports how the image originally entered the system. It survives Resolve.
func (s ImageSource) Origin() SourceKind { return s.origin }

// Path returns the filesystem path for path sources, or the path a resolved
// source was read from.
func (s ImageSource) Path() string { return s.path }

// Format returns the codec name when known
func (s ImageSource) Format() string { return s.format }

// Image returns the decoded image for decoded sources
func (s ImageSource) Image() image.Image { return s.img }

// Decode returns the pixel data of the source, reading the file for path sources
func (s ImageSource) Decode() (image.Image, string, error) {
	switch s.kind {
	case SourcePath:
		d, err := decodeFile(s.path)
		if err != nil {
			return nil, "", err
		}
		return d.img, d.format, nil
	case SourceDecoded:
		if s.img == nil {
			return nil, "", fmt.Errorf("%w: nil image", ErrUnsupportedSource)
		}
		return s.img, s.format, nil
	default:
		return nil, "", ErrUnsupportedSource
	}
}

// Resolve decodes a path source once and returns a decoded source that still
// reports its original kind. Decoded sources are returned unchanged.
func (s ImageSource) Resolve() (ImageSource, error) {
	switch s.kind {
	case SourcePath:
		d, err := decodeFile(s.path)
		if err != nil {
			return ImageSource{}, err
		}
		return ImageSource{kind: SourceDecoded, origin: s.origin, path: s.path, img: d.img, format: d.format, bands: d.bands}, nil
	case SourceDecoded:
		if s.img == nil {
			return ImageSource{}, fmt.Errorf("%w: nil image", ErrUnsupportedSource)
		}
		return s, nil
	default:
		return ImageSource{}, ErrUnsupportedSource
	}
}

func openFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnreadablePath)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePath, err)
	}
	return f, nil
}

func decodeFile(path string) (decoded, error) {
	f, err := openFile(path)
	if err != nil {
		return decoded{}, err
	}
	defer f.Close()

	d, err := decodeLimited(f)
	if err != nil {
		return decoded{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
