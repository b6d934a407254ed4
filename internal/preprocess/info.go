package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
)

// ImageMetadata describes an uploaded image for diagnostics and alert content
type ImageMetadata struct {
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Channels    int     `json:"channels"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// NewImageMetadata fills in the derived aspect ratio. A zero height yields 0.
func NewImageMetadata(format string, width, height, channels int) ImageMetadata {
	return ImageMetadata{
		Format:      format,
		Width:       width,
		Height:      height,
		Channels:    channels,
		AspectRatio: AspectRatio(width, height),
	}
}

// AspectRatio returns width/height, or 0 when height is not positive
func AspectRatio(width, height int) float64 {
	if height <= 0 {
		return 0
	}
	return float64(width) / float64(height)
}

// IsZero reports whether no metadata was collected
func (m ImageMetadata) IsZero() bool {
	return m == ImageMetadata{}
}

// Map renders the metadata as a plain mapping for message templates
func (m ImageMetadata) Map() map[string]any {
	return map[string]any{
		"format":       m.Format,
		"width":        m.Width,
		"height":       m.Height,
		"channels":     m.Channels,
		"aspect_ratio": m.AspectRatio,
	}
}

func (m ImageMetadata) String() string {
	return fmt.Sprintf("%s %dx%d, %d channel(s), aspect ratio %.3f",
		m.Format, m.Width, m.Height, m.Channels, m.AspectRatio)
}

// ExtractInfo inspects an image source without modifying it. Path sources are
// read only as far as the header; decoded sources are inspected directly.
func ExtractInfo(src ImageSource) (ImageMetadata, error) {
	switch src.Kind() {
	case SourcePath:
		f, err := openFile(src.Path())
		if err != nil {
			return ImageMetadata{}, fmt.Errorf("%w: %w", ErrNotAnImage, err)
		}
		defer f.Close()

		var header bytes.Buffer
		cfg, format, err := image.DecodeConfig(io.TeeReader(f, &header))
		if err != nil {
			return ImageMetadata{}, fmt.Errorf("%w: %w: %v", ErrNotAnImage, ErrDecode, err)
		}
		bands := headerBands(header.Bytes())
		if bands == 0 {
			bands = channelCount(cfg.ColorModel)
		}
		return NewImageMetadata(formatLabel(SourcePath, format), cfg.Width, cfg.Height, bands), nil

	case SourceDecoded:
		img := src.Image()
		if img == nil {
			return ImageMetadata{}, fmt.Errorf("%w: %w", ErrNotAnImage, ErrUnsupportedSource)
		}
		b := img.Bounds()
		return NewImageMetadata(formatLabel(src.Origin(), src.Format()), b.Dx(), b.Dy(), imageBands(src)), nil

	default:
		return ImageMetadata{}, fmt.Errorf("%w: %w", ErrNotAnImage, ErrUnsupportedSource)
	}
}

func formatLabel(origin SourceKind, format string) string {
	if origin == SourcePath {
		if format == "" {
			return "File"
		}
		return fmt.Sprintf("File (%s)", format)
	}
	if format == "" {
		return "Decoded image"
	}
	return fmt.Sprintf("Decoded (%s)", format)
}

// imageBands prefers the count recorded from the file header. Without one, an
// opaque RGBA or NRGBA image is reported as 3 bands since the png decoder
// returns RGBA for plain truecolor files.
func imageBands(src ImageSource) int {
	if src.bands > 0 {
		return src.bands
	}
	img := src.Image()
	n := channelCount(img.ColorModel())
	if n == 4 {
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			return 3
		}
	}
	return n
}

// channelCount maps a color model to the number of stored bands
func channelCount(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	case color.YCbCrModel:
		return 3
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model,
		color.NYCbCrAModel, color.CMYKModel:
		return 4
	}
	if _, ok := m.(color.Palette); ok {
		return 1
	}
	return 3
}
