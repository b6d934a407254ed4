package preprocess

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"sync/atomic"
)

// DefaultMaxPixels bounds the decoded size of any image, about 200MB as RGBA
const DefaultMaxPixels int64 = 50_000_000

var maxPixels atomic.Int64

func init() {
	maxPixels.Store(DefaultMaxPixels)
}

// SetMaxPixels sets the largest width*height accepted by every decoder in this
// package. Non-positive values restore the default.
func SetMaxPixels(n int64) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	maxPixels.Store(n)
}

// MaxPixels returns the current decode limit
func MaxPixels() int64 { return maxPixels.Load() }

// decoded is an image together with what its header said about it
type decoded struct {
	img    image.Image
	format string
	// bands is the stored channel count from the file header, 0 when unknown
	bands int
}

// decodeLimited reads the header first and refuses images whose declared
// dimensions exceed the pixel limit, since decoders allocate the full buffer
// from the header before reading any pixel data.
func decodeLimited(r io.Reader) (decoded, error) {
	var header bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return decoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return decoded{}, err
	}
	bands := headerBands(header.Bytes())

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return decoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return decoded{img: img, format: format, bands: bands}, nil
}

func checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: empty image %dx%d", ErrDecode, width, height)
	}
	limit := MaxPixels()
	if int64(width)*int64(height) > limit {
		return fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrDecode, width, height, limit)
	}
	return nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// headerBands reads the stored channel count from a PNG IHDR. Other formats
// report 0 and fall back to the color model.
func headerBands(header []byte) int {
	// signature, IHDR length and type, width, height, bit depth, color type
	const colorTypeOffset = 8 + 8 + 4 + 4 + 1
	if len(header) <= colorTypeOffset || !bytes.HasPrefix(header, pngSignature) {
		return 0
	}
	if string(header[12:16]) != "IHDR" || binary.BigEndian.Uint32(header[8:12]) != 13 {
		return 0
	}
	switch header[colorTypeOffset] {
	case 0, 3: // gray, paletted
		return 1
	case 4: // gray + alpha
		return 2
	case 2: // truecolor
		return 3
	case 6: // truecolor + alpha
		return 4
	}
	return 0
}
