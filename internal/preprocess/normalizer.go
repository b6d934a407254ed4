package preprocess

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ColorMode selects how many channels the normalizer emits
type ColorMode int

const (
	// ColorRGB emits three channels in R, G, B order
	ColorRGB ColorMode = iota
	// ColorGray emits a single ITU-R 601 luma channel
	ColorGray
)

// Channels returns the channel count produced by the mode
func (m ColorMode) Channels() int {
	if m == ColorGray {
		return 1
	}
	return 3
}

// Normalizer turns an image source into a float tensor scaled to [0, 1].
// It holds no per-request state and is safe for concurrent use.
type Normalizer struct {
	filter imaging.ResampleFilter
}

// NewNormalizer creates a normalizer using bilinear resampling. Every resize in the
// process goes through the same filter so that fixtures stay reproducible.
func NewNormalizer() *Normalizer {
	return &Normalizer{filter: imaging.Linear}
}

// Normalize decodes src, resizes it to target when target is non-nil, and returns
// an (H, W, 3) RGB tensor.
func (n *Normalizer) Normalize(src ImageSource, target *Size) (Tensor, error) {
	return n.NormalizeMode(src, target, ColorRGB)
}

// NormalizeMode is Normalize with an explicit channel layout
func (n *Normalizer) NormalizeMode(src ImageSource, target *Size, mode ColorMode) (Tensor, error) {
	if target != nil && (target.Width <= 0 || target.Height <= 0) {
		return Tensor{}, fmt.Errorf("%w: %s", ErrInvalidTargetSize, target)
	}

	img, _, err := src.Decode()
	if err != nil {
		return Tensor{}, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Tensor{}, fmt.Errorf("%w: empty image bounds %v", ErrDecode, b)
	}

	var nrgba *image.NRGBA
	if target != nil {
		nrgba = imaging.Resize(img, target.Width, target.Height, n.filter)
	} else {
		nrgba = imaging.Clone(img)
	}

	return toTensor(nrgba, mode), nil
}

// toTensor reads non-premultiplied samples so that alpha never darkens the colors
func toTensor(img *image.NRGBA, mode ColorMode) Tensor {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	c := mode.Channels()
	data := make([]float32, w*h*c)

	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			if mode == ColorGray {
				data[i] = float32(luma(r, g, bl)) / 255.0
				i++
				continue
			}
			data[i] = float32(r) / 255.0
			data[i+1] = float32(g) / 255.0
			data[i+2] = float32(bl) / 255.0
			i += 3
		}
	}

	return Tensor{Shape: []int{h, w, c}, Data: data}
}

// luma matches color.GrayModel's 601 weighting on 8-bit samples
func luma(r, g, b uint8) uint8 {
	y := (19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16
	return uint8(y)
}
