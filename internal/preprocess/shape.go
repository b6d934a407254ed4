package preprocess

import (
	"fmt"
	"math"
)

// ShapeKind tags the active TargetShape variant
type ShapeKind int

const (
	ShapeInvalid ShapeKind = iota
	ShapeSpatial
	ShapeFlattened
)

// TargetShape is the input contract of a classifier: either a spatial
// (height, width, channels) image or a flattened feature vector.
type TargetShape struct {
	kind     ShapeKind
	height   int
	width    int
	channels int
	features int
}

// Spatial describes a rank-4 (1, h, w, c) input
func Spatial(height, width, channels int) TargetShape {
	return TargetShape{kind: ShapeSpatial, height: height, width: width, channels: channels}
}

// Flattened describes a rank-2 (1, featureCount) input
func Flattened(featureCount int) TargetShape {
	return TargetShape{kind: ShapeFlattened, features: featureCount}
}

func (s TargetShape) Kind() ShapeKind { return s.kind }
func (s TargetShape) Height() int     { return s.height }
func (s TargetShape) Width() int      { return s.width }
func (s TargetShape) Channels() int   { return s.channels }
func (s TargetShape) Features() int   { return s.features }

func (s TargetShape) String() string {
	switch s.kind {
	case ShapeSpatial:
		return fmt.Sprintf("Spatial(%d,%d,%d)", s.height, s.width, s.channels)
	case ShapeFlattened:
		return fmt.Sprintf("Flattened(%d)", s.features)
	default:
		return "Invalid"
	}
}

// Validate checks that the shape maps onto a tensor layout the normalizer can fill
func (s TargetShape) Validate() error {
	switch s.kind {
	case ShapeSpatial:
		if s.height <= 0 || s.width <= 0 {
			return fmt.Errorf("%w: %s has non-positive spatial dimensions", ErrUnsupportedModelShape, s)
		}
		if s.channels != 1 && s.channels != 3 {
			return fmt.Errorf("%w: %s needs 1 or 3 channels", ErrUnsupportedModelShape, s)
		}
		return nil
	case ShapeFlattened:
		if _, err := flattenedSide(s.features); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: no shape variant set", ErrUnsupportedModelShape)
	}
}

// flattenedSide recovers the square side of a 3-channel flattened input.
// Feature counts that are not 3·k² are rejected instead of guessed.
func flattenedSide(n int) (int, error) {
	if n <= 0 || n%3 != 0 {
		return 0, fmt.Errorf("%w: Flattened(%d) is not divisible into 3 channels", ErrUnsupportedModelShape, n)
	}
	side := int(math.Floor(math.Sqrt(float64(n / 3))))
	// guard against float rounding just below an exact square
	for (side+1)*(side+1)*3 <= n {
		side++
	}
	if side <= 0 || side*side*3 != n {
		return 0, fmt.Errorf("%w: Flattened(%d) does not describe a square 3-channel image", ErrUnsupportedModelShape, n)
	}
	return side, nil
}

// ShapeFromDims maps a classifier's declared input dimensions to a TargetShape.
// Rank 4 is read as [batch, height, width, channels] and rank 2 as
// [batch, features]. The batch dimension may be dynamic (-1 or 0) or 1; any
// other dynamic dimension or rank is unsupported.
func ShapeFromDims(dims []int64) (TargetShape, error) {
	if len(dims) != 4 && len(dims) != 2 {
		return TargetShape{}, fmt.Errorf("%w: rank %d input %v", ErrUnsupportedModelShape, len(dims), dims)
	}
	if b := dims[0]; b > 1 {
		return TargetShape{}, fmt.Errorf("%w: fixed batch size %d in %v", ErrUnsupportedModelShape, b, dims)
	}
	for _, d := range dims[1:] {
		if d <= 0 {
			return TargetShape{}, fmt.Errorf("%w: dynamic dimension in %v", ErrUnsupportedModelShape, dims)
		}
	}

	var shape TargetShape
	if len(dims) == 4 {
		shape = Spatial(int(dims[1]), int(dims[2]), int(dims[3]))
	} else {
		shape = Flattened(int(dims[1]))
	}
	if err := shape.Validate(); err != nil {
		return TargetShape{}, err
	}
	return shape, nil
}
