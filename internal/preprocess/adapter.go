package preprocess

import "fmt"

// Adapter prepares images for one classifier input contract. The contract is
// validated once in NewAdapter so a malformed model fails at startup rather than
// on the first upload.
type Adapter struct {
	shape      TargetShape
	target     Size
	mode       ColorMode
	outShape   []int
	normalizer *Normalizer
}

// NewAdapter validates shape and derives the resize target and output layout
func NewAdapter(shape TargetShape, normalizer *Normalizer) (*Adapter, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = NewNormalizer()
	}

	a := &Adapter{shape: shape, normalizer: normalizer}
	switch shape.Kind() {
	case ShapeSpatial:
		a.target = Size{Width: shape.Width(), Height: shape.Height()}
		a.outShape = []int{1, shape.Height(), shape.Width(), shape.Channels()}
		if shape.Channels() == 1 {
			a.mode = ColorGray
		}
	case ShapeFlattened:
		side, err := flattenedSide(shape.Features())
		if err != nil {
			return nil, err
		}
		a.target = Size{Width: side, Height: side}
		a.outShape = []int{1, shape.Features()}
	}
	return a, nil
}

// Shape returns the contract the adapter was built for
func (a *Adapter) Shape() TargetShape { return a.shape }

// ResizeTarget returns the (width, height) every image is resized to
func (a *Adapter) ResizeTarget() Size { return a.target }

// OutputShape returns the batch-ready tensor layout
func (a *Adapter) OutputShape() []int { return append([]int(nil), a.outShape...) }

// Prepare normalizes src and lays it out as a batch of one
func (a *Adapter) Prepare(src ImageSource) (Tensor, error) {
	target := a.target
	t, err := a.normalizer.NormalizeMode(src, &target, a.mode)
	if err != nil {
		return Tensor{}, err
	}

	out, err := t.Reshape(a.outShape...)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %s: %v", ErrUnsupportedModelShape, a.shape, err)
	}
	return out, nil
}
