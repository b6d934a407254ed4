package preprocess

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Size is a resize target in pixels
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Tensor is a dense float32 array in row-major order. Values produced by the
// normalizer lie in [0, 1].
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len returns the number of elements implied by Shape
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Reshape returns a view of the same data with a new shape. The element count must match.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	out := Tensor{Shape: append([]int(nil), shape...), Data: t.Data}
	if out.Len() != len(t.Data) {
		return Tensor{}, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, len(t.Data), shape)
	}
	return out, nil
}

// Int64Shape converts the shape for runtime APIs that use int64 dimensions
func (t Tensor) Int64Shape() []int64 {
	dims := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = int64(d)
	}
	return dims
}

// TensorStats summarizes tensor values for debug logging
type TensorStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Stats computes summary statistics over the tensor values
func (t Tensor) Stats() TensorStats {
	if len(t.Data) == 0 {
		return TensorStats{}
	}
	values := make([]float64, len(t.Data))
	minV, maxV := float64(t.Data[0]), float64(t.Data[0])
	for i, v := range t.Data {
		f := float64(v)
		values[i] = f
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return TensorStats{Min: minV, Max: maxV, Mean: mean, StdDev: std}
}
