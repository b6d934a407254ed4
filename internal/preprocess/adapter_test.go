package preprocess

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_SpatialShape(t *testing.T) {
	adapter, err := NewAdapter(Spatial(150, 150, 3), NewNormalizer())
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 150, Height: 150}, adapter.ResizeTarget())
	assert.Equal(t, []int{1, 150, 150, 3}, adapter.OutputShape())

	tensor, err := adapter.Prepare(FromImage(createGradientImage(300, 200), "jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 150, 150, 3}, tensor.Shape)
	assert.Len(t, tensor.Data, 150*150*3)
}

func TestAdapter_SpatialNonSquare(t *testing.T) {
	adapter, err := NewAdapter(Spatial(32, 48, 3), nil)
	require.NoError(t, err)
	// resize target is (width, height)
	assert.Equal(t, Size{Width: 48, Height: 32}, adapter.ResizeTarget())

	tensor, err := adapter.Prepare(FromImage(createGradientImage(10, 10), ""))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 32, 48, 3}, tensor.Shape)
}

func TestAdapter_SpatialGray(t *testing.T) {
	adapter, err := NewAdapter(Spatial(8, 8, 1), nil)
	require.NoError(t, err)

	tensor, err := adapter.Prepare(FromImage(createTestImage(20, 20, color.RGBA{255, 255, 255, 255}), ""))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 8, 1}, tensor.Shape)
	assert.Len(t, tensor.Data, 64)
}

func TestAdapter_Flattened(t *testing.T) {
	adapter, err := NewAdapter(Flattened(12288), NewNormalizer())
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 64, Height: 64}, adapter.ResizeTarget())
	assert.Equal(t, []int{1, 12288}, adapter.OutputShape())

	tensor, err := adapter.Prepare(FromImage(createGradientImage(300, 200), ""))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 12288}, tensor.Shape)
	assert.Len(t, tensor.Data, 12288)
}

func TestAdapter_FromPath(t *testing.T) {
	path := writeJPEG(t, createGradientImage(300, 200), "upload.jpg")
	adapter, err := NewAdapter(Spatial(150, 150, 3), nil)
	require.NoError(t, err)

	tensor, err := adapter.Prepare(FromPath(path))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 150, 150, 3}, tensor.Shape)
}

func TestAdapter_RejectsUnsupportedShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape TargetShape
	}{
		{name: "flattened not divisible by 3", shape: Flattened(100)},
		{name: "flattened not square", shape: Flattened(3 * 5)},
		{name: "flattened zero", shape: Flattened(0)},
		{name: "four channels", shape: Spatial(64, 64, 4)},
		{name: "zero height", shape: Spatial(0, 64, 3)},
		{name: "no variant", shape: TargetShape{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.shape, nil)
			assert.Nil(t, adapter)
			assert.ErrorIs(t, err, ErrUnsupportedModelShape)
		})
	}
}

func TestAdapter_PropagatesDecodeFailure(t *testing.T) {
	adapter, err := NewAdapter(Spatial(4, 4, 3), nil)
	require.NoError(t, err)

	_, err = adapter.Prepare(FromPath("/definitely/not/here.png"))
	assert.ErrorIs(t, err, ErrUnreadablePath)
}

func TestShapeFromDims(t *testing.T) {
	tests := []struct {
		name    string
		dims    []int64
		want    TargetShape
		wantErr bool
	}{
		{name: "keras spatial dynamic batch", dims: []int64{-1, 150, 150, 3}, want: Spatial(150, 150, 3)},
		{name: "spatial fixed batch", dims: []int64{1, 224, 224, 3}, want: Spatial(224, 224, 3)},
		{name: "flattened", dims: []int64{-1, 12288}, want: Flattened(12288)},
		{name: "rank 3", dims: []int64{150, 150, 3}, wantErr: true},
		{name: "rank 1", dims: []int64{12288}, wantErr: true},
		{name: "dynamic spatial", dims: []int64{-1, -1, -1, 3}, wantErr: true},
		{name: "batch larger than one", dims: []int64{8, 150, 150, 3}, wantErr: true},
		{name: "flattened not square", dims: []int64{1, 100}, wantErr: true},
		{name: "channels first", dims: []int64{1, 3, 224, 224}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShapeFromDims(tt.dims)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedModelShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetShape_String(t *testing.T) {
	assert.Equal(t, "Spatial(150,150,3)", Spatial(150, 150, 3).String())
	assert.Equal(t, "Flattened(12288)", Flattened(12288).String())
	assert.Equal(t, "Invalid", TargetShape{}.String())
}
