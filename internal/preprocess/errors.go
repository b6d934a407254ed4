package preprocess

import "errors"

var (
	// ErrUnreadablePath indicates the image file is missing or cannot be opened
	ErrUnreadablePath = errors.New("image path is not readable")

	// ErrUnsupportedSource indicates an empty or nil image source
	ErrUnsupportedSource = errors.New("unsupported image source")

	// ErrDecode indicates the bytes are not a supported raster image
	ErrDecode = errors.New("image could not be decoded")

	// ErrNotAnImage is returned by ExtractInfo when the input cannot be inspected
	ErrNotAnImage = errors.New("input is not an image")

	// ErrInvalidTargetSize indicates a non-positive resize target
	ErrInvalidTargetSize = errors.New("invalid target size")

	// ErrUnsupportedModelShape indicates a model input contract that cannot be mapped
	// to a tensor layout
	ErrUnsupportedModelShape = errors.New("unsupported model input shape")
)
