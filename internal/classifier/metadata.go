package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata is the optional sidecar describing an exported model. When present
// its input shape takes precedence over what the runtime reports.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// LoadMetadata reads a metadata sidecar. An empty path returns nil, nil.
func LoadMetadata(path string) (*Metadata, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read metadata: %v", ErrModelLoad, err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata: %v", ErrModelLoad, err)
	}
	if len(md.InputShape) == 0 {
		return nil, fmt.Errorf("%w: metadata %s has no input_shape", ErrModelLoad, path)
	}
	return &md, nil
}
