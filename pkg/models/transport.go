package models

import "time"

// URLDetectionRequest asks for detection on a remote image
type URLDetectionRequest struct {
	URL string `json:"url" binding:"required"`
}

// ErrorResponse represents an error response. Stage names the lifecycle step
// that failed, when known.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// ImageInfo is the image metadata returned to clients
type ImageInfo struct {
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Channels    int     `json:"channels"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// AlertInfo reports what happened to the notification
type AlertInfo struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DetectionResponse is the result of one detection request
type DetectionResponse struct {
	ID                string    `json:"id"`
	Source            string    `json:"source,omitempty"`
	Verdict           bool      `json:"verdict"`
	Label             string    `json:"label"`
	Confidence        float64   `json:"confidence"`
	ConfidencePercent float64   `json:"confidence_percent"`
	Threshold         float64   `json:"threshold"`
	Timestamp         time.Time `json:"timestamp"`
	ProcessingTimeSec float64   `json:"processing_time_sec"`
	InputShape        []int     `json:"input_shape"`
	Image             ImageInfo `json:"image"`
	Alert             AlertInfo `json:"alert"`
	Stages            []string  `json:"stages,omitempty"`
}

// BatchLine is one line of batch output
type BatchLine struct {
	Path   string             `json:"path"`
	Result *DetectionResponse `json:"result,omitempty"`
	Error  *ErrorResponse     `json:"error,omitempty"`
}

// StatusResponse describes the running configuration without secrets
type StatusResponse struct {
	Model       ModelStatus       `json:"model"`
	Threshold   float64           `json:"threshold"`
	Alerts      AlertsStatus      `json:"alerts"`
	Environment map[string]string `json:"environment"`
}

// ModelStatus describes the loaded classifier
type ModelStatus struct {
	Backend     string  `json:"backend"`
	Path        string  `json:"path"`
	InputShape  []int64 `json:"input_shape"`
	TargetShape string  `json:"target_shape"`
}

// AlertsStatus describes whether and where alerts are sent
type AlertsStatus struct {
	Enabled         bool   `json:"enabled"`
	EmailAddress    bool   `json:"email_address"`
	EmailPassword   bool   `json:"email_password"`
	TargetEmail     string `json:"target_email"`
	FullyConfigured bool   `json:"fully_configured"`
}
