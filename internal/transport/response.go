package transport

import (
	"errors"

	apperrors "github.com/anime-shed/smokesignal-go/internal/errors"
	"github.com/anime-shed/smokesignal-go/internal/service"
	"github.com/anime-shed/smokesignal-go/pkg/models"
)

// NewDetectionResponse converts a pipeline outcome to its wire form
func NewDetectionResponse(o *service.Outcome, threshold float64) models.DetectionResponse {
	r := o.Result
	stages := make([]string, len(o.Stages))
	for i, s := range o.Stages {
		stages[i] = string(s)
	}

	return models.DetectionResponse{
		ID:                r.ID,
		Source:            o.Source,
		Verdict:           r.Verdict,
		Label:             r.Label(),
		Confidence:        r.Confidence,
		ConfidencePercent: r.ConfidencePercent(),
		Threshold:         threshold,
		Timestamp:         r.Timestamp,
		ProcessingTimeSec: o.Duration.Seconds(),
		InputShape:        append([]int(nil), r.InputShape...),
		Image: models.ImageInfo{
			Format:      r.Metadata.Format,
			Width:       r.Metadata.Width,
			Height:      r.Metadata.Height,
			Channels:    r.Metadata.Channels,
			AspectRatio: r.Metadata.AspectRatio,
		},
		Alert: models.AlertInfo{
			Status: string(o.Alert.Status),
			Reason: string(o.Alert.Reason),
			Error:  o.Alert.Error,
		},
		Stages: stages,
	}
}

// NewErrorResponse describes err for clients. AppErrors keep their type and stage.
func NewErrorResponse(err error) models.ErrorResponse {
	resp := models.ErrorResponse{Error: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Type = string(appErr.Type)
		resp.Stage = string(appErr.Stage)
		if appErr.Cause != nil {
			resp.Message = appErr.Cause.Error()
		}
	}
	return resp
}
