package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anime-shed/smokesignal-go/internal/alert"
	"github.com/anime-shed/smokesignal-go/internal/classifier"
	"github.com/anime-shed/smokesignal-go/internal/decision"
	apperrors "github.com/anime-shed/smokesignal-go/internal/errors"
	"github.com/anime-shed/smokesignal-go/internal/logger"
	"github.com/anime-shed/smokesignal-go/internal/observer"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
	"github.com/anime-shed/smokesignal-go/internal/repository"
)

// AlertStatus records what happened to the notification for a detection
type AlertStatus string

const (
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
	AlertSkipped AlertStatus = "skipped"
)

// SkipReason explains a skipped notification
type SkipReason string

const (
	SkipNegative           SkipReason = "negative"
	SkipAlertsDisabled     SkipReason = "alerts_disabled"
	SkipCredentialsMissing SkipReason = "credentials_missing"
)

// AlertOutcome is the notification part of a detection outcome
type AlertOutcome struct {
	Status AlertStatus `json:"status"`
	Reason SkipReason  `json:"reason,omitempty"`
	Error  string      `json:"error,omitempty"`
	Err    error       `json:"-"`
}

// Outcome is a completed detection. A failed alert never changes Result.
type Outcome struct {
	Result   decision.DetectionResult `json:"result"`
	Alert    AlertOutcome             `json:"alert"`
	Stages   []apperrors.Stage        `json:"stages"`
	Source   string                   `json:"source,omitempty"`
	Duration time.Duration            `json:"duration"`
}

// Settings are the per-process switches the pipeline honours
type Settings struct {
	AlertsEnabled      bool
	CredentialsPresent bool
	AlertTimeout       time.Duration
	BatchWorkers       int
}

// Dependencies wires a DetectionService
type Dependencies struct {
	Classifier classifier.Classifier
	// Adapter is derived from the classifier input shape when nil
	Adapter    *preprocess.Adapter
	Policy     *decision.Policy
	Dispatcher alert.Dispatcher
	Repository repository.ImageRepository
	Publisher  *observer.EventPublisher
	Settings   Settings
}

// DetectionService runs the detection pipeline:
// uploaded, decoded, normalized, scored, decided, then notify attempted or skipped.
type DetectionService struct {
	classifier classifier.Classifier
	adapter    *preprocess.Adapter
	policy     *decision.Policy
	dispatcher alert.Dispatcher
	repo       repository.ImageRepository
	publisher  *observer.EventPublisher
	settings   Settings
}

// NewDetectionService validates the wiring once at startup
func NewDetectionService(deps Dependencies) (*DetectionService, error) {
	if deps.Classifier == nil {
		return nil, apperrors.NewInternalError("classifier is required", nil)
	}

	adapter := deps.Adapter
	if adapter == nil {
		shape, err := preprocess.ShapeFromDims(deps.Classifier.InputShape())
		if err != nil {
			return nil, apperrors.NewUnsupportedModelShapeError("classifier input shape is not supported", err)
		}
		adapter, err = preprocess.NewAdapter(shape, nil)
		if err != nil {
			return nil, apperrors.NewUnsupportedModelShapeError("classifier input shape is not supported", err)
		}
	}

	policy := deps.Policy
	if policy == nil {
		var err error
		if policy, err = decision.NewPolicy(decision.DefaultThreshold); err != nil {
			return nil, apperrors.NewInternalError("failed to build decision policy", err)
		}
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = observer.NewEventPublisher()
	}

	return &DetectionService{
		classifier: deps.Classifier,
		adapter:    adapter,
		policy:     policy,
		dispatcher: deps.Dispatcher,
		repo:       deps.Repository,
		publisher:  publisher,
		settings:   deps.Settings,
	}, nil
}

// Adapter exposes the input contract the service prepares images for
func (s *DetectionService) Adapter() *preprocess.Adapter { return s.adapter }

// Threshold is the decision threshold in use
func (s *DetectionService) Threshold() float64 { return s.policy.Threshold() }

// Detect classifies one image. Failures before a decision abort the request
// and carry the stage they happened in.
func (s *DetectionService) Detect(ctx context.Context, src preprocess.ImageSource) (*Outcome, error) {
	start := time.Now()
	label := describeSource(src)
	stages := []apperrors.Stage{apperrors.StageUploaded}
	s.publish(ctx, observer.DetectionEvent{EventType: observer.DetectionStarted, Source: label, Success: true})

	outcome, err := s.detect(ctx, src, &stages)
	if err != nil {
		s.publish(ctx, observer.DetectionEvent{
			EventType:      observer.DetectionFailed,
			Source:         label,
			Stage:          string(apperrors.StageOf(err)),
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	outcome.Source = label
	outcome.Duration = time.Since(start)
	stages = append(stages, apperrors.StageDone)
	outcome.Stages = stages

	s.publish(ctx, observer.DetectionEvent{
		EventType:      observer.DetectionCompleted,
		RequestID:      outcome.Result.ID,
		Source:         label,
		ProcessingTime: outcome.Duration,
		Success:        true,
		Verdict:        outcome.Result.Verdict,
		Confidence:     outcome.Result.Confidence,
		Metadata:       map[string]interface{}{"alert_status": string(outcome.Alert.Status)},
	})
	return outcome, nil
}

func (s *DetectionService) detect(ctx context.Context, src preprocess.ImageSource, stages *[]apperrors.Stage) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("request cancelled", err).WithStage(apperrors.StageUploaded)
	}

	resolved, err := src.Resolve()
	if err != nil {
		return nil, apperrors.NewDecodeError("image could not be decoded", err)
	}
	*stages = append(*stages, apperrors.StageDecoded)

	var (
		md     preprocess.ImageMetadata
		tensor preprocess.Tensor
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		info, err := preprocess.ExtractInfo(resolved)
		if err != nil {
			logger.Module("service").WithError(err).Warn("Image metadata unavailable")
			return nil
		}
		md = info
		return nil
	})
	g.Go(func() error {
		var err error
		tensor, err = s.adapter.Prepare(resolved)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classifyPrepareError(err)
	}
	*stages = append(*stages, apperrors.StageNormalized)

	if log := logger.Module("service"); log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		stats := tensor.Stats()
		log.WithFields(logrus.Fields{
			"shape": tensor.Shape,
			"min":   stats.Min,
			"max":   stats.Max,
			"mean":  stats.Mean,
			"std":   stats.StdDev,
		}).Debug("Tensor prepared")
	}

	score, err := s.classifier.Score(tensor)
	if err != nil {
		return nil, apperrors.NewScoringError("classifier failed to score image", err)
	}
	*stages = append(*stages, apperrors.StageScored)

	result := s.policy.Decide(tensor, score, md)
	*stages = append(*stages, apperrors.StageDecided)

	out := &Outcome{Result: result}
	out.Alert = s.notify(ctx, result)
	if out.Alert.Status == AlertSkipped {
		*stages = append(*stages, apperrors.StageNotifySkipped)
	} else {
		*stages = append(*stages, apperrors.StageNotifyAttempted)
	}
	return out, nil
}

func classifyPrepareError(err error) error {
	switch {
	case errors.Is(err, preprocess.ErrUnsupportedModelShape):
		return apperrors.NewUnsupportedModelShapeError("prepared tensor does not match the model input", err)
	case errors.Is(err, preprocess.ErrInvalidTargetSize):
		return apperrors.NewUnsupportedModelShapeError("invalid resize target", err)
	default:
		return apperrors.NewDecodeError("image could not be normalized", err).WithStage(apperrors.StageNormalized)
	}
}

// notify dispatches an alert for positive verdicts. Its result is recorded on
// the outcome and never turned into a request error.
func (s *DetectionService) notify(ctx context.Context, result decision.DetectionResult) AlertOutcome {
	reason, skip := s.skipReason(result)
	if skip {
		s.publish(ctx, observer.DetectionEvent{
			EventType: observer.AlertSkipped,
			RequestID: result.ID,
			Success:   true,
			Metadata:  map[string]interface{}{"reason": string(reason)},
		})
		return AlertOutcome{Status: AlertSkipped, Reason: reason}
	}

	dispatchCtx := ctx
	if s.settings.AlertTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, s.settings.AlertTimeout)
		defer cancel()
	}

	if err := s.dispatcher.Dispatch(dispatchCtx, result); err != nil {
		appErr := apperrors.NewDispatchError("alert could not be delivered", err)
		s.publish(ctx, observer.DetectionEvent{
			EventType:    observer.AlertFailed,
			RequestID:    result.ID,
			ErrorMessage: err.Error(),
		})
		return AlertOutcome{Status: AlertFailed, Error: err.Error(), Err: appErr}
	}

	s.publish(ctx, observer.DetectionEvent{EventType: observer.AlertSent, RequestID: result.ID, Success: true})
	return AlertOutcome{Status: AlertSent}
}

func (s *DetectionService) skipReason(result decision.DetectionResult) (SkipReason, bool) {
	switch {
	case !result.Verdict:
		return SkipNegative, true
	case !s.settings.AlertsEnabled:
		return SkipAlertsDisabled, true
	case !s.settings.CredentialsPresent || s.dispatcher == nil:
		return SkipCredentialsMissing, true
	}
	return "", false
}

// DetectURL retrieves a remote image and classifies it
func (s *DetectionService) DetectURL(ctx context.Context, ref string) (*Outcome, error) {
	if s.repo == nil {
		return nil, apperrors.NewInternalError("image retrieval is not configured", nil)
	}
	if err := s.repo.ValidateImageURL(ref); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr.WithStage(apperrors.StageUploaded)
		}
		return nil, apperrors.NewValidationError("invalid image URL", err).WithStage(apperrors.StageUploaded)
	}

	src, err := s.repo.FetchImage(ctx, ref)
	if err != nil {
		s.publish(ctx, observer.DetectionEvent{EventType: observer.ImageFetchFailed, Source: ref, ErrorMessage: err.Error()})
		if errors.Is(err, preprocess.ErrDecode) {
			return nil, apperrors.NewDecodeError("fetched content is not an image", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("image fetch timed out", err).WithStage(apperrors.StageUploaded)
		}
		return nil, apperrors.NewNetworkError("failed to fetch image", err).WithStage(apperrors.StageUploaded)
	}
	s.publish(ctx, observer.DetectionEvent{EventType: observer.ImageFetched, Source: ref, Success: true})

	return s.Detect(ctx, src)
}

// BatchItem is the result for one path in a batch run
type BatchItem struct {
	Path    string   `json:"path"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     error    `json:"-"`
}

// DetectPaths classifies many files on a bounded worker pool. Each path is an
// independent request; results keep the input order.
func (s *DetectionService) DetectPaths(ctx context.Context, paths []string) []BatchItem {
	items := make([]BatchItem, len(paths))
	if len(paths) == 0 {
		return items
	}

	workers := s.settings.BatchWorkers
	if workers <= 0 || workers > len(paths) {
		workers = min(len(paths), runtime.NumCPU())
	}
	pool := NewWorkerPool(workers)
	pool.Start()
	defer pool.Close()

	for i, path := range paths {
		items[i].Path = path
		pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				items[i].Err = apperrors.NewTimeoutError("batch cancelled", err).WithStage(apperrors.StageUploaded)
				return
			}
			items[i].Outcome, items[i].Err = s.Detect(ctx, preprocess.FromPath(path))
		})
	}
	pool.Wait()
	return items
}

// Close waits for pending observer notifications and releases the classifier
func (s *DetectionService) Close() error {
	s.publisher.Wait()
	if err := s.classifier.Close(); err != nil {
		return fmt.Errorf("failed to close classifier: %w", err)
	}
	return nil
}

func (s *DetectionService) publish(ctx context.Context, event observer.DetectionEvent) {
	s.publisher.NotifyObservers(ctx, event)
}

func describeSource(src preprocess.ImageSource) string {
	if src.Path() != "" {
		return src.Path()
	}
	if src.Format() != "" {
		return "upload (" + src.Format() + ")"
	}
	return "upload"
}
