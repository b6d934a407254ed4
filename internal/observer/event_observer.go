package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DetectionEvent describes one step of a detection request
type DetectionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id,omitempty"`
	Source         string                 `json:"source,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	Verdict        bool                   `json:"verdict"`
	Confidence     float64                `json:"confidence"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of detection event
type EventType string

const (
	DetectionStarted   EventType = "detection_started"
	DetectionCompleted EventType = "detection_completed"
	DetectionFailed    EventType = "detection_failed"
	ImageFetched       EventType = "image_fetched"
	ImageFetchFailed   EventType = "image_fetch_failed"
	AlertSent          EventType = "alert_sent"
	AlertFailed        EventType = "alert_failed"
	AlertSkipped       EventType = "alert_skipped"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event DetectionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event DetectionEvent)
}

// LoggingObserver logs detection events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles detection events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event DetectionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.Stage != "" {
		fields["stage"] = event.Stage
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case DetectionStarted:
		entry.Debug("Detection started")
	case DetectionCompleted:
		entry.WithFields(logrus.Fields{
			"verdict":    event.Verdict,
			"confidence": event.Confidence,
		}).Info("Detection completed")
	case DetectionFailed:
		entry.Error("Detection failed")
	case ImageFetched:
		entry.Debug("Image fetched successfully")
	case ImageFetchFailed:
		entry.Error("Image fetch failed")
	case AlertSent:
		entry.Info("Alert sent")
	case AlertFailed:
		entry.Warn("Alert dispatch failed")
	case AlertSkipped:
		entry.Debug("Alert skipped")
	default:
		entry.Info("Detection event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface. Observers are notified
// asynchronously; Wait blocks until in-flight notifications finish.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	inflight  sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event DetectionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// observers must not hold up the request
	ctx = context.WithoutCancel(ctx)
	for _, observer := range observers {
		p.inflight.Add(1)
		go func(obs Observer) {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every notification dispatched so far has been handled
func (p *EventPublisher) Wait() {
	p.inflight.Wait()
}
