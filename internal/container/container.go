package container

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/anime-shed/smokesignal-go/internal/alert"
	"github.com/anime-shed/smokesignal-go/internal/classifier"
	"github.com/anime-shed/smokesignal-go/internal/config"
	"github.com/anime-shed/smokesignal-go/internal/decision"
	"github.com/anime-shed/smokesignal-go/internal/factory"
	"github.com/anime-shed/smokesignal-go/internal/logger"
	"github.com/anime-shed/smokesignal-go/internal/observer"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
	"github.com/anime-shed/smokesignal-go/internal/repository"
	"github.com/anime-shed/smokesignal-go/internal/service"
	"github.com/anime-shed/smokesignal-go/internal/storage"
	"github.com/anime-shed/smokesignal-go/internal/transport"
	"github.com/anime-shed/smokesignal-go/pkg/models"
	"github.com/anime-shed/smokesignal-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	registry   *prometheus.Registry
	classifier classifier.Classifier
	dispatcher alert.Dispatcher
	repository repository.ImageRepository
	service    *service.DetectionService
	handler    http.Handler
}

// Option overrides a component the container would otherwise build
type Option func(*options)

type options struct {
	classifier classifier.Classifier
	dispatcher alert.Dispatcher
}

// WithClassifier uses c instead of loading the configured model
func WithClassifier(c classifier.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithDispatcher uses d instead of building the email dispatcher
func WithDispatcher(d alert.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Module("container")
	logger.SetLevel(cfg.LogLevel)
	preprocess.SetMaxPixels(cfg.MaxImagePixels)
	components := factory.NewComponentFactory(cfg)

	// Observability
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observer.NewMetricsObserver(registry)
	if err != nil {
		return nil, err
	}
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	// Model
	model := o.classifier
	if model == nil {
		model, err = components.ClassifierFactory.CreateClassifier(factory.BackendType(cfg.ModelBackend))
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier: %w", err)
		}
	}

	policy, err := decision.NewPolicy(cfg.ConfidenceThreshold)
	if err != nil {
		_ = model.Close()
		return nil, err
	}

	// Alerts
	dispatcher := o.dispatcher
	if dispatcher == nil {
		dispatcher, err = components.DispatcherFactory.CreateDispatcher()
		switch {
		case errors.Is(err, factory.ErrNotConfigured):
			log.Warn("Email credentials not set, alerts will be skipped")
		case err != nil:
			_ = model.Close()
			return nil, fmt.Errorf("failed to configure alerts: %w", err)
		}
	}

	// Image retrieval
	web, err := components.StorageFactory.CreateStorage(factory.HTTPStorage)
	if err != nil {
		_ = model.Close()
		return nil, err
	}
	var blob storage.ImageFetcher
	if fetcher, err := components.StorageFactory.CreateStorage(factory.AzureStorage); err == nil {
		blob = fetcher
	} else if !errors.Is(err, factory.ErrNotConfigured) {
		_ = model.Close()
		return nil, fmt.Errorf("failed to configure blob storage: %w", err)
	}
	repo := repository.NewImageRepository(validation.NewURLValidator(), web, blob)

	svc, err := service.NewDetectionService(service.Dependencies{
		Classifier: model,
		Policy:     policy,
		Dispatcher: dispatcher,
		Repository: repo,
		Publisher:  publisher,
		Settings: service.Settings{
			AlertsEnabled:      cfg.AlertsEnabled,
			CredentialsPresent: dispatcher != nil,
			AlertTimeout:       cfg.AlertTimeout,
			BatchWorkers:       cfg.BatchWorkers,
		},
	})
	if err != nil {
		_ = model.Close()
		return nil, err
	}

	handler := transport.NewHandler(svc, transport.Options{
		Config:   cfg,
		Gatherer: registry,
		Model: models.ModelStatus{
			Backend:     cfg.ModelBackend,
			Path:        cfg.ModelPath,
			InputShape:  model.InputShape(),
			TargetShape: svc.Adapter().Shape().String(),
		},
	})

	log.WithFields(map[string]interface{}{
		"backend":        cfg.ModelBackend,
		"input_shape":    model.InputShape(),
		"target":         svc.Adapter().Shape().String(),
		"threshold":      policy.Threshold(),
		"alerts_enabled": cfg.AlertsEnabled,
		"alerts_ready":   dispatcher != nil,
		"blob_storage":   blob != nil,
	}).Info("Container initialized")

	return &Container{
		config:     cfg,
		registry:   registry,
		classifier: model,
		dispatcher: dispatcher,
		repository: repo,
		service:    svc,
		handler:    handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the detection service
func (c *Container) Service() *service.DetectionService {
	return c.service
}

// Dispatcher returns the alert dispatcher, nil when email is not configured
func (c *Container) Dispatcher() alert.Dispatcher {
	return c.dispatcher
}

// Registry returns the metrics registry served on /metrics
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Close releases the classifier after pending events are delivered
func (c *Container) Close() error {
	return c.service.Close()
}
