package factory

import (
	"errors"
	"fmt"

	"github.com/anime-shed/smokesignal-go/internal/alert"
	"github.com/anime-shed/smokesignal-go/internal/classifier"
	"github.com/anime-shed/smokesignal-go/internal/config"
	"github.com/anime-shed/smokesignal-go/internal/storage"
)

// ErrNotConfigured reports an optional component whose settings are absent
var ErrNotConfigured = errors.New("component not configured")

// BackendType represents the runtimes a classifier can be loaded with
type BackendType string

const (
	// ONNXBackend loads .onnx models through onnxruntime
	ONNXBackend BackendType = config.BackendONNX
	// TFLiteBackend loads .tflite models through TensorFlow Lite
	TFLiteBackend BackendType = config.BackendTFLite
)

// StorageType represents different types of image sources
type StorageType string

const (
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
)

// ClassifierFactory loads classifiers
type ClassifierFactory interface {
	CreateClassifier(backend BackendType) (classifier.Classifier, error)
}

// StorageFactory creates image fetchers
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

// DispatcherFactory creates alert dispatchers
type DispatcherFactory interface {
	CreateDispatcher() (alert.Dispatcher, error)
}

// classifierFactory implements ClassifierFactory
type classifierFactory struct {
	cfg *config.Config
}

// NewClassifierFactory creates a classifier factory reading model settings from cfg
func NewClassifierFactory(cfg *config.Config) ClassifierFactory {
	return &classifierFactory{cfg: cfg}
}

// CreateClassifier loads the configured model with the given backend
func (f *classifierFactory) CreateClassifier(backend BackendType) (classifier.Classifier, error) {
	switch backend {
	case ONNXBackend:
		c, err := classifier.NewONNX(classifier.ONNXOptions{
			ModelPath:    f.cfg.ModelPath,
			LibraryPath:  f.cfg.ONNXLibraryPath,
			MetadataPath: f.cfg.ModelMetadataPath,
			Threads:      f.cfg.ModelThreads,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case TFLiteBackend:
		return classifier.NewTFLite(f.cfg.ModelPath, f.cfg.ModelThreads)
	default:
		return nil, fmt.Errorf("unsupported model backend: %s", backend)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a fetcher for the specified source
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(storage.HTTPOptions{
			Timeout:  f.cfg.ImageFetchTimeout,
			MaxBytes: f.cfg.MaxRequestBodySize,
		}), nil
	case AzureStorage:
		if f.cfg.AzureStorageAccount == "" || f.cfg.AzureStorageKey == "" {
			return nil, fmt.Errorf("%w: set AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY", ErrNotConfigured)
		}
		fetcher, err := storage.NewAzureBlobFetcher(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, "")
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// dispatcherFactory implements DispatcherFactory
type dispatcherFactory struct {
	cfg *config.Config
}

// NewDispatcherFactory creates a dispatcher factory reading email settings from cfg
func NewDispatcherFactory(cfg *config.Config) DispatcherFactory {
	return &dispatcherFactory{cfg: cfg}
}

// CreateDispatcher builds the email dispatcher. Missing credentials yield
// ErrNotConfigured so callers can run without alerts.
func (f *dispatcherFactory) CreateDispatcher() (alert.Dispatcher, error) {
	if !f.cfg.EmailConfigured() {
		return nil, fmt.Errorf("%w: email credentials missing", ErrNotConfigured)
	}
	d, err := alert.NewEmailDispatcher(EmailSettings(f.cfg))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// EmailSettings maps configuration to alert settings
func EmailSettings(cfg *config.Config) alert.EmailSettings {
	return alert.EmailSettings{
		Address:  cfg.EmailAddress,
		Password: cfg.EmailPassword,
		Target:   cfg.TargetEmail,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Timeout:  cfg.AlertTimeout,
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ClassifierFactory ClassifierFactory
	StorageFactory    StorageFactory
	DispatcherFactory DispatcherFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		ClassifierFactory: NewClassifierFactory(cfg),
		StorageFactory:    NewStorageFactory(cfg),
		DispatcherFactory: NewDispatcherFactory(cfg),
	}
}
