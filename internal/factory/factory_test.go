package factory

import (
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/smokesignal-go/internal/alert"
	"github.com/anime-shed/smokesignal-go/internal/classifier"
	"github.com/anime-shed/smokesignal-go/internal/config"
	"github.com/anime-shed/smokesignal-go/internal/storage"
)

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		ModelPath:         filepath.Join(t.TempDir(), "missing.onnx"),
		ModelBackend:      config.BackendONNX,
		ImageFetchTimeout: 5 * time.Second,
		AlertTimeout:      5 * time.Second,
		TargetEmail:       "ops@example.com",
		SMTPHost:          "smtp.example.com",
		SMTPPort:          587,
	}
}

func TestClassifierFactory_MissingModel(t *testing.T) {
	f := NewClassifierFactory(baseConfig(t))

	for _, backend := range []BackendType{ONNXBackend, TFLiteBackend} {
		t.Run(string(backend), func(t *testing.T) {
			c, err := f.CreateClassifier(backend)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, classifier.ErrModelLoad)
		})
	}
}

func TestClassifierFactory_UnsupportedBackend(t *testing.T) {
	_, err := NewClassifierFactory(baseConfig(t)).CreateClassifier("pytorch")
	assert.ErrorContains(t, err, "unsupported model backend")
}

func TestStorageFactory(t *testing.T) {
	cfg := baseConfig(t)
	f := NewStorageFactory(cfg)

	web, err := f.CreateStorage(HTTPStorage)
	require.NoError(t, err)
	assert.IsType(t, &storage.HTTPImageFetcher{}, web)

	_, err = f.CreateStorage(AzureStorage)
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.AzureStorageAccount = "wildfiretiles"
	cfg.AzureStorageKey = base64.StdEncoding.EncodeToString([]byte("not-a-real-key"))
	blob, err := f.CreateStorage(AzureStorage)
	require.NoError(t, err)
	assert.IsType(t, &storage.AzureBlobFetcher{}, blob)

	_, err = f.CreateStorage("local")
	assert.ErrorContains(t, err, "unsupported storage type")
}

func TestDispatcherFactory(t *testing.T) {
	cfg := baseConfig(t)
	f := NewDispatcherFactory(cfg)

	d, err := f.CreateDispatcher()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.EmailAddress = "sender@example.com"
	cfg.EmailPassword = "app-password"
	d, err = f.CreateDispatcher()
	require.NoError(t, err)
	email, ok := d.(*alert.EmailDispatcher)
	require.True(t, ok)
	assert.Equal(t, "ops@example.com", email.Target())
}

func TestEmailSettings(t *testing.T) {
	cfg := baseConfig(t)
	cfg.EmailAddress = "sender@example.com"
	cfg.EmailPassword = "app-password"

	s := EmailSettings(cfg)
	assert.Equal(t, "sender@example.com", s.Address)
	assert.Equal(t, "smtp.example.com", s.Host)
	assert.Equal(t, 587, s.Port)
	assert.Equal(t, 5*time.Second, s.Timeout)
}

func TestNewComponentFactory(t *testing.T) {
	f := NewComponentFactory(baseConfig(t))
	assert.NotNil(t, f.ClassifierFactory)
	assert.NotNil(t, f.StorageFactory)
	assert.NotNil(t, f.DispatcherFactory)
}
