package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedKeys = []string{
	"HOST", "PORT", "REQUEST_TIMEOUT", "IMAGE_FETCH_TIMEOUT", "ALERT_TIMEOUT",
	"MAX_REQUEST_BODY_SIZE", "MAX_IMAGE_PIXELS", "LOG_LEVEL", "MODEL_PATH",
	"MODEL_BACKEND", "MODEL_THREADS",
	"CONFIDENCE_THRESHOLD", "ALERTS_ENABLED", "EMAIL_ADDRESS", "EMAIL_PASSWORD",
	"TARGET_EMAIL", "SMTP_HOST", "SMTP_PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxRequestBodySize)
	assert.Equal(t, int64(50_000_000), cfg.MaxImagePixels)
	assert.Equal(t, BackendONNX, cfg.ModelBackend)
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
	assert.True(t, cfg.AlertsEnabled)
	assert.Equal(t, "admin@example.com", cfg.TargetEmail)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTPHost)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.False(t, cfg.EmailConfigured())
	assert.False(t, cfg.EnvFileLoaded)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("MODEL_BACKEND", " TFLite ")
	t.Setenv("ALERTS_ENABLED", "false")
	t.Setenv("ALERT_TIMEOUT", "3s")

	cfg, err := load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, BackendTFLite, cfg.ModelBackend)
	assert.False(t, cfg.AlertsEnabled)
	assert.Equal(t, 3*time.Second, cfg.AlertTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "EMAIL_ADDRESS=sender@example.com\nEMAIL_PASSWORD=secret\nTARGET_EMAIL=ops@example.com\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("TARGET_EMAIL", "oncall@example.com")

	cfg, err := load(envFile)
	require.NoError(t, err)

	assert.True(t, cfg.EnvFileLoaded)
	assert.True(t, cfg.EmailConfigured())
	assert.Equal(t, "sender@example.com", cfg.EmailAddress)
	// real environment wins over the file
	assert.Equal(t, "oncall@example.com", cfg.TargetEmail)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "non numeric port", key: "PORT", val: "http"},
		{name: "port out of range", key: "PORT", val: "70000"},
		{name: "threshold above one", key: "CONFIDENCE_THRESHOLD", val: "1.2"},
		{name: "negative threshold", key: "CONFIDENCE_THRESHOLD", val: "-0.1"},
		{name: "unknown backend", key: "MODEL_BACKEND", val: "pytorch"},
		{name: "zero body size", key: "MAX_REQUEST_BODY_SIZE", val: "0"},
		{name: "zero pixel limit", key: "MAX_IMAGE_PIXELS", val: "0"},
		{name: "negative model threads", key: "MODEL_THREADS", val: "-2"},
		{name: "zero timeout", key: "REQUEST_TIMEOUT", val: "0s"},
		{name: "negative rate", key: "RATE_LIMIT_RPS", val: "-1"},
		{name: "smtp port out of range", key: "SMTP_PORT", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestEmailStatus(t *testing.T) {
	cfg := &Config{EmailAddress: "sender@example.com", TargetEmail: "ops@example.com"}

	status := cfg.EmailStatus()
	assert.True(t, status.EmailAddress)
	assert.False(t, status.EmailPassword)
	assert.False(t, status.FullyConfigured)
	assert.Equal(t, "ops@example.com", status.TargetEmail)

	env := cfg.Environment()
	assert.Equal(t, "SET", env["EMAIL_ADDRESS"])
	assert.Equal(t, "NOT SET", env["EMAIL_PASSWORD"])
	assert.Equal(t, "false", env["ENV_FILE"])
}
