package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Model backends understood by the classifier factory
const (
	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AlertTimeout       time.Duration
	MaxRequestBodySize int64
	MaxImagePixels     int64
	LogLevel           string

	// Model
	ModelPath         string
	ModelBackend      string
	ModelMetadataPath string
	ONNXLibraryPath   string
	ModelThreads      int

	// Detection
	ConfidenceThreshold float64
	AlertsEnabled       bool

	// Email
	EmailAddress  string
	EmailPassword string
	TargetEmail   string
	SMTPHost      string
	SMTPPort      int

	// Azure blob retrieval, optional
	AzureStorageAccount string
	AzureStorageKey     string

	RateLimitRPS   float64
	RateLimitBurst int
	BatchWorkers   int

	// EnvFileLoaded reports whether a .env file contributed settings
	EnvFileLoaded bool
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// EmailConfigured reports whether the credentials needed to send alerts are present
func (c *Config) EmailConfigured() bool {
	return c.EmailAddress != "" && c.EmailPassword != ""
}

// EmailStatus describes which email settings are present without exposing secrets
type EmailStatus struct {
	EmailAddress    bool   `json:"email_address"`
	EmailPassword   bool   `json:"email_password"`
	TargetEmail     string `json:"target_email"`
	FullyConfigured bool   `json:"fully_configured"`
}

func (c *Config) EmailStatus() EmailStatus {
	return EmailStatus{
		EmailAddress:    c.EmailAddress != "",
		EmailPassword:   c.EmailPassword != "",
		TargetEmail:     c.TargetEmail,
		FullyConfigured: c.EmailConfigured(),
	}
}

// Environment summarizes the environment-derived settings for diagnostics
func (c *Config) Environment() map[string]string {
	return map[string]string{
		"EMAIL_ADDRESS":  setOrNot(c.EmailAddress),
		"EMAIL_PASSWORD": setOrNot(c.EmailPassword),
		"TARGET_EMAIL":   c.TargetEmail,
		"ENV_FILE":       strconv.FormatBool(c.EnvFileLoaded),
	}
}

func setOrNot(v string) string {
	if v == "" {
		return "NOT SET"
	}
	return "SET"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("IMAGE_FETCH_TIMEOUT", "15s")
	v.SetDefault("ALERT_TIMEOUT", "20s")
	v.SetDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("MAX_IMAGE_PIXELS", 50_000_000)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("MODEL_PATH", "model/wildfire_detector_model.onnx")
	v.SetDefault("MODEL_BACKEND", BackendONNX)
	v.SetDefault("MODEL_METADATA_PATH", "")
	v.SetDefault("ONNX_LIBRARY_PATH", "")
	v.SetDefault("MODEL_THREADS", 0)

	v.SetDefault("CONFIDENCE_THRESHOLD", 0.5)
	v.SetDefault("ALERTS_ENABLED", true)

	v.SetDefault("EMAIL_ADDRESS", "")
	v.SetDefault("EMAIL_PASSWORD", "")
	v.SetDefault("TARGET_EMAIL", "admin@example.com")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 465)

	v.SetDefault("AZURE_STORAGE_ACCOUNT", "")
	v.SetDefault("AZURE_STORAGE_KEY", "")

	v.SetDefault("RATE_LIMIT_RPS", 0.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("BATCH_WORKERS", 0)
}

// LoadFromEnv reads configuration from the environment and, when present, a .env file
// in the working directory. Real environment variables win over the file.
func LoadFromEnv() (*Config, error) {
	return load(".env")
}

// LoadFile is LoadFromEnv with an explicit .env path. A missing file is not an error.
func LoadFile(envFile string) (*Config, error) {
	return load(envFile)
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	envLoaded := false
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
			envLoaded = true
		}
	}

	cfg := &Config{
		Host:                v.GetString("HOST"),
		Port:                v.GetString("PORT"),
		RequestTimeout:      v.GetDuration("REQUEST_TIMEOUT"),
		ImageFetchTimeout:   v.GetDuration("IMAGE_FETCH_TIMEOUT"),
		AlertTimeout:        v.GetDuration("ALERT_TIMEOUT"),
		MaxRequestBodySize:  v.GetInt64("MAX_REQUEST_BODY_SIZE"),
		MaxImagePixels:      v.GetInt64("MAX_IMAGE_PIXELS"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		ModelPath:           v.GetString("MODEL_PATH"),
		ModelBackend:        strings.ToLower(strings.TrimSpace(v.GetString("MODEL_BACKEND"))),
		ModelMetadataPath:   v.GetString("MODEL_METADATA_PATH"),
		ONNXLibraryPath:     v.GetString("ONNX_LIBRARY_PATH"),
		ModelThreads:        v.GetInt("MODEL_THREADS"),
		ConfidenceThreshold: v.GetFloat64("CONFIDENCE_THRESHOLD"),
		AlertsEnabled:       v.GetBool("ALERTS_ENABLED"),
		EmailAddress:        strings.TrimSpace(v.GetString("EMAIL_ADDRESS")),
		EmailPassword:       v.GetString("EMAIL_PASSWORD"),
		TargetEmail:         strings.TrimSpace(v.GetString("TARGET_EMAIL")),
		SMTPHost:            strings.TrimSpace(v.GetString("SMTP_HOST")),
		SMTPPort:            v.GetInt("SMTP_PORT"),
		AzureStorageAccount: v.GetString("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     v.GetString("AZURE_STORAGE_KEY"),
		RateLimitRPS:        v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
		BatchWorkers:        v.GetInt("BATCH_WORKERS"),
		EnvFileLoaded:       envLoaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings once at startup
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AlertTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, alert=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AlertTimeout)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1] (got %v)", c.ConfidenceThreshold)
	}
	if c.ModelBackend != BackendONNX && c.ModelBackend != BackendTFLite {
		return fmt.Errorf("unsupported MODEL_BACKEND: %q", c.ModelBackend)
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return errors.New("MODEL_PATH must not be empty")
	}
	if c.ModelThreads < 0 {
		return fmt.Errorf("MODEL_THREADS must be >= 0 (got %d)", c.ModelThreads)
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("invalid SMTP_PORT: %d", c.SMTPPort)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %v)", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled")
	}
	return nil
}
