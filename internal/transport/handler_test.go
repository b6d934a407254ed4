package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/smokesignal-go/internal/classifier"
	"github.com/anime-shed/smokesignal-go/internal/config"
	"github.com/anime-shed/smokesignal-go/internal/observer"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
	"github.com/anime-shed/smokesignal-go/internal/repository"
	"github.com/anime-shed/smokesignal-go/internal/service"
	"github.com/anime-shed/smokesignal-go/pkg/models"
	"github.com/anime-shed/smokesignal-go/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct{}

func (stubFetcher) FetchImage(_ context.Context, _ string) (preprocess.ImageSource, error) {
	return preprocess.FromImage(solidImage(64, 64), "png"), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Host:                "127.0.0.1",
		Port:                "8080",
		RequestTimeout:      5 * time.Second,
		ImageFetchTimeout:   5 * time.Second,
		AlertTimeout:        5 * time.Second,
		MaxRequestBodySize:  1 << 20,
		ModelPath:           "model/test.onnx",
		ModelBackend:        config.BackendONNX,
		ConfidenceThreshold: 0.5,
		AlertsEnabled:       false,
		EmailAddress:        "sender@example.com",
		EmailPassword:       "hunter2",
		TargetEmail:         "ops@example.com",
		SMTPPort:            465,
	}
}

func newTestHandler(t *testing.T, cfg *config.Config, score float64, gatherer prometheus.Gatherer) http.Handler {
	t.Helper()

	svc, err := service.NewDetectionService(service.Dependencies{
		Classifier: classifier.Func{
			Shape: []int64{1, 150, 150, 3},
			Fn:    func(preprocess.Tensor) (float64, error) { return score, nil },
		},
		Repository: repository.NewImageRepository(validation.NewURLValidator(), stubFetcher{}, nil),
		Publisher:  observer.NewEventPublisher(),
		Settings:   service.Settings{AlertsEnabled: cfg.AlertsEnabled},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return NewHandler(svc, Options{
		Config:   cfg,
		Gatherer: gatherer,
		Model:    models.ModelStatus{Backend: cfg.ModelBackend, Path: cfg.ModelPath, InputShape: []int64{1, 150, 150, 3}},
	})
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 90, B: 20, A: 255})
		}
	}
	return img
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(300, 200)))
	return buf.Bytes()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.1, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "available", body["status"])
	assert.Equal(t, Version, body["version"])
}

func TestUploadPage(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.1, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `name="image"`)
}

func TestDetectUpload(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		verdict bool
		label   string
		reason  string
	}{
		{name: "positive", score: 0.92, verdict: true, label: "Wildfire Detected", reason: "alerts_disabled"},
		{name: "negative", score: 0.12, verdict: false, label: "No Wildfire", reason: "negative"},
		{name: "exactly threshold is negative", score: 0.5, verdict: false, label: "No Wildfire", reason: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, testConfig(), tt.score, nil)
			body, contentType := multipartBody(t, UploadField, "scene.png", pngBytes(t))

			req := httptest.NewRequest(http.MethodPost, "/detect", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[models.DetectionResponse](t, rec)
			assert.NotEmpty(t, resp.ID)
			assert.Equal(t, tt.verdict, resp.Verdict)
			assert.Equal(t, tt.label, resp.Label)
			assert.InDelta(t, tt.score, resp.Confidence, 1e-9)
			assert.InDelta(t, tt.score*100, resp.ConfidencePercent, 1e-6)
			assert.Equal(t, 0.5, resp.Threshold)
			assert.Equal(t, []int{1, 150, 150, 3}, resp.InputShape)
			assert.Equal(t, 300, resp.Image.Width)
			assert.Equal(t, 200, resp.Image.Height)
			assert.InDelta(t, 1.5, resp.Image.AspectRatio, 1e-9)
			assert.Equal(t, "skipped", resp.Alert.Status)
			assert.Equal(t, tt.reason, resp.Alert.Reason)
			require.NotEmpty(t, resp.Stages)
			assert.Equal(t, "uploaded", resp.Stages[0])
			assert.Equal(t, "done", resp.Stages[len(resp.Stages)-1])
		})
	}
}

func TestDetectUpload_NotAnImage(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.9, nil)
	body, contentType := multipartBody(t, UploadField, "notes.txt", []byte("definitely not pixels"))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "decoded", resp.Stage)
	assert.Equal(t, "decode", resp.Type)
}

func TestDetectUpload_ExceedsPixelLimit(t *testing.T) {
	preprocess.SetMaxPixels(300*200 - 1)
	t.Cleanup(func() { preprocess.SetMaxPixels(0) })

	h := newTestHandler(t, testConfig(), 0.9, nil)
	body, contentType := multipartBody(t, UploadField, "scene.png", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "decoded", resp.Stage)
	assert.Contains(t, resp.Message, "pixel limit")
}

func TestDetectUpload_MissingField(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.9, nil)
	body, contentType := multipartBody(t, "file", "scene.png", pngBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "uploaded", resp.Stage)
}

func TestDetectUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestBodySize = 512
	h := newTestHandler(t, cfg, 0.9, nil)
	body, contentType := multipartBody(t, UploadField, "scene.png", bytes.Repeat([]byte{0x89}, 4096))

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDetectURL(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		stage  string
	}{
		{name: "fetched image", body: `{"url":"https://example.com/scene.png"}`, status: http.StatusOK},
		{name: "missing url", body: `{}`, status: http.StatusBadRequest, stage: "uploaded"},
		{name: "malformed json", body: `{"url":`, status: http.StatusBadRequest, stage: "uploaded"},
		{name: "scheme not allowed", body: `{"url":"ftp://example.com/scene.png"}`, status: http.StatusBadRequest, stage: "uploaded"},
		{name: "blob storage not configured", body: `{"url":"azblob://tiles/scene.png"}`, status: http.StatusBadGateway, stage: "uploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, testConfig(), 0.7, nil)

			req := httptest.NewRequest(http.MethodPost, "/detect/url", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				resp := decode[models.DetectionResponse](t, rec)
				assert.True(t, resp.Verdict)
				assert.Equal(t, 64, resp.Image.Width)
				return
			}
			resp := decode[models.ErrorResponse](t, rec)
			assert.Equal(t, tt.stage, resp.Stage)
		})
	}
}

func TestStatus_DoesNotLeakSecrets(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.1, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	resp := decode[models.StatusResponse](t, rec)
	assert.Equal(t, 0.5, resp.Threshold)
	assert.True(t, resp.Alerts.FullyConfigured)
	assert.False(t, resp.Alerts.Enabled)
	assert.Equal(t, "ops@example.com", resp.Alerts.TargetEmail)
	assert.Equal(t, "SET", resp.Environment["EMAIL_PASSWORD"])
	assert.Equal(t, []int64{1, 150, 150, 3}, resp.Model.InputShape)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := observer.NewMetricsObserver(registry)
	require.NoError(t, err)
	metrics.Detections.WithLabelValues("positive").Inc()

	h := newTestHandler(t, testConfig(), 0.1, registry)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `smokesignal_detections_total{verdict="positive"} 1`)
}

func TestMetricsEndpoint_OmittedWithoutGatherer(t *testing.T) {
	h := newTestHandler(t, testConfig(), 0.1, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	h := newTestHandler(t, cfg, 0.1, nil)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/detect/url", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, send())
	assert.Equal(t, http.StatusTooManyRequests, send())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
