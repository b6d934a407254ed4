package transport

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anime-shed/smokesignal-go/internal/config"
	apperrors "github.com/anime-shed/smokesignal-go/internal/errors"
	"github.com/anime-shed/smokesignal-go/internal/logger"
	"github.com/anime-shed/smokesignal-go/internal/preprocess"
	"github.com/anime-shed/smokesignal-go/internal/service"
	"github.com/anime-shed/smokesignal-go/pkg/models"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// UploadField is the multipart field carrying the image
const UploadField = "image"

//go:embed index.html
var indexPage []byte

var errRateLimited = errors.New("too many requests")

// Detector is the part of the detection service the HTTP layer uses
type Detector interface {
	Detect(ctx context.Context, src preprocess.ImageSource) (*service.Outcome, error)
	DetectURL(ctx context.Context, ref string) (*service.Outcome, error)
	Threshold() float64
}

// Options carries what the handler needs besides the detector
type Options struct {
	Config *config.Config
	// Gatherer backs /metrics; the route is omitted when nil
	Gatherer prometheus.Gatherer
	Model    models.ModelStatus
}

func NewHandler(detector Detector, opts Options) http.Handler {
	cfg := opts.Config
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/", uploadPage)
	r.GET("/health", healthCheck)
	r.GET("/status", status(detector, opts))
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	detect := r.Group("/detect")
	if cfg.RateLimitRPS > 0 {
		detect.Use(rateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	detect.POST("", detectUpload(detector, cfg))
	detect.POST("/url", detectURL(detector, cfg))

	return r
}

func uploadPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

func detectUpload(d Detector, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing detection upload")

		header, err := c.FormFile(UploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "upload too large",
					apperrors.NewValidationError("request body exceeds limit", err).WithStage(apperrors.StageUploaded))
				return
			}
			respondError(c, http.StatusBadRequest, "invalid upload",
				apperrors.NewValidationError(fmt.Sprintf("multipart field %q is required", UploadField), err).WithStage(apperrors.StageUploaded))
			return
		}

		file, err := header.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid upload",
				apperrors.NewValidationError("upload could not be read", err).WithStage(apperrors.StageUploaded))
			return
		}
		defer file.Close()

		src, err := preprocess.FromReader(file)
		if err != nil {
			decodeErr := apperrors.NewDecodeError("uploaded file is not a supported image", err)
			respondError(c, decodeErr.StatusCode, "image could not be decoded", decodeErr)
			return
		}

		outcome, err := d.Detect(ctx, src)
		if err != nil {
			respondError(c, determineStatusCode(err), "detection failed", err)
			return
		}

		logCompletion(outcome, header.Filename, startTime)
		c.JSON(http.StatusOK, NewDetectionResponse(outcome, d.Threshold()))
	}
}

func detectURL(d Detector, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing detection by URL")

		var req models.URLDetectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format",
				apperrors.NewValidationError("invalid request body", err).WithStage(apperrors.StageUploaded))
			return
		}

		outcome, err := d.DetectURL(ctx, req.URL)
		if err != nil {
			respondError(c, determineStatusCode(err), "detection failed", err)
			return
		}

		logCompletion(outcome, req.URL, startTime)
		c.JSON(http.StatusOK, NewDetectionResponse(outcome, d.Threshold()))
	}
}

func logCompletion(o *service.Outcome, source string, startTime time.Time) {
	logger.WithFields(logrus.Fields{
		"id":                 o.Result.ID,
		"source":             source,
		"verdict":            o.Result.Verdict,
		"confidence":         o.Result.Confidence,
		"alert_status":       o.Alert.Status,
		"processing_time_ms": time.Since(startTime).Milliseconds(),
	}).Info("Detection completed successfully")
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func status(d Detector, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := opts.Config.EmailStatus()
		c.JSON(http.StatusOK, models.StatusResponse{
			Model:     opts.Model,
			Threshold: d.Threshold(),
			Alerts: models.AlertsStatus{
				Enabled:         opts.Config.AlertsEnabled,
				EmailAddress:    email.EmailAddress,
				EmailPassword:   email.EmailPassword,
				TargetEmail:     email.TargetEmail,
				FullyConfigured: email.FullyConfigured,
			},
			Environment: opts.Config.Environment(),
		})
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// rateLimiter applies one token bucket to every request in the group
func rateLimiter(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded", errRateLimited)
			return
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	stage := apperrors.StageOf(err)

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"stage":       stage,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	resp := NewErrorResponse(err)
	resp.Error = http.StatusText(code)
	resp.Message = fmt.Sprintf("%s: %v", message, err)
	c.AbortWithStatusJSON(code, resp)
}
