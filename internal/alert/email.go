package alert

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/anime-shed/smokesignal-go/internal/decision"
	"github.com/anime-shed/smokesignal-go/internal/logger"
)

const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 465
)

// EmailSettings describes the sending account and destination
type EmailSettings struct {
	Address  string
	Password string
	Target   string
	Host     string
	Port     int
	Timeout  time.Duration
}

// Validate checks the settings are complete enough to build a sender
func (s EmailSettings) Validate() error {
	if strings.TrimSpace(s.Address) == "" || s.Password == "" {
		return fmt.Errorf("%w: set EMAIL_ADDRESS and EMAIL_PASSWORD", ErrCredentialsMissing)
	}
	if strings.TrimSpace(s.Target) == "" {
		return fmt.Errorf("%w: TARGET_EMAIL is empty", ErrCredentialsMissing)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid SMTP port %d", s.Port)
	}
	return nil
}

func (s EmailSettings) withDefaults() EmailSettings {
	if s.Host == "" {
		s.Host = DefaultSMTPHost
	}
	if s.Port == 0 {
		s.Port = DefaultSMTPPort
	}
	return s
}

// URL renders the settings as a shoutrrr smtp service URL. Port 465 uses
// implicit TLS; other ports negotiate STARTTLS.
func (s EmailSettings) URL() string {
	s = s.withDefaults()

	encryption := "ExplicitTLS"
	if s.Port == 465 {
		encryption = "ImplicitTLS"
	}

	q := url.Values{}
	q.Set("fromaddress", s.Address)
	q.Set("toaddresses", s.Target)
	q.Set("encryption", encryption)
	q.Set("auth", "Plain")
	q.Set("usestarttls", strconv.FormatBool(encryption == "ExplicitTLS"))

	u := url.URL{
		Scheme:   "smtp",
		User:     url.UserPassword(s.Address, s.Password),
		Host:     s.Host + ":" + strconv.Itoa(s.Port),
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// sender is the part of the shoutrrr router the dispatcher uses
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// EmailDispatcher sends alerts over SMTP. One attempt per detection, no retry.
type EmailDispatcher struct {
	settings EmailSettings
	sender   sender
}

// NewEmailDispatcher validates settings and builds the sender once
func NewEmailDispatcher(settings EmailSettings) (*EmailDispatcher, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings = settings.withDefaults()

	router, err := shoutrrr.CreateSender(settings.URL())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDispatch, redact(err.Error(), settings.Password))
	}
	if settings.Timeout > 0 {
		router.Timeout = settings.Timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return newEmailDispatcher(settings, router), nil
}

func newEmailDispatcher(settings EmailSettings, s sender) *EmailDispatcher {
	return &EmailDispatcher{settings: settings, sender: s}
}

// Dispatch composes and sends the alert for result
func (d *EmailDispatcher) Dispatch(ctx context.Context, result decision.DetectionResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	return d.Send(ComposeMessage(result.Timestamp, OptionsFor(result)))
}

// Send delivers an already composed message
func (d *EmailDispatcher) Send(msg Message) error {
	params := stypes.Params{}
	params.SetTitle(msg.Subject)

	for _, err := range d.sender.Send(msg.Body, &params) {
		if err == nil {
			continue
		}
		text := redact(err.Error(), d.settings.Password)
		logger.Module("alert").WithFields(map[string]interface{}{
			"target": d.settings.Target,
			"host":   d.settings.Host,
		}).WithField("error", text).Error("Failed to send email alert")

		if isAuthFailure(text) {
			return fmt.Errorf("%w: %w: check your email credentials", ErrDispatch, ErrAuthentication)
		}
		return fmt.Errorf("%w: SMTP error occurred: %s", ErrDispatch, text)
	}

	logger.Module("alert").WithField("target", d.settings.Target).Info("Email alert sent")
	return nil
}

// Target is the destination address
func (d *EmailDispatcher) Target() string { return d.settings.Target }

func isAuthFailure(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "535") ||
		strings.Contains(lower, "authenticat") ||
		strings.Contains(lower, "username and password not accepted")
}

func redact(text, secret string) string {
	if secret == "" {
		return text
	}
	text = strings.ReplaceAll(text, url.QueryEscape(secret), "****")
	text = strings.ReplaceAll(text, url.PathEscape(secret), "****")
	return strings.ReplaceAll(text, secret, "****")
}
