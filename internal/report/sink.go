package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/auth"
	"github.com/torosent/pulsewire/internal/config"
	"github.com/torosent/pulsewire/internal/httpclient"
)

// ErrDeliveryFailed matches every *DeliveryError via errors.Is.
var ErrDeliveryFailed = errors.New("delivery failed")

// Sink transports one payload to the collector.
type Sink interface {
	Send(ctx context.Context, p Payload) error
	Close() error
}

// DeliveryError describes a failed delivery attempt. StatusCode is set when
// the collector answered with something other than 200; Err is set for
// transport and timeout failures.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("delivery failed: collector returned status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("delivery failed: collector returned status %d", e.StatusCode)
	case e.Err != nil:
		return "delivery failed: " + e.Err.Error()
	default:
		return ErrDeliveryFailed.Error()
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// SinkOptions carries the collaborators shared by every sink.
type SinkOptions struct {
	Client    *http.Client // HTTP sinks only; defaults to httpclient.NewClient(0)
	Logger    *zap.Logger
	Propagate bool          // inject W3C trace headers
	Auth      auth.Provider // nil sends no Authorization header
}

// NewSink picks a sink from the collector URL scheme: http and https POST
// JSON, ws and wss stream text frames. Credentials come from cfg unless
// opts.Auth is set.
func NewSink(cfg *config.Config, opts SinkOptions) (Sink, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if opts.Auth == nil {
		opts.Auth = auth.FromConfig(cfg, opts.Logger)
	}
	u, err := url.Parse(strings.TrimSpace(cfg.CollectorURL))
	if err != nil {
		return nil, fmt.Errorf("collector endpoint: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		builder, err := httpclient.NewRequestBuilder(cfg)
		if err != nil {
			return nil, err
		}
		return NewHTTPSink(builder, opts), nil
	case "ws", "wss":
		return NewWebSocketSink(u.String(), collectorHeaders(cfg), opts), nil
	default:
		return nil, fmt.Errorf("unsupported collector scheme %q", u.Scheme)
	}
}

func collectorHeaders(cfg *config.Config) http.Header {
	headers := http.Header{}
	for key, value := range cfg.Headers {
		headers.Set(http.CanonicalHeaderKey(strings.TrimSpace(key)), value)
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	headers.Set("User-Agent", ua)
	return headers
}
