package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/auth"
	"github.com/torosent/pulsewire/internal/httpclient"
	"github.com/torosent/pulsewire/internal/logging"
	"github.com/torosent/pulsewire/internal/tracing"
)

// maxBodySnippet bounds how much of a collector response is kept.
const maxBodySnippet = 512

// HTTPSink POSTs payloads as JSON. Only a 200 response counts as delivered.
type HTTPSink struct {
	builder   *httpclient.RequestBuilder
	client    *http.Client
	logger    *zap.Logger
	auth      auth.Provider
	propagate bool
}

func NewHTTPSink(builder *httpclient.RequestBuilder, opts SinkOptions) *HTTPSink {
	client := opts.Client
	if client == nil {
		client = httpclient.NewClient(0)
	}
	return &HTTPSink{
		builder:   builder,
		client:    client,
		logger:    logging.OrNop(opts.Logger),
		auth:      opts.Auth,
		propagate: opts.Propagate,
	}
}

func (s *HTTPSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := s.builder.Build(ctx, body)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("build request: %w", err)}
	}
	if s.auth != nil {
		if err := s.auth.InjectHeader(ctx, req); err != nil {
			return &DeliveryError{Err: err}
		}
	}
	if s.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer drainAndClose(resp)

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	if resp.StatusCode == http.StatusUnauthorized {
		invalidateToken(s.auth)
	}
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if msg := gjson.GetBytes(snippet, "message"); msg.Exists() {
		s.logger.Debug("collector response", zap.String("message", msg.String()))
	}
	return nil
}

// invalidateToken forces a fresh token on the next attempt after a 401.
func invalidateToken(p auth.Provider) {
	if inv, ok := p.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

// Close releases idle keep-alive connections and the credential provider.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	if s.auth != nil {
		return s.auth.Close()
	}
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
