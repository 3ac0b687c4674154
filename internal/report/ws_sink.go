package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/auth"
	"github.com/torosent/pulsewire/internal/logging"
	"github.com/torosent/pulsewire/internal/tracing"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// WebSocketSink streams payloads as JSON text frames. The connection is dialed
// on first use and dropped after any error so the next Send redials.
type WebSocketSink struct {
	url       string
	headers   http.Header
	dialer    *websocket.Dialer
	logger    *zap.Logger
	auth      auth.Provider
	propagate bool

	mu    sync.Mutex
	conn  *websocket.Conn
	dials int
}

func NewWebSocketSink(url string, headers http.Header, opts SinkOptions) *WebSocketSink {
	if headers == nil {
		headers = http.Header{}
	}
	return &WebSocketSink{
		url:     url,
		headers: headers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger:    logging.OrNop(opts.Logger),
		auth:      opts.Auth,
		propagate: opts.Propagate,
	}
}

func (s *WebSocketSink) Send(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dial(ctx); err != nil {
			return err
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return &DeliveryError{Err: fmt.Errorf("write frame: %w", err)}
	}
	return nil
}

// dial must be called with s.mu held.
func (s *WebSocketSink) dial(ctx context.Context) error {
	headers := s.headers.Clone()
	if s.auth != nil {
		token, err := s.auth.Token(ctx)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		headers.Set("Authorization", "Bearer "+token)
	}
	if s.propagate {
		tracing.InjectHTTPHeaders(ctx, headers)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				invalidateToken(s.auth)
			}
			return &DeliveryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("websocket dial: %w", err)}
		}
		return &DeliveryError{Err: fmt.Errorf("websocket dial: %w", err)}
	}

	s.conn = conn
	s.dials++
	s.logger.Debug("collector websocket connected", zap.String("url", s.url), zap.Int("dials", s.dials))
	go s.readLoop(conn)
	return nil
}

// readLoop discards inbound frames so control frames are processed, and
// forgets the connection once the peer goes away.
func (s *WebSocketSink) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				_ = conn.Close()
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}
	}
}

// Dials reports how many connections have been established.
func (s *WebSocketSink) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Close sends a close frame and shuts the connection down.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.auth != nil {
		_ = s.auth.Close()
	}
	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	closeErr := s.conn.Close()
	s.conn = nil

	if err != nil {
		return err
	}
	return closeErr
}
