package report_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/torosent/pulsewire/internal/auth"
	"github.com/torosent/pulsewire/internal/report"
)

type wsCollector struct {
	mu       sync.Mutex
	conns    int
	messages []string
	headers  []http.Header
}

func (c *wsCollector) snapshot() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns, append([]string(nil), c.messages...)
}

// newWSCollector starts a websocket server. When perConn > 0 the server hangs
// up after reading that many frames on a connection.
func newWSCollector(t *testing.T, perConn int) (*httptest.Server, *wsCollector) {
	t.Helper()
	col := &wsCollector{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		col.mu.Lock()
		col.conns++
		col.headers = append(col.headers, r.Header.Clone())
		col.mu.Unlock()

		for read := 0; perConn <= 0 || read < perConn; read++ {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				t.Errorf("frame type = %d, want text", msgType)
			}
			col.mu.Lock()
			col.messages = append(col.messages, string(data))
			col.mu.Unlock()
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
	}))
	t.Cleanup(server.Close)
	return server, col
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketSinkSendsTextFrames(t *testing.T) {
	server, col := newWSCollector(t, 0)

	headers := http.Header{}
	headers.Set("User-Agent", "pulsewire-test")
	sink := report.NewWebSocketSink(wsURL(server), headers, report.SinkOptions{})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Send(ctx, samplePayload(report.StatusRunning)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := sink.Send(ctx, samplePayload(report.StatusStopped)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, func() bool {
		_, msgs := col.snapshot()
		return len(msgs) == 2
	})
	conns, msgs := col.snapshot()
	if conns != 1 {
		t.Errorf("connections = %d, want 1", conns)
	}
	if gjson.Get(msgs[0], "status").String() != "running" || gjson.Get(msgs[1], "status").String() != "stopped" {
		t.Errorf("frames out of order: %v", msgs)
	}
	if sink.Dials() != 1 {
		t.Errorf("Dials() = %d, want 1", sink.Dials())
	}

	col.mu.Lock()
	ua := col.headers[0].Get("User-Agent")
	col.mu.Unlock()
	if ua != "pulsewire-test" {
		t.Errorf("User-Agent = %q, want pulsewire-test", ua)
	}
}

func TestWebSocketSinkRedialsAfterDisconnect(t *testing.T) {
	server, col := newWSCollector(t, 1)

	sink := report.NewWebSocketSink(wsURL(server), nil, report.SinkOptions{})
	defer sink.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = sink.Send(ctx, samplePayload(report.StatusRunning))
		cancel()

		conns, msgs := col.snapshot()
		if conns >= 2 && len(msgs) >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	conns, msgs := col.snapshot()
	if conns < 2 || len(msgs) < 2 {
		t.Fatalf("connections = %d, messages = %d; want redial after server hang-up", conns, len(msgs))
	}
	if sink.Dials() < 2 {
		t.Errorf("Dials() = %d, want >= 2", sink.Dials())
	}
}

func TestWebSocketSinkHandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	sink := report.NewWebSocketSink(wsURL(server), nil, report.SinkOptions{})
	defer sink.Close()

	err := sink.Send(context.Background(), samplePayload(report.StatusRunning))
	if !errors.Is(err, report.ErrDeliveryFailed) {
		t.Fatalf("Send() error = %v, want ErrDeliveryFailed", err)
	}
	var derr *report.DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusForbidden {
		t.Errorf("Send() error = %#v, want status 403", err)
	}
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Errorf("Send() error = %v, want ErrBadHandshake in chain", err)
	}
}

func TestWebSocketSinkCloseWithoutConnect(t *testing.T) {
	sink := report.NewWebSocketSink("ws://127.0.0.1:1/never", nil, report.SinkOptions{})
	if err := sink.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWebSocketSinkSendsBearerOnDial(t *testing.T) {
	server, col := newWSCollector(t, 0)

	sink := report.NewWebSocketSink(wsURL(server), nil, report.SinkOptions{Auth: auth.NewStatic("ws-token")})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Send(ctx, samplePayload(report.StatusRunning)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	col.mu.Lock()
	got := col.headers[0].Get("Authorization")
	col.mu.Unlock()
	if got != "Bearer ws-token" {
		t.Errorf("Authorization = %q, want Bearer ws-token", got)
	}
}

func TestWebSocketSinkRefreshesOAuthTokenAfter401(t *testing.T) {
	var issued atomic.Int32
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		_, _ = io.WriteString(w, fmt.Sprintf(`{"access_token":"tok-%d","expires_in":3600}`, n))
	}))
	defer idp.Close()

	var mu sync.Mutex
	var seen []string
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, authz)
		mu.Unlock()
		if authz != "Bearer tok-2" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	provider := auth.NewClientCredentials(auth.ClientCredentialsOptions{TokenURL: idp.URL, ClientID: "id", ClientSecret: "secret"})
	sink := report.NewWebSocketSink(wsURL(server), nil, report.SinkOptions{Auth: provider})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sink.Send(ctx, samplePayload(report.StatusRunning))
	var derr *report.DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first Send() error = %v, want 401 DeliveryError", err)
	}
	if err := sink.Send(ctx, samplePayload(report.StatusRunning)); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "Bearer tok-1" || seen[1] != "Bearer tok-2" {
		t.Errorf("Authorization headers = %v, want tok-1 then tok-2", seen)
	}
	if sink.Dials() != 1 {
		t.Errorf("Dials() = %d, want 1", sink.Dials())
	}
}
