package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"runbox/internal/auth"
	"runbox/internal/logger"
	"runbox/internal/session"
	"runbox/pkg/api"

	"github.com/gorilla/websocket"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (*auth.Requester, error) {
	if token == "good-token" {
		return &auth.Requester{UserID: "user-1"}, nil
	}
	return nil, auth.ErrInvalidToken
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	touches  int
}

func (f *fakeSessions) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (f *fakeSessions) Touch(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeSessions) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches
}

// fakeStream is an in-memory container stream: the test feeds the read side
// through incoming and inspects stdin writes.
type fakeStream struct {
	incoming chan []byte
	mu       sync.Mutex
	writes   []byte
	once     sync.Once
	closedCh chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		incoming: make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	select {
	case chunk, ok := <-s.incoming:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-s.closedCh:
		return 0, io.EOF
	}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, p...)
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closedCh) })
	return nil
}

func (s *fakeStream) written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.writes)
}

type fakeAttacher struct {
	stream *fakeStream
	err    error
}

func (f *fakeAttacher) Attach(ctx context.Context, containerID string) (Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// stdoutFrame wraps a payload in the container stream's 8-byte frame header.
func stdoutFrame(payload string) []byte {
	header := make([]byte, 8)
	header[0] = 1
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

// protocolMessage builds a length-prefixed frame around a JSON body.
func protocolMessage(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func newTestGateway(sessions *fakeSessions, attacher Attacher) *Gateway {
	return New(sessions, attacher, fakeVerifier{}, Config{}, logger.New("test"), nil)
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) api.GatewayOutbound {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev api.GatewayOutbound
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestRejectsMissingTokenBeforeUpgrade(t *testing.T) {
	gw := newTestGateway(&fakeSessions{sessions: map[string]*session.Session{}}, &fakeAttacher{})
	server := httptest.NewServer(gw)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 before upgrade, got %+v", resp)
	}
}

func TestRejectsInvalidToken(t *testing.T) {
	gw := newTestGateway(&fakeSessions{sessions: map[string]*session.Session{}}, &fakeAttacher{})
	server := httptest.NewServer(gw)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail with an invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 before upgrade, got %+v", resp)
	}
}

func TestAttachUnknownSessionDenied(t *testing.T) {
	gw := newTestGateway(&fakeSessions{sessions: map[string]*session.Session{}}, &fakeAttacher{})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "nope"})

	ev := readEvent(t, ws)
	if ev.Type != api.EventError || ev.Code != http.StatusForbidden {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Reason != "Session not found or access denied" {
		t.Errorf("unexpected reason %q", ev.Reason)
	}
}

func TestAttachForeignSessionDeniedIdentically(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "someone-else", ContainerID: "c1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{stream: newFakeStream()})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})

	ev := readEvent(t, ws)
	if ev.Type != api.EventError || ev.Code != http.StatusForbidden {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Reason != "Session not found or access denied" {
		t.Errorf("foreign session must be indistinguishable from missing, got %q", ev.Reason)
	}
}

func TestAttachWithoutContainerNotReady(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "user-1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})

	ev := readEvent(t, ws)
	if ev.Type != api.EventError || ev.Code != http.StatusNotFound || ev.Reason != "Container not ready" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestAttachAndReceiveRewrittenMessage(t *testing.T) {
	stream := newFakeStream()
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "user-1", ContainerID: "c1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{stream: stream})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})

	if ev := readEvent(t, ws); ev.Type != api.EventAttached || ev.SessionID != "sess-1" {
		t.Fatalf("expected attached event, got %+v", ev)
	}

	body := `{"uri":"file:///lsp-files/sess-1/main.dart"}`
	stream.incoming <- stdoutFrame(protocolMessage(body))

	ev := readEvent(t, ws)
	if ev.Type != api.EventMessage {
		t.Fatalf("expected message event, got %+v", ev)
	}
	if !strings.Contains(ev.Payload, `file:///workspace/main.dart`) {
		t.Errorf("container URI not rewritten for client: %q", ev.Payload)
	}
	if sessions.touchCount() == 0 {
		t.Error("attach must record session activity")
	}
}

func TestForwardRewritesForContainer(t *testing.T) {
	stream := newFakeStream()
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "user-1", ContainerID: "c1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{stream: stream})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})
	if ev := readEvent(t, ws); ev.Type != api.EventAttached {
		t.Fatalf("expected attached event, got %+v", ev)
	}

	msg := protocolMessage(`{"uri":"file:///workspace/main.dart"}`)
	ws.WriteJSON(api.GatewayInbound{Type: api.EventForward, Message: msg})

	deadline := time.Now().Add(2 * time.Second)
	for stream.written() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := stream.written(); !strings.Contains(got, "file:///lsp-files/sess-1/main.dart") {
		t.Errorf("client URI not rewritten for container: %q", got)
	}
}

func TestForwardBeforeAttachRejected(t *testing.T) {
	gw := newTestGateway(&fakeSessions{sessions: map[string]*session.Session{}}, &fakeAttacher{})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventForward, Message: "hello"})

	ev := readEvent(t, ws)
	if ev.Type != api.EventError || ev.Code != http.StatusBadRequest {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestContainerExitSendsDetached(t *testing.T) {
	stream := newFakeStream()
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "user-1", ContainerID: "c1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{stream: stream})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})
	if ev := readEvent(t, ws); ev.Type != api.EventAttached {
		t.Fatalf("expected attached event, got %+v", ev)
	}

	close(stream.incoming)

	ev := readEvent(t, ws)
	if ev.Type != api.EventDetached || ev.Reason != "Container stopped" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestRegistryTracksAttachedConnections(t *testing.T) {
	stream := newFakeStream()
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", OwnerID: "user-1", ContainerID: "c1", WorkspaceRoot: "/lsp-files/sess-1"},
	}}
	gw := newTestGateway(sessions, &fakeAttacher{stream: stream})
	server := httptest.NewServer(gw)
	defer server.Close()

	ws := dial(t, server, "good-token")
	ws.WriteJSON(api.GatewayInbound{Type: api.EventAttach, SessionID: "sess-1"})
	if ev := readEvent(t, ws); ev.Type != api.EventAttached {
		t.Fatalf("expected attached event, got %+v", ev)
	}

	if n := gw.ActiveConns(); n != 1 {
		t.Fatalf("expected 1 registered connection, got %d", n)
	}

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for gw.ActiveConns() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := gw.ActiveConns(); n != 0 {
		t.Errorf("expected registry cleanup after close, got %d", n)
	}
}
