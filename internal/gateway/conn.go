package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"runbox/internal/dockerstream"
	"runbox/internal/lsp"
	"runbox/internal/session"
	"runbox/pkg/api"

	"github.com/gorilla/websocket"
)

type connState int

const (
	stateAuthenticated connState = iota
	stateAttached
	stateClosed
)

// Conn is one WebSocket connection. The lifecycle is linear: authenticated
// on upgrade, attached after a successful attach event, closed on teardown.
// All state transitions happen under mu; the outbound channel decouples the
// container pump from the single WebSocket writer.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	gw     *Gateway
	logger *slog.Logger

	mu          sync.Mutex
	state       connState
	sessionID   string
	stream      Stream
	transformer *lsp.Transformer

	outbound  chan api.GatewayOutbound
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(id, userID string, ws *websocket.Conn, gw *Gateway, log *slog.Logger) *Conn {
	return &Conn{
		id:       id,
		userID:   userID,
		ws:       ws,
		gw:       gw,
		logger:   log,
		outbound: make(chan api.GatewayOutbound, gw.config.OutboundBuffer),
		closed:   make(chan struct{}),
	}
}

// readLoop consumes client events until the socket fails or closes.
func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg api.GatewayInbound
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case api.EventAttach:
			c.handleAttach(ctx, msg.SessionID)
		case api.EventForward:
			c.handleForward(ctx, msg.Message)
		default:
			c.sendError(http.StatusBadRequest, "unknown event type")
		}
	}
}

// writeLoop is the only goroutine writing to the socket. It owns the socket
// close: on teardown it drains pending events so a final detached
// notification still reaches the client, then closes, which also unblocks
// the read loop.
func (c *Conn) writeLoop() {
	defer c.ws.Close()
	for {
		select {
		case ev := <-c.outbound:
			if err := c.ws.WriteJSON(ev); err != nil {
				c.teardown("")
				return
			}
		case <-c.closed:
			for {
				select {
				case ev := <-c.outbound:
					if err := c.ws.WriteJSON(ev); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) handleAttach(ctx context.Context, sessionID string) {
	c.mu.Lock()
	if c.state != stateAuthenticated {
		c.mu.Unlock()
		c.sendError(http.StatusConflict, "already attached")
		return
	}
	c.mu.Unlock()

	sess, err := c.gw.sessions.Get(ctx, sessionID)
	if err != nil || sess.OwnerID != c.userID {
		// The same answer for a missing session and someone else's session,
		// so session IDs cannot be probed.
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			c.logger.Error("session lookup failed", "error", err)
		}
		c.sendError(http.StatusForbidden, "Session not found or access denied")
		return
	}
	if sess.ContainerID == "" {
		c.sendError(http.StatusNotFound, "Container not ready")
		return
	}

	stream, err := c.gw.attacher.Attach(ctx, sess.ContainerID)
	if err != nil {
		c.logger.Error("container attach failed", "container_id", sess.ContainerID, "error", err)
		c.sendError(http.StatusInternalServerError, "Failed to attach to container")
		return
	}

	c.mu.Lock()
	c.state = stateAttached
	c.sessionID = sessionID
	c.stream = stream
	c.transformer = lsp.NewTransformer(sess.WorkspaceRoot)
	c.mu.Unlock()

	c.gw.register(c)
	if err := c.gw.sessions.Touch(ctx, sessionID); err != nil {
		c.logger.Warn("session touch failed", "error", err)
	}

	c.logger.Info("attached", "session_id", sessionID, "container_id", sess.ContainerID)
	c.send(api.GatewayOutbound{Type: api.EventAttached, SessionID: sessionID})

	go c.pump(stream)
}

func (c *Conn) handleForward(ctx context.Context, message string) {
	c.mu.Lock()
	stream, transformer := c.stream, c.transformer
	sessionID := c.sessionID
	attached := c.state == stateAttached
	c.mu.Unlock()

	if !attached {
		c.sendError(http.StatusBadRequest, "not attached to a session")
		return
	}

	if _, err := stream.Write([]byte(transformer.ToContainer(message))); err != nil {
		c.logger.Error("stream write failed", "error", err)
		c.teardown("Container stopped")
		return
	}

	if err := c.gw.sessions.Touch(ctx, sessionID); err != nil {
		c.logger.Warn("session touch failed", "error", err)
	}
}

// pump reads the container's multiplexed stream, reassembles protocol
// frames, rewrites URIs, and emits one message event per frame.
func (c *Conn) pump(stream Stream) {
	c.mu.Lock()
	transformer := c.transformer
	sessionID := c.sessionID
	c.mu.Unlock()

	var demux dockerstream.Demuxer
	var frames lsp.FrameBuffer

	buf := make([]byte, 32*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			for _, payload := range demux.Write(buf[:n]) {
				complete, ferr := frames.Write(payload)
				if ferr != nil {
					c.logger.Warn("dropping malformed frame header", "error", ferr)
				}
				for _, frame := range complete {
					c.send(api.GatewayOutbound{
						Type:      api.EventMessage,
						SessionID: sessionID,
						Payload:   transformer.ToClient(string(frame)),
					})
				}
			}
		}
		if err != nil {
			c.teardown("Container stopped")
			return
		}
	}
}

// send queues an event for the writer, blocking if the client is slow.
// Teardown unblocks any pending sender.
func (c *Conn) send(ev api.GatewayOutbound) {
	select {
	case c.outbound <- ev:
	case <-c.closed:
	}
}

func (c *Conn) sendError(code int, reason string) {
	c.send(api.GatewayOutbound{Type: api.EventError, Code: code, Reason: reason})
}

// teardown closes the connection exactly once: the container stream is
// released, the registry entry removed, and the client notified when the
// container side went away first. The socket itself is closed by the write
// loop after it drains.
func (c *Conn) teardown(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		stream := c.stream
		sessionID := c.sessionID
		c.state = stateClosed
		c.mu.Unlock()

		if reason != "" {
			// Best effort; dropped if the buffer is already full.
			select {
			case c.outbound <- api.GatewayOutbound{Type: api.EventDetached, SessionID: sessionID, Reason: reason}:
			default:
			}
		}

		close(c.closed)
		if stream != nil {
			stream.Close()
		}
		c.gw.unregister(c.id)
	})
}
