// Package gateway relays language-server traffic between WebSocket clients
// and their session containers.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"runbox/internal/auth"
	"runbox/internal/logger"
	"runbox/internal/observability"
	"runbox/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sessionStore is the subset of the session store the gateway needs.
type sessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string) error
}

// tokenVerifier validates a bearer token and resolves the caller.
type tokenVerifier interface {
	Verify(token string) (*auth.Requester, error)
}

// Config holds gateway tunables.
type Config struct {
	// OutboundBuffer is the per-connection buffered event capacity between
	// the container pump and the WebSocket writer (default: 64).
	OutboundBuffer int
}

// Gateway upgrades authenticated HTTP requests to WebSocket connections and
// proxies protocol frames to the session's container. One connection attaches
// to at most one session at a time.
type Gateway struct {
	sessions sessionStore
	attacher Attacher
	tokens   tokenVerifier
	config   Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Conn
}

// New creates a gateway. metrics may be nil.
func New(sessions sessionStore, attacher Attacher, tokens tokenVerifier, config Config, log *slog.Logger, metrics *observability.Metrics) *Gateway {
	if config.OutboundBuffer <= 0 {
		config.OutboundBuffer = 64
	}
	return &Gateway{
		sessions: sessions,
		attacher: attacher,
		tokens:   tokens,
		config:   config,
		logger:   log,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

// ServeHTTP authenticates the caller, upgrades the connection, and serves it
// until either side closes. The token is rejected before the upgrade so an
// unauthenticated caller never holds a socket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	requester, err := g.tokens.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	ctx := logger.WithConnID(r.Context(), connID)
	log := logger.FromContext(ctx, g.logger).With("user_id", requester.UserID)

	c := newConn(connID, requester.UserID, ws, g, log)
	if g.metrics != nil {
		g.metrics.ActiveConnections.Add(ctx, 1)
	}
	log.Info("connection opened")

	go c.writeLoop()
	c.readLoop(ctx)
	c.teardown("")

	if g.metrics != nil {
		g.metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1)
	}
	log.Info("connection closed")
}

// ActiveConns returns the number of connections currently attached to a
// session.
func (g *Gateway) ActiveConns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) register(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[c.id] = c
}

func (g *Gateway) unregister(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, id)
}

// bearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter for clients that cannot set headers.
func bearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		return auth.ExtractBearer(h)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", auth.ErrMalformedAuth
}
