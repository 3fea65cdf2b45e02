package host

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/jmylchreest/clickr/internal/session"
)

// DefaultPath is the WebSocket route clients connect to.
const DefaultPath = "/heart"

// Endpoint upgrades inbound requests and installs each connection as the
// registry's only session.
type Endpoint struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewEndpoint creates a push endpoint feeding registry.
func NewEndpoint(registry *session.Registry, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{registry: registry, logger: logger}
}

// ServeHTTP accepts the upgrade and installs the session before returning.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // non-browser clients, no origin to check
	})
	if err != nil {
		e.logger.Warn("websocket accept failed", "peer", r.RemoteAddr, "error", err)
		return
	}

	peer := r.RemoteAddr
	e.logger.Info("client connected", "peer", peer)

	id := e.registry.Install(&wsSession{conn: conn}, peer)

	// The request context ends with this handler; the connection outlives it.
	closed := conn.CloseRead(context.WithoutCancel(r.Context()))
	go func() {
		<-closed.Done()
		if e.registry.Release(id) {
			e.logger.Info("client disconnected", "peer", peer, "session", id)
		}
	}()
}

// wsSession adapts a WebSocket connection to session.Session.
// Every write is one binary message.
type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Write(ctx context.Context, payload []byte) error {
	return s.conn.Write(ctx, websocket.MessageBinary, payload)
}

func (s *wsSession) Close() error {
	return s.conn.Close(websocket.StatusGoingAway, "session superseded")
}
