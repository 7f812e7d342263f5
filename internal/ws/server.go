// Package ws streams audit records to connected Socket.IO clients.
package ws

import (
	"context"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"

	"proxy_manager/internal/model"
)

const (
	EventConnected   = "connected"
	EventAudit       = "audit:event"
	EventAuditReplay = "audit:initial"
	EventError       = "error"

	requestAudit = "request:audit"
)

// AuditHistory supplies the records replayed to a client on request
type AuditHistory interface {
	ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Server wraps a Socket.IO server broadcasting audit records
type Server struct {
	io      *socketio.Server
	history AuditHistory
	logger  *logrus.Entry
}

// NewServer creates the Socket.IO server and registers its handlers.
// Call Start before mounting it.
func NewServer(history AuditHistory, logger *logrus.Entry) *Server {
	allowAll := func(r *http.Request) bool { return true }
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: allowAll},
			&websocket.Transport{CheckOrigin: allowAll},
		},
	})

	s := &Server{io: io, history: history, logger: logger}

	io.OnConnect("/", func(c socketio.Conn) error {
		// JWT authentication already happened in the handshake wrapper
		s.logger.WithField("conn", c.ID()).Debug("client connected")
		c.Emit(EventConnected, map[string]interface{}{"ok": true})
		return nil
	})
	io.OnDisconnect("/", func(c socketio.Conn, reason string) {
		s.logger.WithFields(logrus.Fields{"conn": c.ID(), "reason": reason}).Debug("client disconnected")
	})
	io.OnError("/", func(c socketio.Conn, e error) {
		if c == nil {
			s.logger.WithError(e).Warn("socket.io error")
			return
		}
		s.logger.WithField("conn", c.ID()).WithError(e).Warn("socket.io error")
	})
	io.OnEvent("/", requestAudit, s.handleRequestAudit)

	return s
}

// Start runs the Socket.IO event loop in the background
func (s *Server) Start() {
	go func() {
		if err := s.io.Serve(); err != nil {
			s.logger.WithError(err).Error("socket.io server stopped")
		}
	}()
	s.logger.Info("socket.io server started")
}

// Close stops the server and drops all connections
func (s *Server) Close() error {
	return s.io.Close()
}

// ServeHTTP serves the Socket.IO endpoint
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHTTP(w, r)
}

// BroadcastAudit pushes entry to every connected client
func (s *Server) BroadcastAudit(entry *model.AuditLog) {
	s.io.BroadcastToNamespace("/", EventAudit, entry)
}
