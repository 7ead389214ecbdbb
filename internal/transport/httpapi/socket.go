package httpapi

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/game/facade"
	"github.com/cory-johannsen/tepache/internal/identity"
)

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.cfg.CORSOrigins
	return &websocket.Upgrader{
		HandshakeTimeout: s.socketWrite,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		},
	}
}

// handleSubscribe registers the caller before upgrading so registration
// failures are reported as ordinary HTTP errors.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var uid string
	if id, ok := identity.FromContext(r.Context()); ok {
		uid = id.UID
	}
	conn, err := s.deps.Hub.Connect(r.URL.Query().Get("gameSessionUrn"), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the failure response.
		s.logger.Debug("socket upgrade failed", zap.Error(err))
		s.deps.Hub.Disconnect(context.Background(), conn)
		return
	}
	go s.readSocket(ws, conn)
	s.writeSocket(ws, conn)
}

// readSocket discards inbound frames and disconnects once the client goes away.
func (s *Server) readSocket(ws *websocket.Conn, conn *facade.Conn) {
	_ = ws.SetReadDeadline(time.Time{})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			s.deps.Hub.Disconnect(context.Background(), conn)
			return
		}
	}
}

// writeSocket relays queued changes until the queue is closed or a write fails.
func (s *Server) writeSocket(ws *websocket.Conn, conn *facade.Conn) {
	defer ws.Close()
	for data := range conn.Events() {
		_ = ws.SetWriteDeadline(time.Now().Add(s.socketWrite))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("socket write failed",
				zap.String("conn_id", conn.ID()),
				zap.Error(err),
			)
			s.deps.Hub.Disconnect(context.Background(), conn)
			return
		}
	}
	deadline := time.Now().Add(s.socketWrite)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
