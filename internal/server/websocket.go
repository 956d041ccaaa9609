package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsMessage is exchanged with browser tabs that keep the server alive.
type wsMessage struct {
	Type      string `json:"type"`
	TabActive *bool  `json:"tab_active,omitempty"`
}

const wsWriteTimeout = 5 * time.Second

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.activeClients++
	s.lastActivity = time.Now()
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		s.activeClients--
		s.mu.Unlock()
	}()

	if err := s.send(conn, wsMessage{Type: "connected"}); err != nil {
		return
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugw("websocket closed", "error", err)
			}
			return
		}

		s.recordActivity()
		if msg.TabActive != nil {
			s.setTabActive(*msg.TabActive)
		}
		if msg.Type == "ping" {
			if err := s.send(conn, wsMessage{Type: "pong"}); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

func (s *Server) clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeClients
}
