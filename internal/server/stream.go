package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	streamBuffer = 64
)

// handleEvents streams match events over a websocket, optionally only those
// of ?session=N. Slow clients lose events rather than stall the engine.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var session uint32
	if q := r.URL.Query().Get("session"); q != "" {
		n, err := strconv.ParseUint(q, 10, 32)
		if err != nil {
			badRequest(w, "bad session id")
			return
		}
		session = uint32(n)
	}

	// Subscribe before the handshake completes so nothing published after
	// the client connected is missed.
	sub := s.bus.Subscribe(session, streamBuffer)
	defer s.bus.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	s.log.Debug().Uint32("session", session).Msg("event stream opened")

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			if n := sub.Dropped(); n > 0 {
				s.log.Info().Uint32("session", session).Uint64("dropped", n).Msg("event stream lagged")
			}
			return
		case <-r.Context().Done():
			return
		}
	}
}
