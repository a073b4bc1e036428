package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// wsConn adapts *websocket.Conn to the registry's Conn interface. Gorilla
// connections allow only one concurrent writer, and broadcast fan-out can
// race the handler's own acks, so every write is serialized here and capped
// by a deadline so a stalled peer fails fast instead of blocking a
// broadcast pass.
type wsConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (s *Server) handleChannelWS(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(chi.URLParam(r, "channelID"))
	if channelID == "" {
		respondError(w, http.StatusBadRequest, "missing_channel_id", "channel id is required")
		return
	}

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &wsConn{conn: raw, writeTimeout: s.cfg.WSWriteTimeout}
	connectionID := s.conns.Join(channelID, conn)
	defer func() {
		s.conns.Leave(connectionID)
		_ = raw.Close()
	}()

	// Acknowledge exactly once before any broadcast can reach this peer's
	// read side.
	s.conns.SendToConnection(connectionID, map[string]string{
		"type":          "connection_established",
		"connection_id": connectionID,
		"channel_id":    channelID,
	})

	// Subscribers are usually listen-only, so inbound traffic cannot refresh
	// the read deadline. The server pings on a ticker and each pong (or any
	// inbound message) re-arms the deadline; a peer that answers nothing for
	// two ping windows is dead.
	readWait := 2 * s.cfg.WSPingInterval
	raw.SetReadLimit(1 << 20)
	_ = raw.SetReadDeadline(time.Now().Add(readWait))
	raw.SetPongHandler(func(string) error {
		_ = raw.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.WSPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.writePing(); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(readWait))
		if msgType != websocket.TextMessage {
			continue
		}
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			continue
		}
		// No inbound protocol on this transport yet; echo so clients can
		// verify liveness end to end.
		s.conns.SendToConnection(connectionID, map[string]any{
			"type": "echo",
			"data": parsed,
		})
	}
}
