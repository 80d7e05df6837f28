package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crosslane/relayd/pkg/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the outer handler.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn adapts a gorilla connection to the relay transport. The session
// serializes WriteEnvelope calls; reads happen only in the channel loop.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteEnvelope(env *relay.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Close() error { return c.conn.Close() }

// handleChannel upgrades to a duplex envelope channel for the given role and
// pumps inbound envelopes through the session in arrival order. A malformed
// envelope fails that message, not the channel.
func (s *Server) handleChannel(role relay.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warnw("ws_upgrade_failed", "role", role, "err", err)
			return
		}

		sess := s.engine.NewSession(role, &wsConn{conn: conn})
		defer sess.Close()

		s.log.Infow("channel_connected", "role", role, "remote", conn.RemoteAddr().String())

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warnw("channel_read_failed", "role", role, "err", err)
				}
				break
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			var env relay.Envelope
			if err := json.Unmarshal(message, &env); err != nil {
				s.log.Warnw("channel_bad_envelope", "role", role, "err", err)
				continue
			}

			// Handle logs and reports request-level failures itself.
			_ = sess.Handle(r.Context(), &env)
		}

		s.log.Infow("channel_disconnected", "role", role, "remote", conn.RemoteAddr().String())
	}
}

// handleSubscribeOrders streams order lifecycle events for one market. Push
// only, no replay of history.
func (s *Server) handleSubscribeOrders(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	counter := r.URL.Query().Get("counter")
	if base == "" || counter == "" {
		respondError(w, http.StatusBadRequest, "base and counter symbols are required", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()

	sub := s.engine.Bus().Subscribe(base + counter)
	defer sub.Close()

	// Drain inbound frames so pongs are processed and closure is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-sub.C:
			msg := OrderFeedMessage{
				OrderID:     ev.OrderID,
				OrderStatus: ev.OrderStatus,
				Order:       ev.Order,
				FillAmount:  ev.FillAmount,
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
