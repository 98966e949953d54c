package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Credentials travel in a bearer header, not cookies, so cross-origin
// upgrades carry no ambient authority.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a websocket feed for owner. The
// subscription is registered before snapshot runs, so a mutation that
// commits while the snapshot query is in flight lands in the feed instead
// of vanishing between the two. The snapshot is pushed first so a
// (re)connecting client starts from authoritative state, then single-entity
// events follow in commit order.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, owner string, snapshot func() ([]*models.Task, error)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).WithField("component", "hub").Warn("websocket upgrade failed")
		return
	}

	sub := h.Subscribe(owner)

	tasks, err := snapshot()
	if err != nil {
		h.logger.WithError(err).WithField("component", "hub").Error("failed to load snapshot")
		sub.Close()
		conn.Close()
		return
	}

	go h.writePump(conn, sub, tasks)
	go h.readPump(conn, sub)
}

func (h *Hub) writePump(conn *websocket.Conn, sub *Subscription, snapshot []*models.Task) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(&models.Event{Type: models.EventSnapshot, Tasks: snapshot}); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
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

// readPump discards inbound frames; clients mutate over HTTP, the socket is
// push-only. Reading is still required to notice closes and answer pings.
func (h *Hub) readPump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(512)
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
}
