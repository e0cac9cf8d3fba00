package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const wsPongWait = 60 * time.Second

func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := h.serverConf().AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		},
	}
}

// GET /ws streams notifications as JSON text frames.
func (h *Handler) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscribe(w, r, "ws")
	if !ok {
		return
	}
	defer h.unsubscribe(sub)

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	// The read loop only exists to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeWait := h.relayConf().DeliveryTimeout()
	if writeWait < time.Second {
		writeWait = time.Second
	}
	ping := time.NewTicker(h.relayConf().HeartbeatInterval())
	defer ping.Stop()

	for {
		select {
		case ev := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(h.svc.Notification(ev)); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "dropped"),
				time.Now().Add(writeWait))
			return
		case <-r.Context().Done():
			return
		}
	}
}
