package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/switchrelay/internal/condition"
	"github.com/gyaneshwarpardhi/switchrelay/internal/registry"
)

// subscribe registers the caller as a live subscriber, honouring ?filter=.
// On failure it has already written the error response.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request, transport string) (*registry.Subscription, bool) {
	opts := []registry.SubscribeOption{registry.WithTransport(transport, r.RemoteAddr)}
	if f := r.URL.Query().Get("filter"); f != "" {
		expr, err := condition.Parse(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter: %s", err))
			return nil, false
		}
		opts = append(opts, registry.WithFilter(expr))
	}

	sub, err := h.svc.Subscribe(opts...)
	switch {
	case errors.Is(err, registry.ErrTooManySubscribers):
		writeError(w, http.StatusServiceUnavailable, "too many live clients, try again later")
		return nil, false
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	slog.Info("live client connected", "transport", transport, "id", sub.ID(), "remote", r.RemoteAddr, "clients", h.svc.Clients())
	return sub, true
}

func (h *Handler) unsubscribe(sub *registry.Subscription) {
	h.svc.Unsubscribe(sub)
	slog.Info("live client disconnected",
		"transport", sub.Transport(),
		"id", sub.ID(),
		"connected_for", time.Since(sub.CreatedAt()).Round(time.Second),
		"clients", h.svc.Clients(),
	)
}

// GET /events streams notifications as server-sent events.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	sub, ok := h.subscribe(w, r, "sse")
	if !ok {
		return
	}
	defer h.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Warn("sse: streaming unsupported", "err", err)
		return
	}

	heartbeat := time.NewTicker(h.relayConf().HeartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case ev := <-sub.Events():
			data, err := json.Marshal(h.svc.Notification(ev))
			if err != nil {
				slog.Error("sse: encode notification", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", ev.ID, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}
