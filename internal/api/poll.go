package api

import (
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

const maxPollBatch = 16

type pollResponse struct {
	Events []event.Notification `json:"events"`
}

// GET /poll waits for the next notification, then returns it with any that
// arrived alongside it. Times out with 204.
func (h *Handler) longPoll(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscribe(w, r, "poll")
	if !ok {
		return
	}
	defer h.unsubscribe(sub)

	timer := time.NewTimer(h.relayConf().PollTimeout())
	defer timer.Stop()

	var batch []event.Notification
	select {
	case ev := <-sub.Events():
		batch = append(batch, h.svc.Notification(ev))
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return
	case <-sub.Done():
		w.WriteHeader(http.StatusNoContent)
		return
	case <-r.Context().Done():
		return
	}

drain:
	for len(batch) < maxPollBatch {
		select {
		case ev := <-sub.Events():
			batch = append(batch, h.svc.Notification(ev))
		default:
			break drain
		}
	}
	writeJSON(w, http.StatusOK, pollResponse{Events: batch})
}
