package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/metrics"
	"github.com/gyaneshwarpardhi/switchrelay/internal/relay"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	svc    *relay.Service
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(svc *relay.Service, loader *config.Loader) http.Handler {
	h := &Handler{svc: svc, loader: loader, mux: http.NewServeMux()}

	for _, p := range []string{"/webhook", "/api/switch-webhook"} {
		h.mux.HandleFunc("POST "+p, h.ingest)
		h.mux.HandleFunc("GET "+p, h.webhookInfo)
	}
	for _, p := range []string{"/events", "/api/switch-notifications"} {
		h.mux.HandleFunc("GET "+p, h.streamEvents)
	}
	h.mux.HandleFunc("GET /{$}", h.dashboard)
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("GET /playing", h.playing)
	h.mux.HandleFunc("POST /clear", h.clear)
	h.mux.HandleFunc("GET /test", h.test)
	h.mux.HandleFunc("POST /test", h.test)
	h.mux.HandleFunc("GET /ws", h.streamWebSocket)
	h.mux.HandleFunc("GET /poll", h.longPoll)
	h.mux.HandleFunc("GET /stats", h.stats)
	h.mux.HandleFunc("GET /hooks", h.listHooks)
	h.mux.HandleFunc("POST /hooks/reload", h.reloadHooks)
	h.mux.HandleFunc("POST /hooks/test", h.testHooks)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(corsMiddleware(h.serverConf().AllowedOrigins, recoverMiddleware(h.mux)))
}

func (h *Handler) relayConf() config.RelayConf   { return h.loader.Config().Relay }
func (h *Handler) serverConf() config.ServerConf { return h.loader.Config().Server }

// POST /webhook: validate, store, and fan out one console event.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(w, r, h.serverConf().MaxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.EventsRejected.WithLabelValues("too_large").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return
	}

	res, err := h.svc.Ingest(p)
	if err != nil {
		var verr *event.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("webhook rejected", "field", verr.Field, "reason", verr.Reason, "remote", r.RemoteAddr)
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("webhook processing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	slog.Info("webhook received",
		"action", res.Event.Action,
		"title", res.Event.TitleName,
		"title_id", res.Event.TitleID,
		"clients_notified", res.ClientsNotified,
	)
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:          "success",
		Message:         "Notification sent",
		ClientsNotified: res.ClientsNotified,
		Clients:         res.Clients,
		Event:           h.svc.View(res.Event),
	})
}

// GET /webhook: readiness document for people wiring up a console.
func (h *Handler) webhookInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ready",
		"message": "Switch webhook endpoint is ready. POST console events here.",
		"method":  "POST",
		"clients": h.svc.Clients(),
		"expectedPayload": map[string]string{
			"serial":           "string",
			"hos_version":      "string",
			"ams_version":      "string",
			"action":           "Launch | Exit",
			"title_id":         "string",
			"title_version":    "string",
			"title_name":       "string",
			"controller_count": "number",
		},
	})
}

// GET /status?limit=N: newest-first history snapshot.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	limit := h.relayConf().StatusLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if c := h.svc.Capacity(); limit > c {
		limit = c
	}

	events := h.svc.History(limit)
	st := h.svc.Stats()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   "ok",
		Total:    st.Stored,
		Capacity: st.Capacity,
		Clients:  st.Clients,
		Events:   events,
	})
}

// GET /playing: consoles with a Launch not yet followed by an Exit.
func (h *Handler) playing(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.NowPlaying()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// POST /clear empties the history; subscribers stay connected.
func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear()
	slog.Info("history cleared", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "History cleared",
	})
}

// GET|POST /test: liveness echo.
func (h *Handler) test(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"message":   "Switch webhook relay is running",
		"method":    r.Method,
		"timestamp": h.svc.Now().UTC(),
	})
}

// GET /hooks lists configured outbound hooks and known titles.
func (h *Handler) listHooks(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	resp := map[string]interface{}{
		"version":     cfg.Version,
		"config_path": h.loader.Path(),
		"hooks":       cfg.Hooks,
	}
	if cat := h.svc.Catalog(); cat != nil {
		resp["catalog"] = cat.Entries()
	}
	if eng := h.svc.Engine(); eng != nil {
		resp["action_types"] = eng.Registry().Types()
		resp["nodes"] = eng.Graph().NodeCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /hooks/reload re-reads the config file. A rejected file leaves the
// running config untouched; accepted ones are applied through the loader's callbacks.
func (h *Handler) reloadHooks(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalid) {
			code = http.StatusUnprocessableEntity
		}
		slog.Warn("config reload rejected", "path", h.loader.Path(), "err", err)
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":     true,
		"hooks_count":  len(cfg.Hooks),
		"titles_count": len(cfg.Catalog.Titles),
	})
}

type hookMatch struct {
	HookID     string `json:"hook_id"`
	ActionID   string `json:"action_id"`
	ActionType string `json:"action_type"`
}

// POST /hooks/test evaluates a webhook body against the hooks without running
// any action. With ?execute=true the matched actions run and their results are returned.
func (h *Handler) testHooks(w http.ResponseWriter, r *http.Request) {
	eng := h.svc.Engine()
	if eng == nil {
		writeError(w, http.StatusServiceUnavailable, "hooks are not enabled")
		return
	}
	execute := false
	if raw := r.URL.Query().Get("execute"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "execute must be a boolean")
			return
		}
		execute = v
	}
	p, err := decodePayload(w, r, h.serverConf().MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return
	}
	ev, err := p.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.ID = "test-" + uuid.NewString()
	ev.ReceivedAt = h.svc.Now().UTC()

	if execute {
		res, err := eng.ProcessSync(r.Context(), ev)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		slog.Info("hooks executed on demand", "event_id", ev.ID, "hooks_matched", res.HooksMatched, "actions", len(res.ActionsExecuted))
		writeJSON(w, http.StatusOK, res)
		return
	}

	matches, matched, evalErr := eng.DryRun(ev)
	out := make([]hookMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, hookMatch{HookID: m.HookID, ActionID: m.Node.ID(), ActionType: m.Node.ActionType()})
	}
	resp := map[string]interface{}{
		"hooks_matched": matched,
		"actions":       out,
	}
	if evalErr != nil {
		resp["error"] = evalErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the hook queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var util float64
	if eng := h.svc.Engine(); eng != nil {
		util = eng.QueueUtilization()
		metrics.HookQueueUtilization.Set(util)
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"clients":           h.svc.Clients(),
	})
}
