package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/switchrelay/internal/action"
	"github.com/gyaneshwarpardhi/switchrelay/internal/action/forward"
	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
	"github.com/gyaneshwarpardhi/switchrelay/internal/engine"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/hooks"
	"github.com/gyaneshwarpardhi/switchrelay/internal/registry"
	"github.com/gyaneshwarpardhi/switchrelay/internal/relay"
	"github.com/gyaneshwarpardhi/switchrelay/internal/store"
)

const testConfig = `
version: v1
server:
  max_body_bytes: 1024
relay:
  history_capacity: 100
  heartbeat_interval_ms: 50
  poll_timeout_ms: 200
  max_subscribers: 3
catalog:
  titles:
    - title_id: "0100152000022000"
      name: "Mario Kart 8 Deluxe"
      image: "https://img.example/mk8.png"
hooks:
  - id: hk_party
    enabled: true
    actions: [Launch]
    children:
      - condition:
          id: cond_party
          expression: 'controller_count >= 2'
          children:
            - action:
                id: act_forward
                type: forward
                params:
                  url: "https://relay.invalid/api/switch-webhook"
`

type fixture struct {
	srv    *httptest.Server
	svc    *relay.Service
	path   string
	loader *config.Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	cfg := loader.Config()

	reg := action.NewRegistry(forward.New(nil))
	g, err := hooks.Build(cfg.Hooks, reg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, g, reg, cfg.Engine)

	svc := relay.New(
		store.New(cfg.Relay.HistoryCapacity),
		registry.New(
			registry.WithDeliveryTimeout(cfg.Relay.DeliveryTimeout()),
			registry.WithMaxSubscribers(cfg.Relay.MaxSubscribers),
		),
		relay.WithEngine(eng),
		relay.WithSerialMasking(false),
	)
	require.NoError(t, svc.Apply(cfg))
	svc.Bind(loader)

	srv := httptest.NewServer(New(svc, loader))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, svc: svc, path: path, loader: loader}
}

func (f *fixture) post(t *testing.T, path, contentType, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.svc.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

const brotato = `{"serial":"X1","hos_version":"18.1.0","ams_version":"1.8.0","action":"Launch","title_id":"T1","title_version":"1.0","title_name":"Brotato","controller_count":2}`

func TestIngest_NotifiesSubscribersAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	sub, err := f.svc.Subscribe()
	require.NoError(t, err)

	resp, body := f.post(t, "/webhook", "application/json", brotato)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Notification sent", body["message"])
	assert.Equal(t, float64(1), body["clientsNotified"])

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "Brotato", ev.TitleName)
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}

	resp, status := f.get(t, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := status["events"].([]interface{})
	require.Len(t, events, 1)
	first := events[0].(map[string]interface{})
	assert.Equal(t, "Brotato", first["title_name"])
	assert.Equal(t, "Launch", first["action"])
	assert.Equal(t, float64(1), status["clients"])
}

func TestIngest_AlternatePathAndForm(t *testing.T) {
	f := newFixture(t)

	form := url.Values{
		"serial":           {"X2"},
		"action":           {"Exit"},
		"title_id":         {"0100152000022000"},
		"title_name":       {"Mario Kart 8 Deluxe"},
		"controller_count": {"-3"},
	}
	resp, body := f.post(t, "/api/switch-webhook", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev := body["event"].(map[string]interface{})
	assert.Equal(t, float64(0), ev["controller_count"], "negative counts clamp to zero")
	assert.Equal(t, float64(0), body["clientsNotified"])
}

func TestIngest_Rejections(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/webhook", "application/json", brotato)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
	}{
		{"unknown action", "application/json", `{"action":"Pause","title_name":"Brotato"}`, http.StatusBadRequest},
		{"missing action", "application/json", `{"title_name":"Brotato"}`, http.StatusBadRequest},
		{"missing title", "application/json", `{"action":"Launch"}`, http.StatusBadRequest},
		{"malformed json", "application/json", `{"action":`, http.StatusBadRequest},
		{"empty body", "application/json", ``, http.StatusBadRequest},
		{"bad form count", "application/x-www-form-urlencoded", "action=Launch&title_name=x&controller_count=lots", http.StatusBadRequest},
		{"too large", "application/json", `{"action":"Launch","title_name":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.post(t, "/webhook", tc.contentType, tc.body)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["message"])
		})
	}

	_, status := f.get(t, "/status")
	assert.Equal(t, float64(1), status["total"], "rejected bodies must not be stored")
}

func TestStatus_Limit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.post(t, "/webhook", "application/json", brotato)
	}

	_, body := f.get(t, "/status")
	assert.Len(t, body["events"], 10, "default limit")
	assert.Equal(t, float64(15), body["total"])
	assert.Equal(t, float64(100), body["capacity"])

	_, body = f.get(t, "/status?limit=3")
	assert.Len(t, body["events"], 3)

	_, body = f.get(t, "/status?limit=1000")
	assert.Len(t, body["events"], 15)

	resp, _ := f.get(t, "/status?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	sub, err := f.svc.Subscribe()
	require.NoError(t, err)
	f.post(t, "/webhook", "application/json", brotato)

	for i := 0; i < 2; i++ {
		resp, body := f.post(t, "/clear", "application/json", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "success", body["status"])
	}
	_, status := f.get(t, "/status")
	assert.Equal(t, float64(0), status["total"])
	assert.Equal(t, float64(1), status["clients"])
	f.svc.Unsubscribe(sub)
}

func TestTestAndInfoEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/test")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "GET", body["method"])

	resp, body = f.post(t, "/test", "application/json", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST", body["method"])

	resp, body = f.get(t, "/webhook")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
	assert.Contains(t, body["expectedPayload"], "title_name")

	resp, _ = f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = f.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)

	read := func() string {
		resp, err := http.Get(f.srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		var sb strings.Builder
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			sb.WriteString(sc.Text())
			sb.WriteByte('\n')
		}
		return sb.String()
	}

	assert.Contains(t, read(), "No webhooks received yet...")

	f.post(t, "/webhook", "application/json",
		`{"action":"Launch","title_id":"0100152000022000","title_name":"Mario Kart 8 Deluxe <script>","controller_count":4}`)
	page := read()
	assert.NotContains(t, page, "No webhooks received yet...")
	assert.Contains(t, page, "Mario Kart 8 Deluxe &lt;script&gt;")
	assert.Contains(t, page, "https://img.example/mk8.png")

	resp, _ := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSE(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/events?filter="+url.QueryEscape(`action == "Launch"`), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(l, prefix) {
					return strings.TrimPrefix(l, prefix)
				}
			case <-deadline:
				t.Fatalf("no line with prefix %q", prefix)
			}
		}
	}

	next(": connected")
	next(": heartbeat")

	f.post(t, "/webhook", "application/json", `{"action":"Exit","title_name":"Filtered Out"}`)
	f.post(t, "/webhook", "application/json",
		`{"serial":"XAW10000000001","action":"Launch","title_id":"0100152000022000","title_name":"Mario Kart 8 Deluxe","controller_count":4}`)

	var n event.Notification
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &n))
	assert.Equal(t, "switch_game", n.Type)
	assert.Equal(t, "started", n.Action)
	assert.Equal(t, "Mario Kart 8 Deluxe", n.Game.Name)
	assert.Equal(t, "https://img.example/mk8.png", n.Game.Image)
	assert.Equal(t, 4, n.Player.ControllerCount)

	resp2, _ := f.get(t, "/events?filter="+url.QueryEscape("action =="))
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestWebSocket(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	f.waitForClients(t, 1)

	f.post(t, "/webhook", "application/json", brotato)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n event.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "Brotato", n.Game.Name)
	assert.Equal(t, "X1", n.Player.Serial)

	require.NoError(t, conn.Close())
	f.waitForClients(t, 0)
}

func TestLongPoll(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/poll")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	type result struct {
		code int
		body pollResponse
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(f.srv.URL + "/poll")
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		var body pollResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		done <- result{code: resp.StatusCode, body: body}
	}()
	f.waitForClients(t, 1)
	f.post(t, "/webhook", "application/json", brotato)

	select {
	case r := <-done:
		require.Equal(t, http.StatusOK, r.code)
		require.Len(t, r.body.Events, 1)
		assert.Equal(t, "Brotato", r.body.Events[0].Game.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not return")
	}
	f.waitForClients(t, 0)
}

func TestTooManySubscribers(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Subscribe()
		require.NoError(t, err)
	}
	resp, body := f.get(t, "/poll")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
}

func TestHooksEndpoints(t *testing.T) {
	f := newFixture(t)

	_, body := f.get(t, "/hooks")
	assert.Len(t, body["hooks"], 1)
	assert.Equal(t, []interface{}{"forward"}, body["action_types"])
	assert.Equal(t, f.path, body["config_path"])
	require.Len(t, body["catalog"], 1)
	assert.Equal(t, "Mario Kart 8 Deluxe", body["catalog"].([]interface{})[0].(map[string]interface{})["name"])

	_, body = f.post(t, "/hooks/test", "application/json", `{"action":"Launch","title_name":"Mario Kart","controller_count":4}`)
	assert.Equal(t, []interface{}{"hk_party"}, body["hooks_matched"])

	_, body = f.post(t, "/hooks/test", "application/json", `{"action":"Launch","title_name":"Mario Kart","controller_count":1}`)
	assert.Empty(t, body["actions"])

	updated := strings.Replace(testConfig, "controller_count >= 2", "controller_count >= 1", 1)
	require.NoError(t, os.WriteFile(f.path, []byte(updated), 0o644))
	resp, body := f.post(t, "/hooks/reload", "application/json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["reloaded"])

	_, body = f.post(t, "/hooks/test", "application/json", `{"action":"Launch","title_name":"Mario Kart","controller_count":1}`)
	assert.Len(t, body["actions"], 1)

	broken := strings.Replace(testConfig, "type: forward", "type: carrier_pigeon", 1)
	require.NoError(t, os.WriteFile(f.path, []byte(broken), 0o644))
	resp, _ = f.post(t, "/hooks/reload", "application/json", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// The previous hooks stay in force.
	_, body = f.get(t, "/hooks")
	hk := body["hooks"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, fmt.Sprint(hk["children"]), "forward")
	_, body = f.post(t, "/hooks/test", "application/json", `{"action":"Launch","title_name":"Mario Kart","controller_count":1}`)
	assert.Len(t, body["actions"], 1)
}

func TestHooksTest_Execute(t *testing.T) {
	var hits atomic.Int32
	var gotTitle atomic.Value
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p event.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		gotTitle.Store(p.TitleName)
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer target.Close()

	f := newFixture(t)
	updated := strings.Replace(testConfig, "https://relay.invalid/api/switch-webhook", target.URL+"/hook", 1)
	require.NoError(t, os.WriteFile(f.path, []byte(updated), 0o644))
	resp, _ := f.post(t, "/hooks/reload", "application/json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.post(t, "/hooks/test?execute=true", "application/json", `{"action":"Launch","title_name":"Mario Kart","controller_count":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"hk_party"}, body["hooks_matched"])
	require.Len(t, body["actions_executed"], 1)
	res := body["actions_executed"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, true, res["success"])
	assert.Equal(t, float64(http.StatusAccepted), res["status_code"])
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Mario Kart", gotTitle.Load())

	// Nothing is stored or broadcast.
	_, status := f.get(t, "/status")
	assert.Equal(t, float64(0), status["total"])

	resp, _ = f.post(t, "/hooks/test?execute=maybe", "application/json", `{"action":"Launch","title_name":"Mario Kart"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReload_RejectedConfigLeavesServerRunning(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		name string
		from string
		to   string
	}{
		{"negative body limit", "max_body_bytes: 1024", "max_body_bytes: -1"},
		{"negative heartbeat", "heartbeat_interval_ms: 50", "heartbeat_interval_ms: -1"},
		{"negative poll timeout", "poll_timeout_ms: 200", "poll_timeout_ms: -1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bad := strings.Replace(testConfig, tc.from, tc.to, 1)
			require.NoError(t, os.WriteFile(f.path, []byte(bad), 0o644))

			resp, body := f.post(t, "/hooks/reload", "application/json", "")
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			assert.Contains(t, body["message"], strings.SplitN(tc.to, ":", 2)[0])

			resp, body = f.post(t, "/webhook", "application/json", brotato)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "success", body["status"])

			cfg := f.loader.Config()
			assert.Equal(t, int64(1024), cfg.Server.MaxBodyBytes)
			assert.Equal(t, 50, cfg.Relay.HeartbeatIntervalMs)
			assert.Equal(t, 200, cfg.Relay.PollTimeoutMs)
		})
	}

	// Live streams still use the last good heartbeat.
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/events", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	sawHeartbeat := false
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), ": heartbeat") {
			sawHeartbeat = true
			break
		}
	}
	assert.True(t, sawHeartbeat, "expected a heartbeat comment on /events")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/webhook", "application/json", brotato)

	resp, body := f.get(t, "/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["events_stored"])
	assert.Equal(t, float64(1), body["events_received_total"])
	assert.Greater(t, body["goroutines"], float64(0))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/webhook", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, errorResponse{Status: "error", Message: "Failed to process webhook"}, body)
}
