package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hpungsan/snapfood/internal/config"
	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/kv"
	"github.com/hpungsan/snapfood/internal/ops"
	"github.com/hpungsan/snapfood/internal/scan"
)

type recordingSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordingSink) Submit(_ context.Context, rec scan.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, rec.ID)
	return nil
}

func newTestServer(t *testing.T, online bool) (*httptest.Server, *ops.Service) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SyncBackoffMS = int(time.Hour / time.Millisecond)

	svc, err := ops.New(ops.Deps{
		Store:   kv.NewMemory(),
		Sink:    &recordingSink{},
		Monitor: connectivity.NewMonitor(online, nil),
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("ops.New() error = %v", err)
	}
	svc.Start(context.Background())

	srv := httptest.NewServer(NewServer(svc, nil, "test", "127.0.0.1", 0).Handler)
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return srv, svc
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("response is not JSON: %s", data)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestHandleEvaluate(t *testing.T) {
	srv, _ := newTestServer(t, true)

	status, body := doJSON(t, "POST", srv.URL+"/evaluate", `{"nutrients":{"sodium":500},"condition":"hypertensive"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	flags, _ := body["flags"].([]any)
	if len(flags) != 1 {
		t.Fatalf("flags = %v, want 1", flags)
	}
	flag := flags[0].(map[string]any)
	if flag["level"] != "caution" || flag["message"] != "Moderate sodium content" {
		t.Errorf("flag = %v", flag)
	}
}

func TestHandleEvaluate_Errors(t *testing.T) {
	srv, _ := newTestServer(t, true)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"nutrients":`, 400, "INVALID_REQUEST"},
		{"unknown field", `{"nutrients":{},"condition":"normal","extra":1}`, 400, "INVALID_REQUEST"},
		{"unknown condition", `{"nutrients":{"fat":1},"condition":"keto"}`, 400, "INVALID_REQUEST"},
		{"negative", `{"nutrients":{"fat":-1},"condition":"normal"}`, 422, "VALIDATION_ERROR"},
		{"string amount", `{"nutrients":{"fat":"1"},"condition":"normal"}`, 422, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, "POST", srv.URL+"/evaluate", tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if got := errorCode(body); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestRecordScan_OfflineQueuesThenReconnectDrains(t *testing.T) {
	srv, svc := newTestServer(t, false)

	status, body := doJSON(t, "POST", srv.URL+"/scans",
		`{"nutrients":{"carbs":52,"sugar":4,"fiber":6},"condition":"diabetic","dishName":"Jollof"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	rec := body["record"].(map[string]any)
	id := rec["id"].(string)
	if rec["source"] != "api" || rec["syncState"] != "pending" {
		t.Errorf("record = %v", rec)
	}

	status, body = doJSON(t, "GET", srv.URL+"/queue", "")
	if status != http.StatusOK {
		t.Fatalf("GET /queue status = %d", status)
	}
	if items := body["items"].([]any); len(items) != 1 {
		t.Fatalf("items = %v", items)
	}

	resp, err := http.Get(srv.URL + "/queue/" + id + "/report")
	if err != nil {
		t.Fatalf("GET report error = %v", err)
	}
	html, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(html), "<h1>Jollof</h1>") {
		t.Errorf("report = %s (%s)", html, resp.Header.Get("Content-Type"))
	}

	status, body = doJSON(t, "POST", srv.URL+"/connectivity", `{"online":true}`)
	if status != http.StatusOK || body["changed"] != true {
		t.Fatalf("POST /connectivity = %d %v", status, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	_, body = doJSON(t, "GET", srv.URL+"/queue/status", "")
	if body["pendingCount"] != float64(0) || body["lastSyncResult"] != "completed" {
		t.Errorf("status = %v", body)
	}

	status, body = doJSON(t, "GET", srv.URL+"/queue/"+id+"/report", "")
	if status != http.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Errorf("report after sync = %d %v", status, body)
	}
}

func TestRecordScan_OnlineSyncsInBackground(t *testing.T) {
	srv, svc := newTestServer(t, true)

	status, body := doJSON(t, "POST", srv.URL+"/scans", `{"nutrients":{"protein":30},"condition":"pregnant_nursing","source":"camera"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["sync"] != "accepted" {
		t.Errorf("sync = %v, want accepted", body["sync"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if svc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after sync, want 0", svc.PendingCount())
	}
}

func TestOfflineModeEndpoints(t *testing.T) {
	srv, svc := newTestServer(t, true)

	status, body := doJSON(t, "PUT", srv.URL+"/offline-mode", `{"enabled":true}`)
	if status != http.StatusOK || body["enabled"] != true {
		t.Fatalf("PUT /offline-mode = %d %v", status, body)
	}
	if !svc.OfflineMode() {
		t.Error("OfflineMode() = false after PUT")
	}

	status, body = doJSON(t, "PUT", srv.URL+"/offline-mode", `{}`)
	if status != http.StatusBadRequest || errorCode(body) != "INVALID_REQUEST" {
		t.Errorf("PUT without enabled = %d %v", status, body)
	}

	_, body = doJSON(t, "GET", srv.URL+"/offline-mode", "")
	if body["enabled"] != true {
		t.Errorf("GET /offline-mode = %v", body)
	}
}

func TestHandleRemove(t *testing.T) {
	srv, svc := newTestServer(t, false)

	_, body := doJSON(t, "POST", srv.URL+"/scans", `{"nutrients":{"fat":25},"condition":"cholesterol_watch"}`)
	id := body["record"].(map[string]any)["id"].(string)

	status, _ := doJSON(t, "DELETE", srv.URL+"/queue/"+id, "")
	if status != http.StatusOK {
		t.Errorf("DELETE status = %d", status)
	}
	if svc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d", svc.PendingCount())
	}

	status, body = doJSON(t, "DELETE", srv.URL+"/queue/"+id, "")
	if status != http.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Errorf("second DELETE = %d %v", status, body)
	}
}

func TestHandleSync(t *testing.T) {
	srv, _ := newTestServer(t, true)

	status, body := doJSON(t, "POST", srv.URL+"/sync", "")
	if status != http.StatusAccepted {
		t.Errorf("status = %d", status)
	}
	if body["trigger"] != "accepted" && body["trigger"] != "already_draining" {
		t.Errorf("trigger = %v", body["trigger"])
	}
}

func TestWebSocket_StatusStream(t *testing.T) {
	srv, _ := newTestServer(t, true)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first wsMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Type != "status" {
		t.Fatalf("first message type = %q, want status", first.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": "sync"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type == "sync" {
			break
		}
	}

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type == "error" {
			if msg.Message != "unknown message type" {
				t.Errorf("error message = %q", msg.Message)
			}
			break
		}
	}
}

func TestHandleHealth_CountsWebSocketClients(t *testing.T) {
	srv, _ := newTestServer(t, true)

	health := func() float64 {
		t.Helper()
		status, body := doJSON(t, "GET", srv.URL+"/healthz", "")
		if status != http.StatusOK {
			t.Fatalf("GET /healthz = %d %v", status, body)
		}
		n, _ := body["wsClients"].(float64)
		return n
	}

	if got := health(); got != 0 {
		t.Fatalf("wsClients = %v before connect, want 0", got)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first wsMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got := health(); got != 1 {
		t.Errorf("wsClients = %v while connected, want 1", got)
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for health() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("wsClients never dropped to 0 after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://127.0.0.1:8417", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "http://127.0.0.1:8417/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Errorf("sameOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
