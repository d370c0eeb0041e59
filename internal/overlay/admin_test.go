package overlay

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/treeline-net/treeline/internal/observability"
	"github.com/treeline-net/treeline/internal/testutil/testlog"
)

func TestAdminHealthEndpoint(t *testing.T) {
	testlog.Start(t)
	_, router := newAdminFixture(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if body["status"] != "ok" || body["node"] != "node-test" || body["role"] != "peer" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestAdminStatusEndpoint(t *testing.T) {
	testlog.Start(t)
	backend, router := newAdminFixture(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", w.Code)
	}
	var got StatusView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if got.Node != backend.status.Node || got.Parent != backend.status.Parent {
		t.Fatalf("status = %+v, want %+v", got, backend.status)
	}
	if !got.Registered || got.Peers != backend.status.Peers {
		t.Fatalf("status = %+v, want %+v", got, backend.status)
	}
}

func TestAdminMessagesEndpoint(t *testing.T) {
	testlog.Start(t)
	backend, router := newAdminFixture(t)
	backend.msgs = []MessageRecord{
		{Text: "m0", Source: "127.000.000.001:06001", ReceivedAt: time.Now()},
		{Text: "m1", Source: "127.000.000.001:06001", ReceivedAt: time.Now()},
		{Text: "m2", Source: "127.000.000.001:06002", ReceivedAt: time.Now()},
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /messages = %d, want 200", w.Code)
	}
	var got struct {
		Messages []MessageRecord `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode messages payload: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Text != "m1" || got.Messages[1].Text != "m2" {
		t.Fatalf("messages = %+v, want the newest two", got.Messages)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages?limit=nope", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("GET /messages?limit=nope = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages?limit=-1", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("GET /messages?limit=-1 = %d, want 400", w.Code)
	}
}

func TestAdminBroadcastEndpoint(t *testing.T) {
	testlog.Start(t)
	backend, router := newAdminFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"text":"storm warning"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /messages = %d, want 202", w.Code)
	}
	if len(backend.broadcasts) != 1 || backend.broadcasts[0] != "storm warning" {
		t.Fatalf("broadcasts = %v, want the posted text", backend.broadcasts)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST with truncated JSON = %d, want 400", w.Code)
	}

	backend.broadcastErr = errors.New("overlay offline")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("POST while offline = %d, want 500", w.Code)
	}
}

func TestAdminTokenGuardsControlRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	backend := &fakeAdminBackend{status: StatusView{Node: "node-test", Role: "root"}}
	router := newAdminRouter(backend, "summit-pass")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /status without token = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-pass")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /status with bad token = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer summit-pass")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status with token = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"text":"locked"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("POST /messages without token = %d, want 401", w.Code)
	}
	if len(backend.broadcasts) != 0 {
		t.Fatalf("broadcasts = %v, want none past the gate", backend.broadcasts)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health without token = %d, want 200", w.Code)
	}
}

func TestAdminMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	_, router := newAdminFixture(t)
	observability.RecordPacketReceived("node-test", "message")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "treeline_overlay_packets_received_total") {
		t.Fatal("metrics output is missing the overlay packet counter")
	}
}

type fakeAdminBackend struct {
	status       StatusView
	msgs         []MessageRecord
	broadcasts   []string
	broadcastErr error
}

func (f *fakeAdminBackend) NodeName() string { return f.status.Node }

func (f *fakeAdminBackend) Status() StatusView { return f.status }

func (f *fakeAdminBackend) RecentMessages(limit int) []MessageRecord {
	if limit <= 0 || limit > len(f.msgs) {
		limit = len(f.msgs)
	}
	return f.msgs[len(f.msgs)-limit:]
}

func (f *fakeAdminBackend) Broadcast(text string) error {
	if f.broadcastErr != nil {
		return f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, text)
	return nil
}

func newAdminFixture(t *testing.T) (*fakeAdminBackend, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	backend := &fakeAdminBackend{
		status: StatusView{
			Node:       "node-test",
			Role:       "peer",
			Address:    "127.000.000.001:06001",
			Registered: true,
			Parent:     "127.000.000.001:05000",
			Links:      []string{"127.000.000.001:05000"},
			Peers:      1,
			Uptime:     "1s",
			Messages:   2,
		},
	}
	return backend, newAdminRouter(backend, "")
}
