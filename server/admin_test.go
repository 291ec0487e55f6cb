package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"shooterd/config"
)

func newAdminServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.AdminAddr = ""
	cfg.GRPCAddr = ""
	s, err := New(cfg, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.mux.ln.Close() })
	if s.AdminAddr() != nil || s.GRPCAddr() != nil {
		t.Fatalf("side listeners must stay disabled")
	}
	return s
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminConfigRoundTrip(t *testing.T) {
	s := newAdminServer(t)
	h := s.NewAdminRouter()

	rec := doRequest(t, h, http.MethodPost, "/admin/config", `{"broadcastEvery":5,"playerSpeed":2.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/admin/config", "")
	var got adminConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got.BroadcastEvery != 5 || *got.PlayerSpeed != 2.5 {
		t.Fatalf("unexpected config %d %v", *got.BroadcastEvery, *got.PlayerSpeed)
	}

	// 部分更新只修改给出的字段
	doRequest(t, h, http.MethodPost, "/admin/config", `{"playerSpeed":4}`)
	if s.ticks.BroadcastEvery() != 5 || s.arena.Speed() != 4 {
		t.Fatalf("partial update changed unrelated fields")
	}
}

func TestAdminConfigRejectsInvalid(t *testing.T) {
	s := newAdminServer(t)
	h := s.NewAdminRouter()
	for _, body := range []string{
		`{"broadcastEvery":0}`,
		`{"broadcastEvery":2147483648}`,
		`{"playerSpeed":-1}`,
		`not json`,
	} {
		if rec := doRequest(t, h, http.MethodPost, "/admin/config", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if s.ticks.BroadcastEvery() != 1 {
		t.Fatalf("rejected update must not apply")
	}
}

func TestAdminMetrics(t *testing.T) {
	s := newAdminServer(t)
	s.ticks.Step()
	rec := doRequest(t, s.NewAdminRouter(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	var payload struct {
		Tick    uint32         `json:"tick"`
		State   string         `json:"state"`
		Metrics map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tick != 1 || payload.State != "idle" {
		t.Fatalf("unexpected payload %s", rec.Body.String())
	}
	if payload.Metrics["tick_count"] != float64(1) {
		t.Fatalf("expected tick_count 1, got %v", payload.Metrics["tick_count"])
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "shooterd.log")
	cfg.LogConsole = false
	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Infow("hello", "tick", 1)
	_ = log.Sync()
	data, err := os.ReadFile(cfg.LogFile)
	if err != nil || !strings.Contains(string(data), "hello") {
		t.Fatalf("expected log line in file, got %q (%v)", data, err)
	}

	cfg.LogLevel = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
