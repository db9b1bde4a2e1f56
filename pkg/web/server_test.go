package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-presence/pkg/state"
)

type fakeWaker struct{ fired atomic.Int32 }

func (w *fakeWaker) Fire() bool {
	return w.fired.Add(1) == 1
}

func getJSON(t *testing.T, s *Server, method, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	dir := t.TempDir()
	presencePath := filepath.Join(dir, "presence.json")
	os.WriteFile(presencePath, []byte("{}"), 0644)

	s := NewServer(Config{
		PresenceFile: presencePath,
		LastSeenFile: filepath.Join(dir, "missing.json"),
	}, state.New())

	code, body := getJSON(t, s, http.MethodGet, "/api/health")
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if body["ok"] != true || body["api"] != "online" {
		t.Errorf("body: %v", body)
	}
	if body["presence_file"] != true || body["last_seen_file"] != false {
		t.Errorf("file flags: %v", body)
	}
}

func TestRecords_Empty(t *testing.T) {
	s := NewServer(Config{}, state.New())

	tests := []struct {
		path string
		key  string
	}{
		{"/api/last_seen", "last_seen"},
		{"/api/presence", "presence"},
		{"/api/summary", "presence"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			_, body := getJSON(t, s, http.MethodGet, tc.path)
			if body["ok"] != false {
				t.Errorf("ok: got %v", body["ok"])
			}
			if v, present := body[tc.key]; !present || v != nil {
				t.Errorf("%s: got %v, want explicit null", tc.key, v)
			}
		})
	}
}

func TestRecords_Populated(t *testing.T) {
	store := state.New()
	score := 3.0
	when := time.Date(2026, 3, 4, 12, 30, 0, 0, time.Local)
	store.WritePresence(state.Presence{
		Location:     "Kitchen",
		InTargetZone: true,
		Reason:       "Stove conf=0.70",
		Score:        &score,
		Time:         when,
	})

	s := NewServer(Config{}, store)

	_, body := getJSON(t, s, http.MethodGet, "/api/presence")
	p, _ := body["presence"].(map[string]any)
	if body["ok"] != true || p["location"] != "Kitchen" || p["is_kitchen"] != true {
		t.Errorf("presence: %v", body)
	}
	if p["time_iso"] != "2026-03-04 12:30:00" {
		t.Errorf("time_iso: got %v", p["time_iso"])
	}

	_, body = getJSON(t, s, http.MethodGet, "/api/summary")
	if body["ok"] != true || body["last_seen"] != nil || body["presence"] == nil {
		t.Errorf("summary with presence only: %v", body)
	}

	place, conf := "Kitchen", 0.82
	store.WriteLastSeen(state.LastSeen{Place: &place, Time: &when, Confidence: &conf})

	_, body = getJSON(t, s, http.MethodGet, "/api/last_seen")
	ls, _ := body["last_seen"].(map[string]any)
	if body["ok"] != true || ls["place"] != "Kitchen" || ls["conf"] != 0.82 {
		t.Errorf("last_seen: %v", body)
	}
}

func TestWake(t *testing.T) {
	s := NewServer(Config{}, state.New())
	code, body := getJSON(t, s, http.MethodPost, "/api/wake")
	if code != http.StatusServiceUnavailable || body["ok"] != false {
		t.Errorf("without waker: %d %v", code, body)
	}

	w := &fakeWaker{}
	s = NewServer(Config{}, state.New(), WithWaker(w))

	code, body = getJSON(t, s, http.MethodPost, "/api/wake")
	if code != http.StatusAccepted || body["queued"] != true {
		t.Errorf("first wake: %d %v", code, body)
	}
	_, body = getJSON(t, s, http.MethodPost, "/api/wake")
	if body["queued"] != false {
		t.Errorf("second wake should coalesce: %v", body)
	}
	if n := w.fired.Load(); n != 2 {
		t.Errorf("fired: got %d", n)
	}
}

func TestCORS(t *testing.T) {
	s := NewServer(Config{}, state.New())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q", got)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "presence_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(Config{}, state.New(), WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "presence_test_total 1") {
		t.Errorf("metrics body: %s", data)
	}

	s = NewServer(Config{}, state.New())
	resp, _ = s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics without handler: got %d", resp.StatusCode)
	}
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	s := NewServer(Config{}, state.New())
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/status", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status: got %d, want 426", resp.StatusCode)
	}
}

type fakeHistory struct {
	presence []state.Presence
	err      error
	limit    int
}

func (h *fakeHistory) Presence(ctx context.Context, limit int) ([]state.Presence, error) {
	h.limit = limit
	return h.presence, h.err
}

func (h *fakeHistory) Sightings(ctx context.Context, limit int) ([]state.LastSeen, error) {
	return nil, h.err
}

func TestHistory(t *testing.T) {
	store := state.New()

	s := NewServer(Config{}, store)
	if code, _ := getJSON(t, s, "GET", "/api/history"); code != http.StatusServiceUnavailable {
		t.Errorf("without history: status %d", code)
	}

	h := &fakeHistory{presence: []state.Presence{
		{Location: "Kitchen", InTargetZone: true, Reason: "Stove conf=0.70", Time: time.Unix(1700000000, 0)},
	}}
	s = NewServer(Config{}, store, WithHistory(h))

	code, body := getJSON(t, s, "GET", "/api/history?limit=5")
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("status %d body %v", code, body)
	}
	if h.limit != 5 {
		t.Errorf("limit: got %d, want 5", h.limit)
	}
	pres, _ := body["presence"].([]any)
	if len(pres) != 1 {
		t.Fatalf("presence: got %v", body["presence"])
	}
	if first, _ := pres[0].(map[string]any); first["location"] != "Kitchen" {
		t.Errorf("presence[0]: got %v", first)
	}
	if sightings, ok := body["sightings"].([]any); !ok || len(sightings) != 0 {
		t.Errorf("sightings: got %v", body["sightings"])
	}

	if code, _ := getJSON(t, s, "GET", "/api/history?limit=0"); code != http.StatusBadRequest {
		t.Errorf("limit=0: status %d", code)
	}

	h.err = errors.New("disk I/O error")
	if code, _ := getJSON(t, s, "GET", "/api/history"); code != http.StatusInternalServerError {
		t.Errorf("query error: status %d", code)
	}
}
