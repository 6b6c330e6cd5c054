package publish

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/roplant/wtptwin/internal/plant"
)

func newTestServer() (*Server, *plant.State) {
	st := plant.New(1)
	s := &Server{State: st}
	s.broadcaster.init()
	return s, st
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSyncAppliesBoolAndNumControls(t *testing.T) {
	s, st := newTestServer()
	body := `{"controls":{"wellfield_on":true,"Q_out_sp":42,"nonexistent_key":123}}`
	req := httptest.NewRequest("POST", "/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !st.ReadBoolControl(plant.WellfieldOn) {
		t.Error("expected wellfield_on to be applied")
	}
	if got := st.ReadNumControl(plant.QOutSP); got != 42 {
		t.Errorf("Q_out_sp = %v, want 42", got)
	}

	var snap plant.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !snap.Controls.WellfieldOn {
		t.Error("response snapshot missing applied control")
	}
}

func TestSyncRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest("POST", "/sync", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncRejectsWrongType(t *testing.T) {
	s, _ := newTestServer()
	body := `{"controls":{"wellfield_on":"not-a-bool"}}`
	req := httptest.NewRequest("POST", "/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResetDamageReturnsNoContent(t *testing.T) {
	s, st := newTestServer()
	st.ApplyControl(plant.ROFeedPumpOn, true)
	st.ApplyControl(plant.Valve201Open, true)
	st.ApplyControl(plant.Valve202Open, false)
	st.ApplyControl(plant.Valve203Open, false)
	for i := 0; i < 600; i++ {
		st.Tick(0.1)
	}

	req := httptest.NewRequest("POST", "/reset_damage", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := st.Snapshot().State.MembraneHealth; got != 100 {
		t.Errorf("membrane_health = %v, want 100 after reset", got)
	}
}

// TestScenarioS5DashboardFallback reproduces spec.md's S5: applying a
// control via /sync must be visible to a later Modbus-shaped read, i.e. it
// went through the same plant.State the Modbus slave reads from.
func TestScenarioS5DashboardFallback(t *testing.T) {
	s, st := newTestServer()
	body := `{"controls":{"wellfield_on":true}}`
	req := httptest.NewRequest("POST", "/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !st.ReadBoolControl(plant.WellfieldOn) {
		t.Fatal("expected coil 0 (wellfield_on) to read back true")
	}
}

func TestEventsStreamEmitsInitialSnapshot(t *testing.T) {
	s, _ := newTestServer()
	server := httptest.NewServer(s.Router())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read first SSE line: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first SSE line = %q, want a data: line", line)
	}
	var payload struct {
		TimeS float64 `json:"time_s"`
	}
	if err := json.Unmarshal(bytes.TrimSpace([]byte(strings.TrimPrefix(line, "data: "))), &payload); err != nil {
		t.Fatalf("decode SSE payload: %v", err)
	}
}
