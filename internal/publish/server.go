// Package publish implements the HTTP side of the twin's external interface
// (spec.md §4.5, §6.3): an SSE telemetry stream, a snapshot-on-write REST
// endpoint for clients that cannot speak Modbus, and the ambient /metrics
// and /healthz routes. Routing follows the retrieval pack's HTTP services
// (services/ledger, services/mape/execute): a gorilla/mux router wrapped in
// gorilla/handlers.LoggingHandler.
package publish

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/roplant/wtptwin/internal/plant"
)

// Metrics receives counts from the publish server. internal/metrics
// implements this; tests can supply a no-op.
type Metrics interface {
	SetSSESubscribers(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetSSESubscribers(int) {}

// Server is the HTTP side of the twin. It owns the broadcaster that fans a
// Snapshot out to every SSE subscriber; Broadcast is called once per tick by
// the caller that owns the clock (cmd/plantwin).
type Server struct {
	State   *plant.State
	Metrics Metrics
	Log     *slog.Logger

	MetricsHandler http.Handler // wired to internal/metrics.Registry.Handler()

	broadcaster
}

// Router builds the mux.Router for this server, wrapped in request logging.
// Handed to http.Server.Handler by the caller so it retains control of
// timeouts and TLS config (none needed here — spec.md's Non-goals exclude
// TLS).
func (s *Server) Router() http.Handler {
	if s.Metrics == nil {
		s.Metrics = noopMetrics{}
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	s.broadcaster.init()

	r := mux.NewRouter()
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/reset_damage", s.handleResetDamage).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.MetricsHandler != nil {
		r.Handle("/metrics", s.MetricsHandler).Methods(http.MethodGet)
	}

	return handlers.LoggingHandler(logWriter{s.Log}, r)
}

// Broadcast pushes snap to every connected SSE subscriber, dropping it for
// any subscriber whose channel is still full rather than blocking (spec.md
// §4.5, §5 backpressure).
func (s *Server) Broadcast(snap plant.Snapshot) {
	s.broadcaster.broadcast(snap)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// logWriter adapts an *slog.Logger to the io.Writer gorilla/handlers.
// LoggingHandler expects, so the twin's access log flows through the same
// structured logger as everything else.
type logWriter struct {
	log *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Info("http: access", "line", trimNewline(p))
	return len(p), nil
}

func trimNewline(p []byte) string {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	return string(p)
}

// bye is emitted as a final SSE event on graceful shutdown (spec.md §5).
type bye struct {
	Bye  bool   `json:"bye"`
	When string `json:"when"`
}

func (s *Server) Shutdown() {
	s.broadcaster.closeAll(bye{Bye: true, When: time.Now().UTC().Format(time.RFC3339)})
}
