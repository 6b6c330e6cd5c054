// Package metrics exposes the twin's operational counters and gauges in
// Prometheus exposition format. This mirrors the intent of
// GVCUTV-NRG-CHAMP/services/assessment/internal/metrics and
// .../gamification/internal/metrics (both hand-roll a small Prometheus text
// renderer); here we use the real upstream client library instead of
// re-deriving its wire format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the twin publishes. It satisfies
// modbus.Metrics and is used directly by internal/publish and the tick
// driver in cmd/plantwin.
type Registry struct {
	Ticks          prometheus.Counter
	ModbusRequests *prometheus.CounterVec
	ModbusClients  prometheus.Gauge
	SSESubscribers prometheus.Gauge
	registry       *prometheus.Registry
}

// New creates a Registry backed by its own prometheus.Registry, so tests can
// construct multiple independent instances without colliding on the global
// default registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "wtptwin_ticks_total",
			Help: "Number of physics ticks executed.",
		}),
		ModbusRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wtptwin_modbus_requests_total",
			Help: "Modbus requests handled, by function code and outcome.",
		}, []string{"function", "outcome"}),
		ModbusClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "wtptwin_modbus_clients",
			Help: "Currently connected Modbus TCP clients.",
		}),
		SSESubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "wtptwin_sse_subscribers",
			Help: "Currently connected SSE subscribers.",
		}),
		registry: reg,
	}
}

// IncModbusRequest implements modbus.Metrics.
func (r *Registry) IncModbusRequest(function byte, outcome string) {
	r.ModbusRequests.WithLabelValues(functionLabel(function), outcome).Inc()
}

// SetModbusClients implements modbus.Metrics.
func (r *Registry) SetModbusClients(n int) {
	r.ModbusClients.Set(float64(n))
}

// SetSSESubscribers records the current SSE subscriber count.
func (r *Registry) SetSSESubscribers(n int) {
	r.SSESubscribers.Set(float64(n))
}

// IncTick records one completed physics tick.
func (r *Registry) IncTick() {
	r.Ticks.Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func functionLabel(fn byte) string {
	switch fn {
	case 0x01:
		return "01_read_coils"
	case 0x03:
		return "03_read_holdings"
	case 0x05:
		return "05_write_coil"
	case 0x06:
		return "06_write_holding"
	case 0x0f:
		return "0f_write_coils"
	case 0x10:
		return "10_write_holdings"
	case 0:
		return "unknown"
	default:
		return "other"
	}
}
