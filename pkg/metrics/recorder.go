// Package metrics exposes reconnect session events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"redial/pkg/core"
)

const namespace = "redial"

// Recorder counts session events on its own registry. It satisfies the
// reconnect package's Observer interface.
type Recorder struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
	attempts    *prometheus.CounterVec
	exhausted   *prometheus.CounterVec
	reconnects  *prometheus.GaugeVec
}

// NewRecorder creates a recorder and registers its collectors along with the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by source and target state.",
		}, []string{"from", "to"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state per session (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).",
		}, []string{"session"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts by result and failure type.",
		}, []string{"result", "type"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Disconnect episodes that ran out of reconnect attempts.",
		}, []string{"session"}),
		reconnects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_count",
			Help:      "Failed reconnect attempts per session at exhaustion.",
		}, []string{"session"}),
	}

	r.registry.MustRegister(
		r.transitions,
		r.state,
		r.attempts,
		r.exhausted,
		r.reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *Recorder) StateChanged(session string, from, to core.ConnectionState) {
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
	r.state.WithLabelValues(session).Set(float64(to))
}

func (r *Recorder) AttemptFinished(_ string, _ int, err error) {
	if err == nil {
		r.attempts.WithLabelValues("success", "").Inc()
		return
	}

	errType := core.Classify(err)
	var rerr *core.ReconnectError
	if errors.As(err, &rerr) {
		errType = rerr.Type
	}
	r.attempts.WithLabelValues("failure", errType.String()).Inc()
}

func (r *Recorder) Exhausted(session string, snapshot core.Snapshot) {
	r.exhausted.WithLabelValues(session).Inc()
	r.reconnects.WithLabelValues(session).Set(float64(snapshot.ReconnectCount))
}

// Forget drops the per-session series once a session is gone.
func (r *Recorder) Forget(session string) {
	r.state.DeleteLabelValues(session)
	r.exhausted.DeleteLabelValues(session)
	r.reconnects.DeleteLabelValues(session)
}
