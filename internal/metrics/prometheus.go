package metrics

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder reports pipeline metrics using Prometheus primitives.
type PrometheusRecorder struct {
	submitted   prometheus.Counter
	rejected    *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	terminal    *prometheus.CounterVec
	circuitOpen *prometheus.CounterVec

	queueDepth prometheus.Gauge
	throughput prometheus.Gauge
	errorRate  prometheus.Gauge
	avgLatency prometheus.Gauge
}

func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decision_pipeline_submitted_total",
			Help: "Total number of decisions admitted to the intake queue",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_pipeline_rejected_total",
			Help: "Total number of submissions refused at admission by reason",
		}, []string{"reason"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_pipeline_attempts_total",
			Help: "Total number of decision execution attempts by status",
		}, []string{"type", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "decision_pipeline_attempt_duration_seconds",
			Help:    "Decision attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_pipeline_retries_total",
			Help: "Total retries scheduled by decision type",
		}, []string{"type"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_pipeline_terminal_total",
			Help: "Total decisions reaching a terminal state by outcome",
		}, []string{"type", "outcome"}),
		circuitOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decision_pipeline_circuit_breaks_total",
			Help: "Total circuit breaker open events by decision type",
		}, []string{"type"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decision_pipeline_queue_depth",
			Help: "Intake queue depth at the last sample",
		}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decision_pipeline_throughput_per_second",
			Help: "Decisions resolved per second over the last sampling window",
		}),
		errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decision_pipeline_error_rate",
			Help: "Fraction of terminal decisions that failed",
		}),
		avgLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "decision_pipeline_avg_processing_milliseconds",
			Help: "Moving average of decision processing time",
		}),
	}

	for _, collector := range []prometheus.Collector{
		r.submitted, r.rejected, r.attempts, r.durations, r.retries, r.terminal, r.circuitOpen,
		r.queueDepth, r.throughput, r.errorRate, r.avgLatency,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveSubmitted() {
	r.submitted.Inc()
}

func (r *PrometheusRecorder) ObserveRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

func (r *PrometheusRecorder) ObserveAttempt(decisionType string, status string, duration time.Duration) {
	r.attempts.WithLabelValues(decisionType, status).Inc()
	r.durations.WithLabelValues(decisionType).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveRetry(decisionType string) {
	r.retries.WithLabelValues(decisionType).Inc()
}

func (r *PrometheusRecorder) ObserveTerminal(decisionType string, outcome string) {
	r.terminal.WithLabelValues(decisionType, outcome).Inc()
}

func (r *PrometheusRecorder) ObserveCircuitOpen(decisionType string) {
	r.circuitOpen.WithLabelValues(decisionType).Inc()
}

func (r *PrometheusRecorder) ObserveSnapshot(s Snapshot) {
	r.queueDepth.Set(float64(s.QueueDepth))
	r.throughput.Set(s.ThroughputPerSecond)
	r.errorRate.Set(s.ErrorRate)
	r.avgLatency.Set(s.AvgProcessingTimeMs)
}

// StartPrometheusServer serves the registry on addr in the background.
func StartPrometheusServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
	return StartPrometheusServerTLS(addr, registry, nil)
}

// StartPrometheusServerTLS is StartPrometheusServer over TLS when tlsCfg is non-nil.
func StartPrometheusServerTLS(addr string, registry *prometheus.Registry, tlsCfg *tls.Config) (*http.Server, error) {
	if addr == "" {
		addr = ":2112"
	}
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}

func StopServer(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
