package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaneisley/wishful/pkg/outcome"
)

const namespace = "wishful"

// Metrics holds the prometheus collectors of the wish engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	accountOutcomes *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	assists         *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// New creates the collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of scheduler passes",
			},
			[]string{"healthy"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of scheduler passes in seconds",
				Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
			},
		),
		accountOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_outcomes_total",
				Help:      "Wish-cycle outcomes by kind",
			},
			[]string{"kind"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Wish attempts by result",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Provider HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Provider HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		assists: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assists_total",
				Help:      "Assist flow steps by step and result",
			},
			[]string{"step", "result"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_requests",
				Help:      "Provider HTTP requests currently in flight",
			},
		),
	}

	registry.MustRegister(
		m.runs,
		m.runDuration,
		m.accountOutcomes,
		m.attempts,
		m.httpRequests,
		m.httpDuration,
		m.assists,
		m.inflight,
	)

	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records one finished scheduler pass
func (m *Metrics) ObserveRun(summary *outcome.RunSummary) {
	if m == nil || summary == nil {
		return
	}
	m.runs.WithLabelValues(strconv.FormatBool(summary.Healthy())).Inc()
	m.runDuration.Observe(summary.Duration().Seconds())
}

// ObserveOutcome records the final outcome of one account
func (m *Metrics) ObserveOutcome(kind outcome.Kind) {
	if m == nil {
		return
	}
	m.accountOutcomes.WithLabelValues(kind.String()).Inc()
}

// ObserveAttempt records one attempt; result is an outcome kind or "transport_error"
func (m *Metrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// ObserveRequest records one provider HTTP call; status 0 means no response
func (m *Metrics) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.httpRequests.WithLabelValues(endpoint, label).Inc()
	m.httpDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveAssist records one assist step
func (m *Metrics) ObserveAssist(step string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.assists.WithLabelValues(step, result).Inc()
}

// InflightInc marks a request as started
func (m *Metrics) InflightInc() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// InflightDec marks a request as finished
func (m *Metrics) InflightDec() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.ServeListener(ctx, listener)
}

// ServeListener exposes /metrics on an existing listener until ctx is done
func (m *Metrics) ServeListener(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		<-errCh
		return nil
	}
}
