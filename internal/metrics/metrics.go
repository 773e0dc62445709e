package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/identity-service/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Credential lifecycle

	AuthOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "auth_operations_total",
		Help:      "Credential lifecycle operations, by operation and outcome kind.",
	}, []string{"operation", "outcome"})

	OTPIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "otp_issued_total",
		Help:      "One-time codes written to the store, by purpose.",
	}, []string{"purpose"})

	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "emails_sent_total",
		Help:      "Notifier deliveries, by outcome.",
	}, []string{"outcome"})

	SignupCompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "signup_compensations_total",
		Help:      "Users deleted after a failed signup, by whether the delete succeeded.",
	}, []string{"outcome"})

	// Sweeper

	OTPSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "otp_swept_total",
		Help:      "Expired one-time codes cleared by the sweeper.",
	})

	SweepCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "identity",
		Name:      "otp_sweep_cycle_duration_seconds",
		Help:      "Time taken for one sweeper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "identity",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		AuthOperationsTotal,
		OTPIssuedTotal,
		EmailsSentTotal,
		SignupCompensationsTotal,
		OTPSweptTotal,
		SweepCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// Prober is satisfied by *health.Checker.
type Prober interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

// NewServer serves /metrics, /healthz and /readyz on addr.
func NewServer(addr string, checker Prober) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, res health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if res.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(res)
}
