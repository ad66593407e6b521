package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "inventory",
			Name:      "reservations_total",
			Help:      "Fraction reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	reservationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "inventory",
			Name:      "reservation_duration_seconds",
			Help:      "Duration of fraction reservations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"outcome"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "admission",
			Name:      "batches_total",
			Help:      "Bet batches by admission outcome.",
		},
		[]string{"outcome"},
	)

	admittedBets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "admission",
			Name:      "bets_total",
			Help:      "Bets persisted by admitted batches.",
		},
	)

	settledBets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "settlement",
			Name:      "bets_total",
			Help:      "Bets settled by final status.",
		},
		[]string{"lottery", "status"},
	)

	settlementRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "settlement",
			Name:      "runs_total",
			Help:      "Settlement runs by outcome.",
		},
		[]string{"lottery", "success"},
	)

	settlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "settlement",
			Name:      "run_duration_seconds",
			Help:      "Duration of settlement runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"lottery"},
	)

	creditFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "settlement",
			Name:      "credit_failures_total",
			Help:      "Winning bets whose balance credit failed.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_layer",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_layer",
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		reservations,
		reservationDuration,
		admissions,
		admittedBets,
		settledBets,
		settlementRuns,
		settlementDuration,
		creditFailures,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled with the matched mux route template, so it must run
// as router middleware.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := routeLabel(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordReservation records one inventory reservation attempt.
func RecordReservation(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	reservations.WithLabelValues(outcome).Inc()
	reservationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAdmission records a batch outcome and, when admitted, its bet count.
func RecordAdmission(outcome string, bets int) {
	admissions.WithLabelValues(outcome).Inc()
	if outcome == "admitted" && bets > 0 {
		admittedBets.Add(float64(bets))
	}
}

// RecordSettledBet counts one bet reaching a terminal status.
func RecordSettledBet(lotteryCode, status string) {
	settledBets.WithLabelValues(labelOr(lotteryCode), status).Inc()
}

// RecordSettlement records a settlement run.
func RecordSettlement(lotteryCode string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	settlementRuns.WithLabelValues(labelOr(lotteryCode), strconv.FormatBool(success)).Inc()
	settlementDuration.WithLabelValues(labelOr(lotteryCode)).Observe(duration.Seconds())
}

// RecordCreditFailure counts a winning bet whose payout could not be credited.
func RecordCreditFailure() {
	creditFailures.Inc()
}

// RecordJobRun records metrics for scheduled jobs.
func RecordJobRun(job string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(labelOr(job), strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(labelOr(job)).Observe(duration.Seconds())
}

func labelOr(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// routeLabel returns the route template, e.g. /v1/me/bets/{id}, keeping label
// cardinality bounded. Unmatched requests share one label.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
