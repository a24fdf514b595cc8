package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsledger_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smsledger_http_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"route"},
	)

	// ParseOutcomes tracks pipeline outcomes per rejection reason, including
	// the accepted label.
	ParseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsledger_parse_outcomes_total",
			Help: "Pipeline outcomes by rejection reason",
		},
		[]string{"outcome"},
	)

	// DuplicatesTotal tracks records skipped by external-id deduplication
	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smsledger_duplicates_total",
			Help: "Records skipped because the external id already existed",
		},
	)
)

// RecordParseOutcome increments the pipeline outcome counter.
func RecordParseOutcome(outcome string) {
	ParseOutcomes.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps one route handler with request metrics. The route
// label is the registration pattern, not the raw path, to keep cardinality low.
func InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ActiveRequests.WithLabelValues(route).Inc()
		defer ActiveRequests.WithLabelValues(route).Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
