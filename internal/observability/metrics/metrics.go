package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "freelancehub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_store_operations_total",
		Help: "Document store operations by operation, collection and result",
	}, []string{"op", "collection", "result"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "freelancehub_store_operation_duration_seconds",
		Help:    "Duration of document store operations including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "collection"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freelancehub_store_breaker_state",
		Help: "Store circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	bidEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_bid_events_total",
		Help: "Bid lifecycle transitions by event",
	}, []string{"event"})

	bidCounterRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_job_bid_counter_repairs_total",
		Help: "Corrective writes of job bid counters by result",
	}, []string{"result"})

	sessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_session_events_total",
		Help: "Session lifecycle events by event and result",
	}, []string{"event", "result"})

	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freelancehub_sessions_swept_total",
		Help: "Stale session records removed by the sweeper",
	})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freelancehub_notifications_total",
		Help: "Notifications created by type and result",
	}, []string{"type", "result"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freelancehub_notification_stream_clients",
		Help: "Connected notification websocket clients",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveStoreOp records one store call and its outcome.
func ObserveStoreOp(op, collection, result string, duration time.Duration) {
	storeOperations.WithLabelValues(op, collection, result).Inc()
	storeDuration.WithLabelValues(op, collection).Observe(duration.Seconds())
}

func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveBid counts a bid transition such as submitted, updated or accepted.
func ObserveBid(event string) {
	bidEvents.WithLabelValues(event).Inc()
}

func ObserveBidCounterRepair(result string) {
	bidCounterRepairs.WithLabelValues(result).Inc()
}

// ObserveSession counts session events (create, refresh, validate, invalidate).
func ObserveSession(event, result string) {
	sessionEvents.WithLabelValues(event, result).Inc()
}

func AddSessionsSwept(n int) {
	if n > 0 {
		sessionsSwept.Add(float64(n))
	}
}

func ObserveNotification(kind, result string) {
	notificationsCreated.WithLabelValues(kind, result).Inc()
}

func StreamConnected() { streamClients.Inc() }

func StreamDisconnected() { streamClients.Dec() }
