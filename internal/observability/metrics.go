package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	reservationCounter    *prometheus.CounterVec
	matcherTickCounter    *prometheus.CounterVec
	callbackCounter       *prometheus.CounterVec
	disputeCounter        *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		reservationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requisite_reservations_total",
			Help: "Inbound payment reservation outcomes",
		}, []string{"outcome"})

		matcherTickCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_matcher_events_total",
			Help: "Notification matcher per-notification outcomes",
		}, []string{"outcome"})

		callbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callback_deliveries_total",
			Help: "Outbound webhook delivery outcomes",
		}, []string{"result"})

		disputeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispute_transitions_total",
			Help: "Dispute state machine transitions",
		}, []string{"to"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			reservationCounter,
			matcherTickCounter,
			callbackCounter,
			disputeCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementReservation(outcome string) {
	if reservationCounter == nil {
		return
	}
	reservationCounter.WithLabelValues(outcome).Inc()
}

func IncrementMatcherEvent(outcome string) {
	if matcherTickCounter == nil {
		return
	}
	matcherTickCounter.WithLabelValues(outcome).Inc()
}

func IncrementCallbackDelivery(result string) {
	if callbackCounter == nil {
		return
	}
	callbackCounter.WithLabelValues(result).Inc()
}

func IncrementDisputeTransition(to string) {
	if disputeCounter == nil {
		return
	}
	disputeCounter.WithLabelValues(to).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
