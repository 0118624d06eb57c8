package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gymlog",
		Subsystem: "ledger",
		Name:      "last_session_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session committed to the store.",
	})
	sessionsRecordedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "ledger",
		Name:      "sessions_recorded_total",
		Help:      "Number of sessions committed with their records.",
	})
	sessionsDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "ledger",
		Name:      "sessions_deleted_total",
		Help:      "Number of sessions removed together with their records.",
	})
	recordsPersistedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "ledger",
		Name:      "records_persisted_total",
		Help:      "Number of gym records written.",
	})
	exercisesRegisteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "catalog",
		Name:      "exercises_registered_total",
		Help:      "Number of exercise names added to the catalog.",
	})
	cacheErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "catalog",
		Name:      "cache_errors_total",
		Help:      "Catalog cache failures by operation.",
	}, []string{"operation"})
	tokensIssuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Number of bearer tokens issued.",
	})
	authFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymlog",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Rejected authentication attempts by scheme.",
	}, []string{"scheme"})
)

func init() {
	prometheus.MustRegister(
		sessionPersistGauge,
		sessionsRecordedCounter,
		sessionsDeletedCounter,
		recordsPersistedCounter,
		exercisesRegisteredCounter,
		cacheErrorCounter,
		tokensIssuedCounter,
		authFailureCounter,
	)
}

// RecordSessionPersisted updates the persistence watermark and write counters.
func RecordSessionPersisted(ts time.Time, records int) {
	sessionsRecordedCounter.Inc()
	recordsPersistedCounter.Add(float64(records))
	if ts.IsZero() {
		return
	}
	sessionPersistGauge.Set(float64(ts.Unix()))
}

// RecordSessionDeleted counts a cascading session delete.
func RecordSessionDeleted() {
	sessionsDeletedCounter.Inc()
}

// RecordExercisesRegistered counts new catalog entries.
func RecordExercisesRegistered(n int) {
	exercisesRegisteredCounter.Add(float64(n))
}

// RecordCacheError counts a failed catalog cache operation.
func RecordCacheError(operation string) {
	cacheErrorCounter.WithLabelValues(operation).Inc()
}

// RecordTokenIssued counts an issued bearer token.
func RecordTokenIssued() {
	tokensIssuedCounter.Inc()
}

// RecordAuthFailure counts a rejected basic or bearer authentication.
func RecordAuthFailure(scheme string) {
	authFailureCounter.WithLabelValues(scheme).Inc()
}
