package etl

import "github.com/prometheus/client_golang/prometheus"

var (
	// rawEvents counts records read from a RawEventSource.
	rawEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_raw_events_total",
		Help: "Total number of raw events read.",
	})

	// droppedEvents counts records excluded by the sanitizer, by reason.
	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_dropped_events_total",
			Help: "Raw events excluded by the sanitizer.",
		},
		[]string{"reason"},
	)

	// unresolvedEvents counts sale events that failed dimension resolution.
	unresolvedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_unresolved_events_total",
			Help: "Sale events dropped because a dimension reference did not resolve.",
		},
		[]string{"reason"},
	)

	factsBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etl_facts_total",
		Help: "Total number of fact rows assembled.",
	})

	// stageDuration records how long each pipeline stage took.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etl_stage_duration_seconds",
			Help:    "Duration of ETL pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms..~4.4min
		},
		[]string{"stage"},
	)

	// integrityViolations holds the counts of the most recent integrity audit.
	integrityViolations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "etl_integrity_violations",
			Help: "Null and orphan foreign key references found by the last integrity check.",
		},
		[]string{"column", "kind"},
	)
)

func init() {
	prometheus.MustRegister(rawEvents, droppedEvents, unresolvedEvents, factsBuilt, stageDuration, integrityViolations)
}

func observeIntegrity(rep IntegrityReport) {
	for _, c := range rep.Columns {
		integrityViolations.WithLabelValues(c.Column, "null").Set(float64(c.Nulls))
		integrityViolations.WithLabelValues(c.Column, "orphan").Set(float64(c.Orphans))
	}
}
