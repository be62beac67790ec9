package recompute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podsumdb",
		Name:      "recompute_phase_duration_seconds",
		Help:      "Time spent per recompute phase.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 6),
	}, []string{"phase"})
	metricDailiesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podsumdb",
		Name:      "recompute_dailies_total",
		Help:      "Total number of daily summaries computed.",
	})
	metricAudienceWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podsumdb",
		Name:      "audience_write_retries_total",
		Help:      "Total number of retried monthly audience blob writes.",
	})
)
