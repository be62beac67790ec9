package instrumentation

import (
	"github.com/cristalhq/hedgedhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/podsum/podsum/pkg/hedgedmetrics"
)

var hedgedRequestsMetrics = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "podsumdb",
		Name:      "backend_hedged_roundtrips_total",
		Help:      "Total number of hedged backend requests. Registered as a gauge for code sanity. This is a counter.",
	},
)

// PublishHedgedMetrics flushes metrics from hedged requests every 10 seconds
func PublishHedgedMetrics(s *hedgedhttp.Stats) {
	hedgedmetrics.Publish(s, hedgedRequestsMetrics)
}
