package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics. Labels stay low-cardinality: action and
// status come from the fixed upstream protocol, not user input.
var (
	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickupdesk_upstream_calls_total",
		Help: "Calls to the remote pickup service by action and response status.",
	}, []string{"action", "status"})

	PhotoUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickupdesk_photo_uploads_total",
		Help: "Photo uploads to the image host by outcome.",
	}, []string{"outcome"})

	PhotoShrinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickupdesk_photo_shrinks_total",
		Help: "Oversized photos passed through the compression unit.",
	})
)
