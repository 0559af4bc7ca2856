package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gatewayAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "sentinel_agency_gateway_duration_sec",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 20, 10),
})

var gatewayAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_agency_gateway_count",
}, []string{"status"})
