package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var analyzerAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "sentinel_analyzer_api_duration_sec",
	Help: "Duration of content analyzer API calls",
})

var analyzerAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_analyzer_api_count",
	Help: "Number of content analyzer API calls, by HTTP status code",
}, []string{"status"})
