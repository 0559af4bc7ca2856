package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var suspensionsSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_cleanup_suspensions_swept_total",
})

var holdsSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_cleanup_holds_swept_total",
})

var messagesPurged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_cleanup_messages_purged_total",
})

var purgesBlocked = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_cleanup_purges_blocked_total",
})
