// Registers:
//
//	#volumewatch_frames_total{type}
//	#volumewatch_frame_parse_errors_total
//	#volumewatch_reconnects_total
//	#volumewatch_alerts_routed_total{grouped}
//	#go_* and process_* system metrics
//
// Exposed through the dashboard's /metrics route using the Prometheus HTTP
// handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once         sync.Once
	framesTotal  *prometheus.CounterVec
	parseErrors  prometheus.Counter
	reconnects   prometheus.Counter
	alertsRouted *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumewatch_frames_total",
				Help: "Number of push channel frames handled, by frame type",
			},
			[]string{"type"},
		)

		parseErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volumewatch_frame_parse_errors_total",
				Help: "Number of push channel frames dropped as malformed",
			},
		)

		reconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volumewatch_reconnects_total",
				Help: "Number of push channel reconnect attempts",
			},
		)

		alertsRouted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumewatch_alerts_routed_total",
				Help: "Number of embedded alerts routed into the view state",
			},
			[]string{"grouped"},
		)

		_ = prometheus.Register(framesTotal)
		_ = prometheus.Register(parseErrors)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(alertsRouted)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus scrape handler for mounting on the dashboard.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrementFrame increases the frame counter for a given frame type.
func IncrementFrame(frameType string) {
	if framesTotal != nil {
		framesTotal.WithLabelValues(frameType).Inc()
	}
}

// IncrementParseError increases the malformed frame counter.
func IncrementParseError() {
	if parseErrors != nil {
		parseErrors.Inc()
	}
}

// IncrementReconnect increases the reconnect attempt counter.
func IncrementReconnect() {
	if reconnects != nil {
		reconnects.Inc()
	}
}

// IncrementAlert increases the routed alert counter.
func IncrementAlert(grouped bool) {
	if alertsRouted != nil {
		if grouped {
			alertsRouted.WithLabelValues("true").Inc()
		} else {
			alertsRouted.WithLabelValues("false").Inc()
		}
	}
}
