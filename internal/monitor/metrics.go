package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

var (
	ConnectedInstruments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "benchcore_connected_instruments",
		Help: "Number of instruments currently connected",
	})

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchcore_commands_total",
			Help: "Protocol commands sent, by instrument and kind",
		},
		[]string{"instrument", "kind"},
	)

	CommandErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchcore_command_errors_total",
			Help: "Protocol command failures, by instrument",
		},
		[]string{"instrument"},
	)

	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "benchcore_query_duration_seconds",
		Help:    "Round-trip time of write+read query pairs",
		Buckets: prometheus.DefBuckets,
	})

	MeasurementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchcore_measurements_total",
			Help: "Measurement readings collected, by instrument",
		},
		[]string{"instrument"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectedInstruments,
		CommandsTotal,
		CommandErrors,
		QueryDuration,
		MeasurementsTotal,
	)
}

// Handler exposes the metrics endpoint for mounting on the REST server.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
