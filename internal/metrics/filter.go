package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilterPositionsTotal общее количество позиций, прошедших через движок
	FilterPositionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackfilter_filter_positions_total",
		Help: "Total number of positions processed by the filtering engine",
	})

	// FilterAcceptedTotal количество принятых позиций
	FilterAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackfilter_filter_accepted_total",
		Help: "Total number of positions accepted by the filtering engine",
	})

	// FilterRejectedTotal количество отклоненных позиций по правилам
	FilterRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackfilter_filter_rejected_total",
		Help: "Total number of positions rejected, labeled by rule",
	}, []string{"rule"})

	// FilterForcedAccepts количество принудительных принятий по skip limit
	FilterForcedAccepts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackfilter_filter_forced_accepts_total",
		Help: "Total number of positions force-accepted after exceeding the skip limit",
	})

	// FilterBypassTotal количество позиций, принятых в обход правил по атрибутам
	FilterBypassTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackfilter_filter_bypass_total",
		Help: "Total number of positions accepted via skip-attribute bypass",
	})

	// FilterActiveDevices количество устройств с состоянием фильтрации
	FilterActiveDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackfilter_filter_active_devices",
		Help: "Number of devices with filtering state",
	})

	// FilterDecisionDuration длительность принятия решения движком
	FilterDecisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackfilter_filter_decision_duration_seconds",
		Help:    "Duration of a single filtering decision",
		Buckets: []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001},
	})
)
