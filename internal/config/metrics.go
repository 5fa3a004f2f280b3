package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_config_reloads_total",
			Help: "Total number of configuration reloads",
		},
		[]string{"status"}, // success, error
	)
)

// RecordConfigReload records a configuration reload event
func RecordConfigReload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ConfigReloads.WithLabelValues(status).Inc()
}
