package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the process metrics registry, nil until InitMetrics runs.
var Registry *prometheus.Registry

// InitMetrics creates Registry with the Go runtime and process collectors.
func InitMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Registry = reg
	return reg
}
