// Package metrics defines the service's Prometheus collectors. Each set is
// registered explicitly by the composition root.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "routines"

// mustRegisterOnce registers cs with the default registry the first time
// once fires. Repeated calls are no-ops so tests can wire the app twice.
func mustRegisterOnce(once *sync.Once, cs ...prometheus.Collector) {
	once.Do(func() {
		prometheus.MustRegister(cs...)
	})
}
