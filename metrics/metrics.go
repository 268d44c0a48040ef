// Package metrics owns the prometheus registry the node exposes on /metrics.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "katana"

var (
	enabled  atomic.Bool
	registry = NewRegistry()
)

// Enable turns on collection. Until it is called MustRegister is a no-op, so components can
// register unconditionally.
func Enable() {
	enabled.Store(true)
}

func Enabled() bool {
	return enabled.Load()
}

// NewRegistry returns a registry carrying the Go runtime and build info collectors.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return r
}

// MustRegister adds cs to the node registry when metrics are enabled. A collector describing the
// same series as one already registered replaces it, so a node started again in the same process
// reports through its own collectors.
func MustRegister(cs ...prometheus.Collector) {
	if !Enabled() {
		return
	}
	for _, c := range cs {
		err := registry.Register(c)
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			registry.Unregister(already.ExistingCollector)
			err = registry.Register(c)
		}
		if err != nil {
			panic(err)
		}
	}
}

// Handler serves the node registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
