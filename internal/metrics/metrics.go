package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	// Registry holds every distinct-hash metric.
	// A dedicated registry keeps Go runtime collectors out of the textfile.
	Registry = prometheus.NewRegistry()
)

// Init creates and registers all metrics.
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initRunMetrics()
		registerRunMetrics(Registry)

		// Error phases appear in the output even when zero
		for _, phase := range []string{PhaseMetadata, PhaseHash, PhaseDelete, PhaseHistory} {
			ErrorsTotal.WithLabelValues(phase)
		}
	})
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is written to a temporary name and renamed into place.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
