// Package metrics exposes tiling run counters on a private registry that can
// be dumped in the node_exporter textfile format after a batch run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector of this package. It is separate from the
// default registry so library users do not inherit process collectors.
var Registry = prometheus.NewRegistry()

var (
	CellsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantons_cells_processed_total",
		Help: "Total number of grid cells clipped",
	})
	EmptyCells = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantons_empty_cells_total",
		Help: "Total number of grid cells without any parcel",
	})
	TilesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantons_tiles_written_total",
		Help: "Total number of parcel tiles persisted",
	})
	FeaturesClipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantons_features_clipped_total",
		Help: "Total number of non-empty clipped parcel geometries",
	})
	TilesKept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantons_tiles_kept_total",
		Help: "Total number of tiles kept by the significance filter",
	})
	TilesRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cantons_tiles_removed_total",
		Help: "Total number of tiles removed by the significance filter, by reason",
	}, []string{"reason"})
	ClipDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cantons_clip_duration_ms",
		Help:    "Per-cell clip duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
)

func init() {
	Registry.MustRegister(CellsProcessed)
	Registry.MustRegister(EmptyCells)
	Registry.MustRegister(TilesWritten)
	Registry.MustRegister(FeaturesClipped)
	Registry.MustRegister(TilesKept)
	Registry.MustRegister(TilesRemoved)
	Registry.MustRegister(ClipDurationMs)
}

// WriteTextfile writes the current values of Registry to path.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
