// Package metrics exposes run statistics as Prometheus metrics.
//
// mtrsplit is a batch job, so nothing is served over HTTP. The collector is
// registered on a private registry and, when a path is configured, written
// once at the end of the run in the node_exporter textfile format.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mtrsplit"

var _ core.Observer = (*Collector)(nil)

// Collector records run progress and lookup outcomes. It implements
// core.Observer.
type Collector struct {
	RowsRouted *prometheus.CounterVec
	Lookups    *prometheus.CounterVec
	Runs       *prometheus.CounterVec
	RowsTotal  prometheus.Gauge
	WriteTime  prometheus.Histogram

	registry *prometheus.Registry

	mu          sync.Mutex
	filled      int
	empty       int
	lastPhase   core.Phase
	lastRunID   string
	writeFailed prometheus.Counter
}

// New creates a collector on a fresh registry.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.RowsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_routed_total",
			Help:      "Rows written (or counted, in dry run) per destination",
		},
		[]string{"destination"}, // "filled", "empty"
	)

	c.Lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Reference lookups by relation and outcome",
		},
		[]string{"kind", "result"}, // kind: "regulation", "unit"; result: "hit", "miss"
	)

	c.Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome",
		},
		[]string{"status"}, // "done", "failed"
	)

	c.RowsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows in the source table of the current run",
		},
	)

	c.WriteTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "row_write_seconds",
			Help:      "Time to insert and commit one row",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	c.writeFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_write_failures_total",
			Help:      "Row inserts that failed",
		},
	)

	c.registry.MustRegister(c.RowsRouted, c.Lookups, c.Runs, c.RowsTotal, c.WriteTime, c.writeFailed)
	return c
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnProgress turns cumulative progress counts into counter increments.
func (c *Collector) OnProgress(p core.RunProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.RunID != c.lastRunID {
		c.lastRunID = p.RunID
		c.filled, c.empty = 0, 0
		c.lastPhase = ""
	}

	if p.Phase == core.PhaseSchemaReady {
		c.RowsTotal.Set(float64(p.TotalRows))
	}

	if d := p.Filled - c.filled; d > 0 {
		c.RowsRouted.WithLabelValues(string(core.DestFilled)).Add(float64(d))
		c.filled = p.Filled
	}
	if d := p.Empty - c.empty; d > 0 {
		c.RowsRouted.WithLabelValues(string(core.DestEmpty)).Add(float64(d))
		c.empty = p.Empty
	}

	if p.Phase != c.lastPhase && (p.Phase == core.PhaseDone || p.Phase == core.PhaseFailed) {
		c.Runs.WithLabelValues(string(p.Phase)).Inc()
	}
	c.lastPhase = p.Phase
}

// OnLookup counts a lookup by relation and outcome.
func (c *Collector) OnLookup(e core.LookupEvent) {
	result := "miss"
	if e.Found {
		result = "hit"
	}
	c.Lookups.WithLabelValues(string(e.Kind), result).Inc()
}

// InstrumentWriter wraps rw so every InsertRow is timed.
func (c *Collector) InstrumentWriter(rw core.RowWriter) core.RowWriter {
	return &timedWriter{next: rw, c: c}
}

type timedWriter struct {
	next core.RowWriter
	c    *Collector
}

func (w *timedWriter) InsertRow(ctx context.Context, table string, columns []string, values []pgtype.Text) error {
	start := time.Now()
	err := w.next.InsertRow(ctx, table, columns, values)
	w.c.WriteTime.Observe(time.Since(start).Seconds())
	if err != nil {
		w.c.writeFailed.Inc()
	}
	return err
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
