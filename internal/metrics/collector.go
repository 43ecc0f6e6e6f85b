package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the counters of one consolidation run. Values are written
// once at the end of the run as a node-exporter textfile.
type Collector struct {
	entities          *prometheus.CounterVec
	shardErrors       prometheus.Counter
	fieldErrors       prometheus.Counter
	badRows           prometheus.Counter
	indicatorFailures *prometheus.CounterVec
	rowsWritten       *prometheus.CounterVec
	stageDuration     *prometheus.GaugeVec
	lastSuccess       prometheus.Gauge

	registry *prometheus.Registry
}

// NewCollector creates a collector on its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,

		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cn_data_entities_total",
			Help: "Entities seen by the run, by status (processed, dropped)",
		}, []string{"status"}),

		shardErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn_data_shard_errors_total",
			Help: "Source shards skipped because they could not be read",
		}),

		fieldErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn_data_field_errors_total",
			Help: "Field values replaced by missing during conformance",
		}),

		badRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn_data_bad_rows_total",
			Help: "Source rows rejected for lack of a usable date",
		}),

		indicatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cn_data_indicator_failures_total",
			Help: "Indicator family failures, by family and frequency",
		}, []string{"family", "freq"}),

		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cn_data_rows_written_total",
			Help: "Rows written per output file",
		}, []string{"file"}),

		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn_data_stage_duration_seconds",
			Help: "Wall time of each run stage",
		}, []string{"stage"}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cn_data_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
	registry.MustRegister(
		c.entities,
		c.shardErrors,
		c.fieldErrors,
		c.badRows,
		c.indicatorFailures,
		c.rowsWritten,
		c.stageDuration,
		c.lastSuccess,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) EntityProcessed() { c.entities.WithLabelValues("processed").Inc() }

func (c *Collector) EntityDropped() { c.entities.WithLabelValues("dropped").Inc() }

func (c *Collector) ShardErrors(n int) { c.shardErrors.Add(float64(n)) }

func (c *Collector) FieldErrors(n int) { c.fieldErrors.Add(float64(n)) }

func (c *Collector) BadRows(n int) { c.badRows.Add(float64(n)) }

func (c *Collector) IndicatorFailure(family, freq string) {
	c.indicatorFailures.WithLabelValues(family, freq).Inc()
}

// RowsWritten records rows of an output file, labeled by its base name.
func (c *Collector) RowsWritten(path string, n int64) {
	c.rowsWritten.WithLabelValues(filepath.Base(path)).Add(float64(n))
}

func (c *Collector) StageDuration(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (c *Collector) MarkSuccess(t time.Time) { c.lastSuccess.Set(float64(t.Unix())) }

// WriteFile writes the registry to path in the text exposition format.
func (c *Collector) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
