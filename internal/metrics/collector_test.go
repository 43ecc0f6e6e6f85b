package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.EntityProcessed()
	c.EntityProcessed()
	c.EntityDropped()
	c.ShardErrors(3)
	c.IndicatorFailure("macd", "weekly")
	c.RowsWritten("/out/stock_weekly.parquet", 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.entities.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entities.WithLabelValues("dropped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.shardErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.indicatorFailures.WithLabelValues("macd", "weekly")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.rowsWritten.WithLabelValues("stock_weekly.parquet")))
}

func TestCollectorWriteFile(t *testing.T) {
	c := NewCollector()
	c.StageDuration("compact", 1500*time.Millisecond)
	c.MarkSuccess(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "sub", "metrics.prom")
	require.NoError(t, c.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cn_data_stage_duration_seconds{stage="compact"} 1.5`)
	assert.Contains(t, string(data), "cn_data_last_success_timestamp_seconds 1.7e+09")
}
