package reconcile

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-data/internal/model"
	"cn-data/internal/schema"
	"cn-data/internal/source"
)

type klineShard struct {
	Date  string  `parquet:"date"`
	Code  string  `parquet:"code"`
	Open  float64 `parquet:"open"`
	Close float64 `parquet:"close"`
	Turn  string  `parquet:"turn"`
}

type flowShard struct {
	Date      string   `parquet:"date"`
	Code      string   `parquet:"code"`
	NetAmount *float64 `parquet:"net_flow_amount"`
	Main      *float64 `parquet:"main_net_flow"`
}

// memCold serves cold slices from memory, keyed by file name.
type memCold map[string][]schema.DailyRecord

func (m memCold) ReadCold(s source.ColdSlice) ([]schema.DailyRecord, error) {
	recs, ok := m[s.File]
	if !ok {
		return nil, errors.New("no such cold file")
	}
	return recs, nil
}

func f64(v float64) *float64 { return &v }

func writeShard[T any](t *testing.T, dir, name string, rows []T) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, parquet.WriteFile(p, rows))
	return p
}

func TestReconcileIncrementOverridesCold(t *testing.T) {
	dir := t.TempDir()
	cold := memCold{"cold.parquet": {
		{Date: "2024-01-02", Code: "A", Close: f64(10.0), NetFlowAmount: f64(7)},
		{Date: "2023-12-29", Code: "A", Close: f64(9.8)},
	}}
	inc := writeShard(t, dir, "A.parquet", []klineShard{
		{Date: "2024-01-02", Code: "A", Open: 10.1, Close: 10.5, Turn: "1.0"},
		{Date: "2024-01-03", Code: "A", Open: 10.5, Close: 10.7, Turn: "1.0"},
	})

	r := New(cold, nil)
	res, err := r.Reconcile(context.Background(), source.Sources{
		Code:      "A",
		Cold:      []source.ColdSlice{{File: "cold.parquet", Count: 2}},
		Increment: []string{inc},
	})
	require.NoError(t, err)
	require.False(t, res.Empty)
	require.Len(t, res.Bars, 3)

	assert.Equal(t, "2023-12-29", res.Bars[0].DateKey())
	assert.Equal(t, "2024-01-02", res.Bars[1].DateKey())
	assert.Equal(t, 10.5, res.Bars[1].Close)
	assert.Equal(t, 10.1, res.Bars[1].Open)
	// flows known to the cold row survive the price correction
	assert.Equal(t, 7.0, res.Bars[1].Flow.NetFlowAmount)
	assert.Equal(t, "2024-01-03", res.Bars[2].DateKey())
}

func TestReconcileIdempotentOverlap(t *testing.T) {
	dir := t.TempDir()
	first := writeShard(t, dir, "B_1.parquet", []klineShard{
		{Date: "2024-01-02", Code: "B", Close: 1},
		{Date: "2024-01-03", Code: "B", Close: 2},
	})
	second := writeShard(t, dir, "B_2.parquet", []klineShard{
		{Date: "2024-01-03", Code: "B", Close: 20},
		{Date: "2024-01-04", Code: "B", Close: 30},
	})
	src := source.Sources{Code: "B", Increment: []string{first, second}}

	r := New(nil, nil)
	for i := 0; i < 2; i++ {
		res, err := r.Reconcile(context.Background(), src)
		require.NoError(t, err)
		require.Len(t, res.Bars, 3)
		assert.Equal(t, []float64{1, 20, 30}, []float64{res.Bars[0].Close, res.Bars[1].Close, res.Bars[2].Close})
	}
}

func TestReconcileFlowFirstNonMissing(t *testing.T) {
	dir := t.TempDir()
	cold := memCold{"c": {
		{Date: "2024-03-01", Code: "X", Close: f64(5), NetFlowAmount: f64(1), MainNetFlow: f64(2)},
		{Date: "2024-03-04", Code: "X", Close: f64(5)},
	}}
	flow := writeShard(t, dir, "X.parquet", []flowShard{
		{Date: "2024-03-01", Code: "X", NetAmount: f64(100)},
		{Date: "2024-03-04", Code: "X", NetAmount: f64(-5), Main: f64(-1)},
		{Date: "2024-03-05", Code: "X", NetAmount: f64(9)},
	})

	res, err := New(cold, nil).Reconcile(context.Background(), source.Sources{
		Code: "X",
		Cold: []source.ColdSlice{{File: "c"}},
		Flow: []string{flow},
	})
	require.NoError(t, err)
	require.Len(t, res.Bars, 2, "flow rows without a price row are not added")

	assert.Equal(t, 100.0, res.Bars[0].Flow.NetFlowAmount, "flow shard has priority")
	assert.Equal(t, 2.0, res.Bars[0].Flow.MainNetFlow, "missing flow value does not blank existing one")
	assert.Equal(t, -5.0, res.Bars[1].Flow.NetFlowAmount)
	assert.Equal(t, -1.0, res.Bars[1].Flow.MainNetFlow)
	assert.True(t, math.IsNaN(res.Bars[1].Flow.LargeNetFlow))
}

func TestReconcileSkipsCorruptShards(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "C_bad.parquet")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0644))
	good := writeShard(t, dir, "C.parquet", []klineShard{{Date: "2024-01-02", Code: "C", Close: 3}})

	res, err := New(memCold{}, nil).Reconcile(context.Background(), source.Sources{
		Code:      "C",
		Cold:      []source.ColdSlice{{File: "missing"}},
		Increment: []string{bad, good},
	})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	assert.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.Error(t, s)
	}
}

func TestReconcileEmptyEntity(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "D.parquet")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0644))
	other := writeShard(t, dir, "D_other.parquet", []klineShard{{Date: "2024-01-02", Code: "E", Close: 1}})

	res, err := New(nil, nil).Reconcile(context.Background(), source.Sources{Code: "D", Increment: []string{bad, other}})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Bars)
}

func TestReconcileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Reconcile(ctx, source.Sources{Code: "A"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcileCountsCoercionFailures(t *testing.T) {
	dir := t.TempDir()
	inc := writeShard(t, dir, "F.parquet", []klineShard{{Date: "2024-01-02", Code: "F", Close: 3, Turn: "n/a?"}})
	res, err := New(nil, nil).Reconcile(context.Background(), source.Sources{Code: "F", Increment: []string{inc}})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, 1, res.FieldErrors)
	assert.True(t, math.IsNaN(res.Bars[0].Turn))
}

func TestNormalize(t *testing.T) {
	nan := math.NaN()
	bars := []model.Bar{
		{Close: 10, Volume: 1000, Turn: 1, AdjustFactor: nan, MktCap: nan},
		{Close: 11, Volume: 0, Turn: 0, AdjustFactor: 1.2, MktCap: nan},
		{Close: 12, Volume: 500, Turn: nan, AdjustFactor: nan, MktCap: nan},
		{Close: 12, Volume: 500, Turn: 0.5, AdjustFactor: nan, MktCap: 42},
	}
	Normalize(bars)

	assert.Equal(t, []float64{1, 1.2, 1.2, 1.2}, []float64{bars[0].AdjustFactor, bars[1].AdjustFactor, bars[2].AdjustFactor, bars[3].AdjustFactor})
	assert.InDelta(t, 10*1000/0.01, bars[0].MktCap, 1e-6)
	assert.Equal(t, bars[0].MktCap, bars[1].MktCap, "suspended day carries previous value")
	assert.Equal(t, bars[0].MktCap, bars[2].MktCap)
	assert.Equal(t, 42.0, bars[3].MktCap, "existing values are kept")

	lead := []model.Bar{{Close: nan, Volume: nan, Turn: nan, AdjustFactor: nan, MktCap: nan}}
	Normalize(lead)
	assert.Equal(t, 0.0, lead[0].MktCap)
	assert.Equal(t, 1.0, lead[0].AdjustFactor)
}
