package indicator

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-data/internal/model"
)

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func constantBars(n int, price, volume float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		b := model.NewBar("B", start.AddDate(0, 0, i))
		b.Open, b.High, b.Low, b.Close, b.Volume = price, price, price, price, volume
		bars[i] = b
	}
	return bars
}

// zigzagBars moves up and down with a slow drift so every family has range.
func zigzagBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 10 + 0.05*float64(i) + math.Sin(float64(i)/2)
		b := model.NewBar("Z", start.AddDate(0, 0, i))
		b.Open, b.Close = c-0.1, c
		b.High, b.Low = c+0.5, c-0.5
		b.Volume = 1000 + float64(i%7)*10
		bars[i] = b
	}
	return bars
}

func TestMovingAverageWindowing(t *testing.T) {
	bars := constantBars(300, 5.0, 100)
	rep := NewDefaultEngine().Compute(bars, Daily)
	require.Empty(t, rep.Failed())

	for _, w := range []int{5, 10, 20, 60, 120, 250} {
		ref := model.IndicatorRef(fmt.Sprintf("ma%d", w))
		require.NotNil(t, ref)
		for i := range bars {
			v := *ref(&bars[i].Ind)
			if i < w-1 {
				assert.True(t, math.IsNaN(v), "ma%d at %d should be missing", w, i)
			} else {
				assert.Equal(t, 5.0, v, "ma%d at %d", w, i)
			}
		}
	}
	for _, w := range []int{5, 10, 20, 30} {
		ref := model.IndicatorRef(fmt.Sprintf("vol_ma%d", w))
		assert.True(t, math.IsNaN(*ref(&bars[w-2].Ind)))
		assert.Equal(t, 100.0, *ref(&bars[w-1].Ind))
	}
}

func TestMA250Scenario(t *testing.T) {
	bars := constantBars(252, 5.0, 1)
	NewDefaultEngine().Compute(bars, Daily)
	for i := 0; i < 249; i++ {
		assert.True(t, math.IsNaN(bars[i].Ind.MA250), "row %d", i+1)
	}
	for i := 249; i < 252; i++ {
		assert.Equal(t, 5.0, bars[i].Ind.MA250, "row %d", i+1)
	}
}

func TestFamilyFailureIsolated(t *testing.T) {
	boom := Family{
		Name:    "macd",
		Columns: []string{"dif", "dea", "macd"},
		Compute: func(in *Input) (Output, error) { panic("degenerate input") },
	}
	short := Family{
		Name:    "rsi",
		Columns: []string{"rsi6"},
		Compute: func(in *Input) (Output, error) { return Output{"rsi6": []float64{1}}, nil },
	}
	failing := Family{
		Name:    "atr",
		Columns: []string{"atr"},
		Compute: func(in *Input) (Output, error) { return nil, errors.New("bad") },
	}
	e, err := NewEngine(DefaultFamilies()[0], boom, short, failing)
	require.NoError(t, err)

	bars := constantBars(30, 2.0, 1)
	for i := range bars {
		bars[i].Ind.DIF = 123 // stale value from an earlier run
	}
	rep := e.Compute(bars, Daily)

	failed := rep.Failed()
	require.Len(t, failed, 3)
	assert.Equal(t, "macd", failed[0].Family)
	assert.Contains(t, failed[0].Err.Error(), "degenerate input")
	assert.Equal(t, "rsi", failed[1].Family)
	assert.Equal(t, "atr", failed[2].Family)

	ma, ok := rep.Outcome("ma")
	require.True(t, ok)
	assert.True(t, ma.OK())
	assert.Equal(t, 2.0, bars[29].Ind.MA20)
	for i := range bars {
		assert.True(t, math.IsNaN(bars[i].Ind.DIF))
		assert.True(t, math.IsNaN(bars[i].Ind.RSI6))
		assert.True(t, math.IsNaN(bars[i].Ind.ATR))
	}
	assert.Equal(t, 2.0, bars[29].Close, "raw columns pass through")
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Family{Name: "x", Columns: []string{"nope"}, Compute: func(*Input) (Output, error) { return nil, nil }})
	assert.Error(t, err)

	_, err = NewEngine(MACD(12, 26, 9), Family{Name: "dup", Columns: []string{"dif"}, Compute: func(*Input) (Output, error) { return nil, nil }})
	assert.Error(t, err)

	_, err = NewEngine(Family{Name: "nil"})
	assert.Error(t, err)

	assert.Equal(t, []string{"ma", "vol_ma", "macd", "kdj", "rsi", "boll", "cci", "atr"}, NewDefaultEngine().Families())
}

func TestWarmupMasks(t *testing.T) {
	bars := zigzagBars(80)
	rep := NewDefaultEngine().Compute(bars, Daily)
	require.Empty(t, rep.Failed())

	masks := []struct {
		col   string
		first int
	}{
		{"dif", 25}, {"dea", 33}, {"macd", 33},
		{"k", 10}, {"d", 12}, {"j", 12},
		{"rsi6", 6}, {"rsi12", 12}, {"rsi24", 24},
		{"boll_up", 19}, {"boll_lb", 19},
		{"cci", 13}, {"atr", 14},
	}
	last := len(bars) - 1
	for _, m := range masks {
		ref := model.IndicatorRef(m.col)
		require.NotNil(t, ref, m.col)
		for i := 0; i < m.first; i++ {
			assert.True(t, math.IsNaN(*ref(&bars[i].Ind)), "%s at %d", m.col, i)
		}
		v := *ref(&bars[last].Ind)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s at end", m.col)
	}

	b := bars[last].Ind
	assert.InDelta(t, b.DIF-b.DEA, b.MACD, 1e-9)
	assert.InDelta(t, 3*b.K-2*b.D, b.J, 1e-9)
	assert.Greater(t, b.BollUp, b.BollLB)
	assert.Greater(t, b.ATR, 0.0)
	assert.True(t, b.RSI6 >= 0 && b.RSI6 <= 100)
}

func TestDegenerateConstantSeries(t *testing.T) {
	bars := constantBars(40, 3.0, 10)
	rep := NewDefaultEngine().Compute(bars, Daily)
	require.Empty(t, rep.Failed())

	last := bars[39].Ind
	assert.Equal(t, 3.0, last.BollUp)
	assert.Equal(t, 3.0, last.BollLB)
	// flat windows divide by zero: missing, never zero or infinite
	assert.True(t, math.IsNaN(last.CCI))
	assert.True(t, math.IsNaN(last.K))
	for i := range bars {
		for _, f := range model.IndicatorFields {
			assert.False(t, math.IsInf(*f.Ref(&bars[i].Ind), 0), f.Name)
		}
	}
}

func TestRollingMeanMissingInWindow(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, math.NaN(), 7, 8, 9, 10, 11, 12}
	out := RollingMean(x, 3)
	assert.True(t, math.IsNaN(out[1]))
	assert.Equal(t, 2.0, out[2])
	assert.Equal(t, 4.0, out[4])
	for i := 5; i <= 7; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d", i)
	}
	assert.Equal(t, 8.0, out[8])
	assert.Equal(t, 11.0, out[11])
}

func TestRollingHelpers(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	sd := RollingPopStdDev(x, 8)
	assert.InDelta(t, 2.0, sd[7], 1e-12)
	assert.Equal(t, 9.0, RollingMax(x, 3)[7])
	assert.Equal(t, 5.0, RollingMin(x, 3)[7])
	md := RollingMeanDev([]float64{1, 2, 3}, 3)
	assert.InDelta(t, 2.0/3.0, md[2], 1e-12)
}

func TestComputeEmpty(t *testing.T) {
	rep := NewDefaultEngine().Compute(nil, Weekly)
	assert.Equal(t, 0, rep.Rows)
	assert.Empty(t, rep.Outcomes)
}

func BenchmarkDefaultEngine(b *testing.B) {
	bars := zigzagBars(5000)
	e := NewDefaultEngine()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Compute(bars, Daily)
	}
}
