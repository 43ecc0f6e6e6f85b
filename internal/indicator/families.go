package indicator

import (
	"fmt"
	"math"

	ta "github.com/banbox/banta"
)

// DefaultFamilies is the fixed indicator set of every entity table.
func DefaultFamilies() []Family {
	return []Family{
		MovingAverage("ma", "ma", func(in *Input) []float64 { return in.Close }, 5, 10, 20, 60, 120, 250),
		MovingAverage("vol_ma", "vol_ma", func(in *Input) []float64 { return in.Volume }, 5, 10, 20, 30),
		MACD(12, 26, 9),
		KDJ(9, 3, 3),
		RSI(6, 12, 24),
		Bollinger(20, 2),
		CCI(14),
		ATR(14),
	}
}

// MovingAverage is a simple mean of pick(in) over each window.
func MovingAverage(name, prefix string, pick func(*Input) []float64, windows ...int) Family {
	cols := make([]string, len(windows))
	for i, w := range windows {
		cols[i] = fmt.Sprintf("%s%d", prefix, w)
	}
	return Family{
		Name:    name,
		Columns: cols,
		Compute: func(in *Input) (Output, error) {
			x := pick(in)
			out := make(Output, len(windows))
			for i, w := range windows {
				out[cols[i]] = RollingMean(x, w)
			}
			return out, nil
		},
	}
}

func newEnv(freq Frequency) *ta.BarEnv {
	return &ta.BarEnv{
		TimeFrame:  freq.TimeFrame(),
		TFMSecs:    freq.minSpacingMillis(),
		Exchange:   "cn",
		MarketType: "spot",
	}
}

// feed pushes the bars for which usable is true into env, in order, and calls
// step after each one with the bar index and the count of bars fed so far.
// Skipped bars keep their missing outputs and do not advance the TA state.
func feed(env *ta.BarEnv, in *Input, usable func(i int) bool, step func(i, fed int) error) error {
	fed := 0
	for i := 0; i < in.Len(); i++ {
		if !usable(i) {
			continue
		}
		if err := env.OnBar(in.Time[i], in.Open[i], in.High[i], in.Low[i], in.Close[i], in.Volume[i], 0); err != nil {
			return fmt.Errorf("bar %d: %v", i, err)
		}
		fed++
		if err := step(i, fed); err != nil {
			return err
		}
	}
	return nil
}

// pushValue feeds a derived value as a flat bar so the TA kernels can smooth it.
func pushValue(env *ta.BarEnv, ms int64, v float64) error {
	if err := env.OnBar(ms, v, v, v, v, 0, 0); err != nil {
		return fmt.Errorf("derived bar at %d: %v", ms, err)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MACD emits dif (fast EMA - slow EMA), dea (signal EMA of dif) and macd
// (histogram dif - dea). dif needs slow bars; dea and macd need signal more.
func MACD(fast, slow, signal int) Family {
	return Family{
		Name:    "macd",
		Columns: []string{"dif", "dea", "macd"},
		Compute: func(in *Input) (Output, error) {
			n := in.Len()
			dif, dea, hist := nans(n), nans(n), nans(n)
			env, sig := newEnv(in.Freq), newEnv(in.Freq)
			difs := 0
			err := feed(env, in, func(i int) bool { return finite(in.Close[i]) }, func(i, fed int) error {
				f := ta.EMA(env.Close, fast).Get(0)
				s := ta.EMA(env.Close, slow).Get(0)
				if fed < slow || !finite(f, s) {
					return nil
				}
				d := f - s
				dif[i] = d
				if err := pushValue(sig, in.Time[i], d); err != nil {
					return err
				}
				difs++
				e := ta.EMA(sig.Close, signal).Get(0)
				if difs >= signal && finite(e) {
					dea[i] = e
					hist[i] = d - e
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return Output{"dif": dif, "dea": dea, "macd": hist}, nil
		},
	}
}

// KDJ smooths the raw stochastic value RSV over period bars into K (RMA m1)
// and D (RMA m2 of K); J = 3K - 2D. A flat window (high == low) has no RSV.
func KDJ(period, m1, m2 int) Family {
	return Family{
		Name:    "kdj",
		Columns: []string{"k", "d", "j"},
		Compute: func(in *Input) (Output, error) {
			n := in.Len()
			hh, ll := RollingMax(in.High, period), RollingMin(in.Low, period)
			k, d, j := nans(n), nans(n), nans(n)
			kEnv, dEnv := newEnv(in.Freq), newEnv(in.Freq)
			rsvs, ks := 0, 0
			for i := 0; i < n; i++ {
				span := hh[i] - ll[i]
				if !finite(hh[i], ll[i], in.Close[i]) || span == 0 {
					continue
				}
				rsv := (in.Close[i] - ll[i]) / span * 100
				if err := pushValue(kEnv, in.Time[i], rsv); err != nil {
					return nil, err
				}
				rsvs++
				kv := ta.RMA(kEnv.Close, m1).Get(0)
				if rsvs < m1 || !finite(kv) {
					continue
				}
				k[i] = kv
				if err := pushValue(dEnv, in.Time[i], kv); err != nil {
					return nil, err
				}
				ks++
				dv := ta.RMA(dEnv.Close, m2).Get(0)
				if ks < m2 || !finite(dv) {
					continue
				}
				d[i] = dv
				j[i] = 3*kv - 2*dv
			}
			return Output{"k": k, "d": d, "j": j}, nil
		},
	}
}

// RSI emits rsi{n} for each period; a period needs n price changes.
func RSI(periods ...int) Family {
	cols := make([]string, len(periods))
	for i, p := range periods {
		cols[i] = fmt.Sprintf("rsi%d", p)
	}
	return Family{
		Name:    "rsi",
		Columns: cols,
		Compute: func(in *Input) (Output, error) {
			out := make(Output, len(periods))
			for _, c := range cols {
				out[c] = nans(in.Len())
			}
			env := newEnv(in.Freq)
			err := feed(env, in, func(i int) bool { return finite(in.Close[i]) }, func(i, fed int) error {
				for pi, p := range periods {
					v := ta.RSI(env.Close, p).Get(0)
					if fed > p {
						out[cols[pi]][i] = v
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// Bollinger emits the upper and lower bands: mean ± k population σ of close.
func Bollinger(period int, k float64) Family {
	return Family{
		Name:    "boll",
		Columns: []string{"boll_up", "boll_lb"},
		Compute: func(in *Input) (Output, error) {
			mid, sd := RollingMean(in.Close, period), RollingPopStdDev(in.Close, period)
			up, lb := nans(in.Len()), nans(in.Len())
			for i := range mid {
				up[i] = mid[i] + k*sd[i]
				lb[i] = mid[i] - k*sd[i]
			}
			return Output{"boll_up": up, "boll_lb": lb}, nil
		},
	}
}

// CCI is (TP - SMA(TP)) / (0.015 * mean deviation) with TP = (H+L+C)/3.
func CCI(period int) Family {
	return Family{
		Name:    "cci",
		Columns: []string{"cci"},
		Compute: func(in *Input) (Output, error) {
			n := in.Len()
			tp := make([]float64, n)
			for i := range tp {
				tp[i] = (in.High[i] + in.Low[i] + in.Close[i]) / 3
			}
			sma, md := RollingMean(tp, period), RollingMeanDev(tp, period)
			out := nans(n)
			for i := range out {
				if md[i] == 0 {
					continue
				}
				out[i] = (tp[i] - sma[i]) / (0.015 * md[i])
			}
			return Output{"cci": out}, nil
		},
	}
}

// ATR is the RMA of true range; it needs period bars after the first one,
// since true range uses the previous close.
func ATR(period int) Family {
	return Family{
		Name:    "atr",
		Columns: []string{"atr"},
		Compute: func(in *Input) (Output, error) {
			out := nans(in.Len())
			env := newEnv(in.Freq)
			usable := func(i int) bool { return finite(in.High[i], in.Low[i], in.Close[i]) }
			err := feed(env, in, usable, func(i, fed int) error {
				v := ta.ATR(env.High, env.Low, env.Close, period).Get(0)
				if fed > period {
					out[i] = v
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return Output{"atr": out}, nil
		},
	}
}
